// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmdproc

import (
	"github.com/tombee/ralph/internal/queue"
	"github.com/tombee/ralph/internal/store"
	"github.com/tombee/ralph/internal/util"
)

// Dispatch actions.
const (
	ActionRefuseClosed       = "refuse-closed"
	ActionRecordSatisfaction = "record-satisfaction"
	ActionQueue              = "queue"

	ActionQueueRefused = "queue-refused"
	ActionPause        = "pause"
	ActionStop         = "stop"
)

// Plan is the outcome of planning how to dispatch one command label.
type Plan struct {
	Action        string
	Delta         queue.LabelDelta
	ReleaseReason string
	Reason        string
}

// forcedQueueStrip is the fixed set of status labels the queue command
// clears before re-adding ralph:status:queued, so queued is always
// re-emitted even if it was already present (resetting any host-side
// "labeled" timestamp a watcher keys off of).
var forcedQueueStrip = []store.TaskStatus{
	store.StatusPaused, store.StatusEscalated, store.StatusStopped, store.StatusQueued,
}

// PlanDispatch computes what to do for one cmd label given the issue's
// live state. The caller is responsible for the causality guard on queue
// (see QueueCommandRefused) before calling this for CmdQueue.
func PlanDispatch(label CmdLabel, issueState store.IssueState, liveLabels []string) Plan {
	if issueState == store.IssueClosed {
		return Plan{Action: ActionRefuseClosed, Reason: "issue is closed"}
	}

	switch label {
	case CmdSatisfy:
		return Plan{Action: ActionRecordSatisfaction, Reason: "recorded dependency satisfaction"}

	case CmdQueue:
		var remove []string
		for _, s := range forcedQueueStrip {
			label := queue.StatusLabel(s)
			if util.Contains(liveLabels, label) {
				remove = append(remove, label)
			}
		}
		return Plan{
			Action:        ActionQueue,
			Delta:         queue.LabelDelta{Add: []string{queue.StatusLabel(store.StatusQueued)}, Remove: remove},
			ReleaseReason: "cmd:ralph:cmd:queue",
		}

	case CmdPause:
		return Plan{
			Action:        ActionPause,
			Delta:         queue.StatusToLabelDelta(store.StatusPaused, liveLabels),
			ReleaseReason: "cmd:ralph:cmd:pause",
		}

	case CmdStop:
		return Plan{
			Action:        ActionStop,
			Delta:         queue.StatusToLabelDelta(store.StatusStopped, liveLabels),
			ReleaseReason: "cmd:ralph:cmd:stop",
		}
	}

	return Plan{Reason: "unrecognized command label"}
}
