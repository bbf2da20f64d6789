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

package reconcile

import (
	"github.com/tombee/ralph/internal/store"
)

// DesiredHostStatus collapses a task's local op-state into the status the
// label reconciler should drive the host towards. Returns skip=true for
// statuses that never propagate to host labels.
func DesiredHostStatus(opState store.TaskOpState) (status store.TaskStatus, skip bool) {
	switch opState.Status {
	case store.StatusThrottled, store.StatusDone:
		return "", true
	case store.StatusStarting, store.StatusWaitingOnPR:
		return store.StatusInProgress, false
	}
	if opState.ReleasedReason != "" || opState.ReleasedAtMs != 0 {
		return store.StatusQueued, false
	}
	return opState.Status, false
}

// ShouldSkipIssue reports whether the label reconciler should leave an
// issue alone entirely, regardless of drift: paused and stopped issues are
// operator-held and must not be touched by the reconciler loop.
func ShouldSkipIssue(currentHostStatus store.TaskStatus) bool {
	return currentHostStatus == store.StatusPaused || currentHostStatus == store.StatusStopped
}
