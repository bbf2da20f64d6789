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
	"context"
	"fmt"
	"time"

	"github.com/tombee/ralph/internal/queue"
	"github.com/tombee/ralph/internal/store"
	"github.com/tombee/ralph/internal/util"
)

// CmdHost is the host surface the command processor needs: live label
// reads/writes, the timeline event id behind a label's most recent
// application, and a single idempotent tracking comment per command
// instance.
type CmdHost interface {
	FetchIssueLabels(ctx context.Context, repo string, number int) ([]string, store.IssueState, error)
	ApplyLabelDelta(ctx context.Context, repo string, number int, delta queue.LabelDelta) ([]string, error)
	LatestLabeledEventID(ctx context.Context, repo string, number int, label string) (eventID string, ok bool, err error)
	UpsertTrackingComment(ctx context.Context, repo string, number int, key, body string) error
}

// Outcome reports what ProcessCommand actually did.
type Outcome struct {
	Decision string // "applied" | "refused" | "already-completed"
	Reason   string
}

// ProcessCommand runs one tick of command-label processing for a single
// (repo, number, label) instance: it is idempotent per (label, labeled
// event), safe to call again on every tick until it succeeds, and leaves
// exactly one tracking comment per command instance.
func ProcessCommand(ctx context.Context, host CmdHost, st *store.Store, repo string, number int, label CmdLabel, now time.Time) (Outcome, error) {
	eventID, _, err := host.LatestLabeledEventID(ctx, repo, number, label.Label())
	if err != nil {
		return Outcome{}, fmt.Errorf("cmdproc: resolve labeled event for %s#%d %s: %w", repo, number, label, err)
	}
	key := IdempotencyKey(repo, number, label, eventID)

	rec, found, err := st.GetIdempotencyPayload(ctx, key)
	if err != nil {
		return Outcome{}, fmt.Errorf("cmdproc: load idempotency record %s: %w", key, err)
	}
	if found && rec.Phase == "completed" {
		if _, err := host.ApplyLabelDelta(ctx, repo, number, queue.LabelDelta{Remove: []string{label.Label()}}); err != nil {
			return Outcome{}, fmt.Errorf("cmdproc: idempotent label-removal cleanup for %s#%d %s: %w", repo, number, label, err)
		}
		return Outcome{Decision: "already-completed"}, nil
	}
	if !found {
		if _, err := st.RecordIdempotencyKey(ctx, store.IdempotencyRecord{Key: key, Scope: "cmd", CreatedAt: now, Phase: "started"}); err != nil {
			return Outcome{}, fmt.Errorf("cmdproc: record idempotency key %s: %w", key, err)
		}
	}

	liveLabels, issueState, err := host.FetchIssueLabels(ctx, repo, number)
	if err != nil {
		return Outcome{}, fmt.Errorf("cmdproc: fetch live labels for %s#%d: %w", repo, number, err)
	}

	if issueState == store.IssueClosed {
		return refuse(ctx, host, st, repo, number, label, key, now, "issue is closed")
	}

	if label == CmdQueue {
		if refused, reason, err := checkQueueCausality(ctx, host, repo, number, liveLabels, eventID); err != nil {
			return Outcome{}, err
		} else if refused {
			return refuse(ctx, host, st, repo, number, label, key, now, reason)
		}
	}

	plan := PlanDispatch(label, issueState, liveLabels)

	switch plan.Action {
	case ActionRecordSatisfaction:
		satisfyKey := SatisfyKey(repo, number)
		if _, err := st.GetIdempotencyPayload(ctx, satisfyKey); err != nil {
			return Outcome{}, err
		}
		if _, err := st.RecordIdempotencyKey(ctx, store.IdempotencyRecord{Key: satisfyKey, Scope: "satisfy", CreatedAt: now, Phase: "completed"}); err != nil {
			return Outcome{}, fmt.Errorf("cmdproc: record satisfaction for %s#%d: %w", repo, number, err)
		}

	default:
		if err := st.ReleaseTaskSlot(ctx, repo, number, statusForAction(plan.Action), plan.ReleaseReason); err != nil {
			return Outcome{}, fmt.Errorf("cmdproc: release task slot for %s#%d: %w", repo, number, err)
		}
		if _, err := host.ApplyLabelDelta(ctx, repo, number, plan.Delta); err != nil {
			return Outcome{}, fmt.Errorf("cmdproc: apply dispatch label delta for %s#%d: %w", repo, number, err)
		}
	}

	if _, err := host.ApplyLabelDelta(ctx, repo, number, queue.LabelDelta{Remove: []string{label.Label()}}); err != nil {
		return Outcome{}, fmt.Errorf("cmdproc: remove cmd label for %s#%d: %w", repo, number, err)
	}
	if err := host.UpsertTrackingComment(ctx, repo, number, key, trackingCommentBody(plan.Action, "")); err != nil {
		return Outcome{}, fmt.Errorf("cmdproc: upsert tracking comment for %s#%d: %w", repo, number, err)
	}
	if err := st.UpsertIdempotencyKey(ctx, store.IdempotencyRecord{Key: key, Scope: "cmd", CreatedAt: now, Phase: "completed"}); err != nil {
		return Outcome{}, fmt.Errorf("cmdproc: finalize idempotency record %s: %w", key, err)
	}

	return Outcome{Decision: "applied", Reason: plan.Reason}, nil
}

func checkQueueCausality(ctx context.Context, host CmdHost, repo string, number int, liveLabels []string, queueEventID string) (bool, string, error) {
	if !util.Contains(liveLabels, queue.StatusLabel(store.StatusEscalated)) {
		return false, "", nil
	}

	escalatedEventID, ok, err := host.LatestLabeledEventID(ctx, repo, number, queue.StatusLabel(store.StatusEscalated))
	if err != nil {
		return false, "", fmt.Errorf("cmdproc: resolve escalated labeled event for %s#%d: %w", repo, number, err)
	}
	if !ok {
		return false, "", nil
	}

	refused, err := QueueCommandRefused(queueEventID, escalatedEventID)
	if err != nil {
		return false, "", fmt.Errorf("cmdproc: compare causality for %s#%d: %w", repo, number, err)
	}
	if refused {
		return true, "queue command predates the active escalation", nil
	}
	return false, "", nil
}

func refuse(ctx context.Context, host CmdHost, st *store.Store, repo string, number int, label CmdLabel, key string, now time.Time, reason string) (Outcome, error) {
	if _, err := host.ApplyLabelDelta(ctx, repo, number, queue.LabelDelta{Remove: []string{label.Label()}}); err != nil {
		return Outcome{}, fmt.Errorf("cmdproc: remove cmd label on refusal for %s#%d: %w", repo, number, err)
	}
	if err := host.UpsertTrackingComment(ctx, repo, number, key, trackingCommentBody("refused", reason)); err != nil {
		return Outcome{}, fmt.Errorf("cmdproc: upsert refusal comment for %s#%d: %w", repo, number, err)
	}
	if err := st.UpsertIdempotencyKey(ctx, store.IdempotencyRecord{
		Key: key, Scope: "cmd", CreatedAt: now, Phase: "completed",
		PayloadJSON: fmt.Sprintf(`{"decision":"refused","reason":%q}`, reason),
	}); err != nil {
		return Outcome{}, fmt.Errorf("cmdproc: finalize refusal record %s: %w", key, err)
	}
	return Outcome{Decision: "refused", Reason: reason}, nil
}

func statusForAction(action string) store.TaskStatus {
	switch action {
	case ActionPause:
		return store.StatusPaused
	case ActionStop:
		return store.StatusStopped
	case ActionQueue:
		return store.StatusQueued
	default:
		return store.StatusQueued
	}
}

func trackingCommentBody(decision, reason string) string {
	if reason == "" {
		return fmt.Sprintf("<!-- ralph:cmd-tracking decision=%s -->\nCommand processed: %s.", decision, decision)
	}
	return fmt.Sprintf("<!-- ralph:cmd-tracking decision=%s -->\nCommand %s: %s.", decision, decision, reason)
}
