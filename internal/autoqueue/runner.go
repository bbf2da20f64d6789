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

package autoqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tombee/ralph/internal/queue"
	"github.com/tombee/ralph/internal/store"
)

// DefaultDebounce is the scheduling debounce NewRunner stores in
// Runner.Debounce. Runner does not read it; callers that debounce Sweep
// use it as their interval.
const DefaultDebounce = 500 * time.Millisecond

// Host is the host surface the runner needs beyond the relationship
// provider: listing candidate issues and applying label deltas through the
// write pipeline.
type Host interface {
	queue.LabelHost
	ListOpenIssues(ctx context.Context, repo string) ([]IssueRef, error)
}

// IssueRef identifies one candidate issue for a sweep.
type IssueRef struct {
	Number int
	Labels []string
}

// Applier applies a label delta through the coalescing/backoff write
// pipeline, returning the resulting live label set.
type Applier func(ctx context.Context, repo string, number int, delta queue.LabelDelta) ([]string, error)

// NudgeFunc wakes the scheduler after a label set changes, so a freshly
// queued task is not left waiting for the next periodic tick.
type NudgeFunc func()

// Runner sweeps a repo's open issues through computeAutoQueueLabelPlan.
// It does not debounce triggers itself; Debounce only carries the interval
// for callers that do.
type Runner struct {
	Host          Host
	Relationships RelationshipProvider
	Apply         Applier
	Nudge         NudgeFunc
	Scope         Scope
	MaxPerTick    int
	DryRun        bool
	Logger        *slog.Logger
	Debounce      time.Duration
}

// NewRunner constructs a Runner with defaults filled in.
func NewRunner(host Host, relationships RelationshipProvider, apply Applier, nudge NudgeFunc, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		Host:          host,
		Relationships: relationships,
		Apply:         apply,
		Nudge:         nudge,
		Scope:         ScopeAllOpen,
		MaxPerTick:    50,
		Logger:        logger,
		Debounce:      DefaultDebounce,
	}
}

// Sweep runs one auto-queue pass over repo's open issues, applying at most
// MaxPerTick label deltas. Callers are expected to debounce calls to Sweep
// themselves (e.g. via a timer reset on each trigger) since the decision of
// how many triggers to coalesce belongs to the scheduler, not this type.
func (r *Runner) Sweep(ctx context.Context, repo string) (int, error) {
	issues, err := r.Host.ListOpenIssues(ctx, repo)
	if err != nil {
		return 0, fmt.Errorf("autoqueue: list open issues for %s: %w", repo, err)
	}

	applied := 0
	for _, issue := range issues {
		if applied >= r.MaxPerTick {
			r.Logger.Info("autoqueue sweep hit per-tick cap", "repo", repo, "cap", r.MaxPerTick, "remaining", len(issues)-applied)
			break
		}

		decision, err := r.Relationships.EvaluateBlocking(ctx, repo, issue.Number)
		if err != nil {
			r.Logger.Warn("autoqueue relationship lookup failed", "repo", repo, "issue", issue.Number, "error", err)
			continue
		}

		plan := computeAutoQueueLabelPlan(Input{
			IssueState: store.IssueOpen,
			Labels:     issue.Labels,
			Scope:      r.Scope,
			Decision:   decision,
		})
		if plan.Skipped || !plan.Runnable {
			continue
		}

		if r.DryRun {
			r.Logger.Info("autoqueue dry-run plan", "repo", repo, "issue", issue.Number, "add", plan.Add, "remove", plan.Remove, "reason", plan.Reason)
			continue
		}

		if _, err := r.Apply(ctx, repo, issue.Number, queue.LabelDelta{Add: plan.Add, Remove: plan.Remove}); err != nil {
			r.Logger.Warn("autoqueue label write failed", "repo", repo, "issue", issue.Number, "error", err)
			continue
		}
		applied++
		if r.Nudge != nil {
			r.Nudge()
		}
	}

	return applied, nil
}
