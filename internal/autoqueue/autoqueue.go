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

// Package autoqueue implements the auto-queue runner (C8): for repos that
// opt in, it watches open issues not already on a terminal or active status
// and moves them to queued or blocked based on a relationship provider's
// verdict on their blocking dependencies, never guessing when that verdict
// is uncertain.
package autoqueue

import (
	"context"

	"github.com/tombee/ralph/internal/queue"
	"github.com/tombee/ralph/internal/store"
)

// Scope controls which issues auto-queue considers.
type Scope string

const (
	ScopeAllOpen     Scope = "all-open"
	ScopeLabeledOnly Scope = "labeled-only"
)

// Confidence is how sure the relationship provider is about a blocking
// verdict. "unknown" means auto-queue must not guess and skips the issue.
type Confidence string

const (
	ConfidenceCertain Confidence = "certain"
	ConfidenceUnknown Confidence = "unknown"
)

// BlockedDecision is the relationship provider's verdict for one issue.
type BlockedDecision struct {
	Blocked    bool
	Confidence Confidence
	Reasons    []string
}

// RelationshipProvider resolves blocked-by/closes edges for an issue. The
// concrete implementation queries the host's issue graph; tests supply an
// in-memory fake.
type RelationshipProvider interface {
	EvaluateBlocking(ctx context.Context, repo string, number int) (BlockedDecision, error)
}

// Input is everything computeAutoQueueLabelPlan needs about one issue.
type Input struct {
	IssueState store.IssueState
	Labels     []string
	Scope      Scope
	Decision   BlockedDecision
}

// Plan is the pure decision computeAutoQueueLabelPlan returns: the label
// delta to apply (if any), whether applying it is meaningful work, and
// whether the issue was skipped outright.
type Plan struct {
	Add      []string
	Remove   []string
	Runnable bool
	Skipped  bool
	Reason   string
}

var skipStatuses = []store.TaskStatus{
	store.StatusDone,
	store.StatusInBot,
	store.StatusInProgress,
	store.StatusPaused,
	store.StatusEscalated,
	store.StatusStopped,
}

// computeAutoQueueLabelPlan is the pure decision function for C8: given an
// issue's current state and a relationship provider's verdict, decide
// whether and how to move its status label toward queued or blocked.
func computeAutoQueueLabelPlan(in Input) Plan {
	if in.IssueState == store.IssueClosed {
		return Plan{Skipped: true, Reason: "issue is closed"}
	}

	labelSet := make(map[string]bool, len(in.Labels))
	for _, l := range in.Labels {
		labelSet[l] = true
	}
	for _, s := range skipStatuses {
		if labelSet[queue.StatusLabel(s)] {
			return Plan{Skipped: true, Reason: "status " + string(s) + " is not eligible for auto-queue"}
		}
	}

	if in.Scope == ScopeLabeledOnly {
		hasRalphLabel := false
		for _, l := range in.Labels {
			if hasRalphPrefix(l) {
				hasRalphLabel = true
				break
			}
		}
		if !hasRalphLabel {
			return Plan{Skipped: true, Reason: "scope is labeled-only and issue has no ralph label"}
		}
	}

	if in.Decision.Confidence == ConfidenceUnknown {
		return Plan{Skipped: true, Reason: "relationship provider confidence is unknown"}
	}

	target := store.StatusQueued
	if in.Decision.Blocked {
		target = store.StatusBlocked
	}

	delta := queue.StatusToLabelDelta(target, in.Labels)
	targetLabel := queue.StatusLabel(target)
	alreadyPresent := labelSet[targetLabel] && len(delta.Remove) == 0

	return Plan{
		Add:      delta.Add,
		Remove:   delta.Remove,
		Runnable: !alreadyPresent,
		Skipped:  false,
		Reason:   reasonFor(target, in.Decision),
	}
}

func reasonFor(target store.TaskStatus, d BlockedDecision) string {
	if target == store.StatusBlocked {
		if len(d.Reasons) > 0 {
			return d.Reasons[0]
		}
		return "blocked by an open dependency"
	}
	return "no blocking dependency found"
}

func hasRalphPrefix(label string) bool {
	const prefix = "ralph:"
	return len(label) >= len(prefix) && label[:len(prefix)] == prefix
}
