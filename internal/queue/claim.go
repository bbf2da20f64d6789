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

package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/tombee/ralph/internal/ownership"
	"github.com/tombee/ralph/internal/store"
)

// LabelHost is the subset of the issue host's API the queue backend needs
// to claim and reconcile tasks. internal/host/github implements it against
// the real GitHub REST/GraphQL API; tests supply an in-memory fake.
type LabelHost interface {
	FetchIssueLabels(ctx context.Context, repo string, number int) ([]string, store.IssueState, error)
	ApplyLabelDelta(ctx context.Context, repo string, number int, delta LabelDelta) ([]string, error)
}

// ClaimResult reports the outcome of TryClaim.
type ClaimResult struct {
	Claimed bool
	Reason  string
}

// TryClaim attempts to take ownership of a task for daemonID. For a queued
// issue it re-fetches live labels (never trusting the cached snapshot),
// re-plans the claim, and applies the label delta before recording local
// ownership. For an issue already in-progress, it instead asks whether
// daemonID may take over a possibly-abandoned claim.
func TryClaim(ctx context.Context, host LabelHost, st *store.Store, repo string, number int, daemonID string, now time.Time, ttl time.Duration) (ClaimResult, error) {
	labels, issueState, err := host.FetchIssueLabels(ctx, repo, number)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("queue: fetch live labels for %s#%d: %w", repo, number, err)
	}

	status, ok := StatusFromLabels(labels, issueState)
	if !ok {
		return ClaimResult{Reason: "no-status-label"}, nil
	}

	switch status {
	case store.StatusQueued:
		return claimQueued(ctx, host, st, repo, number, daemonID, now, labels)
	case store.StatusInProgress:
		return resumeInProgress(ctx, st, repo, number, daemonID, now, ttl)
	default:
		return ClaimResult{Reason: "not-claimable:" + string(status)}, nil
	}
}

func claimQueued(ctx context.Context, host LabelHost, st *store.Store, repo string, number int, daemonID string, now time.Time, labels []string) (ClaimResult, error) {
	plan := PlanClaim(labels)
	if !plan.Claimable {
		return ClaimResult{Reason: plan.Reason}, nil
	}

	newLabels, err := host.ApplyLabelDelta(ctx, repo, number, plan.Steps)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("queue: apply claim label delta for %s#%d: %w", repo, number, err)
	}

	if err := st.UpsertIssueLabels(ctx, repo, number, newLabels, now); err != nil {
		return ClaimResult{}, fmt.Errorf("queue: update cached labels for %s#%d: %w", repo, number, err)
	}

	heartbeat := now
	if err := st.RecordTaskSnapshot(ctx, store.TaskOpState{
		Repo: repo, Number: number, Status: store.StatusInProgress,
		DaemonID: daemonID, HeartbeatAt: &heartbeat,
	}); err != nil {
		return ClaimResult{}, fmt.Errorf("queue: record op-state for %s#%d: %w", repo, number, err)
	}

	return ClaimResult{Claimed: true}, nil
}

func resumeInProgress(ctx context.Context, st *store.Store, repo string, number int, daemonID string, now time.Time, ttl time.Duration) (ClaimResult, error) {
	opState, ok, err := st.GetTaskOpState(ctx, store.TaskPath(repo, number))
	if err != nil {
		return ClaimResult{}, fmt.Errorf("queue: load op-state for %s#%d: %w", repo, number, err)
	}
	if ok && !ownership.CanActOnTask(opState.DaemonID, opState.HeartbeatAt, daemonID, now, ttl) {
		return ClaimResult{Reason: "owned-by-other-daemon"}, nil
	}

	heartbeat := now
	if err := st.RecordTaskSnapshot(ctx, store.TaskOpState{
		Repo: repo, Number: number, Status: store.StatusInProgress,
		DaemonID: daemonID, HeartbeatAt: &heartbeat,
	}); err != nil {
		return ClaimResult{}, fmt.Errorf("queue: record resumed op-state for %s#%d: %w", repo, number, err)
	}

	return ClaimResult{Claimed: true}, nil
}
