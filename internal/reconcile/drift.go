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

// Package reconcile implements the drift reconciler and label-write
// pipeline (C6): the label reconciler loop (local op-state -> host
// labels), the local drift repairer (host labels -> local op-state), and
// the coalescing, backoff-aware transport every label mutation flows
// through.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/tombee/ralph/internal/ownership"
	"github.com/tombee/ralph/internal/store"
)

// Drift repair outcomes.
const (
	DriftActionSkip             = "skip"
	DriftActionAlreadyConverged = "already-converged"
	DriftActionRepair           = "repair"
)

const (
	DriftReasonIssueClosed            = "issue-closed"
	DriftReasonAmbiguousStatusLabel   = "ambiguous-status-label"
	DriftReasonNoOpStateOrUnsupported = "no-op-state-or-unsupported-host-status"
	DriftReasonUnsafeActiveOwnership  = "unsafe-active-ownership"
)

// DriftInput is the host- and local-side state PlanLocalStatusDriftRepair
// needs to decide whether local op-state has drifted from the host's
// labels.
type DriftInput struct {
	IssueClosed      bool
	StatusLabelCount int

	HostStatus   store.TaskStatus
	HostStatusOK bool

	HasOpState  bool
	LocalStatus store.TaskStatus
	DaemonID    string
	HeartbeatAt *time.Time
}

// DriftDecision is the outcome of PlanLocalStatusDriftRepair.
type DriftDecision struct {
	Action       string
	Reason       string
	TargetStatus store.TaskStatus
}

// PlanLocalStatusDriftRepair decides whether an issue's local op-state
// should be repaired to match the host's (authoritative) label state. Only
// the host-to-local direction is ever taken here; the opposite direction is
// the label reconciler's job (reconcile.go).
func PlanLocalStatusDriftRepair(in DriftInput, now time.Time, ttl time.Duration) DriftDecision {
	if in.IssueClosed {
		return DriftDecision{Action: DriftActionSkip, Reason: DriftReasonIssueClosed}
	}
	if in.StatusLabelCount != 1 {
		return DriftDecision{Action: DriftActionSkip, Reason: DriftReasonAmbiguousStatusLabel}
	}
	if !in.HasOpState || !in.HostStatusOK {
		return DriftDecision{Action: DriftActionSkip, Reason: DriftReasonNoOpStateOrUnsupported}
	}
	if in.LocalStatus == in.HostStatus {
		return DriftDecision{Action: DriftActionAlreadyConverged}
	}
	if !ownership.IsHeartbeatStale(in.HeartbeatAt, now, ttl) {
		return DriftDecision{Action: DriftActionSkip, Reason: DriftReasonUnsafeActiveOwnership}
	}
	return DriftDecision{Action: DriftActionRepair, TargetStatus: in.HostStatus}
}

// RepairResult reports what RepairLocalDrift actually did.
type RepairResult struct {
	Repaired    bool
	RaceSkipped bool
}

// RepairLocalDrift executes a DriftActionRepair decision via the
// compare-and-swap primitive, so a concurrent claim or heartbeat on the
// same task is never clobbered.
func RepairLocalDrift(ctx context.Context, st *store.Store, repo string, number int, opState store.TaskOpState, targetStatus store.TaskStatus) (RepairResult, error) {
	taskPath := store.TaskPath(repo, number)

	var expectedHeartbeat *string
	if opState.HeartbeatAt != nil {
		s := opState.HeartbeatAt.UTC().Format(time.RFC3339Nano)
		expectedHeartbeat = &s
	}

	res, err := st.UpdateTaskStatusIfOwnershipUnchanged(ctx, store.UpdateTaskStatusIfOwnershipUnchangedParams{
		TaskPath: taskPath, ExpectedDaemonID: opState.DaemonID, ExpectedHeartbeatAt: expectedHeartbeat,
		Status: targetStatus,
	})
	if err != nil {
		return RepairResult{}, fmt.Errorf("reconcile: repair drift for %s: %w", taskPath, err)
	}
	if res.RaceSkipped {
		return RepairResult{RaceSkipped: true}, nil
	}
	return RepairResult{Repaired: true}, nil
}
