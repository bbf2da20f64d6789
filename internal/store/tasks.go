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

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// RecordTaskSnapshot upserts a task op-state row, merging only the
// non-zero-valued fields of fields into the existing row (if any). Zero
// values, including an empty Status, are treated as "leave unchanged";
// Repo, Number, and TaskPath are always written.
func (s *Store) RecordTaskSnapshot(ctx context.Context, fields TaskOpState) error {
	if err := s.requireWritable(); err != nil {
		return err
	}
	if fields.TaskPath == "" {
		fields.TaskPath = TaskPath(fields.Repo, fields.Number)
	}

	existing, ok, err := s.getTaskOpStateTx(ctx, s.db, fields.TaskPath)
	if err != nil {
		return err
	}
	merged := fields
	if ok {
		merged = mergeTaskOpState(existing, fields)
	}

	return s.upsertTaskOpState(ctx, merged)
}

// mergeTaskOpState returns a copy of existing with every non-zero field of
// incoming applied over it.
func mergeTaskOpState(existing, incoming TaskOpState) TaskOpState {
	merged := existing
	merged.TaskPath = incoming.TaskPath
	merged.Repo = incoming.Repo
	merged.Number = incoming.Number
	if incoming.Status != "" {
		merged.Status = incoming.Status
	}
	if incoming.SessionID != "" {
		merged.SessionID = incoming.SessionID
	}
	if incoming.WorktreePath != "" {
		merged.WorktreePath = incoming.WorktreePath
	}
	if incoming.WorkerID != "" {
		merged.WorkerID = incoming.WorkerID
	}
	if incoming.RepoSlot != 0 {
		merged.RepoSlot = incoming.RepoSlot
	}
	if incoming.DaemonID != "" {
		merged.DaemonID = incoming.DaemonID
	}
	if incoming.HeartbeatAt != nil {
		merged.HeartbeatAt = incoming.HeartbeatAt
	}
	if incoming.ReleasedAtMs != 0 {
		merged.ReleasedAtMs = incoming.ReleasedAtMs
	}
	if incoming.ReleasedReason != "" {
		merged.ReleasedReason = incoming.ReleasedReason
	}
	if incoming.PRNumber != 0 {
		merged.PRNumber = incoming.PRNumber
	}
	if incoming.PRURL != "" {
		merged.PRURL = incoming.PRURL
	}
	if incoming.HeadSHA != "" {
		merged.HeadSHA = incoming.HeadSHA
	}
	if incoming.BranchName != "" {
		merged.BranchName = incoming.BranchName
	}
	if incoming.BlockedSource != "" {
		merged.BlockedSource = incoming.BlockedSource
	}
	if incoming.BlockedReason != "" {
		merged.BlockedReason = incoming.BlockedReason
	}
	if incoming.BlockedDetails != "" {
		merged.BlockedDetails = incoming.BlockedDetails
	}
	return merged
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) upsertTaskOpState(ctx context.Context, t TaskOpState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_op_state (
			task_path, repo, number, status, session_id, worktree_path, worker_id,
			repo_slot, daemon_id, heartbeat_at, released_at_ms, released_reason,
			pr_number, pr_url, head_sha, branch_name,
			blocked_source, blocked_reason, blocked_details
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (task_path) DO UPDATE SET
			status = excluded.status,
			session_id = excluded.session_id,
			worktree_path = excluded.worktree_path,
			worker_id = excluded.worker_id,
			repo_slot = excluded.repo_slot,
			daemon_id = excluded.daemon_id,
			heartbeat_at = excluded.heartbeat_at,
			released_at_ms = excluded.released_at_ms,
			released_reason = excluded.released_reason,
			pr_number = excluded.pr_number,
			pr_url = excluded.pr_url,
			head_sha = excluded.head_sha,
			branch_name = excluded.branch_name,
			blocked_source = excluded.blocked_source,
			blocked_reason = excluded.blocked_reason,
			blocked_details = excluded.blocked_details
	`,
		t.TaskPath, t.Repo, t.Number, string(t.Status), nullString(t.SessionID), nullString(t.WorktreePath), nullString(t.WorkerID),
		nullIntOrNil(t.RepoSlot), nullString(t.DaemonID), nullTime(t.HeartbeatAt), nullIntOrNil(int(t.ReleasedAtMs)), nullString(t.ReleasedReason),
		nullIntOrNil(t.PRNumber), nullString(t.PRURL), nullString(t.HeadSHA), nullString(t.BranchName),
		nullString(t.BlockedSource), nullString(t.BlockedReason), nullString(t.BlockedDetails),
	)
	if err != nil {
		return fmt.Errorf("store: upsert task op-state %s: %w", t.TaskPath, err)
	}
	return nil
}

func nullIntOrNil(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}

// GetTaskOpState returns the op-state row for taskPath, or
// (TaskOpState{}, false, nil) if none exists.
func (s *Store) GetTaskOpState(ctx context.Context, taskPath string) (TaskOpState, bool, error) {
	return s.getTaskOpStateTx(ctx, s.db, taskPath)
}

func (s *Store) getTaskOpStateTx(ctx context.Context, q execer, taskPath string) (TaskOpState, bool, error) {
	row := q.QueryRowContext(ctx, `
		SELECT task_path, repo, number, status, session_id, worktree_path, worker_id,
			repo_slot, daemon_id, heartbeat_at, released_at_ms, released_reason,
			pr_number, pr_url, head_sha, branch_name,
			blocked_source, blocked_reason, blocked_details
		FROM task_op_state WHERE task_path = ?
	`, taskPath)

	t, err := scanTaskOpState(row)
	if err == sql.ErrNoRows {
		return TaskOpState{}, false, nil
	}
	if err != nil {
		return TaskOpState{}, false, fmt.Errorf("store: get task op-state %s: %w", taskPath, err)
	}
	return t, true, nil
}

// ListTasksByStatus returns every op-state row with the given status,
// ordered by task_path for determinism.
func (s *Store) ListTasksByStatus(ctx context.Context, status TaskStatus) ([]TaskOpState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_path, repo, number, status, session_id, worktree_path, worker_id,
			repo_slot, daemon_id, heartbeat_at, released_at_ms, released_reason,
			pr_number, pr_url, head_sha, branch_name,
			blocked_source, blocked_reason, blocked_details
		FROM task_op_state WHERE status = ? ORDER BY task_path
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("store: list tasks by status %s: %w", status, err)
	}
	defer rows.Close()

	var out []TaskOpState
	for rows.Next() {
		t, err := scanTaskOpState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTaskOpState(row rowScanner) (TaskOpState, error) {
	var (
		t                                                        TaskOpState
		status                                                   string
		sessionID, worktreePath, workerID, daemonID, heartbeatAt sql.NullString
		releasedReason, prURL, headSHA, branchName               sql.NullString
		blockedSource, blockedReason, blockedDetails             sql.NullString
		repoSlot, releasedAtMs, prNumber                         sql.NullInt64
	)
	if err := row.Scan(&t.TaskPath, &t.Repo, &t.Number, &status, &sessionID, &worktreePath, &workerID,
		&repoSlot, &daemonID, &heartbeatAt, &releasedAtMs, &releasedReason,
		&prNumber, &prURL, &headSHA, &branchName,
		&blockedSource, &blockedReason, &blockedDetails); err != nil {
		return TaskOpState{}, err
	}
	t.Status = TaskStatus(status)
	t.SessionID = sessionID.String
	t.WorktreePath = worktreePath.String
	t.WorkerID = workerID.String
	t.RepoSlot = int(repoSlot.Int64)
	t.DaemonID = daemonID.String
	hb, err := parseNullTime(heartbeatAt)
	if err != nil {
		return TaskOpState{}, fmt.Errorf("parse heartbeat_at: %w", err)
	}
	t.HeartbeatAt = hb
	t.ReleasedAtMs = releasedAtMs.Int64
	t.ReleasedReason = releasedReason.String
	t.PRNumber = int(prNumber.Int64)
	t.PRURL = prURL.String
	t.HeadSHA = headSHA.String
	t.BranchName = branchName.String
	t.BlockedSource = blockedSource.String
	t.BlockedReason = blockedReason.String
	t.BlockedDetails = blockedDetails.String
	return t, nil
}

// UpdateTaskStatusIfOwnershipUnchangedParams parameterizes the CAS update.
type UpdateTaskStatusIfOwnershipUnchangedParams struct {
	TaskPath            string
	ExpectedDaemonID    string
	ExpectedHeartbeatAt *string // RFC3339Nano string, as stored; nil means "expect absent"
	Status              TaskStatus
	ReleasedAtMs        int64
}

// UpdateTaskStatusIfOwnershipUnchanged performs a compare-and-swap update of
// a task's status, failing closed (RaceSkipped=true) if the row's current
// daemon_id/heartbeat_at differ from the expected values.
func (s *Store) UpdateTaskStatusIfOwnershipUnchanged(ctx context.Context, p UpdateTaskStatusIfOwnershipUnchangedParams) (CASResult, error) {
	if err := s.requireWritable(); err != nil {
		return CASResult{}, err
	}

	expectedHeartbeat := ""
	if p.ExpectedHeartbeatAt != nil {
		expectedHeartbeat = *p.ExpectedHeartbeatAt
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE task_op_state
		SET status = ?, released_at_ms = ?
		WHERE task_path = ?
			AND COALESCE(daemon_id, '') = ?
			AND COALESCE(heartbeat_at, '') = ?
	`, string(p.Status), nullIntOrNil(int(p.ReleasedAtMs)), p.TaskPath, p.ExpectedDaemonID, expectedHeartbeat)
	if err != nil {
		return CASResult{}, fmt.Errorf("store: CAS update task status %s: %w", p.TaskPath, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return CASResult{}, err
	}
	if n == 0 {
		return CASResult{Updated: false, RaceSkipped: true}, nil
	}
	return CASResult{Updated: true}, nil
}

// ClearTaskOpStateParams parameterizes the CAS delete-or-mark-released.
type ClearTaskOpStateParams struct {
	TaskPath            string
	ExpectedDaemonID    string
	ExpectedHeartbeatAt *string
	Status              TaskStatus
	ReleasedAtMs        int64
	ReleasedReason      string
}

// ClearTaskOpState performs a compare-and-swap that marks a task released,
// clearing ownership fields, iff the row's current ownership matches the
// expected values.
func (s *Store) ClearTaskOpState(ctx context.Context, p ClearTaskOpStateParams) (CASResult, error) {
	if err := s.requireWritable(); err != nil {
		return CASResult{}, err
	}

	expectedHeartbeat := ""
	if p.ExpectedHeartbeatAt != nil {
		expectedHeartbeat = *p.ExpectedHeartbeatAt
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE task_op_state
		SET status = ?, daemon_id = NULL, heartbeat_at = NULL,
			released_at_ms = ?, released_reason = ?
		WHERE task_path = ?
			AND COALESCE(daemon_id, '') = ?
			AND COALESCE(heartbeat_at, '') = ?
	`, string(p.Status), p.ReleasedAtMs, p.ReleasedReason, p.TaskPath, p.ExpectedDaemonID, expectedHeartbeat)
	if err != nil {
		return CASResult{}, fmt.Errorf("store: CAS clear task op-state %s: %w", p.TaskPath, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return CASResult{}, err
	}
	if n == 0 {
		return CASResult{Updated: false, RaceSkipped: true}, nil
	}
	return CASResult{Updated: true}, nil
}

// ReleaseTaskSlot unconditionally releases a task's ownership, for use by
// operator commands (cmd:pause, cmd:stop, cmd:queue) which must succeed
// regardless of current ownership.
func (s *Store) ReleaseTaskSlot(ctx context.Context, repo string, issueNumber int, status TaskStatus, releasedReason string) error {
	if err := s.requireWritable(); err != nil {
		return err
	}
	taskPath := TaskPath(repo, issueNumber)

	_, err := s.db.ExecContext(ctx, `
		UPDATE task_op_state
		SET status = ?, daemon_id = NULL, heartbeat_at = NULL, released_reason = ?
		WHERE task_path = ?
	`, string(status), releasedReason, taskPath)
	if err != nil {
		return fmt.Errorf("store: release task slot %s: %w", taskPath, err)
	}
	return nil
}
