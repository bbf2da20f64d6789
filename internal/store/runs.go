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
	"fmt"
	"time"
)

// RecordRun inserts a new agent-session run row. SessionID is the
// primary key; recording the same session twice is a no-op, matching the
// once-per-session accounting contract.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	if err := s.requireWritable(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ralph_runs (session_id, task_path, profile, started_at, tokens_used)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO NOTHING
	`, run.SessionID, run.TaskPath, run.Profile, run.StartedAt.UTC().Format(time.RFC3339Nano), run.TokensUsed)
	if err != nil {
		return fmt.Errorf("store: record run %s: %w", run.SessionID, err)
	}
	return nil
}

// SetRunTokensUsed updates one run's token count once the session reports
// its actual usage.
func (s *Store) SetRunTokensUsed(ctx context.Context, sessionID string, tokensUsed int64) error {
	if err := s.requireWritable(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE ralph_runs SET tokens_used = ? WHERE session_id = ?`, tokensUsed, sessionID)
	if err != nil {
		return fmt.Errorf("store: set tokens used for run %s: %w", sessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("store: no run %s", sessionID)
	}
	return nil
}

// ListRunsSince returns every run started at or after since, ordered
// oldest-first, for computing a rolling or weekly throttle window.
func (s *Store) ListRunsSince(ctx context.Context, since time.Time) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, task_path, profile, started_at, tokens_used
		FROM ralph_runs WHERE started_at >= ? ORDER BY started_at
	`, since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("store: list runs since %s: %w", since, err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run       Run
		startedAt string
	)
	if err := row.Scan(&run.SessionID, &run.TaskPath, &run.Profile, &startedAt, &run.TokensUsed); err != nil {
		return Run{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	run.StartedAt = t
	return run, nil
}
