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
	"encoding/json"
	"fmt"
	"time"
)

// RecordIssueSnapshot atomically replaces the cached snapshot for one
// issue, including its label set.
func (s *Store) RecordIssueSnapshot(ctx context.Context, snap IssueSnapshot) error {
	if err := s.requireWritable(); err != nil {
		return err
	}

	labelsJSON, err := json.Marshal(snap.Labels)
	if err != nil {
		return fmt.Errorf("store: marshal labels: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO issue_snapshots (repo, number, title, state, url, host_node_id, host_updated_at, labels_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (repo, number) DO UPDATE SET
			title = excluded.title,
			state = excluded.state,
			url = excluded.url,
			host_node_id = excluded.host_node_id,
			host_updated_at = excluded.host_updated_at,
			labels_json = excluded.labels_json
	`, snap.Repo, snap.Number, snap.Title, string(snap.State), snap.URL, snap.HostNodeID,
		snap.HostUpdatedAt.UTC().Format(time.RFC3339Nano), string(labelsJSON))
	if err != nil {
		return fmt.Errorf("store: record issue snapshot %s#%d: %w", snap.Repo, snap.Number, err)
	}
	return nil
}

// RecordIssueLabelsSnapshot atomically replaces just the label set for one
// issue, leaving other fields untouched. The issue must already have a
// snapshot row.
func (s *Store) RecordIssueLabelsSnapshot(ctx context.Context, repo string, number int, labels []string) error {
	if err := s.requireWritable(); err != nil {
		return err
	}

	labelsJSON, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("store: marshal labels: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE issue_snapshots SET labels_json = ? WHERE repo = ? AND number = ?`,
		string(labelsJSON), repo, number)
	if err != nil {
		return fmt.Errorf("store: update labels for %s#%d: %w", repo, number, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("store: no issue snapshot for %s#%d", repo, number)
	}
	return nil
}

// UpsertIssueLabels replaces an issue's cached label set, creating a
// minimal snapshot row if none exists yet (the sync loop will fill in the
// rest of the fields on its next tick). Used by the claim path, which only
// ever learns the live label set, not the full issue body.
func (s *Store) UpsertIssueLabels(ctx context.Context, repo string, number int, labels []string, observedAt time.Time) error {
	if err := s.requireWritable(); err != nil {
		return err
	}

	labelsJSON, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("store: marshal labels: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO issue_snapshots (repo, number, state, host_updated_at, labels_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (repo, number) DO UPDATE SET labels_json = excluded.labels_json
	`, repo, number, string(IssueOpen), observedAt.UTC().Format(time.RFC3339Nano), string(labelsJSON))
	if err != nil {
		return fmt.Errorf("store: upsert issue labels for %s#%d: %w", repo, number, err)
	}
	return nil
}

// GetIssueSnapshot returns the cached snapshot for one issue, or
// (IssueSnapshot{}, false, nil) if none exists.
func (s *Store) GetIssueSnapshot(ctx context.Context, repo string, number int) (IssueSnapshot, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT repo, number, title, state, url, host_node_id, host_updated_at, labels_json
		FROM issue_snapshots WHERE repo = ? AND number = ?
	`, repo, number)

	snap, err := scanIssueSnapshot(row)
	if err == sql.ErrNoRows {
		return IssueSnapshot{}, false, nil
	}
	if err != nil {
		return IssueSnapshot{}, false, fmt.Errorf("store: get issue snapshot %s#%d: %w", repo, number, err)
	}
	return snap, true, nil
}

// ListIssueSnapshots returns every cached issue snapshot for a repo.
func (s *Store) ListIssueSnapshots(ctx context.Context, repo string) ([]IssueSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT repo, number, title, state, url, host_node_id, host_updated_at, labels_json
		FROM issue_snapshots WHERE repo = ? ORDER BY number
	`, repo)
	if err != nil {
		return nil, fmt.Errorf("store: list issue snapshots for %s: %w", repo, err)
	}
	defer rows.Close()

	var out []IssueSnapshot
	for rows.Next() {
		snap, err := scanIssueSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssueSnapshot(row rowScanner) (IssueSnapshot, error) {
	var (
		snap          IssueSnapshot
		state         string
		hostUpdatedAt string
		labelsJSON    string
	)
	if err := row.Scan(&snap.Repo, &snap.Number, &snap.Title, &state, &snap.URL,
		&snap.HostNodeID, &hostUpdatedAt, &labelsJSON); err != nil {
		return IssueSnapshot{}, err
	}
	snap.State = IssueState(state)
	t, err := time.Parse(time.RFC3339Nano, hostUpdatedAt)
	if err != nil {
		return IssueSnapshot{}, fmt.Errorf("parse host_updated_at: %w", err)
	}
	snap.HostUpdatedAt = t
	if err := json.Unmarshal([]byte(labelsJSON), &snap.Labels); err != nil {
		return IssueSnapshot{}, fmt.Errorf("unmarshal labels: %w", err)
	}
	return snap, nil
}
