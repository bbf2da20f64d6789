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
	"time"
)

// HasIdempotencyKey reports whether key has already been recorded,
// regardless of phase.
func (s *Store) HasIdempotencyKey(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM idempotency_records WHERE key = ?`, key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: check idempotency key %s: %w", key, err)
	}
	return n > 0, nil
}

// GetIdempotencyPayload returns the recorded payload for key, or
// (IdempotencyRecord{}, false, nil) if it has not been recorded.
func (s *Store) GetIdempotencyPayload(ctx context.Context, key string) (IdempotencyRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, scope, created_at, payload_json, phase FROM idempotency_records WHERE key = ?
	`, key)

	var (
		rec       IdempotencyRecord
		createdAt string
	)
	err := row.Scan(&rec.Key, &rec.Scope, &createdAt, &rec.PayloadJSON, &rec.Phase)
	if err == sql.ErrNoRows {
		return IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return IdempotencyRecord{}, false, fmt.Errorf("store: get idempotency record %s: %w", key, err)
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return IdempotencyRecord{}, false, fmt.Errorf("parse created_at: %w", err)
	}
	rec.CreatedAt = t
	return rec, true, nil
}

// RecordIdempotencyKey inserts a new idempotency record, returning
// (false, nil) without error if the key already exists — the caller should
// treat that as "already claimed by someone else" and skip the operation.
func (s *Store) RecordIdempotencyKey(ctx context.Context, rec IdempotencyRecord) (bool, error) {
	if err := s.requireWritable(); err != nil {
		return false, err
	}
	if rec.Phase == "" {
		rec.Phase = "started"
	}
	if rec.PayloadJSON == "" {
		rec.PayloadJSON = "{}"
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_records (key, scope, created_at, payload_json, phase)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (key) DO NOTHING
	`, rec.Key, rec.Scope, rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.PayloadJSON, rec.Phase)
	if err != nil {
		return false, fmt.Errorf("store: record idempotency key %s: %w", rec.Key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpsertIdempotencyKey records or replaces an idempotency record outright,
// for use when the caller already holds exclusive ownership of the key
// (e.g. moving it from phase "started" to "completed").
func (s *Store) UpsertIdempotencyKey(ctx context.Context, rec IdempotencyRecord) error {
	if err := s.requireWritable(); err != nil {
		return err
	}
	if rec.Phase == "" {
		rec.Phase = "started"
	}
	if rec.PayloadJSON == "" {
		rec.PayloadJSON = "{}"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_records (key, scope, created_at, payload_json, phase)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			scope = excluded.scope,
			created_at = excluded.created_at,
			payload_json = excluded.payload_json,
			phase = excluded.phase
	`, rec.Key, rec.Scope, rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.PayloadJSON, rec.Phase)
	if err != nil {
		return fmt.Errorf("store: upsert idempotency key %s: %w", rec.Key, err)
	}
	return nil
}

// DeleteIdempotencyKey removes a recorded idempotency key, for use by
// cleanup sweeps that expire old records.
func (s *Store) DeleteIdempotencyKey(ctx context.Context, key string) error {
	if err := s.requireWritable(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_records WHERE key = ?`, key); err != nil {
		return fmt.Errorf("store: delete idempotency key %s: %w", key, err)
	}
	return nil
}

// DeleteIdempotencyKeysOlderThan removes every record created before
// cutoff, returning the number of rows deleted. Used by the daemon's
// periodic idempotency-table vacuum.
func (s *Store) DeleteIdempotencyKeysOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := s.requireWritable(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_records WHERE created_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("store: vacuum idempotency records: %w", err)
	}
	return res.RowsAffected()
}
