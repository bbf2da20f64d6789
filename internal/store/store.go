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
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	ralpherrors "github.com/tombee/ralph/pkg/errors"
)

// Schema window constants. minReadable/maxReadable/maxWritable are declared
// here so a released version's compatibility window is visible next to the
// migration it ships with; bump maxWritable (and add a migration step) when
// a new schema version ships.
const (
	minReadable = 1
	maxReadable = 2
	maxWritable = 1
)

// Config configures the durable state store.
type Config struct {
	// Path is the sqlite database file path. Required.
	Path string

	// ProbeBusyTimeout bounds how long Open waits to acquire the exclusive
	// lock needed to read meta.schema_version. Honors
	// RALPH_STATE_DB_PROBE_BUSY_TIMEOUT_MS if Config leaves it zero.
	ProbeBusyTimeout time.Duration

	Logger *slog.Logger
}

// Store is the single-writer embedded SQL state store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	window SchemaWindow
}

// Open opens (creating if absent) the sqlite database at cfg.Path,
// configures it for WAL + foreign keys + single-writer access, computes the
// schema window, and runs any pending migration if the window permits
// writes.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store: Config.Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("store: create data dir %s: %w", dir, err)
		}
	}

	busyTimeout := cfg.ProbeBusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
		if v := os.Getenv("RALPH_STATE_DB_PROBE_BUSY_TIMEOUT_MS"); v != "" {
			if ms, err := time.ParseDuration(v + "ms"); err == nil {
				busyTimeout = ms
			}
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", cfg.Path, err)
	}
	// SQLite is single-writer; one connection avoids SQLITE_BUSY storms
	// under WAL and keeps transaction semantics simple.
	db.SetMaxOpenConns(1)

	if err := configurePragmas(ctx, db, busyTimeout); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	probeCtx, cancel := context.WithTimeout(ctx, busyTimeout)
	window, err := s.probeSchemaWindow(probeCtx)
	cancel()
	if err != nil {
		if err == context.DeadlineExceeded {
			s.window = SchemaWindow{Verdict: VerdictLockTimeout}
			return s, nil
		}
		db.Close()
		return nil, err
	}
	s.window = window

	if window.Verdict == VerdictReadableWritable {
		if err := s.migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: migrate: %w", err)
		}
		s.window.Version = maxWritable
		s.window.RequiresMigration = false
	}

	return s, nil
}

func configurePragmas(ctx context.Context, db *sql.DB, busyTimeout time.Duration) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA auto_vacuum = INCREMENTAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("store: configure pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) probeSchemaWindow(ctx context.Context) (SchemaWindow, error) {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return SchemaWindow{}, fmt.Errorf("store: create meta table: %w", err)
	}

	var versionStr string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&versionStr)
	version := 0
	switch {
	case err == sql.ErrNoRows:
		version = 0
	case err != nil:
		return SchemaWindow{}, fmt.Errorf("store: read schema_version: %w", err)
	default:
		if _, scanErr := fmt.Sscanf(versionStr, "%d", &version); scanErr != nil {
			return SchemaWindow{}, fmt.Errorf("store: parse schema_version %q: %w", versionStr, scanErr)
		}
	}

	w := SchemaWindow{
		Version:     version,
		MinReadable: minReadable,
		MaxReadable: maxReadable,
		MaxWritable: maxWritable,
	}

	switch {
	case version <= maxWritable:
		w.Verdict = VerdictReadableWritable
		w.CanReadState = true
		w.CanWriteState = true
	case version <= maxReadable:
		w.Verdict = VerdictReadableReadonlyNewer
		w.CanReadState = true
		w.CanWriteState = false
	default:
		w.Verdict = VerdictUnreadableForwardIncompat
		w.CanReadState = false
		w.CanWriteState = false
		w.RequiresMigration = false
		return w, nil
	}
	w.RequiresMigration = version < maxWritable
	return w, nil
}

// Window returns the schema window computed at Open.
func (s *Store) Window() SchemaWindow {
	return s.window
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// requireWritable returns a SchemaIncompatibleError if the store's schema
// window does not permit writes.
func (s *Store) requireWritable() error {
	if !s.window.CanWriteState {
		return &ralpherrors.SchemaIncompatibleError{Verdict: string(s.window.Verdict)}
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS issue_snapshots (
			repo TEXT NOT NULL,
			number INTEGER NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			host_node_id TEXT NOT NULL DEFAULT '',
			host_updated_at TEXT NOT NULL,
			labels_json TEXT NOT NULL DEFAULT '[]',
			PRIMARY KEY (repo, number)
		)`,
		`CREATE TABLE IF NOT EXISTS task_op_state (
			task_path TEXT PRIMARY KEY,
			repo TEXT NOT NULL,
			number INTEGER NOT NULL,
			status TEXT NOT NULL,
			session_id TEXT,
			worktree_path TEXT,
			worker_id TEXT,
			repo_slot INTEGER,
			daemon_id TEXT,
			heartbeat_at TEXT,
			released_at_ms INTEGER,
			released_reason TEXT,
			pr_number INTEGER,
			pr_url TEXT,
			head_sha TEXT,
			branch_name TEXT,
			blocked_source TEXT,
			blocked_reason TEXT,
			blocked_details TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_op_state_status ON task_op_state (status)`,
		`CREATE INDEX IF NOT EXISTS idx_task_op_state_repo ON task_op_state (repo)`,
		`CREATE TABLE IF NOT EXISTS idempotency_records (
			key TEXT PRIMARY KEY,
			scope TEXT NOT NULL,
			created_at TEXT NOT NULL,
			payload_json TEXT NOT NULL DEFAULT '{}',
			phase TEXT NOT NULL DEFAULT 'started'
		)`,
		`CREATE TABLE IF NOT EXISTS pr_snapshots (
			repo TEXT NOT NULL,
			issue_number INTEGER NOT NULL,
			pr_number INTEGER NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			head_sha TEXT NOT NULL DEFAULT '',
			branch_name TEXT NOT NULL DEFAULT '',
			merged_at TEXT,
			PRIMARY KEY (repo, issue_number, pr_number)
		)`,
		`CREATE TABLE IF NOT EXISTS ralph_runs (
			session_id TEXT PRIMARY KEY,
			task_path TEXT NOT NULL,
			profile TEXT NOT NULL,
			started_at TEXT NOT NULL,
			tokens_used INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec migration statement: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('schema_version', ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		fmt.Sprintf("%d", maxWritable)); err != nil {
		return fmt.Errorf("record schema_version: %w", err)
	}

	return tx.Commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
