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

// Package store implements ralph's durable state store (C1): a single
// embedded SQL database holding issue snapshots, task op-state,
// idempotency keys, and PR snapshots, owned by exactly one process.
package store

import (
	"strconv"
	"time"
)

// IssueState is the remote issue's open/closed state.
type IssueState string

const (
	IssueOpen   IssueState = "OPEN"
	IssueClosed IssueState = "CLOSED"
)

// IssueSnapshot is a cached mirror of a remote issue.
type IssueSnapshot struct {
	Repo          string
	Number        int
	Title         string
	State         IssueState
	URL           string
	HostNodeID    string
	HostUpdatedAt time.Time
	Labels        []string
}

// TaskStatus is the scheduler/ownership status of a task, mirrored onto
// the host as a ralph:status:* label.
type TaskStatus string

const (
	StatusQueued      TaskStatus = "queued"
	StatusStarting    TaskStatus = "starting"
	StatusInProgress  TaskStatus = "in-progress"
	StatusWaitingOnPR TaskStatus = "waiting-on-pr"
	StatusThrottled   TaskStatus = "throttled"
	StatusBlocked     TaskStatus = "blocked"
	StatusEscalated   TaskStatus = "escalated"
	StatusPaused      TaskStatus = "paused"
	StatusStopped     TaskStatus = "stopped"
	StatusDone        TaskStatus = "done"
	// StatusInBot marks an issue currently owned by a different automation
	// (not this daemon); ralph never claims or reconciles it.
	StatusInBot TaskStatus = "in-bot"
)

// TaskPath returns the canonical "github:<repo>#<n>" path for a task.
func TaskPath(repo string, number int) string {
	return "github:" + repo + "#" + strconv.Itoa(number)
}

// TaskOpState is the locally authoritative operational record for one
// (repo, issueNumber) task.
type TaskOpState struct {
	TaskPath  string
	Repo      string
	Number    int
	Status    TaskStatus
	SessionID string

	WorktreePath string
	WorkerID     string
	RepoSlot     int

	DaemonID    string
	HeartbeatAt *time.Time

	ReleasedAtMs   int64
	ReleasedReason string

	// PR snapshot, recorded when a task finishes done.
	PRNumber   int
	PRURL      string
	HeadSHA    string
	BranchName string

	// Blocked/escalated diagnostics, recorded when a task ends blocked or
	// escalated.
	BlockedSource  string
	BlockedReason  string
	BlockedDetails string
}

// IdempotencyRecord tracks exactly-once processing of a logical event.
type IdempotencyRecord struct {
	Key         string
	Scope       string
	CreatedAt   time.Time
	PayloadJSON string
	Phase       string // "started" | "completed"
}

// SchemaVerdict classifies whether the daemon may read/write its own state.
type SchemaVerdict string

const (
	VerdictReadableWritable          SchemaVerdict = "readable_writable"
	VerdictReadableReadonlyNewer     SchemaVerdict = "readable_readonly_forward_newer"
	VerdictUnreadableForwardIncompat SchemaVerdict = "unreadable_forward_incompatible"
	VerdictLockTimeout               SchemaVerdict = "lock_timeout"
)

// SchemaWindow describes the store's view of its own compatibility.
type SchemaWindow struct {
	Version           int
	MinReadable       int
	MaxReadable       int
	MaxWritable       int
	Verdict           SchemaVerdict
	CanReadState      bool
	CanWriteState     bool
	RequiresMigration bool
}

// CASResult reports the outcome of a compare-and-swap mutation.
type CASResult struct {
	Updated     bool
	RaceSkipped bool
}

// Run is one coding-agent session record, used for the token-usage
// accounting C3's throttle windows are computed from.
type Run struct {
	SessionID  string
	TaskPath   string
	Profile    string
	StartedAt  time.Time
	TokensUsed int64
}
