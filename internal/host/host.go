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

// Package host defines the issue-host abstraction every core component
// (C5-C9) depends on: listing and mutating issues, labels, comments, and
// timeline events on a remote code-hosting platform. internal/host/github
// is the concrete GitHub implementation; other hosts can implement the same
// interface without touching the core.
package host

import (
	"context"
	"time"
)

// Event is one timeline event on an issue, as needed by the causality
// guard and stale-command detection.
type Event struct {
	ID        string
	Type      string // "labeled", "unlabeled", "closed", "reopened", ...
	Label     string
	CreatedAt time.Time
}

// Comment is one issue comment.
type Comment struct {
	ID   string
	Body string
}

// Relationship describes one blocked-by/closes edge between issues.
type Relationship struct {
	Kind   string // "blocked-by" | "closes"
	Number int
	Closed bool
}

// IssueHost is the full abstracted surface described for ralph's remote
// issue tracker dependency: issue/label/comment/event access plus the
// narrow repo-admin operations the daemon needs for onboarding.
type IssueHost interface {
	ListIssues(ctx context.Context, repo string, since *time.Time) ([]IssueSummary, error)
	GetIssue(ctx context.Context, repo string, number int) (IssueSummary, error)
	GetIssueLabels(ctx context.Context, repo string, number int) ([]string, error)
	ListIssueEvents(ctx context.Context, repo string, number int, limit int) ([]Event, error)

	AddLabel(ctx context.Context, repo string, number int, label string) error
	RemoveLabel(ctx context.Context, repo string, number int, label string) error
	MutateLabels(ctx context.Context, repo string, number int, add, remove []string) ([]string, error)

	ListComments(ctx context.Context, repo string, number int) ([]Comment, error)
	CreateComment(ctx context.Context, repo string, number int, body string) (Comment, error)
	UpdateComment(ctx context.Context, repo string, commentID, body string) error

	ListRelationships(ctx context.Context, repo string, number int) ([]Relationship, error)
	ListOwnerRepos(ctx context.Context, owner string) ([]string, error)
}

// IssueSummary is the subset of issue fields the core reads.
type IssueSummary struct {
	Number    int
	State     string // "open" | "closed"
	Labels    []string
	UpdatedAt time.Time
}
