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

// Package daemonrun wires the durable store and issue host into the
// concrete scheduler.TaskSource, scheduler.ProfileResolver, and
// scheduler.AgentRunner implementations cmd/ralphd constructs the
// scheduler with.
package daemonrun

import (
	"context"
	"fmt"
	"time"

	"github.com/tombee/ralph/internal/queue"
	"github.com/tombee/ralph/internal/scheduler"
	"github.com/tombee/ralph/internal/store"
)

// TaskSource resolves the globally queued candidates by joining the
// store's task op-state table against the cached issue-label snapshot
// each candidate's priority is derived from.
type TaskSource struct {
	store *store.Store
	repos []string
}

// NewTaskSource constructs a TaskSource over the given repo slugs
// ("owner/repo").
func NewTaskSource(st *store.Store, repos []string) *TaskSource {
	return &TaskSource{store: st, repos: repos}
}

// ListQueuedCandidates implements scheduler.TaskSource.
//
// task_op_state has no created-at column, so candidates are ordered by
// the cached issue snapshot's HostUpdatedAt as a proxy for queue age; an
// issue with no cached snapshot yet gets the default priority and a zero
// CreatedAt, so it sorts first within that priority band.
func (s *TaskSource) ListQueuedCandidates(ctx context.Context) ([]scheduler.Candidate, error) {
	tasks, err := s.store.ListTasksByStatus(ctx, store.StatusQueued)
	if err != nil {
		return nil, fmt.Errorf("daemonrun: list queued tasks: %w", err)
	}

	repoSet := make(map[string]bool, len(s.repos))
	for _, r := range s.repos {
		repoSet[r] = true
	}

	candidates := make([]scheduler.Candidate, 0, len(tasks))
	for _, t := range tasks {
		if len(repoSet) > 0 && !repoSet[t.Repo] {
			continue
		}

		priority := queue.DefaultPriorityLevel
		snap, ok, err := s.store.GetIssueSnapshot(ctx, t.Repo, t.Number)
		var createdAt time.Time
		if err == nil && ok {
			priority = queue.InferPriorityFromLabels(snap.Labels)
			createdAt = snap.HostUpdatedAt
		}

		candidates = append(candidates, scheduler.Candidate{
			Repo:      t.Repo,
			Number:    t.Number,
			Priority:  priority,
			CreatedAt: createdAt,
		})
	}
	return candidates, nil
}
