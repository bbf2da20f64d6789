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

package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tombee/ralph/internal/store"
)

// DefaultMinCooldown bounds how often the reconciler will re-issue an
// identical-target label write for the same task.
const DefaultMinCooldown = 10 * time.Minute

// DefaultTransitionThrottle bounds how soon after a write the reconciler
// may issue the opposite transition for the same task, guarding against
// flapping caused by a racing heartbeat or claim.
const DefaultTransitionThrottle = 3 * time.Minute

type lastWrite struct {
	target store.TaskStatus
	at     time.Time
}

// Cooldowns tracks, per task, the most recent reconciler-issued label
// write. It is an in-memory guard only; RecordDurableTransition and
// DurableTransitionWithinThrottle back it with a store-persisted record that survives a daemon restart.
type Cooldowns struct {
	mu   sync.Mutex
	last map[string]lastWrite
}

// NewCooldowns returns an empty in-memory cooldown tracker.
func NewCooldowns() *Cooldowns {
	return &Cooldowns{last: make(map[string]lastWrite)}
}

// ShouldSuppress reports whether a reconciler write to target should be
// suppressed for taskPath right now, and why.
func (c *Cooldowns) ShouldSuppress(taskPath string, target store.TaskStatus, now time.Time, minCooldown, transitionThrottle time.Duration) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.last[taskPath]
	if !ok {
		return false, ""
	}

	age := now.Sub(prev.at)
	if prev.target == target && age < minCooldown {
		return true, "cooldown"
	}
	if prev.target != target && age < transitionThrottle {
		return true, "transition-throttle"
	}
	return false, ""
}

// Record notes that taskPath was just written to target at now.
func (c *Cooldowns) Record(taskPath string, target store.TaskStatus, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[taskPath] = lastWrite{target: target, at: now}
}

// DurableTransitionGuardKey is the idempotency-record key used to persist a
// label transition across daemon restarts, so a fresh process's empty
// in-memory Cooldowns doesn't immediately re-flap a transition the
// previous process just made.
func DurableTransitionGuardKey(taskPath string, target store.TaskStatus) string {
	return fmt.Sprintf("ralph:label-transition:v1:%s:%s", taskPath, target)
}

// RecordDurableTransition persists that taskPath was written to target at
// now, for the durable half of the transition-throttle guard.
func RecordDurableTransition(ctx context.Context, st *store.Store, taskPath string, target store.TaskStatus, now time.Time) error {
	key := DurableTransitionGuardKey(taskPath, target)
	return st.UpsertIdempotencyKey(ctx, store.IdempotencyRecord{
		Key: key, Scope: "label-transition", CreatedAt: now, Phase: "completed",
	})
}

// DurableTransitionWithinThrottle reports whether a transition to target
// for taskPath was recorded within the last transitionThrottle, using the
// durable record left by a (possibly prior) process.
func DurableTransitionWithinThrottle(ctx context.Context, st *store.Store, taskPath string, target store.TaskStatus, now time.Time, transitionThrottle time.Duration) (bool, error) {
	key := DurableTransitionGuardKey(taskPath, target)
	rec, ok, err := st.GetIdempotencyPayload(ctx, key)
	if err != nil {
		return false, fmt.Errorf("reconcile: check durable transition guard for %s: %w", taskPath, err)
	}
	if !ok {
		return false, nil
	}
	return now.Sub(rec.CreatedAt) < transitionThrottle, nil
}
