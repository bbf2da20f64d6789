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
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RepoBackoff tracks, per repo, whether label writes are currently blocked
// (after a secondary-rate-limit or abuse signal from the host) and paces
// otherwise-allowed writes with a token-bucket limiter so a burst of
// reconciler ticks doesn't itself trip the host's rate limiter.
type RepoBackoff struct {
	mu           sync.Mutex
	blockedUntil map[string]time.Time
	limiters     map[string]*rate.Limiter

	// limit/burst configure the per-repo limiter created lazily on first
	// use; defaults suit a single reconciler tick's worth of writes.
	limit rate.Limit
	burst int
}

// NewRepoBackoff returns a backoff tracker pacing each repo's label writes
// to ratePerSecond (burst bucket size burst).
func NewRepoBackoff(ratePerSecond float64, burst int) *RepoBackoff {
	return &RepoBackoff{
		blockedUntil: make(map[string]time.Time),
		limiters:     make(map[string]*rate.Limiter),
		limit:        rate.Limit(ratePerSecond),
		burst:        burst,
	}
}

// Block marks repo as blocked for label writes until until.
func (b *RepoBackoff) Block(repo string, until time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blockedUntil[repo] = until
}

// CanAttemptLabelWrite reports whether repo may attempt a label write right
// now: not within an active block window, and not rate-limited.
func (b *RepoBackoff) CanAttemptLabelWrite(repo string, now time.Time) bool {
	b.mu.Lock()
	until, blocked := b.blockedUntil[repo]
	if blocked && now.Before(until) {
		b.mu.Unlock()
		return false
	}
	if blocked {
		delete(b.blockedUntil, repo)
	}
	limiter, ok := b.limiters[repo]
	if !ok {
		limiter = rate.NewLimiter(b.limit, b.burst)
		b.limiters[repo] = limiter
	}
	b.mu.Unlock()

	return limiter.AllowN(now, 1)
}
