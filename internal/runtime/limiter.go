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

package runtime

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LogLimiter caps log spam per key (e.g. a log call site, a repo, a task
// path) so a hot failure loop doesn't flood the log sink. Keyed limiters
// are created lazily, in the same shape as internal/reconcile.RepoBackoff's
// per-repo token buckets.
type LogLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	limit rate.Limit
	burst int
}

// NewLogLimiter returns a LogLimiter allowing up to ratePerSecond log
// events per key on average, with bursts up to burst.
func NewLogLimiter(ratePerSecond float64, burst int) *LogLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &LogLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(ratePerSecond),
		burst:    burst,
	}
}

// Allow reports whether a log event for key may be emitted right now,
// consuming a token from that key's bucket if so.
func (l *LogLimiter) Allow(key string) bool {
	return l.AllowAt(key, time.Now())
}

// AllowAt is Allow with an explicit clock, for deterministic tests.
func (l *LogLimiter) AllowAt(key string, now time.Time) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	return limiter.AllowN(now, 1)
}

// Reset drops a key's bucket, so the next Allow call starts fresh. Intended
// for tests; production callers let keys accumulate for the process
// lifetime since the set of log call sites is small and bounded.
func (l *LogLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, key)
}
