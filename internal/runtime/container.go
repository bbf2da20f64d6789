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

// Package runtime holds the process-scoped state that must not live behind
// module-level singletons: the label-write coalescer and the log limiter.
// Each caller constructs its own Container, so tests can build independent
// containers instead of racing a shared package-level instance. cmd/ralphd
// does not construct one, and no daemon component takes a Container.
package runtime

import (
	"time"

	"github.com/tombee/ralph/internal/featureflags"
	"github.com/tombee/ralph/internal/reconcile"
)

// Config configures a Container's constituent rate limits.
type Config struct {
	// CoalesceWindow turns label-write merging on (positive) or off (zero or
	// less). See internal/reconcile.DefaultCoalesceWindow.
	CoalesceWindow time.Duration

	// LogRatePerSecond and LogBurst configure the log limiter. Defaults
	// (1 event/sec, burst 5) suit a single noisy call site; callers that
	// expect legitimately bursty logging should raise the burst rather than
	// bypass the limiter.
	LogRatePerSecond float64
	LogBurst         int
}

// DefaultConfig returns the defaults used when a zero-value Config is
// supplied to New.
func DefaultConfig() Config {
	return Config{
		CoalesceWindow:   reconcile.DefaultCoalesceWindow,
		LogRatePerSecond: 1,
		LogBurst:         5,
	}
}

// Container holds the daemon's process-scoped shared state.
type Container struct {
	Coalescer  *reconcile.Coalescer
	LogLimiter *LogLimiter
	Flags      *featureflags.Flags
}

// New constructs a Container. A zero-value cfg is replaced with
// DefaultConfig().
func New(cfg Config) *Container {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Container{
		Coalescer:  reconcile.NewCoalescer(cfg.CoalesceWindow),
		LogLimiter: NewLogLimiter(cfg.LogRatePerSecond, cfg.LogBurst),
		Flags:      featureflags.New(),
	}
}
