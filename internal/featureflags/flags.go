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

// Package featureflags provides runtime feature flag management for ralph.
// Flags are held on a Flags value constructed once per process and threaded
// through explicitly; there is no package-level singleton, so tests can
// construct independent instances.
package featureflags

import (
	"os"
	"strconv"
	"strings"
	"sync"
)

// Flags holds feature flags with thread-safe access.
type Flags struct {
	mu sync.RWMutex

	// DisableSweeps disables all background sweep loops (stale recovery,
	// label reconciler, command processor, auto-queue). Set from
	// RALPH_GITHUB_QUEUE_DISABLE_SWEEPS; intended for tests and one-shot
	// CLI invocations that must not race a running daemon.
	DisableSweeps bool
}

// New returns a Flags instance with defaults applied, then overridden by
// environment variables.
func New() *Flags {
	f := &Flags{}
	f.loadFromEnv()
	return f
}

func (f *Flags) loadFromEnv() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if val := os.Getenv("RALPH_GITHUB_QUEUE_DISABLE_SWEEPS"); val != "" {
		f.DisableSweeps = parseBool(val)
	}
}

// SweepsDisabled returns whether background sweeps are disabled.
func (f *Flags) SweepsDisabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.DisableSweeps
}

// SetSweepsDisabled overrides the sweep-disable flag (for testing).
func (f *Flags) SetSweepsDisabled(disabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DisableSweeps = disabled
}

// parseBool converts a string to a boolean value.
// Accepts: "1", "t", "T", "true", "TRUE", "True"
func parseBool(val string) bool {
	val = strings.TrimSpace(val)
	if b, err := strconv.ParseBool(val); err == nil {
		return b
	}
	return false
}
