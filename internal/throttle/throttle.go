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

// Package throttle implements the throttle and auto-profile selector (C3):
// a pure, windowed token-budget policy consulted before a task is dequeued,
// resumed, or sent to the model. Token usage accounting itself lives in
// internal/agent; this package only classifies usage the caller supplies.
package throttle

import (
	"sort"
	"time"
)

// State classifies how constrained a profile's token budget currently is.
type State string

const (
	StateOK   State = "ok"
	StateSoft State = "soft"
	StateHard State = "hard"
)

// DefaultSoftFraction is used when the caller does not override how close
// to a hard cap counts as "soft".
const DefaultSoftFraction = 0.9

// Window is one rolling or calendar token-budget window tracked for a
// profile (e.g. "rolling-5h", "weekly").
type Window struct {
	Name          string
	HardCapTokens int64
	UsedTokens    int64
	WindowEndTS   time.Time
	NextResetTS   time.Time
}

// RemainingFraction returns the fraction of HardCapTokens not yet used,
// clamped to [0, 1]. A zero-or-negative cap is treated as unconstrained
// (fraction 1).
func (w Window) RemainingFraction() float64 {
	if w.HardCapTokens <= 0 {
		return 1
	}
	remaining := float64(w.HardCapTokens-w.UsedTokens) / float64(w.HardCapTokens)
	if remaining < 0 {
		return 0
	}
	if remaining > 1 {
		return 1
	}
	return remaining
}

// Snapshot reports every tracked window for a profile, for status output.
type Snapshot struct {
	Windows []Window
}

// Decision is the outcome of GetThrottleDecision for one profile at one
// instant.
type Decision struct {
	State      State
	ResumeAtTS *time.Time
	Snapshot   Snapshot
}

// GetThrottleDecision classifies a profile's current token usage across all
// of its tracked windows. A profile is hard-throttled if any window has hit
// or exceeded its cap; soft-throttled if any window is within softFraction
// of its cap; otherwise ok. softFraction <= 0 falls back to
// DefaultSoftFraction.
func GetThrottleDecision(windows []Window, softFraction float64) Decision {
	if softFraction <= 0 {
		softFraction = DefaultSoftFraction
	}

	state := StateOK
	var resumeAt *time.Time
	for _, w := range windows {
		if w.HardCapTokens <= 0 {
			continue
		}
		if w.UsedTokens >= w.HardCapTokens {
			state = StateHard
			reset := w.NextResetTS
			if resumeAt == nil || reset.Before(*resumeAt) {
				resumeAt = &reset
			}
			continue
		}
		usedFraction := float64(w.UsedTokens) / float64(w.HardCapTokens)
		if usedFraction >= softFraction && state != StateHard {
			state = StateSoft
		}
	}
	if state != StateHard {
		resumeAt = nil
	}

	return Decision{State: state, ResumeAtTS: resumeAt, Snapshot: Snapshot{Windows: windows}}
}

// ProfileCandidate is one profile's throttle decision plus the fields the
// auto-profile selector needs to rank it.
type ProfileCandidate struct {
	Name     string
	Decision Decision

	// WeeklyRemainingFraction and WeeklyNextResetTS come from the
	// profile's weekly window; RollingRemainingTokens from its rolling
	// (e.g. 5h) window.
	WeeklyRemainingFraction float64
	WeeklyNextResetTS       time.Time
	RollingRemainingTokens  int64
}

// chaseable reports whether a profile candidate is still worth auto-picking:
// not hard-throttled, with meaningful headroom left in both its weekly and
// rolling windows.
func (c ProfileCandidate) chaseable() bool {
	if c.Decision.State == StateHard {
		return false
	}
	return c.WeeklyRemainingFraction >= 0.05 && c.RollingRemainingTokens > 0
}

// SelectAutoProfile implements the `"auto"` profile selector: among
// chaseable candidates, prefer the soonest weekly reset, tie-break by
// greater weekly remaining, and finally prefer the previously-chosen
// profile when the last switch was under 15 minutes ago and it is tied for
// best. Returns ("", false) if no candidate is chaseable.
func SelectAutoProfile(candidates []ProfileCandidate, now time.Time, lastChosen string, lastSwitchAt *time.Time) (string, bool) {
	eligible := make([]ProfileCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.chaseable() {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return "", false
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if !a.WeeklyNextResetTS.Equal(b.WeeklyNextResetTS) {
			return a.WeeklyNextResetTS.Before(b.WeeklyNextResetTS)
		}
		if a.WeeklyRemainingFraction != b.WeeklyRemainingFraction {
			return a.WeeklyRemainingFraction > b.WeeklyRemainingFraction
		}
		return a.Name < b.Name
	})

	best := eligible[0]

	recentSwitch := lastSwitchAt != nil && now.Sub(*lastSwitchAt) < 15*time.Minute
	if recentSwitch && lastChosen != "" && lastChosen != best.Name {
		for _, c := range eligible {
			if c.Name != lastChosen {
				continue
			}
			tied := c.WeeklyNextResetTS.Equal(best.WeeklyNextResetTS) && c.WeeklyRemainingFraction == best.WeeklyRemainingFraction
			if tied {
				return lastChosen, true
			}
			break
		}
	}

	return best.Name, true
}
