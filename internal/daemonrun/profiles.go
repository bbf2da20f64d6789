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

package daemonrun

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tombee/ralph/internal/config"
	"github.com/tombee/ralph/internal/store"
	"github.com/tombee/ralph/internal/throttle"
)

const weeklyWindow = 7 * 24 * time.Hour

// OverrideSource reports an operator-forced profile override from the
// control file, if any. daemonctl.Controller satisfies this.
type OverrideSource interface {
	OpencodeProfileOverride() string
}

// ProfileResolver resolves the active opencode profile from the
// configured default (or an operator override), running the throttle
// auto-selector across every configured profile's token usage when the
// resolved name is "auto".
type ProfileResolver struct {
	store        *store.Store
	profiles     map[string]config.ProfileConfig
	defaultName  string
	softFraction float64
	override     OverrideSource

	mu         sync.Mutex
	lastChosen string
	lastSwitch *time.Time
}

// NewProfileResolver constructs a ProfileResolver. override may be nil if
// no operator-override source is wired.
func NewProfileResolver(st *store.Store, cfg config.Config, override OverrideSource) *ProfileResolver {
	defaultName := cfg.Daemon.Profile
	if defaultName == "" {
		defaultName = "auto"
	}
	softFraction := cfg.Throttle.SoftFraction
	if softFraction <= 0 {
		softFraction = throttle.DefaultSoftFraction
	}
	return &ProfileResolver{
		store:        st,
		profiles:     cfg.Profiles,
		defaultName:  defaultName,
		softFraction: softFraction,
		override:     override,
	}
}

// ResolveProfile implements scheduler.ProfileResolver.
func (r *ProfileResolver) ResolveProfile(ctx context.Context) (string, error) {
	name, _, err := r.resolve(ctx)
	return name, err
}

// ThrottleState implements daemonctl.ThrottleSource: the throttle state of
// whichever profile ResolveProfile would currently pick.
func (r *ProfileResolver) ThrottleState(ctx context.Context) (throttle.State, error) {
	_, decision, err := r.resolve(ctx)
	if err != nil {
		return "", err
	}
	return decision.State, nil
}

// resolve picks the active profile name and, when it could be computed
// without an extra round of store queries, its throttle decision.
func (r *ProfileResolver) resolve(ctx context.Context) (string, throttle.Decision, error) {
	requested := r.defaultName
	if r.override != nil {
		if o := r.override.OpencodeProfileOverride(); o != "" {
			requested = o
		}
	}

	if requested != "auto" {
		pc, ok := r.profiles[requested]
		if !ok {
			return requested, throttle.Decision{State: throttle.StateOK}, nil
		}
		candidate, err := r.buildCandidate(ctx, requested, pc, time.Now())
		if err != nil {
			return "", throttle.Decision{}, fmt.Errorf("daemonrun: build throttle candidate for profile %q: %w", requested, err)
		}
		return requested, candidate.Decision, nil
	}

	return r.resolveAuto(ctx)
}

func (r *ProfileResolver) resolveAuto(ctx context.Context) (string, throttle.Decision, error) {
	now := time.Now()

	candidates := make([]throttle.ProfileCandidate, 0, len(r.profiles))
	byName := make(map[string]throttle.ProfileCandidate, len(r.profiles))
	for name, pc := range r.profiles {
		candidate, err := r.buildCandidate(ctx, name, pc, now)
		if err != nil {
			return "", throttle.Decision{}, fmt.Errorf("daemonrun: build throttle candidate for profile %q: %w", name, err)
		}
		candidates = append(candidates, candidate)
		byName[name] = candidate
	}

	r.mu.Lock()
	lastChosen, lastSwitch := r.lastChosen, r.lastSwitch
	r.mu.Unlock()

	chosen, ok := throttle.SelectAutoProfile(candidates, now, lastChosen, lastSwitch)
	if !ok {
		return "", throttle.Decision{}, fmt.Errorf("daemonrun: no chaseable profile available")
	}

	r.mu.Lock()
	if chosen != r.lastChosen {
		r.lastChosen = chosen
		switchedAt := now
		r.lastSwitch = &switchedAt
	}
	r.mu.Unlock()

	return chosen, byName[chosen].Decision, nil
}

func (r *ProfileResolver) buildCandidate(ctx context.Context, name string, pc config.ProfileConfig, now time.Time) (throttle.ProfileCandidate, error) {
	rollingWindow := pc.RollingWindow
	if rollingWindow <= 0 {
		rollingWindow = 5 * time.Hour
	}

	rollingUsed, rollingOldest, err := r.usageSince(ctx, name, now.Add(-rollingWindow))
	if err != nil {
		return throttle.ProfileCandidate{}, err
	}
	weeklyUsed, weeklyOldest, err := r.usageSince(ctx, name, now.Add(-weeklyWindow))
	if err != nil {
		return throttle.ProfileCandidate{}, err
	}

	rollingResetAt := windowResetAt(rollingOldest, rollingWindow, now)
	weeklyResetAt := windowResetAt(weeklyOldest, weeklyWindow, now)

	windows := []throttle.Window{
		{Name: "rolling-5h", HardCapTokens: pc.RollingCapTokens, UsedTokens: rollingUsed, WindowEndTS: rollingResetAt, NextResetTS: rollingResetAt},
		{Name: "weekly", HardCapTokens: pc.WeeklyCapTokens, UsedTokens: weeklyUsed, WindowEndTS: weeklyResetAt, NextResetTS: weeklyResetAt},
	}
	decision := throttle.GetThrottleDecision(windows, r.softFraction)

	rollingRemaining := pc.RollingCapTokens - rollingUsed
	if pc.RollingCapTokens <= 0 {
		rollingRemaining = 1
	}

	return throttle.ProfileCandidate{
		Name:                    name,
		Decision:                decision,
		WeeklyRemainingFraction: windows[1].RemainingFraction(),
		WeeklyNextResetTS:       weeklyResetAt,
		RollingRemainingTokens:  rollingRemaining,
	}, nil
}

// usageSince sums a profile's token usage since cutoff and reports the
// oldest contributing run's start time, used to estimate when the window
// next resets.
func (r *ProfileResolver) usageSince(ctx context.Context, profile string, cutoff time.Time) (int64, time.Time, error) {
	runs, err := r.store.ListRunsSince(ctx, cutoff)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("list runs since %s: %w", cutoff, err)
	}

	var used int64
	var oldest time.Time
	for _, run := range runs {
		if run.Profile != profile {
			continue
		}
		used += run.TokensUsed
		if oldest.IsZero() || run.StartedAt.Before(oldest) {
			oldest = run.StartedAt
		}
	}
	return used, oldest, nil
}

// windowResetAt estimates a rolling window's next reset as the oldest
// contributing run falling out of the window; an empty window resets a
// full period from now.
func windowResetAt(oldest time.Time, period time.Duration, now time.Time) time.Time {
	if oldest.IsZero() {
		return now.Add(period)
	}
	return oldest.Add(period)
}
