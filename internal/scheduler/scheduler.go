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

// Package scheduler runs the per-repo worker pools (C9): a ticker-driven
// loop that consults the daemon gate and throttle profile, dequeues queued
// tasks in priority order, claims them, and hands each to an external
// coding-agent session until the repo's concurrency cap is reached.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tombee/ralph/internal/gate"
	"github.com/tombee/ralph/internal/ownership"
	"github.com/tombee/ralph/internal/queue"
	"github.com/tombee/ralph/internal/store"
	"github.com/tombee/ralph/internal/throttle"
)

// Candidate is one queued task eligible for dequeue.
type Candidate struct {
	Repo      string
	Number    int
	Priority  int
	CreatedAt time.Time
}

// TaskPath matches the candidate's durable-state key.
func (c Candidate) TaskPath() string {
	return store.TaskPath(c.Repo, c.Number)
}

// SortCandidates orders candidates lowest-priority-number-first (p0 before
// p4), then oldest-created-first, then by task path, matching the global
// dequeue order.
func SortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.TaskPath() < b.TaskPath()
	})
}

// Outcome classifies how an agent session for a claimed task ended.
type Outcome string

const (
	OutcomeDone      Outcome = "done"
	OutcomeBlocked   Outcome = "blocked"
	OutcomeThrottled Outcome = "throttled"
	OutcomeEscalated Outcome = "escalated"
)

// SessionResult is what AgentRunner reports when a session finishes.
type SessionResult struct {
	Outcome    Outcome
	Reason     string
	ResumeAtMs int64
	PRURL      string
}

// AgentRunner starts and drives an external coding-agent session for a
// claimed task. The concrete adapter lives in internal/agent.
type AgentRunner interface {
	RunSession(ctx context.Context, repo string, number int, profile string) (SessionResult, error)
}

// TaskSource resolves the globally queued candidates ready for dequeue.
// The concrete implementation joins the durable store's task_op_state table
// against the host's live label cache; tests supply an in-memory fake.
type TaskSource interface {
	ListQueuedCandidates(ctx context.Context) ([]Candidate, error)
}

// ProfileResolver resolves the active opencode profile (C3, §4.3's auto
// selection when configured as "auto").
type ProfileResolver interface {
	ResolveProfile(ctx context.Context) (string, error)
}

// GateState reports the daemon's current mode and throttle state for C4.
type GateState interface {
	Mode(ctx context.Context) (gate.Mode, error)
	ThrottleState(ctx context.Context) (throttle.State, error)
}

// RepoConfig is one repo's worker-pool configuration.
type RepoConfig struct {
	Repo        string
	Concurrency int
}

// Config configures a Scheduler.
type Config struct {
	Repos          []RepoConfig
	HeartbeatTTLMs int64
	DaemonID       string
	TickInterval   time.Duration
	IsShuttingDown func() bool
}

// Scheduler owns one worker pool per configured repo and the global
// priority-ordered dequeue loop.
type Scheduler struct {
	store    *store.Store
	host     queue.LabelHost
	source   TaskSource
	profiles ProfileResolver
	gateSrc  GateState
	runner   AgentRunner
	cfg      Config
	logger   *slog.Logger

	mu      sync.Mutex
	pools   map[string]*repoPool
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

type repoPool struct {
	concurrency int
	active      map[string]context.CancelFunc
}

// New constructs a Scheduler.
func New(st *store.Store, host queue.LabelHost, source TaskSource, profiles ProfileResolver, gateSrc GateState, runner AgentRunner, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	pools := make(map[string]*repoPool, len(cfg.Repos))
	for _, rc := range cfg.Repos {
		pools[rc.Repo] = &repoPool{concurrency: rc.Concurrency, active: make(map[string]context.CancelFunc)}
	}
	return &Scheduler{
		store:    st,
		host:     host,
		source:   source,
		profiles: profiles,
		gateSrc:  gateSrc,
		runner:   runner,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "scheduler")),
		pools:    pools,
	}
}

// Start begins the scheduler loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop halts the loop and waits for in-flight ticks to settle. It does not
// cancel active sessions; callers drive drain semantics separately.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh
}

// ActiveSlotCount reports how many sessions are currently running, across
// all repos.
func (s *Scheduler) ActiveSlotCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.pools {
		n += len(p.active)
	}
	return n
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	mode, err := s.gateSrc.Mode(ctx)
	if err != nil {
		s.logger.Warn("scheduler: resolve daemon mode failed", "error", err)
		return
	}
	throttleState, err := s.gateSrc.ThrottleState(ctx)
	if err != nil {
		s.logger.Warn("scheduler: resolve throttle state failed", "error", err)
		return
	}
	shuttingDown := s.cfg.IsShuttingDown != nil && s.cfg.IsShuttingDown()
	decision := gate.Evaluate(mode, throttleState, shuttingDown)
	schedulerTickTotal.Inc()
	throttle.RecordState(throttleState)

	resumable := s.hasResumableTasks(ctx)
	if !decision.AllowDequeue && !resumable {
		return
	}

	profile, err := s.profiles.ResolveProfile(ctx)
	if err != nil {
		s.logger.Warn("scheduler: resolve profile failed", "error", err)
		return
	}

	candidates, err := s.source.ListQueuedCandidates(ctx)
	if err != nil {
		s.logger.Warn("scheduler: list queued candidates failed", "error", err)
		return
	}
	SortCandidates(candidates)

	for _, c := range candidates {
		if !decision.AllowDequeue {
			break
		}
		s.mu.Lock()
		pool, ok := s.pools[c.Repo]
		if !ok {
			s.mu.Unlock()
			continue
		}
		if len(pool.active) >= pool.concurrency {
			s.mu.Unlock()
			continue
		}
		s.mu.Unlock()

		s.assign(ctx, c, profile)
	}
}

func (s *Scheduler) hasResumableTasks(ctx context.Context) bool {
	tasks, err := s.store.ListTasksByStatus(ctx, store.StatusInProgress)
	if err != nil {
		return false
	}
	for _, t := range tasks {
		if t.HeartbeatAt != nil && !ownership.IsHeartbeatStale(t.HeartbeatAt, time.Now(), time.Duration(s.cfg.HeartbeatTTLMs)*time.Millisecond) {
			continue
		}
		return true
	}
	return false
}

func (s *Scheduler) assign(ctx context.Context, c Candidate, profile string) {
	ttl := time.Duration(s.cfg.HeartbeatTTLMs) * time.Millisecond
	claimed, err := queue.TryClaim(ctx, s.host, s.store, c.Repo, c.Number, s.cfg.DaemonID, time.Now(), ttl)
	if err != nil {
		s.logger.Warn("scheduler: claim failed", "repo", c.Repo, "issue", c.Number, "error", err)
		return
	}
	if !claimed.Claimed {
		return
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	pool := s.pools[c.Repo]
	pool.active[c.TaskPath()] = cancel
	s.mu.Unlock()
	schedulerActiveSlots.WithLabelValues(c.Repo).Inc()
	tasksClaimedTotal.WithLabelValues(c.Repo).Inc()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(pool.active, c.TaskPath())
			s.mu.Unlock()
			schedulerActiveSlots.WithLabelValues(c.Repo).Dec()
			cancel()
		}()

		result, err := s.runner.RunSession(sessionCtx, c.Repo, c.Number, profile)
		if err != nil {
			s.logger.Warn("scheduler: session failed", "repo", c.Repo, "issue", c.Number, "error", err)
			s.releaseOnSessionError(ctx, c)
			return
		}
		s.classifyAndUpdate(ctx, c, result)
	}()
}

func (s *Scheduler) releaseOnSessionError(ctx context.Context, c Candidate) {
	if err := s.store.ReleaseTaskSlot(ctx, c.Repo, c.Number, store.StatusQueued, "session-error"); err != nil {
		s.logger.Warn("scheduler: release after session error failed", "repo", c.Repo, "issue", c.Number, "error", err)
	}
}

func (s *Scheduler) classifyAndUpdate(ctx context.Context, c Candidate, result SessionResult) {
	tasksCompletedTotal.WithLabelValues(c.Repo, string(result.Outcome)).Inc()

	var status store.TaskStatus
	switch result.Outcome {
	case OutcomeDone:
		status = store.StatusDone
	case OutcomeBlocked:
		status = store.StatusBlocked
	case OutcomeThrottled:
		status = store.StatusThrottled
	case OutcomeEscalated:
		status = store.StatusEscalated
	default:
		status = store.StatusBlocked
	}

	snapshot := store.TaskOpState{
		TaskPath: c.TaskPath(),
		Repo:     c.Repo,
		Number:   c.Number,
		Status:   status,
	}
	switch result.Outcome {
	case OutcomeDone:
		snapshot.PRURL = result.PRURL
	case OutcomeBlocked, OutcomeEscalated:
		snapshot.BlockedReason = result.Reason
	}
	if err := s.store.RecordTaskSnapshot(ctx, snapshot); err != nil {
		s.logger.Warn("scheduler: record outcome snapshot failed", "repo", c.Repo, "issue", c.Number, "error", err)
	}

	if err := s.store.ReleaseTaskSlot(ctx, c.Repo, c.Number, status, fmt.Sprintf("outcome:%s", result.Outcome)); err != nil {
		s.logger.Warn("scheduler: record outcome failed", "repo", c.Repo, "issue", c.Number, "error", err)
	}
}
