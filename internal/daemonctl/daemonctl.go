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

package daemonctl

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/ralph/internal/config"
	"github.com/tombee/ralph/internal/gate"
	"github.com/tombee/ralph/internal/throttle"
	"github.com/tombee/ralph/pkg/security"
)

// Options carries build-time identifiers recorded in the daemon record.
type Options struct {
	Version   string
	Commit    string
	BuildDate string
}

// ThrottleSource reports the current throttle state. Token-usage accounting
// lives in internal/agent and internal/store; the caller wires a concrete
// source (summing internal/store.ListRunsSince against internal/throttle's
// windows) into Controller at construction.
type ThrottleSource interface {
	ThrottleState(ctx context.Context) (throttle.State, error)
}

// Drainer reports in-flight session work so Shutdown knows when the daemon
// has quiesced.
type Drainer interface {
	ActiveCount() int
}

// Controller owns the daemon's control-plane surface: the singleton lock,
// the daemon record, the control file watch, and the PID file, plus the
// derived Mode/ThrottleState pair the scheduler's gate consults every tick.
type Controller struct {
	cfg    config.Config
	opts   Options
	logger *slog.Logger

	daemonID        string
	controlRoot     string
	registryPath    string
	lockPath        string
	controlPath     string
	pidFile         string
	heartbeatPeriod time.Duration

	throttleSrc ThrottleSource
	drainer     Drainer

	lock    *Lock
	watcher *controlWatcher

	mu                sync.RWMutex
	mode              gate.Mode
	drainTimeout      time.Duration
	pauseAtCheckpoint bool
	opencodeProfile   string

	stopHeartbeat chan struct{}
	heartbeatDone chan struct{}
	started       bool
}

// New constructs a Controller from cfg. throttleSrc and drainer may be nil;
// a nil ThrottleSource always reports throttle.StateOK, and a nil Drainer
// makes Shutdown return immediately once draining is requested.
func New(cfg config.Config, opts Options, throttleSrc ThrottleSource, drainer Drainer, logger *slog.Logger) (*Controller, error) {
	if logger == nil {
		logger = slog.Default()
	}
	paths, err := ResolvePaths(cfg)
	if err != nil {
		return nil, err
	}
	drainTimeout := cfg.Daemon.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = 5 * time.Minute
	}

	return &Controller{
		cfg:             cfg,
		opts:            opts,
		logger:          logger.With(slog.String("component", "daemonctl")),
		daemonID:        uuid.New().String(),
		controlRoot:     paths.ControlRoot,
		registryPath:    paths.RegistryPath,
		lockPath:        paths.LockPath,
		controlPath:     paths.ControlPath,
		pidFile:         paths.PIDFile,
		heartbeatPeriod: 30 * time.Second,
		throttleSrc:     throttleSrc,
		drainer:         drainer,
		mode:            gate.ModeRunning,
		drainTimeout:    drainTimeout,
		stopHeartbeat:   make(chan struct{}),
		heartbeatDone:   make(chan struct{}),
	}, nil
}

// Start acquires the singleton lock, writes the daemon record and PID file,
// begins watching the control file, and blocks until ctx is cancelled or a
// fatal startup error occurs.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("daemonctl: already started")
	}
	c.started = true
	c.mu.Unlock()

	c.checkPermissionsAtStartup()

	startedAt := time.Now()
	lock, err := acquireLock(c.lockPath, c.daemonID, startedAt)
	if err != nil {
		return fmt.Errorf("daemonctl: acquire singleton lock: %w", err)
	}
	c.lock = lock

	cwd, _ := os.Getwd()
	record := Record{
		Version:         recordVersion,
		DaemonID:        c.daemonID,
		PID:             os.Getpid(),
		StartedAt:       startedAt,
		HeartbeatAt:     startedAt,
		ControlRoot:     c.controlRoot,
		Command:         strings.Join(os.Args, " "),
		Cwd:             cwd,
		ControlFilePath: c.controlPath,
	}
	if err := writeRecord(c.registryPath, record); err != nil {
		c.lock.Release()
		return fmt.Errorf("daemonctl: write daemon record: %w", err)
	}

	if err := c.writePIDFile(); err != nil {
		c.lock.Release()
		return fmt.Errorf("daemonctl: write pid file: %w", err)
	}

	if cf, err := ReadControlFile(c.controlPath); err != nil {
		c.logger.Warn("daemonctl: initial control file read failed", "error", err)
	} else {
		c.applyControlFile(cf)
	}

	watcher, err := newControlWatcher(c.controlPath, c.logger, c.applyControlFile)
	if err != nil {
		c.lock.Release()
		return fmt.Errorf("daemonctl: watch control file: %w", err)
	}
	c.watcher = watcher

	go c.runHeartbeat(record)

	c.logger.Info("daemon started",
		slog.String("daemon_id", c.daemonID),
		slog.Int("pid", os.Getpid()),
		slog.String("version", c.opts.Version))

	<-ctx.Done()
	return nil
}

// Shutdown puts the daemon into draining mode, waits for in-flight work to
// quiesce (bounded by drain timeout), then releases the lock, removes the
// PID file, and stops the control-file watch.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.mode = gate.ModeDraining
	drainTimeout := c.drainTimeout
	c.mu.Unlock()

	c.logger.Info("graceful shutdown initiated", slog.Duration("drain_timeout", drainTimeout))

	if c.drainer != nil {
		deadline := time.Now().Add(drainTimeout)
	drainLoop:
		for time.Now().Before(deadline) {
			if c.drainer.ActiveCount() == 0 {
				break
			}
			select {
			case <-ctx.Done():
				break drainLoop
			case <-time.After(200 * time.Millisecond):
			}
		}
		if remaining := c.drainer.ActiveCount(); remaining > 0 {
			c.logger.Warn("drain timeout exceeded", slog.Int("remaining", remaining))
		} else {
			c.logger.Info("all sessions completed during drain")
		}
	}

	close(c.stopHeartbeat)
	<-c.heartbeatDone

	if c.watcher != nil {
		c.watcher.Stop()
	}

	if err := c.lock.Release(); err != nil {
		c.logger.Error("daemonctl: lock release failed", "error", err)
	}

	if c.pidFile != "" {
		if err := os.Remove(c.pidFile); err != nil && !os.IsNotExist(err) {
			c.logger.Error("daemonctl: pid file removal failed", "error", err)
		}
	}

	c.mu.Lock()
	c.started = false
	c.mu.Unlock()

	c.logger.Info("daemon stopped")
	return nil
}

// Mode implements scheduler.GateState.
func (c *Controller) Mode(ctx context.Context) (gate.Mode, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode, nil
}

// ThrottleState implements scheduler.GateState.
func (c *Controller) ThrottleState(ctx context.Context) (throttle.State, error) {
	if c.throttleSrc == nil {
		return throttle.StateOK, nil
	}
	return c.throttleSrc.ThrottleState(ctx)
}

// PauseAtCheckpoint reports whether a drain requested pausing at the next
// session checkpoint rather than letting work run to completion.
func (c *Controller) PauseAtCheckpoint() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pauseAtCheckpoint
}

// DaemonID returns this process's generated daemon identifier, used to
// claim ownership of tasks.
func (c *Controller) DaemonID() string {
	return c.daemonID
}

// SetDrainer wires the drainer after construction, for callers (like
// cmd/ralphd) whose drainer itself depends on this Controller as its
// scheduler.GateState and so cannot be built before New returns.
func (c *Controller) SetDrainer(d Drainer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drainer = d
}

// IsShuttingDown reports whether the daemon is currently draining or
// paused, for scheduler.Config.IsShuttingDown.
func (c *Controller) IsShuttingDown() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode != gate.ModeRunning
}

// OpencodeProfileOverride reports an operator-forced profile override from
// the control file, or "" if none is set.
func (c *Controller) OpencodeProfileOverride() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.opencodeProfile
}

func (c *Controller) applyControlFile(cf ControlFile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch cf.Mode {
	case "paused":
		c.mode = gate.ModePaused
	case "draining":
		c.mode = gate.ModeDraining
	default:
		c.mode = gate.ModeRunning
	}
	if cf.DrainTimeoutMs != nil {
		c.drainTimeout = time.Duration(*cf.DrainTimeoutMs) * time.Millisecond
	}
	if cf.PauseAtCheckpoint != nil {
		c.pauseAtCheckpoint = *cf.PauseAtCheckpoint
	}
	if cf.OpencodeProfile != nil {
		c.opencodeProfile = *cf.OpencodeProfile
	}

	c.logger.Info("daemonctl: control file applied", slog.String("mode", string(c.mode)))
}

func (c *Controller) runHeartbeat(record Record) {
	defer close(c.heartbeatDone)

	ticker := time.NewTicker(c.heartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopHeartbeat:
			return
		case <-ticker.C:
			record.HeartbeatAt = time.Now()
			if err := writeRecord(c.registryPath, record); err != nil {
				c.logger.Warn("daemonctl: heartbeat write failed", "error", err)
			}
		}
	}
}

func (c *Controller) checkPermissionsAtStartup() {
	paths := []string{c.controlRoot}
	if c.cfg.Daemon.DataDir != "" {
		paths = append(paths, c.cfg.Daemon.DataDir)
	}
	for _, p := range paths {
		for _, warning := range security.CheckConfigPermissions(p) {
			c.logger.Warn("security warning", slog.String("warning", warning))
		}
	}
}

func (c *Controller) writePIDFile() error {
	if c.pidFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.pidFile), 0700); err != nil {
		return err
	}
	return os.WriteFile(c.pidFile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0600)
}
