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

// Package config loads and validates ralph's daemon configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete ralph configuration.
type Config struct {
	Version int `yaml:"version,omitempty"`

	Log      LogConfig      `yaml:"log"`
	Daemon   DaemonConfig   `yaml:"daemon"`
	Host     HostConfig     `yaml:"host"`
	Sweeps   SweepsConfig   `yaml:"sweeps"`
	Throttle ThrottleConfig `yaml:"throttle"`

	// Repos lists the repositories ralph watches and schedules work for.
	Repos []RepoConfig `yaml:"repos"`

	// Profiles maps a profile name to its agent/model and throttle windows.
	// The reserved name "auto" selects among these at runtime (see
	// internal/throttle).
	Profiles map[string]ProfileConfig `yaml:"profiles"`
}

// LogConfig mirrors internal/log.Config's yaml-facing fields.
type LogConfig struct {
	Level     string `yaml:"level,omitempty"`
	Format    string `yaml:"format,omitempty"`
	AddSource bool   `yaml:"add_source,omitempty"`
}

// DaemonConfig configures the daemon process itself.
type DaemonConfig struct {
	// DataDir is the path of the durable state database file (a file, not
	// a directory); RALPH_STATE_DB_PATH overrides it.
	// Default: $HOME/.ralph/state.sqlite.
	DataDir string `yaml:"data_dir,omitempty"`

	// WorkDir holds each task's isolated repo work-copy, one subdirectory
	// per (repo, issueNumber). Default: $HOME/.ralph/work.
	WorkDir string `yaml:"work_dir,omitempty"`

	// ControlRoot holds the daemon registry, lock file, and control file.
	// Default: $HOME/.ralph/control.
	ControlRoot string `yaml:"control_root,omitempty"`

	// PIDFile is the path to the daemon's PID file.
	// Default: <ControlRoot>/ralphd.pid.
	PIDFile string `yaml:"pid_file,omitempty"`

	// HeartbeatTTL is the ownership TTL used by internal/ownership.
	// Default: 5m.
	HeartbeatTTL time.Duration `yaml:"heartbeat_ttl,omitempty"`

	// DrainTimeout bounds how long Shutdown waits for in-flight sessions.
	// Default: 5m.
	DrainTimeout time.Duration `yaml:"drain_timeout,omitempty"`

	// Profile is the requested opencode profile name, or "auto" to pick
	// among Profiles via the throttle-aware selector. Default: "auto".
	// An operator's control-file opencodeProfile override takes
	// precedence over this at runtime.
	Profile string `yaml:"profile,omitempty"`

	// DefaultAgent is the agent name passed to the coding-agent CLI when
	// the resolved profile has no Agent set. Default: "opencode".
	DefaultAgent string `yaml:"default_agent,omitempty"`
}

// HostConfig configures the issue-host adapter.
type HostConfig struct {
	// Type selects the adapter implementation. Only "github" is built in.
	Type string `yaml:"type,omitempty"`

	// EnterpriseHost, if set, points the adapter at a GitHub Enterprise
	// instance instead of github.com.
	EnterpriseHost string `yaml:"enterprise_host,omitempty"`
}

// SweepsConfig configures the periodic background loops (C5 stale sweep,
// C6 reconciler, C7 command processor, C8 auto-queue).
type SweepsConfig struct {
	StaleSweepInterval       time.Duration `yaml:"stale_sweep_interval,omitempty"`
	LabelReconcileInterval   time.Duration `yaml:"label_reconcile_interval,omitempty"`
	LabelCooldown            time.Duration `yaml:"label_cooldown,omitempty"`
	LabelTransitionThrottle  time.Duration `yaml:"label_transition_throttle,omitempty"`
	CmdProcessorInterval     time.Duration `yaml:"cmd_processor_interval,omitempty"`
	CmdProcessorMaxPerTick   int           `yaml:"cmd_processor_max_per_tick,omitempty"`
	AutoQueueDebounce        time.Duration `yaml:"auto_queue_debounce,omitempty"`
	AutoQueueMaxPerTick      int           `yaml:"auto_queue_max_per_tick,omitempty"`
	LabelWriteCoalesceWindow time.Duration `yaml:"label_write_coalesce_window,omitempty"`
}

// ThrottleConfig configures the throttle decision boundary.
type ThrottleConfig struct {
	// SoftFraction is the usage fraction (0-1) at which getThrottleDecision
	// returns "soft". Default: 0.9.
	SoftFraction float64 `yaml:"soft_fraction,omitempty"`
}

// RepoConfig configures one watched repository.
type RepoConfig struct {
	Owner       string `yaml:"owner"`
	Repo        string `yaml:"repo"`
	Concurrency int    `yaml:"concurrency,omitempty"`

	AutoQueue AutoQueueConfig `yaml:"auto_queue,omitempty"`

	// LegacyWorkflowLabels, when true, opts the repo out of the auto-queue
	// runner per spec.md §4.8.
	LegacyWorkflowLabels bool `yaml:"legacy_workflow_labels,omitempty"`
}

// AutoQueueConfig configures C8 per repo.
type AutoQueueConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Scope   string `yaml:"scope,omitempty"` // "all-open" or "labeled-only"
	DryRun  bool   `yaml:"dry_run,omitempty"`
}

// ProfileConfig configures one agent profile's throttle windows.
type ProfileConfig struct {
	Agent string `yaml:"agent"`
	Model string `yaml:"model,omitempty"`

	RollingWindow    time.Duration `yaml:"rolling_window,omitempty"`
	RollingCapTokens int64         `yaml:"rolling_cap_tokens,omitempty"`
	WeeklyCapTokens  int64         `yaml:"weekly_cap_tokens,omitempty"`
}

// DefaultConfig returns a Config with every documented default populated.
func DefaultConfig() Config {
	return Config{
		Version: 1,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Daemon: DaemonConfig{
			HeartbeatTTL: 5 * time.Minute,
			DrainTimeout: 5 * time.Minute,
			Profile:      "auto",
			DefaultAgent: "opencode",
		},
		Host: HostConfig{
			Type: "github",
		},
		Sweeps: SweepsConfig{
			StaleSweepInterval:       5 * time.Minute,
			LabelReconcileInterval:   5 * time.Minute,
			LabelCooldown:            10 * time.Minute,
			LabelTransitionThrottle:  3 * time.Minute,
			CmdProcessorInterval:     30 * time.Second,
			CmdProcessorMaxPerTick:   25,
			AutoQueueDebounce:        500 * time.Millisecond,
			AutoQueueMaxPerTick:      25,
			LabelWriteCoalesceWindow: 250 * time.Millisecond,
		},
		Throttle: ThrottleConfig{
			SoftFraction: 0.9,
		},
		Profiles: map[string]ProfileConfig{},
	}
}

// Load reads and validates a Config from path. An empty path resolves to
// DefaultConfigPath(). A missing file is not an error; DefaultConfig() is
// returned with environment overrides applied.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		p, err := DefaultConfigPath()
		if err != nil {
			return Config{}, fmt.Errorf("config: resolve default path: %w", err)
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, cfg.Validate()
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides applies the environment variables listed in spec.md §6.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RALPH_STATE_DB_PATH"); v != "" {
		cfg.Daemon.DataDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("RALPH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("RALPH_GITHUB_WRITE_COALESCE_WINDOW_MS"); v != "" {
		if d, err := time.ParseDuration(v + "ms"); err == nil {
			cfg.Sweeps.LabelWriteCoalesceWindow = d
		}
	}
}
