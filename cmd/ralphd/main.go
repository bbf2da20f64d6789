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

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tombee/ralph/internal/agent"
	"github.com/tombee/ralph/internal/config"
	"github.com/tombee/ralph/internal/daemonctl"
	"github.com/tombee/ralph/internal/daemonrun"
	"github.com/tombee/ralph/internal/host/github"
	"github.com/tombee/ralph/internal/log"
	"github.com/tombee/ralph/internal/scheduler"
	"github.com/tombee/ralph/internal/store"
)

// Version information (injected via ldflags at build time).
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "", "Path of the durable state database file")
		controlRoot = flag.String("control-root", "", "Directory holding the daemon registry, lock, and control files")
		pidFile     = flag.String("pid-file", "", "Path to the daemon's PID file")
		configPath  = flag.String("config", "", "Path to the daemon config file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("ralphd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	if *dataDir != "" {
		cfg.Daemon.DataDir = *dataDir
	}
	if *controlRoot != "" {
		cfg.Daemon.ControlRoot = *controlRoot
	}
	if *pidFile != "" {
		cfg.Daemon.PIDFile = *pidFile
	}

	if err := run(cfg, logger, daemonctl.Options{Version: version, Commit: commit, BuildDate: buildDate}); err != nil {
		logger.Error("ralphd exited with an error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger, opts daemonctl.Options) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPath := cfg.Daemon.DataDir
	if dbPath == "" {
		p, err := config.DefaultStateDBPath()
		if err != nil {
			return fmt.Errorf("resolve default state db path: %w", err)
		}
		dbPath = p
	}
	st, err := store.Open(ctx, store.Config{Path: dbPath})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	workDir := cfg.Daemon.WorkDir
	if workDir == "" {
		d, err := config.DefaultWorkDir()
		if err != nil {
			return fmt.Errorf("resolve default work dir: %w", err)
		}
		workDir = d
	}

	hostClient := github.NewClient(github.Config{
		Token: github.ResolveToken(),
		Host:  cfg.Host.EnterpriseHost,
	})

	profileResolver := daemonrun.NewProfileResolver(st, cfg, nil)

	ctl, err := daemonctl.New(cfg, opts, profileResolver, nil, logger)
	if err != nil {
		return fmt.Errorf("construct daemon controller: %w", err)
	}

	repoSlugs := make([]string, 0, len(cfg.Repos))
	repoConfigs := make([]scheduler.RepoConfig, 0, len(cfg.Repos))
	for _, rc := range cfg.Repos {
		slug := rc.Owner + "/" + rc.Repo
		concurrency := rc.Concurrency
		if concurrency <= 0 {
			concurrency = 1
		}
		repoSlugs = append(repoSlugs, slug)
		repoConfigs = append(repoConfigs, scheduler.RepoConfig{Repo: slug, Concurrency: concurrency})
	}

	taskSource := daemonrun.NewTaskSource(st, repoSlugs)

	cliAdapter := agent.NewCLIAdapter(agent.CLIConfig{Binary: "opencode"})
	trackingAdapter := agent.NewTrackingAdapter(cliAdapter, st, logger)
	runner := daemonrun.NewAgentRunner(st, trackingAdapter, workDir, cfg.Profiles, cfg.Daemon.DefaultAgent)

	heartbeatTTL := cfg.Daemon.HeartbeatTTL
	if heartbeatTTL <= 0 {
		heartbeatTTL = 5 * time.Minute
	}

	sched := scheduler.New(st, hostClient, taskSource, profileResolver, ctl, runner, scheduler.Config{
		Repos:          repoConfigs,
		HeartbeatTTLMs: heartbeatTTL.Milliseconds(),
		DaemonID:       ctl.DaemonID(),
		IsShuttingDown: ctl.IsShuttingDown,
	}, logger)
	ctl.SetDrainer(daemonrun.SchedulerDrainer{Scheduler: sched})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- ctl.Start(ctx)
	}()
	sched.Start(ctx)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", slog.String("signal", sig.String()))
		cancel()
		sched.Stop()
		if err := ctl.Shutdown(context.Background()); err != nil {
			logger.Error("error during shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		sched.Stop()
		if err != nil {
			return fmt.Errorf("daemon controller: %w", err)
		}
	}
	return nil
}
