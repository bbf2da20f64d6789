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
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/ralph/internal/daemonctl"
	"github.com/tombee/ralph/internal/output"
)

func newRestartCommand() *cobra.Command {
	var grace time.Duration
	var force bool
	var startCmd string

	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Drain the running daemon, then start a fresh one",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestart(grace, force, startCmd)
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 30*time.Second, "How long to wait for the current daemon to exit before giving up")
	cmd.Flags().BoolVar(&force, "force", false, "Kill the daemon if it has not exited within the grace period")
	cmd.Flags().StringVar(&startCmd, "start-cmd", "", "Command used to start the new daemon (default: ralphd --config <this CLI's --config>)")
	return cmd
}

func runRestart(grace time.Duration, force bool, startCmd string) error {
	if grace < 0 {
		return output.ArgumentError("--grace must not be negative", nil)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	paths, err := daemonctl.ResolvePaths(cfg)
	if err != nil {
		return output.OperationalError("resolve control paths", err)
	}

	if err := stopDaemon(paths, grace, force); err != nil {
		return output.OperationalError("stop daemon", err)
	}
	if err := startDaemon(startCmd, configPath); err != nil {
		return output.OperationalError("start daemon", err)
	}
	return emitCommandResult("restart", "daemon restarted")
}
