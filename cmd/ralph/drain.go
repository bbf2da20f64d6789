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
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/ralph/internal/daemonctl"
	"github.com/tombee/ralph/internal/output"
)

func newDrainCommand() *cobra.Command {
	var timeout time.Duration
	var pauseAtCheckpoint bool

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Stop dequeuing new tasks and let in-flight sessions finish",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrain(timeout, pauseAtCheckpoint)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Drain timeout (default: the daemon's configured drain_timeout)")
	cmd.Flags().BoolVar(&pauseAtCheckpoint, "pause-at-checkpoint", false, "Pause in-flight sessions at their next checkpoint instead of letting them run to completion")
	return cmd
}

func runDrain(timeout time.Duration, pauseAtCheckpoint bool) error {
	if timeout < 0 {
		return output.ArgumentError("--timeout must not be negative", nil)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	paths, err := daemonctl.ResolvePaths(cfg)
	if err != nil {
		return output.OperationalError("resolve control paths", err)
	}

	cf, err := daemonctl.ReadControlFile(paths.ControlPath)
	if err != nil {
		return output.OperationalError("read control file", err)
	}
	cf.Mode = "draining"
	if timeout > 0 {
		ms := timeout.Milliseconds()
		cf.DrainTimeoutMs = &ms
	}
	cf.PauseAtCheckpoint = &pauseAtCheckpoint

	if err := daemonctl.WriteControlFile(paths.ControlPath, cf); err != nil {
		return output.OperationalError("write control file", err)
	}
	return emitCommandResult("drain", fmt.Sprintf("drain requested (pauseAtCheckpoint=%v)", pauseAtCheckpoint))
}
