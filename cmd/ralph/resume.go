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
	"github.com/spf13/cobra"

	"github.com/tombee/ralph/internal/daemonctl"
	"github.com/tombee/ralph/internal/output"
)

func newResumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume dequeuing after a drain or pause",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume()
		},
	}
}

func runResume() error {
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
	cf.Mode = "running"
	cf.PauseRequested = nil
	cf.PauseAtCheckpoint = nil

	if err := daemonctl.WriteControlFile(paths.ControlPath, cf); err != nil {
		return output.OperationalError("write control file", err)
	}
	return emitCommandResult("resume", "resume requested")
}
