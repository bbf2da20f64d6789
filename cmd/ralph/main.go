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

// Command ralph is the operator-facing control surface for ralphd: it
// reports the daemon's status and edits the control file the daemon watches
// to request draining, resuming, restarting, or upgrading.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/ralph/internal/config"
	"github.com/tombee/ralph/internal/output"
)

// Version information (injected via ldflags at build time).
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var (
	jsonOutput bool
	configPath string
	jqExpr     string
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		output.HandleExitError(err)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ralph",
		Short:         "Control the ralph issue-driven coding agent daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the daemon config file")
	cmd.PersistentFlags().StringVar(&jqExpr, "jq", "", "Filter --json output through a jq expression")

	cmd.AddCommand(newStatusCommand())
	cmd.AddCommand(newDrainCommand())
	cmd.AddCommand(newResumeCommand())
	cmd.AddCommand(newRestartCommand())
	cmd.AddCommand(newUpgradeCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show ralph CLI version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput {
				return output.EmitJSONFiltered(map[string]string{
					"version":   version,
					"commit":    commit,
					"buildDate": buildDate,
				}, jqExpr)
			}
			fmt.Printf("ralph %s (commit: %s, built: %s)\n", version, commit, buildDate)
			return nil
		},
	}
}

// loadConfig loads the daemon config this CLI process shares with ralphd,
// so both resolve the same control-plane file locations.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, output.OperationalError("load config", err)
	}
	return cfg, nil
}

// emitCommandResult reports a command's success either as a JSON envelope
// or a human-readable message, per the --json flag.
func emitCommandResult(command, message string) error {
	if jsonOutput {
		return output.EmitJSONFiltered(output.JSONResponse{Command: command, Success: true}, jqExpr)
	}
	fmt.Println(message)
	return nil
}
