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

type statusReport struct {
	output.JSONResponse
	Running     bool      `json:"running"`
	DaemonID    string    `json:"daemonId,omitempty"`
	PID         int       `json:"pid,omitempty"`
	Mode        string    `json:"mode,omitempty"`
	StartedAt   time.Time `json:"startedAt,omitempty"`
	HeartbeatAt time.Time `json:"heartbeatAt,omitempty"`
	Uptime      string    `json:"uptime,omitempty"`
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether ralphd is running and its current mode",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	paths, err := daemonctl.ResolvePaths(cfg)
	if err != nil {
		return output.OperationalError("resolve control paths", err)
	}

	record, err := daemonctl.ReadRecord(paths.RegistryPath)
	if err != nil {
		return output.OperationalError("read daemon record", err)
	}
	running := record.PID != 0 && daemonctl.IsProcessRunning(record.PID)

	mode := "running"
	if cf, err := daemonctl.ReadControlFile(paths.ControlPath); err == nil && cf.Mode != "" {
		mode = cf.Mode
	}

	report := statusReport{
		JSONResponse: output.JSONResponse{Command: "status", Success: true},
		Running:      running,
		DaemonID:     record.DaemonID,
		PID:          record.PID,
		Mode:         mode,
	}
	if running {
		report.StartedAt = record.StartedAt
		report.HeartbeatAt = record.HeartbeatAt
		report.Uptime = time.Since(record.StartedAt).Round(time.Second).String()
	}

	if jsonOutput {
		return output.EmitJSONFiltered(report, jqExpr)
	}

	if !running {
		fmt.Println("ralphd is not running")
		return nil
	}
	fmt.Println("ralphd is running")
	fmt.Printf("  Daemon ID: %s\n", report.DaemonID)
	fmt.Printf("  PID:       %d\n", report.PID)
	fmt.Printf("  Mode:      %s\n", report.Mode)
	fmt.Printf("  Uptime:    %s\n", report.Uptime)
	return nil
}
