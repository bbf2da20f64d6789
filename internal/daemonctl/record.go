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

// Package daemonctl implements the daemon's own control-plane surface: a
// process-wide daemon record, a singleton lock file guarding exclusive
// ownership of the local durable state, a control file the CLI edits to
// request drain/pause/resume, and the startup/shutdown lifecycle that ties
// them together.
package daemonctl

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tombee/ralph/pkg/security"
)

// recordVersion is the daemon record schema version.
const recordVersion = 1

// Record is the process-wide daemon record written to
// <controlRoot>/daemon-registry.json on Start and refreshed on each
// heartbeat tick.
type Record struct {
	Version         int       `json:"version"`
	DaemonID        string    `json:"daemonId"`
	PID             int       `json:"pid"`
	StartedAt       time.Time `json:"startedAt"`
	HeartbeatAt     time.Time `json:"heartbeatAt"`
	ControlRoot     string    `json:"controlRoot"`
	Command         string    `json:"command"`
	Cwd             string    `json:"cwd"`
	ControlFilePath string    `json:"controlFilePath"`
}

// ReadRecord loads the daemon record at path. A missing file returns a
// zero-value Record and no error, so cmd/ralph status can distinguish "no
// daemon has ever started here" from a read failure.
func ReadRecord(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, nil
		}
		return Record{}, fmt.Errorf("daemonctl: read record %s: %w", path, err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("daemonctl: parse record %s: %w", path, err)
	}
	return r, nil
}

// writeRecord atomically writes r to path.
func writeRecord(path string, r Record) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("daemonctl: marshal record: %w", err)
	}
	return security.WriteFileAtomic(path, data, 0600)
}
