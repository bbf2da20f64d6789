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
	"fmt"
	"path/filepath"

	"github.com/tombee/ralph/internal/config"
)

// Paths is the set of control-plane file locations derived from cfg, shared
// by the daemon (Controller) and the CLI (cmd/ralph), which never
// constructs a Controller of its own since it never calls Start.
type Paths struct {
	ControlRoot  string
	RegistryPath string
	LockPath     string
	ControlPath  string
	PIDFile      string
}

// ResolvePaths derives the control-plane file locations from cfg, applying
// the same defaults Controller.New does.
func ResolvePaths(cfg config.Config) (Paths, error) {
	controlRoot := cfg.Daemon.ControlRoot
	if controlRoot == "" {
		var err error
		controlRoot, err = config.DefaultControlRoot()
		if err != nil {
			return Paths{}, fmt.Errorf("daemonctl: resolve control root: %w", err)
		}
	}
	pidFile := cfg.Daemon.PIDFile
	if pidFile == "" {
		pidFile = filepath.Join(controlRoot, "ralphd.pid")
	}
	return Paths{
		ControlRoot:  controlRoot,
		RegistryPath: filepath.Join(controlRoot, "daemon-registry.json"),
		LockPath:     filepath.Join(controlRoot, "daemon.lock"),
		ControlPath:  filepath.Join(controlRoot, "control.json"),
		PIDFile:      pidFile,
	}, nil
}
