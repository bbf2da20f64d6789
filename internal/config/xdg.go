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

package config

import (
	"os"
	"path/filepath"
)

// HomeDir returns $HOME, required per the external interface contract.
func HomeDir() (string, error) {
	if home := os.Getenv("HOME"); home != "" {
		return home, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return home, nil
}

// StateDir returns the directory holding ralph's durable state and control
// files: $HOME/.ralph, falling back to $XDG_STATE_HOME/ralph if HOME cannot
// be resolved.
func StateDir() (string, error) {
	home, err := HomeDir()
	if err == nil {
		return filepath.Join(home, ".ralph"), nil
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "ralph"), nil
	}
	return "", err
}

// DefaultConfigPath returns $HOME/.ralph/config.yaml.
func DefaultConfigPath() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DefaultStateDBPath returns $HOME/.ralph/state.sqlite, honoring
// RALPH_STATE_DB_PATH when set.
func DefaultStateDBPath() (string, error) {
	if p := os.Getenv("RALPH_STATE_DB_PATH"); p != "" {
		return p, nil
	}
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state.sqlite"), nil
}

// DefaultControlRoot returns $HOME/.ralph/control.
func DefaultControlRoot() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "control"), nil
}

// DefaultWorkDir returns $HOME/.ralph/work.
func DefaultWorkDir() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "work"), nil
}
