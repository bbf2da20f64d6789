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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/ralph/internal/daemonctl"
)

func withTestConfig(t *testing.T) string {
	t.Helper()
	controlRoot := t.TempDir()
	configFile := filepath.Join(t.TempDir(), "ralph.yaml")
	contents := "daemon:\n  control_root: " + controlRoot + "\n"
	require.NoError(t, os.WriteFile(configFile, []byte(contents), 0600))

	prevConfigPath, prevJSON := configPath, jsonOutput
	configPath, jsonOutput = configFile, false
	t.Cleanup(func() { configPath, jsonOutput = prevConfigPath, prevJSON })

	return controlRoot
}

func TestRunDrain_WritesDrainingControlFile(t *testing.T) {
	controlRoot := withTestConfig(t)

	require.NoError(t, runDrain(2*time.Minute, true))

	cf, err := daemonctl.ReadControlFile(filepath.Join(controlRoot, "control.json"))
	require.NoError(t, err)
	assert.Equal(t, "draining", cf.Mode)
	require.NotNil(t, cf.DrainTimeoutMs)
	assert.Equal(t, (2 * time.Minute).Milliseconds(), *cf.DrainTimeoutMs)
	require.NotNil(t, cf.PauseAtCheckpoint)
	assert.True(t, *cf.PauseAtCheckpoint)
}

func TestRunDrain_RejectsNegativeTimeout(t *testing.T) {
	withTestConfig(t)
	err := runDrain(-time.Second, false)
	assertArgumentError(t, err)
}

func TestRunResume_ClearsDrainingMode(t *testing.T) {
	controlRoot := withTestConfig(t)
	require.NoError(t, runDrain(0, false))

	require.NoError(t, runResume())

	cf, err := daemonctl.ReadControlFile(filepath.Join(controlRoot, "control.json"))
	require.NoError(t, err)
	assert.Equal(t, "running", cf.Mode)
	assert.Nil(t, cf.PauseRequested)
}

func TestRunStatus_NotRunningWhenNoRecordExists(t *testing.T) {
	withTestConfig(t)
	require.NoError(t, runStatus(nil, nil))
}

func TestStopDaemon_NoRecordIsNoop(t *testing.T) {
	withTestConfig(t)
	cfg, err := loadConfig()
	require.NoError(t, err)
	paths, err := daemonctl.ResolvePaths(cfg)
	require.NoError(t, err)
	assert.NoError(t, stopDaemon(paths, time.Second, false))
}

func TestStartDaemon_UnknownBinaryErrors(t *testing.T) {
	err := startDaemon("ralph-binary-that-does-not-exist-anywhere", "")
	assert.Error(t, err)
}

func assertArgumentError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative")
}
