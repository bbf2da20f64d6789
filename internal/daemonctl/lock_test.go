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
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLock_SucceedsWhenNoLockExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.lock")

	lock, err := acquireLock(path, "d1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), lock.record.PID)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec lockRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "d1", rec.DaemonID)
}

func TestAcquireLock_FailsWhenHeldByLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.lock")

	_, err := acquireLock(path, "d1", time.Now())
	require.NoError(t, err)

	_, err = acquireLock(path, "d2", time.Now())
	assert.True(t, errors.Is(err, ErrLockHeld))
}

func TestAcquireLock_ReclaimsStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.lock")

	cmd := exec.Command("sleep", "60")
	require.NoError(t, cmd.Start())
	stalePID := cmd.Process.Pid
	require.NoError(t, cmd.Process.Kill())
	_ = cmd.Wait()

	rec := lockRecord{DaemonID: "stale", PID: stalePID, StartedAt: time.Now(), AcquiredAt: time.Now(), Token: "t"}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))

	lock, err := acquireLock(path, "d2", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "d2", lock.record.DaemonID)
}

func TestLock_ReleaseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.lock")

	lock, err := acquireLock(path, "d1", time.Now())
	require.NoError(t, err)

	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestIsProcessRunning(t *testing.T) {
	assert.True(t, isProcessRunning(os.Getpid()))
	assert.False(t, isProcessRunning(0))
}
