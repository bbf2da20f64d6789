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
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/ralph/internal/config"
	"github.com/tombee/ralph/internal/gate"
	"github.com/tombee/ralph/internal/throttle"
)

type fakeThrottleSource struct{ state throttle.State }

func (f fakeThrottleSource) ThrottleState(ctx context.Context) (throttle.State, error) {
	return f.state, nil
}

type fakeDrainer struct{ active int }

func (f *fakeDrainer) ActiveCount() int { return f.active }

func newTestController(t *testing.T, throttleSrc ThrottleSource, drainer Drainer) *Controller {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Daemon.ControlRoot = t.TempDir()
	cfg.Daemon.DrainTimeout = time.Second

	c, err := New(cfg, Options{Version: "test"}, throttleSrc, drainer, nil)
	require.NoError(t, err)
	return c
}

func TestController_StartWritesRecordLockAndPIDFile(t *testing.T) {
	c := newTestController(t, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(c.registryPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	assert.FileExists(t, c.registryPath)
	assert.FileExists(t, c.lockPath)
	assert.FileExists(t, c.pidFile)

	mode, err := c.Mode(ctx)
	require.NoError(t, err)
	assert.Equal(t, gate.ModeRunning, mode)

	cancel()
	require.NoError(t, <-done)
}

func TestController_SecondControllerCannotAcquireLockWhileFirstRuns(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Daemon.ControlRoot = t.TempDir()

	first, err := New(cfg, Options{}, nil, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go first.Start(ctx)

	require.Eventually(t, func() bool {
		_, err := os.Stat(first.lockPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	second, err := New(cfg, Options{}, nil, nil, nil)
	require.NoError(t, err)
	err = second.Start(context.Background())
	assert.ErrorIs(t, err, ErrLockHeld)
}

func TestController_ApplyControlFileUpdatesModeAndOverrides(t *testing.T) {
	c := newTestController(t, nil, nil)

	pauseAtCheckpoint := true
	profile := "budget"
	c.applyControlFile(ControlFile{Mode: "paused", PauseAtCheckpoint: &pauseAtCheckpoint, OpencodeProfile: &profile})

	mode, err := c.Mode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, gate.ModePaused, mode)
	assert.True(t, c.PauseAtCheckpoint())
	assert.Equal(t, "budget", c.OpencodeProfileOverride())
}

func TestController_ThrottleStateDelegatesToSource(t *testing.T) {
	c := newTestController(t, fakeThrottleSource{state: throttle.StateSoft}, nil)

	state, err := c.ThrottleState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, throttle.StateSoft, state)
}

func TestController_ThrottleStateDefaultsToOKWithoutSource(t *testing.T) {
	c := newTestController(t, nil, nil)

	state, err := c.ThrottleState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, throttle.StateOK, state)
}

func TestController_ShutdownWaitsForDrainerThenCleansUp(t *testing.T) {
	drainer := &fakeDrainer{active: 1}
	c := newTestController(t, nil, drainer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Start(ctx)

	require.Eventually(t, func() bool {
		_, err := os.Stat(c.lockPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	go func() {
		time.Sleep(50 * time.Millisecond)
		drainer.active = 0
	}()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	require.NoError(t, c.Shutdown(shutdownCtx))

	_, err := os.Stat(c.lockPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(c.pidFile)
	assert.True(t, os.IsNotExist(err))
}

func TestController_ControlRootDefaultsWhenUnset(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := config.DefaultConfig()
	c, err := New(cfg, Options{}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".ralph", "control"), c.controlRoot)
}
