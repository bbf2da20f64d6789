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
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// ErrLockHeld is returned when the singleton lock is held by a live process.
var ErrLockHeld = errors.New("daemonctl: lock held by a running daemon")

// lockRecord is the JSON body of the singleton lock file.
type lockRecord struct {
	DaemonID   string    `json:"daemonId"`
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"startedAt"`
	AcquiredAt time.Time `json:"acquiredAt"`
	Token      string    `json:"token"`
}

// Lock is an acquired singleton lock. Only one process-wide durable-state
// writer may hold it at a time, per spec.md §1's single-writer invariant.
type Lock struct {
	path   string
	record lockRecord
}

// acquireLock acquires the singleton lock at path for daemonID, started at
// startedAt. If the lock file exists and names a PID that is no longer
// running, it is treated as stale and reclaimed once. If the named PID is
// still running, ErrLockHeld is returned.
func acquireLock(path, daemonID string, startedAt time.Time) (*Lock, error) {
	rec := lockRecord{
		DaemonID:   daemonID,
		PID:        os.Getpid(),
		StartedAt:  startedAt,
		AcquiredAt: time.Now(),
		Token:      uuid.New().String(),
	}

	for attempt := 0; attempt < 2; attempt++ {
		if err := tryCreateLock(path, rec); err == nil {
			return &Lock{path: path, record: rec}, nil
		} else if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("daemonctl: create lock %s: %w", path, err)
		}

		existing, err := readLock(path)
		if err != nil {
			return nil, err
		}
		if isProcessRunning(existing.PID) {
			return nil, fmt.Errorf("%w (pid %d, acquired %s)", ErrLockHeld, existing.PID, existing.AcquiredAt.Format(time.RFC3339))
		}

		// Stale lock: the owning process is gone. Reclaim by removing it
		// and retrying the exclusive create once.
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("daemonctl: remove stale lock %s: %w", path, err)
		}
	}

	return nil, fmt.Errorf("daemonctl: could not acquire lock %s after reclaiming stale holder", path)
}

func tryCreateLock(path string, rec lockRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	return err
}

func readLock(path string) (lockRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return lockRecord{}, fmt.Errorf("daemonctl: read lock %s: %w", path, err)
	}
	var rec lockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return lockRecord{}, fmt.Errorf("daemonctl: parse lock %s: %w", path, err)
	}
	return rec, nil
}

// Release removes the lock file. Safe to call once; a second call is a
// no-op since the file is already gone.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("daemonctl: release lock %s: %w", l.path, err)
	}
	return nil
}

// IsProcessRunning reports whether pid names a live process, using signal 0
// to probe for existence without actually delivering a signal. Exported for
// cmd/ralph status to check daemon liveness from a recorded PID.
func IsProcessRunning(pid int) bool {
	return isProcessRunning(pid)
}

// isProcessRunning reports whether pid names a live process, using signal 0
// to probe for existence without actually delivering a signal.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
