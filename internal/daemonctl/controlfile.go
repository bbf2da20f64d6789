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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/tombee/ralph/pkg/security"
)

// ControlFile is the operator-editable request surface. The CLI writes it
// atomically; the daemon watches it and reacts through C4's gate.
type ControlFile struct {
	Mode              string  `json:"mode"`
	DrainTimeoutMs    *int64  `json:"drainTimeoutMs,omitempty"`
	PauseRequested    *bool   `json:"pauseRequested,omitempty"`
	PauseAtCheckpoint *bool   `json:"pauseAtCheckpoint,omitempty"`
	OpencodeProfile   *string `json:"opencodeProfile,omitempty"`
}

// ReadControlFile loads the control file at path. A missing file returns a
// zero-value ControlFile (mode "running") and no error, since the control
// file is optional until an operator first issues a command.
func ReadControlFile(path string) (ControlFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ControlFile{Mode: modeRunningLiteral}, nil
		}
		return ControlFile{}, fmt.Errorf("daemonctl: read control file %s: %w", path, err)
	}
	var cf ControlFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return ControlFile{}, fmt.Errorf("daemonctl: parse control file %s: %w", path, err)
	}
	return cf, nil
}

// WriteControlFile atomically writes cf to path, for use by the CLI's
// drain/pause/resume/restart commands.
func WriteControlFile(path string, cf ControlFile) error {
	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return fmt.Errorf("daemonctl: marshal control file: %w", err)
	}
	return security.WriteFileAtomic(path, data, 0600)
}

const modeRunningLiteral = "running"

// controlWatcher watches a control file's parent directory for writes and
// invokes onChange with the freshly parsed contents, replacing the teacher's
// HTTP polling control surface with an inotify-driven one.
type controlWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func newControlWatcher(path string, logger *slog.Logger, onChange func(ControlFile)) (*controlWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("daemonctl: create control file watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		w.Close()
		return nil, fmt.Errorf("daemonctl: create control dir %s: %w", dir, err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("daemonctl: watch control dir %s: %w", dir, err)
	}

	cw := &controlWatcher{path: path, watcher: w, logger: logger, stopCh: make(chan struct{}), doneCh: make(chan struct{})}
	go cw.run(onChange)
	return cw, nil
}

func (cw *controlWatcher) run(onChange func(ControlFile)) {
	defer close(cw.doneCh)
	defer cw.watcher.Close()

	for {
		select {
		case <-cw.stopCh:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(cw.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cf, err := ReadControlFile(cw.path)
			if err != nil {
				cw.logger.Warn("daemonctl: control file reload failed", "error", err)
				continue
			}
			onChange(cf)
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warn("daemonctl: control file watcher error", "error", err)
		}
	}
}

func (cw *controlWatcher) Stop() {
	close(cw.stopCh)
	<-cw.doneCh
}
