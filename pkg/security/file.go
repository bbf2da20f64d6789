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

// Package security provides filesystem permission helpers shared by the
// daemon and CLI for startup validation and atomic config/state writes.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// sensitivePatterns defines filename patterns that require restrictive permissions (0600/0700).
// These patterns are matched case-insensitively against the basename of the file path.
var sensitivePatterns = []string{
	"config", "settings", "conf", ".cfg", ".ini",
	"secret", "credential", "password", "auth",
	"key", ".pem", ".p12", ".jks", "private",
	".env",
	"token", "bearer", "api_key",
	"state", "lock", "registry",
}

// DeterminePermissions returns appropriate file and directory permissions based on the file path.
// Sensitive files (matching patterns) get 0600/0700, general files get 0640/0750.
func DeterminePermissions(path string) (fileMode, dirMode os.FileMode) {
	base := strings.ToLower(filepath.Base(path))

	for _, pattern := range sensitivePatterns {
		if strings.Contains(base, pattern) {
			return 0600, 0700
		}
	}

	return 0640, 0750
}

// CheckConfigPermissions checks if a config file or directory has overly permissive permissions.
// Returns a list of warning messages for paths that are world-readable or world-writable,
// and for group-writable directories and group-writable files with a sensitive name.
// Intended for startup validation to warn about insecure permissions on existing files.
func CheckConfigPermissions(path string) []string {
	var warnings []string

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return warnings
		}
		warnings = append(warnings, fmt.Sprintf("unable to check permissions for %s: %v", path, err))
		return warnings
	}

	mode := info.Mode()
	perm := mode.Perm()

	if mode.IsDir() {
		if perm&0004 != 0 {
			warnings = append(warnings, fmt.Sprintf("directory %s is world-readable (permissions: %o), recommend chmod 0700 or 0750", path, perm))
		}
		if perm&0002 != 0 {
			warnings = append(warnings, fmt.Sprintf("directory %s is world-writable (permissions: %o), recommend chmod 0700 or 0750", path, perm))
		}
		if perm&0020 != 0 {
			warnings = append(warnings, fmt.Sprintf("directory %s is group-writable (permissions: %o), recommend chmod 0700", path, perm))
		}
		return warnings
	}

	if perm&0004 != 0 {
		warnings = append(warnings, fmt.Sprintf("file %s is world-readable (permissions: %o), recommend chmod 0600 or 0640", path, perm))
	}
	if perm&0002 != 0 {
		warnings = append(warnings, fmt.Sprintf("file %s is world-writable (permissions: %o), recommend chmod 0600 or 0640", path, perm))
	}
	if perm&0020 != 0 {
		base := strings.ToLower(filepath.Base(path))
		isSensitive := false
		for _, pattern := range sensitivePatterns {
			if strings.Contains(base, pattern) {
				isSensitive = true
				break
			}
		}
		if isSensitive {
			warnings = append(warnings, fmt.Sprintf("sensitive file %s is group-writable (permissions: %o), recommend chmod 0600", path, perm))
		}
	}

	return warnings
}

// WriteFileAtomic writes content to path using a write-to-temp-then-rename sequence,
// so readers never observe a partially written file.
func WriteFileAtomic(path string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	fileMode, dirMode := DeterminePermissions(path)
	if perm != 0 {
		fileMode = perm
	}
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file into place: %w", err)
	}
	return nil
}
