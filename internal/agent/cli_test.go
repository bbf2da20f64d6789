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

package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCLIResult(t *testing.T) {
	t.Run("valid trailing json line", func(t *testing.T) {
		out := "some log noise\n{\"sessionId\":\"s1\",\"success\":true,\"output\":\"done\",\"tokensUsed\":42}\n"
		r, err := parseCLIResult(out)
		require.NoError(t, err)
		assert.Equal(t, "s1", r.SessionID)
		assert.True(t, r.Success)
		assert.Equal(t, int64(42), r.TokensUsed)
	})

	t.Run("empty output errors", func(t *testing.T) {
		_, err := parseCLIResult("")
		assert.Error(t, err)
	})

	t.Run("malformed json errors", func(t *testing.T) {
		_, err := parseCLIResult("not json")
		assert.Error(t, err)
	})
}

func fakeAgentScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-agent.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0700))
	return path
}

func TestCLIAdapter_RunSession_ParsesResult(t *testing.T) {
	script := fakeAgentScript(t, `echo '{"sessionId":"sess-abc","success":true,"output":"ok","tokensUsed":10}'`)

	a := NewCLIAdapter(CLIConfig{Binary: script, DefaultTimeout: 5 * time.Second})
	result, err := a.RunSession(context.Background(), t.TempDir(), "opencode", "fix the bug", Options{Profile: "default"})
	require.NoError(t, err)
	assert.Equal(t, "sess-abc", result.SessionID)
	assert.True(t, result.Success)
	assert.Equal(t, int64(10), result.TokensUsed)
}

func TestCLIAdapter_RunSession_NonZeroExitReturnsError(t *testing.T) {
	script := fakeAgentScript(t, `echo "boom" 1>&2; exit 1`)

	a := NewCLIAdapter(CLIConfig{Binary: script, DefaultTimeout: 5 * time.Second})
	_, err := a.RunSession(context.Background(), t.TempDir(), "opencode", "fix the bug", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestCLIAdapter_RunSession_RespectsTimeout(t *testing.T) {
	script := fakeAgentScript(t, `sleep 5`)

	a := NewCLIAdapter(CLIConfig{Binary: script})
	_, err := a.RunSession(context.Background(), t.TempDir(), "opencode", "fix the bug", Options{Timeout: 50 * time.Millisecond})
	require.Error(t, err)
}
