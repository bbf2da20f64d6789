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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// CLIConfig configures a CLIAdapter.
type CLIConfig struct {
	// Binary is the external coding-agent executable, e.g. "opencode".
	Binary string
	// DefaultTimeout bounds a session call when Options.Timeout is unset.
	DefaultTimeout time.Duration
}

// CLIAdapter runs the external coding-agent as a subprocess against an
// isolated repo work-copy, one call per session turn. The subprocess is
// expected to print a single JSON object on its final stdout line:
// {"sessionId": "...", "success": true, "output": "...", "tokensUsed": 0}.
type CLIAdapter struct {
	cfg CLIConfig
}

// NewCLIAdapter constructs a CLIAdapter.
func NewCLIAdapter(cfg CLIConfig) *CLIAdapter {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Minute
	}
	return &CLIAdapter{cfg: cfg}
}

type cliResult struct {
	SessionID  string `json:"sessionId"`
	Success    bool   `json:"success"`
	Output     string `json:"output"`
	TokensUsed int64  `json:"tokensUsed"`
	PRURL      string `json:"prUrl"`
}

// RunSession starts a fresh session: `<binary> run --agent <agentName> --prompt <prompt>`.
func (a *CLIAdapter) RunSession(ctx context.Context, repoPath, agentName, prompt string, opts Options) (Result, error) {
	args := []string{"run", "--agent", agentName, "--prompt", prompt}
	return a.exec(ctx, repoPath, args, opts)
}

// ContinueSession resumes an existing session: `<binary> continue --session <id> --prompt <prompt>`.
func (a *CLIAdapter) ContinueSession(ctx context.Context, repoPath, sessionID, prompt string, opts Options) (Result, error) {
	args := []string{"continue", "--session", sessionID, "--prompt", prompt}
	return a.exec(ctx, repoPath, args, opts)
}

func (a *CLIAdapter) exec(ctx context.Context, repoPath string, args []string, opts Options) (Result, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = a.cfg.DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if opts.Profile != "" {
		args = append(args, "--profile", opts.Profile)
	}

	cmd := exec.CommandContext(runCtx, a.cfg.Binary, args...)
	if opts.WorktreePath != "" {
		cmd.Dir = opts.WorktreePath
	} else {
		cmd.Dir = repoPath
	}
	cmd.Env = os.Environ()
	cmd.Env = append(cmd.Env, opts.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return Result{}, fmt.Errorf("agent: %s %s: %s", a.cfg.Binary, strings.Join(args, " "), msg)
	}

	return parseCLIResult(stdout.String())
}

func parseCLIResult(stdout string) (Result, error) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) == 0 || lines[len(lines)-1] == "" {
		return Result{}, fmt.Errorf("agent: empty output, expected a trailing JSON result line")
	}

	var r cliResult
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &r); err != nil {
		return Result{}, fmt.Errorf("agent: parse result line: %w", err)
	}

	return Result{
		SessionID:  r.SessionID,
		Success:    r.Success,
		Output:     r.Output,
		TokensUsed: r.TokensUsed,
		PRURL:      r.PRURL,
	}, nil
}
