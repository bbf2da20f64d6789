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

// Package agent wraps the external coding-agent process: a fresh session
// started against an isolated repo work-copy (runAgent), or an existing
// session resumed with a follow-up prompt (continueSession). The agent
// process itself is an external collaborator; this package only defines
// the narrow contract the core calls through and the token-accounting
// wrapper every call passes through.
package agent

import (
	"context"
	"time"
)

// Options configures one session call.
type Options struct {
	Profile      string
	WorktreePath string
	Timeout      time.Duration
	Env          []string
}

// Result is what a session call reports back to the core.
type Result struct {
	SessionID  string
	Success    bool
	Output     string
	TokensUsed int64

	// PRURL is the pull request produced by the session, if any. Empty on
	// a failed or not-yet-complete session.
	PRURL string
}

// Adapter is the external coding-agent contract. RunSession starts a fresh
// session for repoPath against the given agent binary/identifier and
// prompt; ContinueSession resumes an existing session with a follow-up
// prompt (used to resume a task whose op-state already records a session).
type Adapter interface {
	RunSession(ctx context.Context, repoPath, agentName, prompt string, opts Options) (Result, error)
	ContinueSession(ctx context.Context, repoPath, sessionID, prompt string, opts Options) (Result, error)
}
