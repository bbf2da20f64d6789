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

package daemonrun

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tombee/ralph/internal/agent"
	"github.com/tombee/ralph/internal/config"
	"github.com/tombee/ralph/internal/scheduler"
	"github.com/tombee/ralph/internal/store"
)

// AgentRunner drives one external coding-agent session per claimed task,
// resuming a prior session when the task's op-state already carries a
// sessionId, and translating the raw agent.Result into the scheduler's
// outcome classification. Git worktree provisioning itself is out of
// scope here: AgentRunner only computes the conventional work-copy path
// and passes it through to the agent subprocess.
type AgentRunner struct {
	store        *store.Store
	adapter      agent.Adapter
	workDir      string
	profiles     map[string]config.ProfileConfig
	defaultAgent string
}

// NewAgentRunner constructs an AgentRunner. The agent name passed to the
// adapter for a fresh session is looked up from profiles by the profile
// name the scheduler resolved for that session; defaultAgent is used when
// the resolved name has no matching profile entry.
func NewAgentRunner(st *store.Store, adapter agent.Adapter, workDir string, profiles map[string]config.ProfileConfig, defaultAgent string) *AgentRunner {
	return &AgentRunner{store: st, adapter: adapter, workDir: workDir, profiles: profiles, defaultAgent: defaultAgent}
}

func (r *AgentRunner) agentForProfile(profile string) string {
	if pc, ok := r.profiles[profile]; ok && pc.Agent != "" {
		return pc.Agent
	}
	return r.defaultAgent
}

// RunSession implements scheduler.AgentRunner.
func (r *AgentRunner) RunSession(ctx context.Context, repo string, number int, profile string) (scheduler.SessionResult, error) {
	taskPath := store.TaskPath(repo, number)
	existing, _, err := r.store.GetTaskOpState(ctx, taskPath)
	if err != nil {
		return scheduler.SessionResult{}, fmt.Errorf("daemonrun: get task op-state %s: %w", taskPath, err)
	}

	worktreePath := existing.WorktreePath
	if worktreePath == "" {
		worktreePath = r.worktreePathFor(repo, number)
	}
	opts := agent.Options{Profile: profile, WorktreePath: worktreePath}

	var result agent.Result
	if existing.SessionID != "" {
		result, err = r.adapter.ContinueSession(ctx, worktreePath, existing.SessionID, resumePrompt(repo, number), opts)
	} else {
		result, err = r.adapter.RunSession(ctx, worktreePath, r.agentForProfile(profile), startPrompt(repo, number), opts)
	}
	if err != nil {
		return scheduler.SessionResult{}, err
	}

	if recErr := r.store.RecordTaskSnapshot(ctx, store.TaskOpState{
		TaskPath:     taskPath,
		Repo:         repo,
		Number:       number,
		SessionID:    result.SessionID,
		WorktreePath: worktreePath,
	}); recErr != nil {
		return scheduler.SessionResult{}, fmt.Errorf("daemonrun: record session metadata %s: %w", taskPath, recErr)
	}

	return classifyResult(result), nil
}

func classifyResult(result agent.Result) scheduler.SessionResult {
	if !result.Success {
		return scheduler.SessionResult{Outcome: scheduler.OutcomeBlocked, Reason: blockedReason(result)}
	}
	if result.PRURL == "" {
		return scheduler.SessionResult{Outcome: scheduler.OutcomeBlocked, Reason: "session reported success with no pull request"}
	}
	return scheduler.SessionResult{Outcome: scheduler.OutcomeDone, PRURL: result.PRURL}
}

func blockedReason(result agent.Result) string {
	if out := strings.TrimSpace(result.Output); out != "" {
		return out
	}
	return "session reported failure"
}

func startPrompt(repo string, number int) string {
	return fmt.Sprintf("Work the queued issue %s#%d to completion and open a pull request.", repo, number)
}

func resumePrompt(repo string, number int) string {
	return fmt.Sprintf("Continue the in-progress session for %s#%d.", repo, number)
}

func (r *AgentRunner) worktreePathFor(repo string, number int) string {
	slug := strings.ReplaceAll(repo, "/", "__")
	return filepath.Join(r.workDir, slug, strconv.Itoa(number))
}
