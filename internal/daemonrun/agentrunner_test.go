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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/ralph/internal/agent"
	"github.com/tombee/ralph/internal/config"
	"github.com/tombee/ralph/internal/scheduler"
	"github.com/tombee/ralph/internal/store"
)

type fakeAdapter struct {
	runResult      agent.Result
	runErr         error
	continueResult agent.Result
	continueErr    error

	lastWorktreePath string
	lastAgentName    string
	continued        bool
}

func (f *fakeAdapter) RunSession(ctx context.Context, repoPath, agentName, prompt string, opts agent.Options) (agent.Result, error) {
	f.lastWorktreePath = opts.WorktreePath
	f.lastAgentName = agentName
	return f.runResult, f.runErr
}

func (f *fakeAdapter) ContinueSession(ctx context.Context, repoPath, sessionID, prompt string, opts agent.Options) (agent.Result, error) {
	f.continued = true
	f.lastWorktreePath = opts.WorktreePath
	return f.continueResult, f.continueErr
}

func TestAgentRunner_NewTaskRunsFreshSessionAndRecordsPR(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	require.NoError(t, st.RecordTaskSnapshot(ctx, store.TaskOpState{Repo: "acme/widgets", Number: 1, Status: store.StatusInProgress}))

	fake := &fakeAdapter{runResult: agent.Result{SessionID: "sess-1", Success: true, PRURL: "https://example.com/pr/1"}}
	runner := NewAgentRunner(st, fake, t.TempDir(), nil, "claude-code")

	result, err := runner.RunSession(ctx, "acme/widgets", 1, "fast")
	require.NoError(t, err)
	assert.Equal(t, scheduler.OutcomeDone, result.Outcome)
	assert.Equal(t, "https://example.com/pr/1", result.PRURL)
	assert.False(t, fake.continued)
	assert.NotEmpty(t, fake.lastWorktreePath)

	saved, ok, err := st.GetTaskOpState(ctx, store.TaskPath("acme/widgets", 1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sess-1", saved.SessionID)
	assert.Equal(t, fake.lastWorktreePath, saved.WorktreePath)
}

func TestAgentRunner_ExistingSessionResumesRatherThanStartsFresh(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	require.NoError(t, st.RecordTaskSnapshot(ctx, store.TaskOpState{
		Repo: "acme/widgets", Number: 2, Status: store.StatusInProgress,
		SessionID: "sess-existing", WorktreePath: "/tmp/existing",
	}))

	fake := &fakeAdapter{continueResult: agent.Result{SessionID: "sess-existing", Success: true, PRURL: "https://example.com/pr/2"}}
	runner := NewAgentRunner(st, fake, t.TempDir(), nil, "claude-code")

	result, err := runner.RunSession(ctx, "acme/widgets", 2, "fast")
	require.NoError(t, err)
	assert.Equal(t, scheduler.OutcomeDone, result.Outcome)
	assert.True(t, fake.continued)
	assert.Equal(t, "/tmp/existing", fake.lastWorktreePath)
}

func TestAgentRunner_SuccessWithoutPRIsBlocked(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	require.NoError(t, st.RecordTaskSnapshot(ctx, store.TaskOpState{Repo: "acme/widgets", Number: 3, Status: store.StatusInProgress}))

	fake := &fakeAdapter{runResult: agent.Result{SessionID: "sess-3", Success: true}}
	runner := NewAgentRunner(st, fake, t.TempDir(), nil, "claude-code")

	result, err := runner.RunSession(ctx, "acme/widgets", 3, "fast")
	require.NoError(t, err)
	assert.Equal(t, scheduler.OutcomeBlocked, result.Outcome)
	assert.NotEmpty(t, result.Reason)
}

func TestAgentRunner_FailureIsBlockedWithOutputAsReason(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	require.NoError(t, st.RecordTaskSnapshot(ctx, store.TaskOpState{Repo: "acme/widgets", Number: 4, Status: store.StatusInProgress}))

	fake := &fakeAdapter{runResult: agent.Result{SessionID: "sess-4", Success: false, Output: "merge conflict"}}
	runner := NewAgentRunner(st, fake, t.TempDir(), nil, "claude-code")

	result, err := runner.RunSession(ctx, "acme/widgets", 4, "fast")
	require.NoError(t, err)
	assert.Equal(t, scheduler.OutcomeBlocked, result.Outcome)
	assert.Equal(t, "merge conflict", result.Reason)
}

func TestAgentRunner_AdapterErrorPropagates(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	require.NoError(t, st.RecordTaskSnapshot(ctx, store.TaskOpState{Repo: "acme/widgets", Number: 5, Status: store.StatusInProgress}))

	fake := &fakeAdapter{runErr: assertErr("boom")}
	runner := NewAgentRunner(st, fake, t.TempDir(), nil, "claude-code")

	_, err := runner.RunSession(ctx, "acme/widgets", 5, "fast")
	assert.Error(t, err)
}

func TestAgentRunner_UsesProfileAgentOverDefault(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	require.NoError(t, st.RecordTaskSnapshot(ctx, store.TaskOpState{Repo: "acme/widgets", Number: 6, Status: store.StatusInProgress}))

	fake := &fakeAdapter{runResult: agent.Result{SessionID: "sess-6", Success: true, PRURL: "https://example.com/pr/6"}}
	profiles := map[string]config.ProfileConfig{"fast": {Agent: "claude-code"}}
	runner := NewAgentRunner(st, fake, t.TempDir(), profiles, "opencode")

	_, err := runner.RunSession(ctx, "acme/widgets", 6, "fast")
	require.NoError(t, err)
	assert.Equal(t, "claude-code", fake.lastAgentName)
}

func TestAgentRunner_FallsBackToDefaultAgentForUnknownProfile(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	require.NoError(t, st.RecordTaskSnapshot(ctx, store.TaskOpState{Repo: "acme/widgets", Number: 7, Status: store.StatusInProgress}))

	fake := &fakeAdapter{runResult: agent.Result{SessionID: "sess-7", Success: true, PRURL: "https://example.com/pr/7"}}
	runner := NewAgentRunner(st, fake, t.TempDir(), nil, "opencode")

	_, err := runner.RunSession(ctx, "acme/widgets", 7, "unknown-profile")
	require.NoError(t, err)
	assert.Equal(t, "opencode", fake.lastAgentName)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
