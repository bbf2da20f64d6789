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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/ralph/internal/store"
)

type fakeAdapter struct {
	result Result
	err    error
}

func (f *fakeAdapter) RunSession(ctx context.Context, repoPath, agentName, prompt string, opts Options) (Result, error) {
	return f.result, f.err
}

func (f *fakeAdapter) ContinueSession(ctx context.Context, repoPath, sessionID, prompt string, opts Options) (Result, error) {
	return f.result, f.err
}

func openTrackingTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{Path: filepath.Join(t.TempDir(), "state.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTrackingAdapter_RunSession_RecordsRun(t *testing.T) {
	st := openTrackingTestStore(t)
	fake := &fakeAdapter{result: Result{SessionID: "sess-1", Success: true, Output: "ok", TokensUsed: 500}}
	a := NewTrackingAdapter(fake, st, nil)

	result, err := a.RunSession(context.Background(), "/repo", "opencode", "do it", Options{Profile: "default", WorktreePath: "github:acme/widgets#1"})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", result.SessionID)

	runs, err := st.ListRunsSince(context.Background(), time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "sess-1", runs[0].SessionID)
	assert.Equal(t, int64(500), runs[0].TokensUsed)
	assert.Equal(t, "github:acme/widgets#1", runs[0].TaskPath)
}

func TestTrackingAdapter_ContinueSession_PropagatesError(t *testing.T) {
	st := openTrackingTestStore(t)
	fake := &fakeAdapter{err: assert.AnError}
	a := NewTrackingAdapter(fake, st, nil)

	_, err := a.ContinueSession(context.Background(), "/repo", "sess-2", "keep going", Options{})
	assert.Error(t, err)

	runs, err := st.ListRunsSince(context.Background(), time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestTrackingAdapter_DoesNotRecordWithoutSessionID(t *testing.T) {
	st := openTrackingTestStore(t)
	fake := &fakeAdapter{result: Result{Success: false}}
	a := NewTrackingAdapter(fake, st, nil)

	_, err := a.RunSession(context.Background(), "/repo", "opencode", "do it", Options{})
	require.NoError(t, err)

	runs, err := st.ListRunsSince(context.Background(), time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, runs)
}
