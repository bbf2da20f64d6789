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

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRun_IsIdempotentOnSessionID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	run := Run{SessionID: "sess-1", TaskPath: "github:acme/widgets#42", Profile: "default", StartedAt: now, TokensUsed: 0}
	require.NoError(t, s.RecordRun(ctx, run))
	require.NoError(t, s.RecordRun(ctx, run))

	runs, err := s.ListRunsSince(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "sess-1", runs[0].SessionID)
}

func TestSetRunTokensUsed_UpdatesExistingRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.RecordRun(ctx, Run{SessionID: "sess-2", TaskPath: "github:acme/widgets#7", Profile: "default", StartedAt: now}))
	require.NoError(t, s.SetRunTokensUsed(ctx, "sess-2", 1500))

	runs, err := s.ListRunsSince(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, int64(1500), runs[0].TokensUsed)
}

func TestSetRunTokensUsed_UnknownSessionErrors(t *testing.T) {
	s := openTestStore(t)
	err := s.SetRunTokensUsed(context.Background(), "missing", 10)
	assert.Error(t, err)
}

func TestListRunsSince_ExcludesOlderRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.RecordRun(ctx, Run{SessionID: "old", TaskPath: "github:acme/widgets#1", Profile: "default", StartedAt: now.Add(-time.Hour)}))
	require.NoError(t, s.RecordRun(ctx, Run{SessionID: "new", TaskPath: "github:acme/widgets#2", Profile: "default", StartedAt: now}))

	runs, err := s.ListRunsSince(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "new", runs[0].SessionID)
}
