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

package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"transient", &TransientError{Op: "listIssues", Cause: errors.New("boom")}, KindTransient},
		{"rate-limited", &RateLimitedError{Op: "addLabel", RetryAfter: time.Now()}, KindRateLimited},
		{"not-found", &NotFoundError{Resource: "issue", ID: "42"}, KindNotFound},
		{"forbidden", &ForbiddenError{Repo: "acme/widgets"}, KindForbidden},
		{"schema-incompatible", &SchemaIncompatibleError{Verdict: "unreadable_forward_incompatible"}, KindSchemaIncompatible},
		{"race-skip", &RaceSkipError{TaskPath: "github:acme/widgets#7"}, KindRaceSkip},
		{"agent-failure", &AgentFailureError{Reason: "config-invalid"}, KindAgentFailure},
		{"unrecognized", errors.New("plain"), KindFatal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Kind(tc.err))
		})
	}
}

func TestKindWalksWrapChain(t *testing.T) {
	base := &TransientError{Op: "listIssues", Cause: errors.New("boom")}
	wrapped := fmt.Errorf("while syncing: %w", base)
	assert.Equal(t, KindTransient, Kind(wrapped))
}

func TestKindNil(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
}
