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
	"log/slog"
	"os"
	"strings"
	"time"

	ralphlog "github.com/tombee/ralph/internal/log"
	"github.com/tombee/ralph/internal/store"
	"github.com/tombee/ralph/pkg/secrets"
)

// TrackingAdapter wraps an Adapter, recording one ralph_runs row per
// session call for C3's token-usage accounting and logging each call with
// the teacher's request/response RPC fields, relabeled for this
// component. Logged fields are passed through a secrets.Masker first,
// since the wrapped agent's error strings and output can echo back
// whatever token-shaped environment variables (GITHUB_TOKEN,
// RALPH_GITHUB_TOKEN, agent API keys) the coding-agent subprocess had
// available.
type TrackingAdapter struct {
	next   Adapter
	st     *store.Store
	logger *slog.Logger
	masker *secrets.Masker
}

// NewTrackingAdapter wraps next with session-use recording.
func NewTrackingAdapter(next Adapter, st *store.Store, logger *slog.Logger) *TrackingAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	masker := secrets.NewMasker()
	masker.AddSecretsFromEnv(environMap())
	return &TrackingAdapter{next: next, st: st, logger: logger.With(slog.String("component", "agent")), masker: masker}
}

// environMap converts the process environment into the map form
// secrets.Masker.AddSecretsFromEnv expects.
func environMap() map[string]string {
	env := os.Environ()
	out := make(map[string]string, len(env))
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}

// RunSession starts a fresh session and records its usage.
func (a *TrackingAdapter) RunSession(ctx context.Context, repoPath, agentName, prompt string, opts Options) (Result, error) {
	taskPath := opts.WorktreePath
	return a.call(ctx, "agent_run", taskPath, opts.Profile, func() (Result, error) {
		return a.next.RunSession(ctx, repoPath, agentName, prompt, opts)
	})
}

// ContinueSession resumes an existing session and records its usage.
func (a *TrackingAdapter) ContinueSession(ctx context.Context, repoPath, sessionID, prompt string, opts Options) (Result, error) {
	taskPath := opts.WorktreePath
	return a.call(ctx, "agent_continue", taskPath, opts.Profile, func() (Result, error) {
		return a.next.ContinueSession(ctx, repoPath, sessionID, prompt, opts)
	})
}

func (a *TrackingAdapter) call(ctx context.Context, messageType, taskPath, profile string, fn func() (Result, error)) (Result, error) {
	req := &ralphlog.RPCRequest{MessageType: messageType, Metadata: map[string]interface{}{"task_path": taskPath, "profile": profile}}
	ralphlog.LogRPCRequest(a.logger, req)

	start := time.Now()
	result, err := fn()
	duration := time.Since(start)

	resp := &ralphlog.RPCResponse{
		Success:    err == nil && result.Success,
		DurationMs: duration.Milliseconds(),
		Metadata: a.masker.MaskMap(map[string]interface{}{
			"session_id":  result.SessionID,
			"tokens_used": result.TokensUsed,
			"output":      result.Output,
		}),
	}
	if err != nil {
		resp.Error = a.masker.Mask(err.Error())
	}
	ralphlog.LogRPCResponse(a.logger, req, resp)

	if err != nil {
		return Result{}, err
	}

	if result.SessionID != "" && a.st != nil {
		if recErr := a.st.RecordRun(ctx, store.Run{
			SessionID:  result.SessionID,
			TaskPath:   taskPath,
			Profile:    profile,
			StartedAt:  start,
			TokensUsed: result.TokensUsed,
		}); recErr != nil {
			a.logger.Warn("agent: record run failed", "session_id", result.SessionID, "error", recErr)
		} else if result.TokensUsed > 0 {
			if setErr := a.st.SetRunTokensUsed(ctx, result.SessionID, result.TokensUsed); setErr != nil {
				a.logger.Warn("agent: set tokens used failed", "session_id", result.SessionID, "error", setErr)
			}
		}
	}

	return result, nil
}
