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
	"time"
)

// Error kinds returned at the core's boundaries (queue, reconciler, command
// processor, scheduler). Callers classify an error with Kind, never with a
// type switch, so new wrapping layers stay transparent.
const (
	KindTransient          = "transient"
	KindRateLimited        = "rate-limited"
	KindNotFound           = "not-found"
	KindForbidden          = "forbidden"
	KindSchemaIncompatible = "schema-incompatible"
	KindRaceSkip           = "race-skip"
	KindAgentFailure       = "agent-failure"
	KindFatal              = "fatal"
)

// TransientError signals a retryable failure, typically a network blip or a
// 5xx from the issue host. Callers back off and retry.
type TransientError struct {
	Op    string
	Cause error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error during %s: %v", e.Op, e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// RateLimitedError is a specialized TransientError carrying the timestamp
// after which the caller may retry.
type RateLimitedError struct {
	Op         string
	RetryAfter time.Time
	Cause      error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited during %s, retry after %s: %v", e.Op, e.RetryAfter.Format(time.RFC3339), e.Cause)
}

func (e *RateLimitedError) Unwrap() error { return e.Cause }

// ForbiddenError signals an authentication or authorization failure against
// the issue host for a given repository. Treated as fatal for that repo
// until an operator intervenes.
type ForbiddenError struct {
	Repo  string
	Cause error
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden for repo %s: %v", e.Repo, e.Cause)
}

func (e *ForbiddenError) Unwrap() error { return e.Cause }

// SchemaIncompatibleError is returned when the durable state store's schema
// window verdict prevents a read or write.
type SchemaIncompatibleError struct {
	Verdict string
}

func (e *SchemaIncompatibleError) Error() string {
	return fmt.Sprintf("durable state store schema incompatible: %s", e.Verdict)
}

// RaceSkipError reports a lost compare-and-swap against task op-state.
// Never fatal; callers count and log it at a rate limit.
type RaceSkipError struct {
	TaskPath string
}

func (e *RaceSkipError) Error() string {
	return fmt.Sprintf("race-skip: op-state for %s changed concurrently", e.TaskPath)
}

// AgentFailureError classifies a coding-agent session failure per spec.md
// §7's taxonomy: config-invalid, permission-denied, profile-unresolvable.
type AgentFailureError struct {
	Reason  string
	Details string
}

func (e *AgentFailureError) Error() string {
	return fmt.Sprintf("agent failure (%s): %s", e.Reason, e.Details)
}

// Kind classifies err into one of the Kind* constants by walking its
// wrap chain. Unrecognized errors classify as KindFatal.
func Kind(err error) string {
	if err == nil {
		return ""
	}

	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return KindRateLimited
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return KindTransient
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return KindNotFound
	}
	var forbidden *ForbiddenError
	if errors.As(err, &forbidden) {
		return KindForbidden
	}
	var schema *SchemaIncompatibleError
	if errors.As(err, &schema) {
		return KindSchemaIncompatible
	}
	var race *RaceSkipError
	if errors.As(err, &race) {
		return KindRaceSkip
	}
	var agent *AgentFailureError
	if errors.As(err, &agent) {
		return KindAgentFailure
	}
	return KindFatal
}
