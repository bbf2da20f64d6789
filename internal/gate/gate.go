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

// Package gate implements the daemon gate (C4): a pure function of daemon
// mode, throttle state, and shutdown signal that decides whether the
// scheduler may dequeue new work, resume a throttled task, or send a
// request to the model.
package gate

import "github.com/tombee/ralph/internal/throttle"

// Mode is the daemon's own lifecycle mode, independent of throttling.
type Mode string

const (
	ModeRunning  Mode = "running"
	ModeDraining Mode = "draining"
	ModePaused   Mode = "paused"
)

// Decision reports what the scheduler may do right now, and why.
type Decision struct {
	AllowDequeue   bool
	AllowResume    bool
	AllowModelSend bool
	Reason         string
}

// Evaluate computes the daemon gate decision. Rules are evaluated in order:
// a shutdown in progress or an explicit pause blocks everything; a hard
// throttle blocks everything; draining or soft-throttled states still allow
// resume and model-send but not new dequeues; otherwise everything is
// allowed.
func Evaluate(mode Mode, throttleState throttle.State, isShuttingDown bool) Decision {
	switch {
	case isShuttingDown:
		return Decision{Reason: "shutting-down"}
	case mode == ModePaused:
		return Decision{Reason: "paused"}
	case throttleState == throttle.StateHard:
		return Decision{Reason: "hard-throttle"}
	case mode == ModeDraining:
		return Decision{AllowResume: true, AllowModelSend: true, Reason: "draining"}
	case throttleState == throttle.StateSoft:
		return Decision{AllowResume: true, AllowModelSend: true, Reason: "soft-throttle"}
	default:
		return Decision{AllowDequeue: true, AllowResume: true, AllowModelSend: true, Reason: "running"}
	}
}
