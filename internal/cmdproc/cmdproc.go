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

// Package cmdproc implements the command-label processor (C7): it scans
// issues carrying an operator-applied ralph:cmd:* label, dispatches them
// with idempotency and a causality guard against stale commands, and
// leaves exactly one tracking comment behind per command instance.
package cmdproc

import "fmt"

// CmdLabel is one of the operator command labels ralph recognizes.
type CmdLabel string

const (
	CmdQueue   CmdLabel = "queue"
	CmdPause   CmdLabel = "pause"
	CmdStop    CmdLabel = "stop"
	CmdSatisfy CmdLabel = "satisfy"
)

// Label returns the full ralph:cmd:<name> label string.
func (c CmdLabel) Label() string {
	return "ralph:cmd:" + string(c)
}

// ParseCmdLabel recognizes a ralph:cmd:* label string, if any.
func ParseCmdLabel(label string) (CmdLabel, bool) {
	const prefix = "ralph:cmd:"
	if len(label) <= len(prefix) || label[:len(prefix)] != prefix {
		return "", false
	}
	c := CmdLabel(label[len(prefix):])
	switch c {
	case CmdQueue, CmdPause, CmdStop, CmdSatisfy:
		return c, true
	default:
		return "", false
	}
}

// IdempotencyKey forms the per-command-instance idempotency key. eventID is
// the host's labeled-event id for the most recent application of this
// label, or "unknown" if none could be resolved.
func IdempotencyKey(repo string, number int, label CmdLabel, eventID string) string {
	if eventID == "" {
		eventID = "unknown"
	}
	return fmt.Sprintf("ralph:cmd:v1:%s#%d:%s:%s", repo, number, label, eventID)
}

// SatisfyKey forms the dependency-satisfaction record key for an issue.
func SatisfyKey(repo string, number int) string {
	return fmt.Sprintf("ralph:satisfy:v1:%s#%d", repo, number)
}
