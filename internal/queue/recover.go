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

package queue

import "time"

// Recovery reasons. RecoverStale checks op-state first, then the heartbeat
// (missing, invalid, stale), then the session id.
const (
	ReasonMissingOpState   = "missing-op-state"
	ReasonMissingSessionID = "missing-session-id"
	ReasonMissingHeartbeat = "missing-heartbeat"
	ReasonInvalidHeartbeat = "invalid-heartbeat"
	ReasonStaleHeartbeat   = "stale-heartbeat"
)

// RecoverStaleInput is the op-state fields RecoverStale needs. HeartbeatAtRaw
// is the stored RFC3339Nano string, empty if the task has no heartbeat on
// record.
type RecoverStaleInput struct {
	HasOpState     bool
	SessionID      string
	HeartbeatAtRaw string
}

// RecoverStale decides whether a claimed-but-possibly-orphaned task should
// be returned to the queue. It never recommends recovery when there is no
// local op-state at all, since that state is indistinguishable from an
// issue some other process owns. grace <= 0 disables the session-id grace
// period (an issue with a fresh heartbeat but no session id recovers
// immediately).
func RecoverStale(input RecoverStaleInput, now time.Time, ttl, grace time.Duration) (shouldRecover bool, reason string) {
	if !input.HasOpState {
		return false, ReasonMissingOpState
	}
	if input.HeartbeatAtRaw == "" {
		return true, ReasonMissingHeartbeat
	}

	heartbeatAt, err := time.Parse(time.RFC3339Nano, input.HeartbeatAtRaw)
	if err != nil {
		return true, ReasonInvalidHeartbeat
	}

	age := now.Sub(heartbeatAt)
	if age > ttl {
		return true, ReasonStaleHeartbeat
	}

	if input.SessionID == "" {
		if grace > 0 && age <= grace {
			return false, ReasonMissingSessionID
		}
		return true, ReasonMissingSessionID
	}

	return false, ""
}
