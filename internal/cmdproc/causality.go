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

package cmdproc

import (
	"fmt"
	"math/big"
)

// QueueCommandRefused implements the causality guard for the queue
// command: a queue command that predates (or ties) the event that most
// recently escalated the issue must be refused, so a stale queue command
// can never silently clobber a newer escalation. Event ids are host-
// assigned, opaque, and not bounded to 64 bits, so they compare as
// arbitrary-precision integers rather than machine words.
func QueueCommandRefused(queueEventID, escalatedEventID string) (bool, error) {
	queueID, ok := new(big.Int).SetString(queueEventID, 10)
	if !ok {
		return false, fmt.Errorf("cmdproc: queue event id %q is not a valid integer", queueEventID)
	}
	escalatedID, ok := new(big.Int).SetString(escalatedEventID, 10)
	if !ok {
		return false, fmt.Errorf("cmdproc: escalated event id %q is not a valid integer", escalatedEventID)
	}
	return queueID.Cmp(escalatedID) <= 0, nil
}
