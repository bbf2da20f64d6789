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

package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tombee/ralph/internal/queue"
)

// DefaultCoalesceWindow is the default coalescer window. Any positive window
// turns merging on; its length is not otherwise used. 0 disables coalescing
// entirely.
const DefaultCoalesceWindow = 250 * time.Millisecond

// Coalescer merges concurrent, identical-signature label writes for the
// same issue into a single host call, sharing the result with every
// caller. Two writes are identical iff they target the same
// (repo, issueNumber) with the same sorted add-set and the same sorted
// (remove - add) set.
type Coalescer struct {
	group  singleflight.Group
	window time.Duration
}

// NewCoalescer returns a Coalescer with the given merge window. A
// non-positive window disables merging (every call runs independently).
func NewCoalescer(window time.Duration) *Coalescer {
	return &Coalescer{window: window}
}

// Signature computes the coalescer key for one label mutation.
func Signature(repo string, issueNumber int, delta queue.LabelDelta) string {
	add := queue.SortedUnique(delta.Add)
	removeOnly := make([]string, 0, len(delta.Remove))
	addSet := make(map[string]bool, len(add))
	for _, a := range add {
		addSet[a] = true
	}
	for _, r := range delta.Remove {
		if !addSet[r] {
			removeOnly = append(removeOnly, r)
		}
	}
	removeOnly = queue.SortedUnique(removeOnly)

	return fmt.Sprintf("%s#%d|add=%s|remove=%s", repo, issueNumber, strings.Join(add, ","), strings.Join(removeOnly, ","))
}

// Do runs fn, merging it with any other call of the same signature that is
// still in flight. No result is kept once the shared call returns, so a later
// identical call runs fn again even inside the window. critical writes (operator
// commands, claims) should call fn directly instead of going through the
// coalescer, per the label-write pipeline's "critical writes bypass the
// coalescer" rule.
func (c *Coalescer) Do(ctx context.Context, signature string, fn func() ([]string, error)) (labels []string, shared bool, err error) {
	if c.window <= 0 {
		labels, err = fn()
		return labels, false, err
	}

	v, err, shared := c.group.Do(signature, func() (any, error) {
		return fn()
	})
	if err != nil {
		return nil, shared, err
	}
	return v.([]string), shared, nil
}
