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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/ralph/internal/queue"
)

func TestSignature_IgnoresOverlapBetweenAddAndRemove(t *testing.T) {
	sig1 := Signature("acme/widgets", 1, queue.LabelDelta{Add: []string{"a"}, Remove: []string{"a", "b"}})
	sig2 := Signature("acme/widgets", 1, queue.LabelDelta{Add: []string{"a"}, Remove: []string{"b"}})
	assert.Equal(t, sig1, sig2)
}

func TestSignature_DistinguishesDifferentIssues(t *testing.T) {
	sig1 := Signature("acme/widgets", 1, queue.LabelDelta{Add: []string{"a"}})
	sig2 := Signature("acme/widgets", 2, queue.LabelDelta{Add: []string{"a"}})
	assert.NotEqual(t, sig1, sig2)
}

func TestCoalescer_MergesConcurrentIdenticalWrites(t *testing.T) {
	c := NewCoalescer(50 * time.Millisecond)
	var calls int32

	fn := func() ([]string, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return []string{"ralph:status:in-progress"}, nil
	}

	var wg sync.WaitGroup
	results := make([]bool, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, shared, err := c.Do(context.Background(), "sig", fn)
			require.NoError(t, err)
			results[i] = shared
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "concurrent identical writes collapse into one host call")
}

func TestCoalescer_ZeroWindowDisablesMerging(t *testing.T) {
	c := NewCoalescer(0)
	var calls int32
	fn := func() ([]string, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	}

	_, _, err := c.Do(context.Background(), "sig", fn)
	require.NoError(t, err)
	_, _, err = c.Do(context.Background(), "sig", fn)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRepoBackoff_BlocksUntilTimestamp(t *testing.T) {
	b := NewRepoBackoff(100, 100)
	now := time.Now()
	b.Block("acme/widgets", now.Add(time.Minute))

	assert.False(t, b.CanAttemptLabelWrite("acme/widgets", now.Add(30*time.Second)))
	assert.True(t, b.CanAttemptLabelWrite("acme/widgets", now.Add(2*time.Minute)))
}

func TestRepoBackoff_RateLimitsWithinBurst(t *testing.T) {
	b := NewRepoBackoff(1, 1)
	now := time.Now()

	assert.True(t, b.CanAttemptLabelWrite("acme/widgets", now))
	assert.False(t, b.CanAttemptLabelWrite("acme/widgets", now))
}
