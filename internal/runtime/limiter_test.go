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

package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLogLimiter_AllowsBurstThenThrottles(t *testing.T) {
	l := NewLogLimiter(1, 2)
	now := time.Now()

	assert.True(t, l.AllowAt("k", now))
	assert.True(t, l.AllowAt("k", now))
	assert.False(t, l.AllowAt("k", now))
}

func TestLogLimiter_KeysAreIndependent(t *testing.T) {
	l := NewLogLimiter(1, 1)
	now := time.Now()

	assert.True(t, l.AllowAt("a", now))
	assert.True(t, l.AllowAt("b", now))
	assert.False(t, l.AllowAt("a", now))
}

func TestLogLimiter_RefillsOverTime(t *testing.T) {
	l := NewLogLimiter(10, 1)
	now := time.Now()

	assert.True(t, l.AllowAt("k", now))
	assert.False(t, l.AllowAt("k", now))
	assert.True(t, l.AllowAt("k", now.Add(200*time.Millisecond)))
}

func TestLogLimiter_Reset(t *testing.T) {
	l := NewLogLimiter(1, 1)
	now := time.Now()

	assert.True(t, l.AllowAt("k", now))
	assert.False(t, l.AllowAt("k", now))
	l.Reset("k")
	assert.True(t, l.AllowAt("k", now))
}
