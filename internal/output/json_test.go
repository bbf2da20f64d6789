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

package output

import (
	"encoding/json"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = old }()

	callErr := fn()
	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out), callErr
}

func TestEmitJSONFiltered_EmptyExprEmitsWholeResponse(t *testing.T) {
	out, err := captureStdout(t, func() error {
		return EmitJSONFiltered(JSONResponse{Command: "status", Success: true}, "")
	})
	require.NoError(t, err)

	var decoded JSONResponse
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "status", decoded.Command)
	assert.True(t, decoded.Success)
}

func TestEmitJSONFiltered_NarrowsToRequestedField(t *testing.T) {
	report := statusReportFixture{JSONResponse: JSONResponse{Command: "status", Success: true}, Mode: "draining"}

	out, err := captureStdout(t, func() error {
		return EmitJSONFiltered(report, ".mode")
	})
	require.NoError(t, err)

	var mode string
	require.NoError(t, json.Unmarshal([]byte(out), &mode))
	assert.Equal(t, "draining", mode)
}

func TestEmitJSONFiltered_InvalidExpressionErrors(t *testing.T) {
	_, err := captureStdout(t, func() error {
		return EmitJSONFiltered(JSONResponse{Command: "status", Success: true}, ".[")
	})
	assert.Error(t, err)
}

type statusReportFixture struct {
	JSONResponse
	Mode string `json:"mode"`
}
