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

// Package output holds the CLI's shared JSON-envelope rendering, used by
// every cmd/ralph subcommand's --json mode.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tombee/ralph/internal/jq"
)

// JSONResponse is the base envelope for all JSON output.
type JSONResponse struct {
	Command string `json:"command"`
	Success bool   `json:"success"`
}

// EmitJSON marshals a response to JSON and writes it to stdout.
func EmitJSON(response interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// EmitJSONFiltered behaves like EmitJSON, except when expr is non-empty: the
// response is round-tripped through JSON into a generic value and that value
// is narrowed with the given jq expression before being printed, so `--jq
// .mode` can pull a single field out of `ralph status --json` the way `gh
// --jq` does against the GitHub API's JSON responses.
func EmitJSONFiltered(response interface{}, expr string) error {
	if expr == "" {
		return EmitJSON(response)
	}

	raw, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("output: marshal response for jq filter: %w", err)
	}
	var data interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("output: decode response for jq filter: %w", err)
	}

	executor := jq.NewExecutor(jq.DefaultTimeout, jq.DefaultMaxInputSize)
	filtered, err := executor.Execute(context.Background(), expr, data)
	if err != nil {
		return fmt.Errorf("output: apply jq filter %q: %w", expr, err)
	}
	return EmitJSON(filtered)
}

// EmitJSONError emits a failure envelope carrying a single error message.
func EmitJSONError(command, message string) error {
	type errorResponse struct {
		JSONResponse
		Error string `json:"error"`
	}
	return EmitJSON(errorResponse{
		JSONResponse: JSONResponse{Command: command, Success: false},
		Error:        message,
	})
}
