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

package config

import (
	"fmt"
)

// Validate checks the configuration for structural errors. It does not
// touch the filesystem or network.
func (c Config) Validate() error {
	if c.Throttle.SoftFraction <= 0 || c.Throttle.SoftFraction > 1 {
		return fmt.Errorf("config: throttle.soft_fraction must be in (0,1], got %v", c.Throttle.SoftFraction)
	}

	seen := make(map[string]bool, len(c.Repos))
	for i, r := range c.Repos {
		if r.Owner == "" || r.Repo == "" {
			return fmt.Errorf("config: repos[%d] missing owner or repo", i)
		}
		key := r.Owner + "/" + r.Repo
		if seen[key] {
			return fmt.Errorf("config: repos[%d] duplicates %s", i, key)
		}
		seen[key] = true
		if r.Concurrency < 0 {
			return fmt.Errorf("config: repos[%d] (%s) has negative concurrency", i, key)
		}
		if r.AutoQueue.Enabled && r.AutoQueue.Scope != "" &&
			r.AutoQueue.Scope != "all-open" && r.AutoQueue.Scope != "labeled-only" {
			return fmt.Errorf("config: repos[%d] (%s) auto_queue.scope must be all-open or labeled-only, got %q", i, key, r.AutoQueue.Scope)
		}
	}

	for name, p := range c.Profiles {
		if name == "auto" {
			return fmt.Errorf(`config: profiles must not define the reserved name "auto"`)
		}
		if p.Agent == "" {
			return fmt.Errorf("config: profiles[%s] missing agent", name)
		}
	}

	return nil
}
