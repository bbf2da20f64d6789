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

package github

import (
	"context"
	"fmt"
)

type ghRepo struct {
	FullName string `json:"full_name"`
	Archived bool   `json:"archived"`
	Disabled bool   `json:"disabled"`
}

// ListOwnerRepos lists every non-archived, non-disabled repo visible to the
// configured token under owner, used for onboarding a whole org or user.
func (c *Client) ListOwnerRepos(ctx context.Context, owner string) ([]string, error) {
	url := fmt.Sprintf("%s/users/%s/repos?per_page=100&type=all", c.baseURL, owner)
	var raw []ghRepo
	if err := c.doJSON(ctx, "GET", url, nil, &raw); err != nil {
		url = fmt.Sprintf("%s/orgs/%s/repos?per_page=100&type=all", c.baseURL, owner)
		if orgErr := c.doJSON(ctx, "GET", url, nil, &raw); orgErr != nil {
			return nil, fmt.Errorf("github: list repos for owner %s: %w", owner, err)
		}
	}

	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if r.Archived || r.Disabled {
			continue
		}
		out = append(out, r.FullName)
	}
	return out, nil
}
