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
	"regexp"
	"strconv"
	"strings"

	"github.com/tombee/ralph/internal/host"
)

type timelineIssueRef struct {
	Event  string `json:"event"`
	Source *struct {
		Issue *struct {
			Number int    `json:"number"`
			State  string `json:"state"`
		} `json:"issue"`
	} `json:"source"`
}

type ghIssueBody struct {
	Body string `json:"body"`
}

// closesRef matches GitHub's "closes #123" / "fixes #123" / "resolves #123"
// issue-body convention, the fallback used when the timeline API reports no
// structured cross-reference.
var closesRef = regexp.MustCompile(`(?i)\b(?:close[sd]?|fix(?:e[sd])?|resolve[sd]?)\s*:?\s*#(\d+)`)

// ListRelationships resolves blocked-by/closes edges for an issue from its
// timeline's cross-referenced events, falling back to a "closes #N" scan of
// the issue body when the timeline carries no structured reference.
func (c *Client) ListRelationships(ctx context.Context, repo string, number int) ([]host.Relationship, error) {
	url := fmt.Sprintf("%s/repos/%s/issues/%d/timeline?per_page=100", c.baseURL, repo, number)
	var raw []timelineIssueRef
	if err := c.doJSON(ctx, "GET", url, nil, &raw); err != nil {
		return nil, fmt.Errorf("github: list relationships for %s#%d: %w", repo, number, err)
	}

	var out []host.Relationship
	seen := map[int]bool{}
	for _, r := range raw {
		if r.Event != "cross-referenced" && r.Event != "connected" {
			continue
		}
		if r.Source == nil || r.Source.Issue == nil || seen[r.Source.Issue.Number] {
			continue
		}
		seen[r.Source.Issue.Number] = true
		out = append(out, host.Relationship{
			Kind:   "blocked-by",
			Number: r.Source.Issue.Number,
			Closed: r.Source.Issue.State == "closed",
		})
	}

	if len(out) > 0 {
		return out, nil
	}

	refs, err := c.closesRefsFromBody(ctx, repo, number)
	if err != nil {
		return out, nil
	}
	for _, n := range refs {
		if seen[n] {
			continue
		}
		seen[n] = true
		ref, err := c.GetIssue(ctx, repo, n)
		if err != nil {
			return nil, fmt.Errorf("github: resolve closes #%d for %s#%d: %w", n, repo, number, err)
		}
		out = append(out, host.Relationship{Kind: "closes", Number: n, Closed: strings.EqualFold(ref.State, "closed")})
	}
	return out, nil
}

func (c *Client) closesRefsFromBody(ctx context.Context, repo string, number int) ([]int, error) {
	url := fmt.Sprintf("%s/repos/%s/issues/%d", c.baseURL, repo, number)
	var raw ghIssueBody
	if err := c.doJSON(ctx, "GET", url, nil, &raw); err != nil {
		return nil, err
	}
	return parseClosesRefs(raw.Body), nil
}

func parseClosesRefs(body string) []int {
	matches := closesRef.FindAllStringSubmatch(body, -1)
	out := make([]int, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
