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

	"github.com/tombee/ralph/internal/host"
)

type ghComment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
}

// ListComments lists every comment on an issue.
func (c *Client) ListComments(ctx context.Context, repo string, number int) ([]host.Comment, error) {
	url := fmt.Sprintf("%s/repos/%s/issues/%d/comments?per_page=100", c.baseURL, repo, number)
	var raw []ghComment
	if err := c.doJSON(ctx, "GET", url, nil, &raw); err != nil {
		return nil, fmt.Errorf("github: list comments for %s#%d: %w", repo, number, err)
	}
	out := make([]host.Comment, 0, len(raw))
	for _, r := range raw {
		out = append(out, host.Comment{ID: fmt.Sprintf("%d", r.ID), Body: r.Body})
	}
	return out, nil
}

// CreateComment posts a new comment on an issue.
func (c *Client) CreateComment(ctx context.Context, repo string, number int, body string) (host.Comment, error) {
	url := fmt.Sprintf("%s/repos/%s/issues/%d/comments", c.baseURL, repo, number)
	var raw ghComment
	if err := c.doJSON(ctx, "POST", url, map[string]string{"body": body}, &raw); err != nil {
		return host.Comment{}, fmt.Errorf("github: create comment on %s#%d: %w", repo, number, err)
	}
	return host.Comment{ID: fmt.Sprintf("%d", raw.ID), Body: raw.Body}, nil
}

// UpdateComment edits an existing comment in place.
func (c *Client) UpdateComment(ctx context.Context, repo string, commentID, body string) error {
	url := fmt.Sprintf("%s/repos/%s/issues/comments/%s", c.baseURL, repo, commentID)
	if err := c.doJSON(ctx, "PATCH", url, map[string]string{"body": body}, nil); err != nil {
		return fmt.Errorf("github: update comment %s on %s: %w", commentID, repo, err)
	}
	return nil
}
