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
	"time"

	"github.com/tombee/ralph/internal/host"
)

type ghLabel struct {
	Name string `json:"name"`
}

type ghIssue struct {
	Number    int       `json:"number"`
	State     string    `json:"state"`
	Labels    []ghLabel `json:"labels"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (i ghIssue) toSummary() host.IssueSummary {
	labels := make([]string, 0, len(i.Labels))
	for _, l := range i.Labels {
		labels = append(labels, l.Name)
	}
	return host.IssueSummary{Number: i.Number, State: i.State, Labels: labels, UpdatedAt: i.UpdatedAt}
}

// ListIssues lists open issues for repo, optionally restricted to those
// updated since the given timestamp.
func (c *Client) ListIssues(ctx context.Context, repo string, since *time.Time) ([]host.IssueSummary, error) {
	url := fmt.Sprintf("%s/repos/%s/issues?state=open&per_page=100", c.baseURL, repo)
	if since != nil {
		url += "&since=" + since.UTC().Format(time.RFC3339)
	}

	var raw []ghIssue
	if err := c.doJSON(ctx, "GET", url, nil, &raw); err != nil {
		return nil, fmt.Errorf("github: list issues for %s: %w", repo, err)
	}

	out := make([]host.IssueSummary, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.toSummary())
	}
	return out, nil
}

// GetIssue fetches one issue.
func (c *Client) GetIssue(ctx context.Context, repo string, number int) (host.IssueSummary, error) {
	url := fmt.Sprintf("%s/repos/%s/issues/%d", c.baseURL, repo, number)
	var raw ghIssue
	if err := c.doJSON(ctx, "GET", url, nil, &raw); err != nil {
		return host.IssueSummary{}, fmt.Errorf("github: get issue %s#%d: %w", repo, number, err)
	}
	return raw.toSummary(), nil
}

// GetIssueLabels fetches the live label set for one issue.
func (c *Client) GetIssueLabels(ctx context.Context, repo string, number int) ([]string, error) {
	issue, err := c.GetIssue(ctx, repo, number)
	if err != nil {
		return nil, err
	}
	return issue.Labels, nil
}

type ghTimelineEvent struct {
	ID        int64     `json:"id"`
	Event     string    `json:"event"`
	Label     ghLabel   `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}

// ListIssueEvents lists the most recent timeline events for an issue, up
// to limit, newest first.
func (c *Client) ListIssueEvents(ctx context.Context, repo string, number int, limit int) ([]host.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	url := fmt.Sprintf("%s/repos/%s/issues/%d/events?per_page=%d", c.baseURL, repo, number, limit)
	var raw []ghTimelineEvent
	if err := c.doJSON(ctx, "GET", url, nil, &raw); err != nil {
		return nil, fmt.Errorf("github: list issue events for %s#%d: %w", repo, number, err)
	}

	out := make([]host.Event, 0, len(raw))
	for _, r := range raw {
		out = append(out, host.Event{
			ID:        fmt.Sprintf("%d", r.ID),
			Type:      r.Event,
			Label:     r.Label.Name,
			CreatedAt: r.CreatedAt,
		})
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// AddLabel adds one label to an issue.
func (c *Client) AddLabel(ctx context.Context, repo string, number int, label string) error {
	url := fmt.Sprintf("%s/repos/%s/issues/%d/labels", c.baseURL, repo, number)
	return c.doJSON(ctx, "POST", url, map[string][]string{"labels": {label}}, nil)
}

// RemoveLabel removes one label from an issue. A 404 (label already
// absent) is treated as success, per the idempotent-remove contract.
func (c *Client) RemoveLabel(ctx context.Context, repo string, number int, label string) error {
	url := fmt.Sprintf("%s/repos/%s/issues/%d/labels/%s", c.baseURL, repo, number, label)
	err := c.doJSON(ctx, "DELETE", url, nil, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}
