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
	"strings"

	hosterrors "github.com/tombee/ralph/pkg/errors"
)

func isNotFound(err error) bool {
	return hosterrors.Kind(err) == hosterrors.KindNotFound
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type labelMutationResponse struct {
	Data struct {
		AddLabels    *labelableResult `json:"addLabels"`
		RemoveLabels *labelableResult `json:"removeLabels"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

type labelableResult struct {
	Labelable struct {
		Labels struct {
			Nodes []ghLabel `json:"nodes"`
		} `json:"labels"`
	} `json:"labelable"`
}

// MutateLabels applies an add/remove label delta to one issue in a single
// round trip via GraphQL's addLabelsToLabelable/removeLabelsFromLabelable
// compound mutation, falling back to sequential REST calls when the
// GraphQL path is unavailable (GitHub Enterprise without GraphQL enabled,
// or a transient GraphQL-specific failure). Returns the resulting label
// set.
func (c *Client) MutateLabels(ctx context.Context, repo string, number int, add, remove []string) ([]string, error) {
	labels, err := c.mutateLabelsGraphQL(ctx, repo, number, add, remove)
	if err == nil {
		return labels, nil
	}

	if err := c.mutateLabelsREST(ctx, repo, number, add, remove); err != nil {
		return nil, fmt.Errorf("github: mutate labels for %s#%d: %w", repo, number, err)
	}
	return c.GetIssueLabels(ctx, repo, number)
}

func (c *Client) mutateLabelsGraphQL(ctx context.Context, repo string, number int, add, remove []string) ([]string, error) {
	issueID, err := c.resolveIssueNodeID(ctx, repo, number)
	if err != nil {
		return nil, err
	}
	labelIDs, err := c.resolveLabelNodeIDs(ctx, repo, append(append([]string{}, add...), remove...))
	if err != nil {
		return nil, err
	}

	addIDs := nodeIDsFor(add, labelIDs)
	removeIDs := nodeIDsFor(remove, labelIDs)

	const mutation = `
mutation($issueID: ID!, $addIDs: [ID!]!, $removeIDs: [ID!]!) {
  addLabels: addLabelsToLabelable(input: {labelableId: $issueID, labelIds: $addIDs}) {
    labelable { ... on Issue { labels(first: 100) { nodes { name } } } }
  }
  removeLabels: removeLabelsFromLabelable(input: {labelableId: $issueID, labelIds: $removeIDs}) {
    labelable { ... on Issue { labels(first: 100) { nodes { name } } } }
  }
}`

	req := graphqlRequest{
		Query: mutation,
		Variables: map[string]any{
			"issueID":   issueID,
			"addIDs":    addIDs,
			"removeIDs": removeIDs,
		},
	}

	var resp labelMutationResponse
	if err := c.doJSON(ctx, "POST", c.graphqlURL, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("github: graphql label mutation: %s", resp.Errors[0].Message)
	}

	result := resp.Data.RemoveLabels
	if result == nil {
		result = resp.Data.AddLabels
	}
	if result == nil {
		return nil, fmt.Errorf("github: graphql label mutation returned no labelable")
	}

	labels := make([]string, 0, len(result.Labelable.Labels.Nodes))
	for _, l := range result.Labelable.Labels.Nodes {
		labels = append(labels, l.Name)
	}
	return labels, nil
}

func nodeIDsFor(names []string, ids map[string]string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if id, ok := ids[n]; ok {
			out = append(out, id)
		}
	}
	return out
}

func (c *Client) mutateLabelsREST(ctx context.Context, repo string, number int, add, remove []string) error {
	for _, label := range remove {
		if err := c.RemoveLabel(ctx, repo, number, label); err != nil {
			return fmt.Errorf("remove label %q: %w", label, err)
		}
	}
	if len(add) == 0 {
		return nil
	}
	url := fmt.Sprintf("%s/repos/%s/issues/%d/labels", c.baseURL, repo, number)
	err := c.doJSON(ctx, "POST", url, map[string][]string{"labels": add}, nil)
	if err == nil || !isNotFound(err) {
		return err
	}

	if ensureErr := c.ensureLabelsExist(ctx, repo, add); ensureErr != nil {
		return fmt.Errorf("ensure labels exist: %w", ensureErr)
	}
	return c.doJSON(ctx, "POST", url, map[string][]string{"labels": add}, nil)
}

func (c *Client) ensureLabelsExist(ctx context.Context, repo string, labels []string) error {
	for _, label := range labels {
		url := fmt.Sprintf("%s/repos/%s/labels", c.baseURL, repo)
		_ = c.doJSON(ctx, "POST", url, map[string]string{"name": label, "color": "ededed"}, nil)
	}
	return nil
}

type nodeIDResponse struct {
	Data struct {
		Repository struct {
			Issue struct {
				ID string `json:"id"`
			} `json:"issue"`
			Labels struct {
				Nodes []struct {
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"nodes"`
			} `json:"labels"`
		} `json:"repository"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

func (c *Client) resolveIssueNodeID(ctx context.Context, repo string, number int) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}

	const query = `
query($owner: String!, $name: String!, $number: Int!) {
  repository(owner: $owner, name: $name) {
    issue(number: $number) { id }
  }
}`
	req := graphqlRequest{Query: query, Variables: map[string]any{"owner": owner, "name": name, "number": number}}

	var resp nodeIDResponse
	if err := c.doJSON(ctx, "POST", c.graphqlURL, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Errors) > 0 {
		return "", fmt.Errorf("github: resolve issue node id: %s", resp.Errors[0].Message)
	}
	if resp.Data.Repository.Issue.ID == "" {
		return "", fmt.Errorf("github: issue %s#%d not found", repo, number)
	}
	return resp.Data.Repository.Issue.ID, nil
}

func (c *Client) resolveLabelNodeIDs(ctx context.Context, repo string, names []string) (map[string]string, error) {
	owner, repoName, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	const query = `
query($owner: String!, $name: String!) {
  repository(owner: $owner, name: $name) {
    labels(first: 100) { nodes { id name } }
  }
}`
	req := graphqlRequest{Query: query, Variables: map[string]any{"owner": owner, "name": repoName}}

	var resp nodeIDResponse
	if err := c.doJSON(ctx, "POST", c.graphqlURL, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("github: resolve label node ids: %s", resp.Errors[0].Message)
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := make(map[string]string, len(names))
	for _, l := range resp.Data.Repository.Labels.Nodes {
		if want[l.Name] {
			out[l.Name] = l.ID
		}
	}
	return out, nil
}

func splitRepo(repo string) (owner, name string, err error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("github: invalid repo slug %q", repo)
	}
	return parts[0], parts[1], nil
}
