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

	"github.com/tombee/ralph/internal/autoqueue"
	"github.com/tombee/ralph/internal/cmdproc"
	"github.com/tombee/ralph/internal/host"
	"github.com/tombee/ralph/internal/queue"
	"github.com/tombee/ralph/internal/store"
)

// FetchIssueLabels implements queue.LabelHost and cmdproc.CmdHost against
// the live GitHub issue.
func (c *Client) FetchIssueLabels(ctx context.Context, repo string, number int) ([]string, store.IssueState, error) {
	issue, err := c.GetIssue(ctx, repo, number)
	if err != nil {
		return nil, "", err
	}
	state := store.IssueOpen
	if strings.EqualFold(issue.State, "closed") {
		state = store.IssueClosed
	}
	return issue.Labels, state, nil
}

// ApplyLabelDelta implements queue.LabelHost and cmdproc.CmdHost, applying
// an add/remove delta in one call.
func (c *Client) ApplyLabelDelta(ctx context.Context, repo string, number int, delta queue.LabelDelta) ([]string, error) {
	return c.MutateLabels(ctx, repo, number, delta.Add, delta.Remove)
}

// LatestLabeledEventID implements cmdproc.CmdHost: the most recent "labeled"
// timeline event applying the given label, used by the causality guard to
// order a queue command against a possibly newer escalation.
func (c *Client) LatestLabeledEventID(ctx context.Context, repo string, number int, label string) (string, bool, error) {
	events, err := c.ListIssueEvents(ctx, repo, number, 100)
	if err != nil {
		return "", false, err
	}
	// ListIssueEvents returns newest first, so the first match is the latest.
	for _, e := range events {
		if e.Type == "labeled" && e.Label == label {
			return e.ID, true, nil
		}
	}
	return "", false, nil
}

const trackingCommentMarker = "<!-- ralph:tracking:%s -->"

// UpsertTrackingComment implements cmdproc.CmdHost: finds an existing
// tracking comment carrying the given key's HTML-comment marker and edits
// it in place, or creates a new one.
func (c *Client) UpsertTrackingComment(ctx context.Context, repo string, number int, key, body string) error {
	marker := fmt.Sprintf(trackingCommentMarker, key)
	full := marker + "\n" + body

	comments, err := c.ListComments(ctx, repo, number)
	if err != nil {
		return err
	}
	for _, cm := range comments {
		if strings.Contains(cm.Body, marker) {
			return c.UpdateComment(ctx, repo, cm.ID, full)
		}
	}
	_, err = c.CreateComment(ctx, repo, number, full)
	return err
}

// ListOpenIssues implements autoqueue.Host.
func (c *Client) ListOpenIssues(ctx context.Context, repo string) ([]autoqueue.IssueRef, error) {
	issues, err := c.ListIssues(ctx, repo, nil)
	if err != nil {
		return nil, err
	}
	out := make([]autoqueue.IssueRef, 0, len(issues))
	for _, i := range issues {
		out = append(out, autoqueue.IssueRef{Number: i.Number, Labels: i.Labels})
	}
	return out, nil
}

// EvaluateBlocking implements autoqueue.RelationshipProvider: an issue is
// blocked with certain confidence when any of its blocked-by/closes edges
// point at a still-open issue, unknown confidence if the relationship
// lookup itself fails.
func (c *Client) EvaluateBlocking(ctx context.Context, repo string, number int) (autoqueue.BlockedDecision, error) {
	rels, err := c.ListRelationships(ctx, repo, number)
	if err != nil {
		return autoqueue.BlockedDecision{Confidence: autoqueue.ConfidenceUnknown}, nil
	}

	var reasons []string
	for _, r := range rels {
		if !r.Closed {
			reasons = append(reasons, fmt.Sprintf("%s #%d", r.Kind, r.Number))
		}
	}
	return autoqueue.BlockedDecision{
		Blocked:    len(reasons) > 0,
		Confidence: autoqueue.ConfidenceCertain,
		Reasons:    reasons,
	}, nil
}

var (
	_ host.IssueHost                 = (*Client)(nil)
	_ queue.LabelHost                = (*Client)(nil)
	_ cmdproc.CmdHost                = (*Client)(nil)
	_ autoqueue.Host                 = (*Client)(nil)
	_ autoqueue.RelationshipProvider = (*Client)(nil)
)
