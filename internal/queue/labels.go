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

// Package queue implements the label-derived queue backend (C5): mapping
// the remote issue's label set to a task status, planning claim and
// status-change label deltas, and recovering orphaned claims.
package queue

import (
	"regexp"
	"sort"
	"strings"

	"github.com/tombee/ralph/internal/store"
)

// StatusLabel returns the canonical ralph:status:* label for status.
func StatusLabel(status store.TaskStatus) string {
	return "ralph:status:" + string(status)
}

const priorityLabelPrefix = "ralph:priority:"

// PriorityLabel returns the canonical ralph:priority:* label for level
// (0-4).
func PriorityLabel(level int) string {
	return priorityLabelPrefix + priorityToken(level)
}

func priorityToken(level int) string {
	return "p" + string(rune('0'+level))
}

// knownStatuses lists every status that carries a ralph:status:* label, in
// the precedence order used by StatusFromLabels (highest precedence
// first). CLOSED issues short-circuit to StatusDone before this table is
// consulted.
var knownStatuses = []store.TaskStatus{
	store.StatusDone,
	store.StatusInBot,
	store.StatusStopped,
	store.StatusEscalated,
	store.StatusPaused,
	store.StatusInProgress,
	store.StatusQueued,
	store.StatusThrottled,
	store.StatusBlocked,
}

var statusLabelSet = func() map[string]store.TaskStatus {
	m := make(map[string]store.TaskStatus, len(knownStatuses))
	for _, s := range knownStatuses {
		m[StatusLabel(s)] = s
	}
	return m
}()

// CountStatusLabels returns how many ralph:status:* labels appear in
// labels. A well-formed issue has exactly one.
func CountStatusLabels(labels []string) int {
	n := 0
	for _, l := range labels {
		if _, ok := statusLabelSet[l]; ok {
			n++
		}
	}
	return n
}

// StatusFromLabels computes a task's status from its label set and host
// issue state, in precedence order. CLOSED short-circuits to done. Returns
// ok=false if no known ralph:status:* label is present.
func StatusFromLabels(labels []string, issueState store.IssueState) (store.TaskStatus, bool) {
	if issueState == store.IssueClosed {
		return store.StatusDone, true
	}
	present := make(map[store.TaskStatus]bool, len(labels))
	for _, l := range labels {
		if s, ok := statusLabelSet[l]; ok {
			present[s] = true
		}
	}
	for _, s := range knownStatuses {
		if present[s] {
			return s, true
		}
	}
	return "", false
}

// LabelDelta is a set of labels to add and remove.
type LabelDelta struct {
	Add    []string
	Remove []string
}

// StatusToLabelDelta computes the label mutation needed to move an issue to
// status, given its current label set: add the target status label, and
// remove every other known status label present.
func StatusToLabelDelta(status store.TaskStatus, currentLabels []string) LabelDelta {
	target := StatusLabel(status)
	var remove []string
	for _, l := range currentLabels {
		if s, ok := statusLabelSet[l]; ok && l != target {
			_ = s
			remove = append(remove, l)
		}
	}
	return LabelDelta{Add: []string{target}, Remove: remove}
}

// ClaimPlan is the result of planning whether an issue may be claimed.
type ClaimPlan struct {
	Claimable bool
	Steps     LabelDelta
	Reason    string
}

// PlanClaim decides whether an issue is claimable from its current label
// set: claimable iff no blocking status label is present and queued is.
func PlanClaim(labels []string) ClaimPlan {
	present := make(map[store.TaskStatus]bool, len(labels))
	for _, l := range labels {
		if s, ok := statusLabelSet[l]; ok {
			present[s] = true
		}
	}

	blocking := []store.TaskStatus{
		store.StatusDone, store.StatusInBot, store.StatusStopped, store.StatusEscalated,
		store.StatusPaused, store.StatusBlocked, store.StatusInProgress, store.StatusThrottled,
	}
	for _, b := range blocking {
		if present[b] {
			return ClaimPlan{Reason: "blocked-by-status:" + string(b)}
		}
	}
	if !present[store.StatusQueued] {
		return ClaimPlan{Reason: "not-queued"}
	}

	return ClaimPlan{
		Claimable: true,
		Steps: LabelDelta{
			Add:    []string{StatusLabel(store.StatusInProgress)},
			Remove: []string{StatusLabel(store.StatusQueued)},
		},
	}
}

// priorityNames maps canonical priority level to its legacy display name.
var priorityNames = [5]string{"critical", "high", "medium", "low", "backlog"}

// DefaultPriorityLevel is p2-medium, used when no priority label is
// present.
const DefaultPriorityLevel = 2

var legacyPriorityPattern = regexp.MustCompile(`^p([0-4])`)

// InferPriorityFromLabels computes an issue's priority level (0=highest,
// 4=lowest) from its labels. A canonical ralph:priority:p<n> label always
// wins; otherwise the lowest-numbered (highest-priority) legacy p<n>*
// label is used; otherwise DefaultPriorityLevel.
func InferPriorityFromLabels(labels []string) int {
	for _, l := range labels {
		if strings.HasPrefix(l, priorityLabelPrefix) {
			token := strings.TrimPrefix(l, priorityLabelPrefix)
			if n, ok := parsePriorityDigit(strings.TrimPrefix(token, "p")); ok {
				return n
			}
		}
	}

	best := -1
	for _, l := range labels {
		m := legacyPriorityPattern.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		n, ok := parsePriorityDigit(m[1])
		if !ok {
			continue
		}
		if best == -1 || n < best {
			best = n
		}
	}
	if best != -1 {
		return best
	}
	return DefaultPriorityLevel
}

func parsePriorityDigit(s string) (int, bool) {
	if len(s) == 0 {
		return 0, false
	}
	d := s[0] - '0'
	if d > 4 {
		return 0, false
	}
	return int(d), true
}

// PriorityName returns the "p<n>-<name>" display form for a priority level.
func PriorityName(level int) string {
	if level < 0 || level > 4 {
		level = DefaultPriorityLevel
	}
	return "p" + string(rune('0'+level)) + "-" + priorityNames[level]
}

// SortedUnique returns a sorted copy of labels with duplicates removed,
// used to build coalescer signatures.
func SortedUnique(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
