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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hosterrors "github.com/tombee/ralph/pkg/errors"
)

func TestNewClient_BaseURLs(t *testing.T) {
	t.Run("defaults to github.com", func(t *testing.T) {
		c := NewClient(Config{})
		assert.Equal(t, "https://api.github.com", c.baseURL)
		assert.Equal(t, "https://api.github.com/graphql", c.graphqlURL)
	})

	t.Run("enterprise host", func(t *testing.T) {
		c := NewClient(Config{Host: "github.example.com"})
		assert.Equal(t, "https://github.example.com/api/v3", c.baseURL)
		assert.Equal(t, "https://github.example.com/api/graphql", c.graphqlURL)
	})
}

func TestGetIssue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widgets/issues/42", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(ghIssue{
			Number: 42,
			State:  "open",
			Labels: []ghLabel{{Name: "ralph:status:queued"}},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{Token: "test-token", HTTPClient: srv.Client()})
	c.baseURL = srv.URL

	issue, err := c.GetIssue(context.Background(), "acme/widgets", 42)
	require.NoError(t, err)
	assert.Equal(t, 42, issue.Number)
	assert.Equal(t, "open", issue.State)
	assert.Equal(t, []string{"ralph:status:queued"}, issue.Labels)
}

func TestGetIssue_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(Config{HTTPClient: srv.Client()})
	c.baseURL = srv.URL

	_, err := c.GetIssue(context.Background(), "acme/widgets", 99)
	require.Error(t, err)
	assert.Equal(t, hosterrors.KindNotFound, hosterrors.Kind(err))
}

func TestRemoveLabel_TreatsNotFoundAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(Config{HTTPClient: srv.Client()})
	c.baseURL = srv.URL

	err := c.RemoveLabel(context.Background(), "acme/widgets", 1, "ralph:status:queued")
	assert.NoError(t, err)
}

func TestClassifyResponse_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{HTTPClient: srv.Client()})
	c.baseURL = srv.URL

	_, err := c.GetIssue(context.Background(), "acme/widgets", 1)
	require.Error(t, err)
	assert.Equal(t, hosterrors.KindRateLimited, hosterrors.Kind(err))
}

func TestMutateLabels_FallsBackToRESTWhenGraphQLFails(t *testing.T) {
	var restCalls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/graphql":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodDelete:
			restCalls = append(restCalls, "remove:"+r.URL.Path)
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPost && r.URL.Path == "/repos/acme/widgets/issues/7/labels":
			restCalls = append(restCalls, "add")
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(ghIssue{Number: 7, State: "open", Labels: []ghLabel{{Name: "ralph:status:in-progress"}}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{HTTPClient: srv.Client()})
	c.baseURL = srv.URL
	c.graphqlURL = srv.URL + "/graphql"

	labels, err := c.MutateLabels(context.Background(), "acme/widgets", 7, []string{"ralph:status:in-progress"}, []string{"ralph:status:queued"})
	require.NoError(t, err)
	assert.Contains(t, labels, "ralph:status:in-progress")
	assert.Len(t, restCalls, 2)
}

func TestUpsertTrackingComment_EditsExistingComment(t *testing.T) {
	var patched bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode([]ghComment{
				{ID: 1, Body: "<!-- ralph:tracking:queue:100 -->\nold"},
			})
		case r.Method == http.MethodPatch:
			patched = true
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{HTTPClient: srv.Client()})
	c.baseURL = srv.URL

	err := c.UpsertTrackingComment(context.Background(), "acme/widgets", 42, "queue:100", "applied")
	require.NoError(t, err)
	assert.True(t, patched)
}

func TestParseClosesRefs(t *testing.T) {
	got := parseClosesRefs("This closes #12 and also fixes #34, see resolves: #56")
	assert.Equal(t, []int{12, 34, 56}, got)
}
