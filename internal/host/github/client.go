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

// Package github implements internal/host.IssueHost against the GitHub
// REST and GraphQL APIs.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/zalando/go-keyring"

	hosterrors "github.com/tombee/ralph/pkg/errors"
	"github.com/tombee/ralph/pkg/httpclient"
)

const keyringService = "ralph"

// Config configures a Client.
type Config struct {
	Token      string
	Host       string // empty for github.com, else GitHub Enterprise host
	HTTPClient *http.Client
}

// Client is a GitHub API client implementing internal/host.IssueHost.
type Client struct {
	baseURL    string
	graphqlURL string
	token      string
	httpClient *http.Client
}

// NewClient constructs a Client, defaulting its HTTP transport to
// pkg/httpclient's retrying, TLS-hardened client.
func NewClient(cfg Config) *Client {
	baseURL := "https://api.github.com"
	graphqlURL := "https://api.github.com/graphql"
	if cfg.Host != "" && cfg.Host != "github.com" {
		baseURL = fmt.Sprintf("https://%s/api/v3", cfg.Host)
		graphqlURL = fmt.Sprintf("https://%s/api/graphql", cfg.Host)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpCfg := httpclient.DefaultConfig()
		httpCfg.Timeout = 30 * time.Second
		httpCfg.UserAgent = "ralph-github-client/1.0"
		client, err := httpclient.New(httpCfg)
		if err != nil {
			httpClient = &http.Client{Timeout: 30 * time.Second}
		} else {
			httpClient = client
		}
	}

	return &Client{baseURL: baseURL, graphqlURL: graphqlURL, token: cfg.Token, httpClient: httpClient}
}

// ResolveToken resolves a GitHub token from, in order: GITHUB_TOKEN,
// RALPH_GITHUB_TOKEN, the OS keychain, the gh CLI.
func ResolveToken() string {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		return token
	}
	if token := os.Getenv("RALPH_GITHUB_TOKEN"); token != "" {
		return token
	}
	if token, err := keyring.Get(keyringService, "github-token"); err == nil && token != "" {
		return token
	}
	if token := ghCLIToken(); token != "" {
		return token
	}
	return ""
}

func ghCLIToken() string {
	cmd := exec.Command("gh", "auth", "token")
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}

func (c *Client) doJSON(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("github: marshal request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("github: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &hosterrors.TransientError{Op: method + " " + url, Cause: err}
	}
	defer resp.Body.Close()

	return c.classifyResponse(resp, method+" "+url, out)
}

func (c *Client) classifyResponse(resp *http.Response, op string, out any) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return fmt.Errorf("github: decode response for %s: %w", op, err)
		}
		return nil
	}

	body, _ := io.ReadAll(resp.Body)
	cause := fmt.Errorf("status %d: %s", resp.StatusCode, string(body))

	switch resp.StatusCode {
	case http.StatusNotFound:
		return &hosterrors.NotFoundError{Resource: "github-resource", ID: op}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &hosterrors.ForbiddenError{Repo: op, Cause: cause}
	case http.StatusTooManyRequests:
		retryAfter := time.Now().Add(time.Minute)
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := time.ParseDuration(ra + "s"); err == nil {
				retryAfter = time.Now().Add(secs)
			}
		}
		return &hosterrors.RateLimitedError{Op: op, RetryAfter: retryAfter, Cause: cause}
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &hosterrors.TransientError{Op: op, Cause: cause}
	default:
		return fmt.Errorf("github: %s: %w", op, cause)
	}
}
