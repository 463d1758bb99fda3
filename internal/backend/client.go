/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"oyster/internal/catalog"
	"oyster/internal/storage"
)

// Client is a minimal HTTP client for the backend API, used by the CLI and
// by editor hosts.
type Client struct {
	BaseURL     string
	BearerToken string // bearer token
	client      *http.Client
}

// NewClient creates a new backend client. baseURL may include a trailing
// slash; it will be normalized. A non-positive timeout means 10s.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		BearerToken: token,
		client:      &http.Client{Timeout: timeout},
	}
}

// HTTPError is a non-2xx answer from the server.
type HTTPError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server %s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("server %s %s: %d %s: %s", e.Method, e.Path, e.Status, http.StatusText(e.Status), e.Message)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, dest any) error {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if json.Unmarshal(b, &e) != nil {
			e.Error = strings.TrimSpace(string(b))
		}
		return &HTTPError{Method: method, Path: u.Path, Status: resp.StatusCode, Message: e.Error}
	}
	if dest == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, dest any) error {
	if in == nil {
		return c.do(ctx, method, path, "", nil, dest)
	}
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.do(ctx, method, path, "application/json", bytes.NewReader(b), dest)
}

// Token requests a bearer token for subject. ttl is rounded to seconds.
func (c *Client) Token(ctx context.Context, subject string, ttl time.Duration) (TokenResponse, error) {
	var out TokenResponse
	in := map[string]any{"subject": subject, "ttl_seconds": int64(ttl / time.Second)}
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/token", in, &out)
	return out, err
}

// Lint validates script text on the server.
func (c *Client) Lint(ctx context.Context, text string) (LintResponse, error) {
	var out LintResponse
	err := c.do(ctx, http.MethodPost, "/api/lint", "text/plain; charset=utf-8", strings.NewReader(text), &out)
	return out, err
}

// Describe fetches the descriptive record of a command.
func (c *Client) Describe(ctx context.Context, name string) (catalog.Description, error) {
	var out catalog.Description
	err := c.doJSON(ctx, http.MethodGet, "/api/commands/"+url.PathEscape(name), nil, &out)
	return out, err
}

// Complete lists completion candidates for prefix.
func (c *Client) Complete(ctx context.Context, prefix string) ([]catalog.Description, error) {
	var out []catalog.Description
	err := c.doJSON(ctx, http.MethodGet, "/api/complete?prefix="+url.QueryEscape(prefix), nil, &out)
	return out, err
}

// Search queries the published documents of workspace.
func (c *Client) Search(ctx context.Context, workspace string, q storage.SearchQuery) ([]storage.SearchResult, error) {
	v := url.Values{}
	v.Set("workspace", workspace)
	if q.Text != "" {
		v.Set("q", q.Text)
	}
	if q.Speaker != "" {
		v.Set("speaker", q.Speaker)
	}
	if q.Path != "" {
		v.Set("path", q.Path)
	}
	for _, k := range q.Kinds {
		v.Add("kind", k)
	}
	for _, cmd := range q.Commands {
		v.Add("command", cmd)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	var out []storage.SearchResult
	err := c.doJSON(ctx, http.MethodGet, "/api/search?"+v.Encode(), nil, &out)
	return out, err
}

// Publish uploads the documents of a local index as workspace.
func (c *Client) Publish(ctx context.Context, workspace string, docs []storage.SearchResult) (int, error) {
	var out struct {
		Documents int `json:"documents"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/publish", PublishRequest{Workspace: workspace, Documents: docs}, &out)
	return out.Documents, err
}
