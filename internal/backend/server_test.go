/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"oyster/internal/lint"
	"oyster/internal/storage"
	"oyster/internal/version"
)

func newTestServer(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()
	srv := NewServer(Config{Secret: "test-secret"}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, NewClient(ts.URL+"/", "", 5*time.Second)
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestHealthReadyVersion(t *testing.T) {
	ts, _ := newTestServer(t)
	for path, want := range map[string]string{"/healthz": "ok", "/readyz": "ready", "/version": version.String()} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		b, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK || string(b) != want {
			t.Fatalf("GET %s: %d %q", path, resp.StatusCode, b)
		}
	}
}

func TestLintEndpoint(t *testing.T) {
	_, c := newTestServer(t)
	res, err := c.Lint(testCtx(t), "Act_Speek [\"hi\"]\nMeta [version=\"4.0.0\"]\nCheck_BoolVar [\"Flag\", \"a\", \"b\"]\n")
	if err != nil {
		t.Fatalf("Lint: %v", err)
	}
	if res.Errors == 0 || len(res.Diagnostics) != res.Errors+res.Warnings {
		t.Fatalf("lint response = %+v", res)
	}
	first := res.Diagnostics[0]
	if first.Code != lint.CodeUnknownCommand || first.Severity != lint.SeverityError || !strings.Contains(first.Hint, "Act_Speak") {
		t.Fatalf("first diagnostic = %+v", first)
	}

	clean, err := c.Lint(testCtx(t), "Act_Speak [\"hi\"]\n")
	if err != nil {
		t.Fatalf("Lint clean: %v", err)
	}
	if clean.Errors != 0 || clean.Diagnostics == nil || len(clean.Diagnostics) != 0 {
		t.Fatalf("clean response = %+v", clean)
	}
}

func TestDescribeAndComplete(t *testing.T) {
	ts, c := newTestServer(t)
	d, err := c.Describe(testCtx(t), "sys_wait")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if d.Name != "Sys_Wait" || d.Signature != "Sys_Wait [time, canSkip=false]" {
		t.Fatalf("description = %+v", d)
	}

	_, err = c.Describe(testCtx(t), "Act_Speek")
	var he *HTTPError
	if !errors.As(err, &he) || he.Status != http.StatusNotFound || !strings.Contains(he.Message, "Act_Speak") {
		t.Fatalf("unknown command error = %v", err)
	}

	resp, err := http.Get(ts.URL + "/api/commands/Jump_To?format=markdown")
	if err != nil {
		t.Fatalf("markdown: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.HasPrefix(string(b), "**Jump_To**") {
		t.Fatalf("markdown = %q", b)
	}

	list, err := c.Complete(testCtx(t), "set_")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(list) == 0 {
		t.Fatalf("no completions")
	}
	if !strings.HasPrefix(list[0].Name, "Set_") {
		t.Fatalf("first completion = %s", list[0].Name)
	}
}

func TestSearchRequiresAuthAndDatabase(t *testing.T) {
	_, c := newTestServer(t)
	ctx := testCtx(t)
	_, err := c.Search(ctx, "demo", storage.SearchQuery{Text: "hello"})
	var he *HTTPError
	if !errors.As(err, &he) || he.Status != http.StatusUnauthorized {
		t.Fatalf("anonymous search error = %v", err)
	}

	tok, err := c.Token(ctx, "alice", time.Hour)
	if err != nil || tok.Token == "" {
		t.Fatalf("Token: %+v %v", tok, err)
	}
	if !tok.ExpiresAt.After(time.Now()) {
		t.Fatalf("expires_at = %v", tok.ExpiresAt)
	}
	c.BearerToken = tok.Token
	_, err = c.Search(ctx, "demo", storage.SearchQuery{Text: "hello"})
	if !errors.As(err, &he) || he.Status != http.StatusServiceUnavailable {
		t.Fatalf("search without db error = %v", err)
	}
	_, err = c.Publish(ctx, "demo", nil)
	if !errors.As(err, &he) || he.Status != http.StatusServiceUnavailable {
		t.Fatalf("publish without db error = %v", err)
	}

	c.BearerToken = "garbage"
	_, err = c.Search(ctx, "demo", storage.SearchQuery{})
	if !errors.As(err, &he) || he.Status != http.StatusUnauthorized {
		t.Fatalf("bad token error = %v", err)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/lint")
	if err != nil {
		t.Fatalf("GET lint: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	srv := NewServer(Config{Addr: "127.0.0.1:0", Secret: "x"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ListenAndServe: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop")
	}
}

func TestParseVersion(t *testing.T) {
	if v, err := parseVersion("migrations/0001_init.sql"); err != nil || v != 1 {
		t.Fatalf("parseVersion = %d, %v", v, err)
	}
	if _, err := parseVersion("init.sql"); err == nil {
		t.Fatalf("expected error for unnumbered migration")
	}
}

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_refs.sql":  {Data: []byte("CREATE TABLE refs ();")},
		"m/0001_init.SQL":  {Data: []byte("CREATE TABLE scripts ();")},
		"m/0003_blank.sql": {Data: []byte("  \n")},
		"m/README.md":      {Data: []byte("notes")},
	}
	steps, err := loadMigrations(fsys, "m")
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(steps) != 2 || steps[0].version != 1 || steps[1].file != "0002_refs.sql" {
		t.Fatalf("steps = %+v", steps)
	}

	fsys["m/0002_again.sql"] = &fstest.MapFile{Data: []byte("SELECT 1;")}
	if _, err := loadMigrations(fsys, "m"); err == nil || !strings.Contains(err.Error(), "share version 2") {
		t.Fatalf("duplicate version: %v", err)
	}

	steps, err = loadMigrations(migrationsFS, "migrations")
	if err != nil || len(steps) == 0 || steps[0].version != 1 {
		t.Fatalf("embedded migrations = %+v, %v", steps, err)
	}
}
