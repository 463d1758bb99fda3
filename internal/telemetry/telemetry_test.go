/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu      sync.Mutex
	events  []map[string]any
	crashes [][]byte
}

func (r *recorder) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, req *http.Request) {
		var m map[string]any
		_ = json.NewDecoder(req.Body).Decode(&m)
		r.mu.Lock()
		r.events = append(r.events, m)
		r.mu.Unlock()
	})
	mux.HandleFunc("/crash", func(w http.ResponseWriter, req *http.Request) {
		b, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.crashes = append(r.crashes, b)
		r.mu.Unlock()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientSendsLintAndRunEvents(t *testing.T) {
	var rec recorder
	srv := rec.server(t)
	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", Timeout: 2 * time.Second})
	defer c.Close()

	c.Lint(LintStats{Files: 3, Errors: 1, Warnings: 2})
	c.Run(RunStats{Steps: 42, Reason: "end"})
	c.Flush(context.Background())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(rec.events))
	}
	byName := map[string]map[string]any{}
	for _, e := range rec.events {
		byName[e["name"].(string)] = e
	}
	if l := byName["lint"]; l == nil || l["files"] != float64(3) || l["warnings"] != float64(2) {
		t.Fatalf("lint event mismatch: %v", l)
	}
	if r := byName["run"]; r == nil || r["steps"] != float64(42) || r["reason"] != "end" {
		t.Fatalf("run event mismatch: %v", r)
	}
	if _, ok := byName["lint"]["ts"].(string); !ok {
		t.Fatalf("missing ts")
	}
}

func TestClientDisabledWithoutOptIn(t *testing.T) {
	var rec recorder
	srv := rec.server(t)
	c := New(Config{OptIn: false, EventsURL: srv.URL + "/events", CrashURL: srv.URL + "/crash"})
	defer c.Close()
	if c.Enabled() {
		t.Fatalf("client must be disabled without opt-in")
	}
	c.Lint(LintStats{Files: 1})
	c.UploadCrash([]byte("boom"))
	c.Flush(context.Background())
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 0 || len(rec.crashes) != 0 {
		t.Fatalf("nothing should be sent: %v %v", rec.events, rec.crashes)
	}
}

func TestUploadCrash(t *testing.T) {
	var rec recorder
	srv := rec.server(t)
	c := New(Config{OptIn: true, CrashURL: srv.URL + "/crash"})
	defer c.Close()
	c.UploadCrash([]byte("Panic: boom"))
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.crashes) != 1 || string(rec.crashes[0]) != "Panic: boom" {
		t.Fatalf("crash upload mismatch: %q", rec.crashes)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("OYS_TELEMETRY_OPT_IN", "yes")
	t.Setenv("OYS_TELEMETRY_URL", " https://t.example/ev ")
	t.Setenv("OYS_CRASH_UPLOAD_URL", "")
	t.Setenv("OYS_TELEMETRY_TIMEOUT_MS", "250")
	t.Setenv("OYS_TELEMETRY_DEBUG", "")
	cfg := FromEnv()
	if !cfg.OptIn || cfg.EventsURL != "https://t.example/ev" || cfg.CrashURL != "" || cfg.Timeout != 250*time.Millisecond {
		t.Fatalf("FromEnv mismatch: %+v", cfg)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	c.Lint(LintStats{})
	c.UploadCrash(nil)
	c.Flush(context.Background())
	c.Close()
}
