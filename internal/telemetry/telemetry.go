/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package telemetry sends opt-in, anonymous usage events (lint and run counters)
// and optional crash reports. Nothing is sent unless the user opted in and an
// endpoint is configured.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	applog "oyster/internal/log"
	"oyster/internal/version"
)

// Config holds runtime configuration for telemetry and crash uploads.
//
// Environment variables (read by FromEnv):
//   - OYS_TELEMETRY_OPT_IN: "1", "true", "yes" to enable events
//   - OYS_TELEMETRY_URL: URL events are POSTed to as JSON
//   - OYS_CRASH_UPLOAD_URL: URL crash reports are POSTed to
//   - OYS_TELEMETRY_TIMEOUT_MS: request timeout, default 1500ms
//   - OYS_TELEMETRY_DEBUG: if set, logs send attempts
type Config struct {
	OptIn        bool
	EventsURL    string
	CrashURL     string
	Timeout      time.Duration
	DebugLogging bool
}

func FromEnv() Config {
	cfg := Config{
		OptIn:        parseBool(os.Getenv("OYS_TELEMETRY_OPT_IN")),
		EventsURL:    strings.TrimSpace(os.Getenv("OYS_TELEMETRY_URL")),
		CrashURL:     strings.TrimSpace(os.Getenv("OYS_CRASH_UPLOAD_URL")),
		Timeout:      1500 * time.Millisecond,
		DebugLogging: os.Getenv("OYS_TELEMETRY_DEBUG") != "",
	}
	if ms := strings.TrimSpace(os.Getenv("OYS_TELEMETRY_TIMEOUT_MS")); ms != "" {
		if v, err := time.ParseDuration(ms + "ms"); err == nil {
			cfg.Timeout = v
		}
	}
	return cfg
}

func parseBool(v string) bool {
	s := strings.ToLower(strings.TrimSpace(v))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

// LintStats is the payload of a "lint" event.
type LintStats struct {
	Files    int `json:"files"`
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
}

// RunStats is the payload of a "run" event.
type RunStats struct {
	Steps  int    `json:"steps"`
	Reason string `json:"reason"` // vm.VM.Reason: "end", "step-limit", "cancelled", "invalid-choice", "error"
}

// Client is an async sender with a bounded queue; it drops events on errors
// and never blocks the caller.
type Client struct {
	cfg    Config
	log    *slog.Logger
	cli    *http.Client
	q      chan map[string]any
	wg     sync.WaitGroup
	once   sync.Once
	closed chan struct{}
}

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// Default returns the package-level client, creating it from the environment on first use.
func Default() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		defaultClient = New(FromEnv())
	}
	return defaultClient
}

// SetDefault replaces the package-level client. The previous one is closed.
func SetDefault(c *Client) {
	defaultMu.Lock()
	old := defaultClient
	defaultClient = c
	defaultMu.Unlock()
	if old != nil && old != c {
		old.Close()
	}
}

// New constructs a client and starts its sender goroutine.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1500 * time.Millisecond
	}
	c := &Client{
		cfg:    cfg,
		log:    applog.WithComponent("telemetry"),
		cli:    &http.Client{Timeout: cfg.Timeout},
		q:      make(chan map[string]any, 64),
		closed: make(chan struct{}),
	}
	go c.loop()
	return c
}

// Enabled reports whether events will actually be sent.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Event queues a JSON event if enabled. Props must not contain personal data
// (no script text, no file paths).
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	payload := map[string]any{
		"name":    name,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"version": version.String(),
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
	}
	for k, v := range props {
		payload[k] = v
	}
	c.wg.Add(1)
	select {
	case c.q <- payload:
	default:
		c.wg.Done()
	}
}

// Lint records the outcome of a lint invocation.
func (c *Client) Lint(s LintStats) {
	c.Event("lint", map[string]any{"files": s.Files, "errors": s.Errors, "warnings": s.Warnings})
}

// Run records the outcome of a script run.
func (c *Client) Run(s RunStats) {
	c.Event("run", map[string]any{"steps": s.Steps, "reason": s.Reason})
}

// Flush waits until queued events were sent, the context ends, or 500ms pass.
func (c *Client) Flush(ctx context.Context) {
	if c == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	case <-time.After(500 * time.Millisecond):
	}
}

// Close stops the sender goroutine. Queued events are dropped.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.once.Do(func() { close(c.closed) })
}

func (c *Client) loop() {
	for {
		select {
		case <-c.closed:
			return
		case item := <-c.q:
			c.post(c.cfg.EventsURL, "application/json", mustJSON(item), "event")
			c.wg.Done()
		}
	}
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func (c *Client) post(url, contentType string, body []byte, what string) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.cli.Do(req)
	if err != nil {
		if c.cfg.DebugLogging {
			c.log.Debug("telemetry send failed", slog.String("kind", what), slog.Any("err", err))
		}
		return
	}
	_ = resp.Body.Close()
	if c.cfg.DebugLogging {
		c.log.Debug("telemetry sent", slog.String("kind", what), slog.Int("status", resp.StatusCode))
	}
}

// UploadCrash posts a crash report synchronously if opted in. The process is
// about to exit when this is called, so it does not go through the queue.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", report, "crash")
}
