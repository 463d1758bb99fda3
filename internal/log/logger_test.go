/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package log

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestInitJSONFileSink checks that the rotated file sink receives JSON records
// carrying the static and contextual attributes.
func TestInitJSONFileSink(t *testing.T) {
	fpath := filepath.Join(os.TempDir(), fmt.Sprintf("oys_log_%d.json", time.Now().UnixNano()))
	var console bytes.Buffer

	Init(Options{Level: "debug", Format: "console", File: fpath, Console: &console})

	l := WithScript(WithOperation(WithComponent("lint"), "validate"), "intro.oys")
	l.Info("validated", slog.Int("errors", 0))

	b, err := os.ReadFile(fpath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	sc := bufio.NewScanner(bytes.NewReader(b))
	var last string
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			last = s
		}
	}
	if last == "" {
		t.Fatalf("no log lines found")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(last), &m); err != nil {
		t.Fatalf("unmarshal json log: %v", err)
	}
	if m["app"] != "oyster" {
		t.Fatalf("app attr mismatch: %v", m["app"])
	}
	if _, ok := m["ver"].(string); !ok {
		t.Fatalf("missing ver attr")
	}
	if m["component"] != "lint" || m["op"] != "validate" || m["script"] != "intro.oys" {
		t.Fatalf("context attrs mismatch: %v", m)
	}
	if m["msg"] != "validated" {
		t.Fatalf("msg mismatch: %v", m["msg"])
	}

	// The console sink saw the same record in pretty form.
	if !strings.Contains(console.String(), "INF validated") || !strings.Contains(console.String(), "component=lint") {
		t.Fatalf("console output mismatch: %q", console.String())
	}
}

func TestFromEnvAndGetenv(t *testing.T) {
	t.Setenv(EnvLevel, "warn")
	t.Setenv(EnvFormat, "json")
	t.Setenv(EnvSource, "yes")
	t.Setenv(EnvFile, "")

	opts := FromEnv()
	if opts.Level != "warn" || opts.Format != "json" || !opts.AddSource || opts.File != "" {
		t.Fatalf("FromEnv mismatch: %+v", opts)
	}
	if v := getenv("OYS_SURELY_UNSET_VAR", "fallback"); v != "fallback" {
		t.Fatalf("getenv fallback failed: %q", v)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestPrettyTextHandler(t *testing.T) {
	var buf bytes.Buffer
	h := &prettyTextHandler{level: slog.LevelWarn, w: &buf}
	ctx := context.Background()

	if h.Enabled(ctx, slog.LevelInfo) {
		t.Fatalf("info should not be enabled at warn level")
	}
	if !h.Enabled(ctx, slog.LevelError) {
		t.Fatalf("error should be enabled at warn level")
	}

	h2 := h.WithAttrs([]slog.Attr{slog.String("k", "v")}).WithGroup("grp")
	r := slog.Record{Time: time.Now(), Level: slog.LevelError, Message: "boom"}
	r.AddAttrs(slog.Int("n", 42), slog.Float64("pi", 3.14), slog.String("text", "two words"))
	if err := h2.Handle(ctx, r); err != nil {
		t.Fatalf("handle error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"ERR boom", " k=v", "grp.n=42", "grp.pi=3.14", `grp.text="two words"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q: %q", want, out)
		}
	}
	if strings.Contains(out, "grp.k=") {
		t.Fatalf("attrs added before the group must not be prefixed: %q", out)
	}
}

func TestPrettyTextHandlerSource(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(&prettyTextHandler{level: slog.LevelInfo, addSource: true, w: &buf})
	l.Info("where")
	out := buf.String()
	if !strings.Contains(out, " src=") || !strings.Contains(out, "logger_test.go:") {
		t.Fatalf("source missing: %q", out)
	}

	buf.Reset()
	h := &prettyTextHandler{level: slog.LevelInfo, addSource: true, w: &buf}
	if err := h.Handle(context.Background(), slog.Record{Time: time.Now(), Level: slog.LevelInfo, Message: "nowhere"}); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "src=") {
		t.Fatalf("record without PC must not print a source: %q", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	if !l.Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("discard logger should accept records")
	}
	l.Error("dropped")
}
