/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type memTokens map[string]string

func (m memTokens) Get(service, key string) (string, error) { return m[service+"/"+key], nil }
func (m memTokens) Set(service, key, value string) error {
	m[service+"/"+key] = value
	return nil
}
func (m memTokens) Delete(service, key string) error {
	delete(m, service+"/"+key)
	return nil
}

// isolate points the config lookup at a temp dir and stubs the keyring.
func isolate(t *testing.T) (string, memTokens) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("AppData", dir)
	t.Setenv(EnvConfigFile, "")
	for _, k := range overrideKeys {
		t.Setenv(k, "")
	}
	old := tokenStore
	mem := memTokens{}
	tokenStore = mem
	t.Cleanup(func() { tokenStore = old })
	return dir, mem
}

func TestEnvOverridesBackendURL(t *testing.T) {
	isolate(t)
	t.Setenv(EnvBackendURL, "https://example.test:8443")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got, want := cfg.Backend.BaseURL, "https://example.test:8443"; got != want {
		t.Fatalf("Backend.BaseURL = %q, want %q", got, want)
	}
	if env, ok := EnvOverrideFor("backend.base_url"); !ok || env != EnvBackendURL {
		t.Fatalf("EnvOverrideFor = %q, %v", env, ok)
	}
	if _, ok := EnvOverrideFor("backend.addr"); ok {
		t.Fatalf("backend.addr should not be overridden")
	}
}

func TestEnvOverridesBooleans(t *testing.T) {
	isolate(t)
	t.Setenv(EnvTelemetryOptIn, "true")
	t.Setenv(EnvWarningsAsErrors, "yes")
	t.Setenv(EnvRunFast, "1")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.General.TelemetryOptIn || !cfg.Lint.WarningsAsErrors || !cfg.Run.Fast {
		t.Fatalf("boolean env overrides not applied: %+v", cfg)
	}
}

func TestSaveLoadYAMLRoundTrip(t *testing.T) {
	_, mem := isolate(t)
	cfg := Defaults()
	cfg.Logging.Level = "debug"
	cfg.Lint.WarningsAsErrors = true
	cfg.Run.WaitScale = 0.5
	cfg.Backend.DSN = "postgres://localhost/oyster"
	if err := Save(cfg, "tok-123"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, tok, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tok != "tok-123" || mem[keyringService+"/"+keyringToken] != "tok-123" {
		t.Fatalf("token not persisted: %q", tok)
	}
	if got.Logging.Level != "debug" || !got.Lint.WarningsAsErrors || got.Run.WaitScale != 0.5 || got.Backend.DSN != cfg.Backend.DSN {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestLoadTOML(t *testing.T) {
	isolate(t)
	cfgDir, err := ConfigDir()
	if err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(cfgDir, "config.toml")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	data := `
[logging]
level = "WARN"
format = "json"

[run]
fast = true
wait_scale = 2
max_steps = 500

[backend]
addr = ":9090"
timeout_ms = 2500
`
	if err := os.WriteFile(p, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	if got, _ := ConfigPath(); got != p {
		t.Fatalf("ConfigPath = %q, want TOML fallback %q", got, p)
	}
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "warn" || cfg.Logging.Format != "json" {
		t.Fatalf("logging not decoded: %+v", cfg.Logging)
	}
	if !cfg.Run.Fast || cfg.Run.WaitScale != 2 || cfg.Run.MaxSteps != 500 {
		t.Fatalf("run not decoded: %+v", cfg.Run)
	}
	if cfg.Backend.Addr != ":9090" || cfg.Backend.Timeout() != 2500*time.Millisecond {
		t.Fatalf("backend not decoded: %+v", cfg.Backend)
	}
	// Unset fields keep their defaults.
	if cfg.Backend.BaseURL != Defaults().Backend.BaseURL {
		t.Fatalf("default base url lost: %q", cfg.Backend.BaseURL)
	}
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	dir, _ := isolate(t)
	p := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(p, []byte("logging: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigFile, p)
	if _, _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestMergeIncludesLogging(t *testing.T) {
	dst := Defaults()
	src := Defaults()
	src.Logging.Level = " DEBUG "
	src.Logging.Format = "json"
	src.Logging.Source = true
	src.Logging.File = "/tmp/oyster.log"
	mergeInto(&dst, &src)
	if dst.Logging.Level != "debug" || dst.Logging.Format != "json" || !dst.Logging.Source || dst.Logging.File != "/tmp/oyster.log" {
		t.Fatalf("logging fields not merged correctly: %#v", dst.Logging)
	}
}

func TestSaveTokenEmptyDeletes(t *testing.T) {
	_, mem := isolate(t)
	if err := SaveToken("abc"); err != nil {
		t.Fatal(err)
	}
	if err := SaveToken(""); err != nil {
		t.Fatal(err)
	}
	if _, ok := mem[keyringService+"/"+keyringToken]; ok {
		t.Fatalf("token should be deleted")
	}
}

func TestTimeoutFallback(t *testing.T) {
	if got := (BackendConfig{}).Timeout(); got != 15*time.Second {
		t.Fatalf("Timeout() = %v", got)
	}
}
