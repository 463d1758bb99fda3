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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted in the user config directory.
// Environment variables are read-only overrides applied at load time.
//
// config_version: bump when the structure changes in a backward-incompatible way.

type GeneralConfig struct {
	TelemetryOptIn bool `yaml:"telemetry_opt_in" toml:"telemetry_opt_in" mapstructure:"telemetry_opt_in"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" mapstructure:"level"`
	Format string `yaml:"format" toml:"format" mapstructure:"format"`
	Source bool   `yaml:"source" toml:"source" mapstructure:"source"`
	File   string `yaml:"file" toml:"file" mapstructure:"file"`
}

type LintConfig struct {
	WarningsAsErrors bool `yaml:"warnings_as_errors" toml:"warnings_as_errors" mapstructure:"warnings_as_errors"`
	// Concurrency bounds parallel file linting; 0 means one worker per CPU.
	Concurrency int `yaml:"concurrency" toml:"concurrency" mapstructure:"concurrency"`
}

type RunConfig struct {
	// Fast skips Sys_Wait sleeps entirely.
	Fast bool `yaml:"fast" toml:"fast" mapstructure:"fast"`
	// WaitScale multiplies every Sys_Wait duration.
	WaitScale float64 `yaml:"wait_scale" toml:"wait_scale" mapstructure:"wait_scale"`
	MaxSteps  int     `yaml:"max_steps" toml:"max_steps" mapstructure:"max_steps"`
}

type IndexConfig struct {
	// Dir overrides the per-workspace index directory (default <workspace>/.oyster).
	Dir string `yaml:"dir" toml:"dir" mapstructure:"dir"`
}

type BackendConfig struct {
	BaseURL   string `yaml:"base_url" toml:"base_url" mapstructure:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms" toml:"timeout_ms" mapstructure:"timeout_ms"`
	Addr      string `yaml:"addr" toml:"addr" mapstructure:"addr"`
	DSN       string `yaml:"dsn" toml:"dsn" mapstructure:"dsn"`
	// Token is not stored on disk; it lives in the OS keychain.
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version" toml:"config_version" mapstructure:"config_version"`
	General       GeneralConfig `yaml:"general" toml:"general" mapstructure:"general"`
	Logging       LoggingConfig `yaml:"logging" toml:"logging" mapstructure:"logging"`
	Lint          LintConfig    `yaml:"lint" toml:"lint" mapstructure:"lint"`
	Run           RunConfig     `yaml:"run" toml:"run" mapstructure:"run"`
	Index         IndexConfig   `yaml:"index" toml:"index" mapstructure:"index"`
	Backend       BackendConfig `yaml:"backend" toml:"backend" mapstructure:"backend"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false},
		Logging:       LoggingConfig{Level: "info", Format: "console"},
		Lint:          LintConfig{WarningsAsErrors: false, Concurrency: 0},
		Run:           RunConfig{Fast: false, WaitScale: 1, MaxSteps: 0},
		Backend:       BackendConfig{BaseURL: "http://localhost:8080", TimeoutMs: 15000, Addr: ":8080"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigFile       = "OYS_CONFIG"
	EnvBackendURL       = "OYS_BACKEND_URL"
	EnvBackendTimeoutMs = "OYS_BACKEND_TIMEOUT_MS"
	EnvBackendAddr      = "OYS_BACKEND_ADDR"
	EnvDatabaseURL      = "OYS_DATABASE_URL"
	EnvTelemetryOptIn   = "OYS_TELEMETRY_OPT_IN"
	EnvWarningsAsErrors = "OYS_WARNINGS_AS_ERRORS"
	EnvRunFast          = "OYS_RUN_FAST"
	EnvIndexDir         = "OYS_INDEX_DIR"
	EnvLogLevel         = "OYS_LOG_LEVEL"
	EnvLogFormat        = "OYS_LOG_FORMAT"
	EnvLogSource        = "OYS_LOG_SOURCE"
	EnvLogFile          = "OYS_LOG_FILE"
)

// Keyring service and key for the backend bearer token.
const (
	keyringService = "Oyster"
	keyringToken   = "backend_token"
)

// TokenStore abstracts the OS keyring so tests can stub it.
type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

var tokenStore TokenStore = osKeyring{}

// ConfigDir returns the per-user configuration directory.
func ConfigDir() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "Oyster")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "Oyster")
	default:
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "oyster")
		} else if h := os.Getenv("HOME"); h != "" {
			base = filepath.Join(h, ".config", "oyster")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return base, nil
}

// ConfigPath returns the config file to read. OYS_CONFIG wins; otherwise config.yaml,
// falling back to config.toml when only the TOML file exists.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigFile)); p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	yml := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(yml); err != nil {
		tml := filepath.Join(dir, "config.toml")
		if _, terr := os.Stat(tml); terr == nil {
			return tml, nil
		}
	}
	return yml, nil
}

// StateDir is where crash reports and other machine-written files go.
func StateDir() string {
	if x := os.Getenv("XDG_STATE_HOME"); x != "" {
		return filepath.Join(x, "oyster")
	}
	if dir, err := ConfigDir(); err == nil {
		return filepath.Join(dir, "state")
	}
	return filepath.Join(os.TempDir(), "oyster")
}

// Load reads the user config file (if present), applies defaults and environment overrides.
// The backend token is read from the keyring and returned separately.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		fileCfg, err := decode(path, data)
		if err != nil {
			return cfg, "", fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	}
	applyEnvOverrides(&cfg)
	tok, _ := tokenStore.Get(keyringService, keyringToken)
	return cfg, tok, nil
}

func decode(path string, data []byte) (AppConfig, error) {
	var out AppConfig
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		raw := map[string]any{}
		if err := toml.Unmarshal(data, &raw); err != nil {
			return out, err
		}
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &out,
			WeaklyTypedInput: true,
			DecodeHook:       mapstructure.TextUnmarshallerHookFunc(),
		})
		if err != nil {
			return out, err
		}
		return out, dec.Decode(raw)
	}
	err := yaml.Unmarshal(data, &out)
	return out, err
}

// Save writes the config file and persists the token into the OS keyring (if non-empty).
// The format follows the file extension of ConfigPath.
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var data []byte
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if token != "" {
		if err := tokenStore.Set(keyringService, keyringToken, token); err != nil {
			return fmt.Errorf("store token: %w", err)
		}
	}
	return nil
}

// SaveToken stores only the backend token.
func SaveToken(token string) error {
	if token == "" {
		return tokenStore.Delete(keyringService, keyringToken)
	}
	return tokenStore.Set(keyringService, keyringToken, token)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn

	if v := strings.TrimSpace(src.Logging.Level); v != "" {
		dst.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(src.Logging.Format); v != "" {
		dst.Logging.Format = strings.ToLower(v)
	}
	dst.Logging.Source = src.Logging.Source
	if v := strings.TrimSpace(src.Logging.File); v != "" {
		dst.Logging.File = v
	}

	dst.Lint.WarningsAsErrors = src.Lint.WarningsAsErrors
	if src.Lint.Concurrency > 0 {
		dst.Lint.Concurrency = src.Lint.Concurrency
	}

	dst.Run.Fast = src.Run.Fast
	if src.Run.WaitScale > 0 {
		dst.Run.WaitScale = src.Run.WaitScale
	}
	if src.Run.MaxSteps > 0 {
		dst.Run.MaxSteps = src.Run.MaxSteps
	}

	if v := strings.TrimSpace(src.Index.Dir); v != "" {
		dst.Index.Dir = v
	}

	if src.Backend.BaseURL != "" {
		dst.Backend.BaseURL = src.Backend.BaseURL
	}
	if src.Backend.TimeoutMs != 0 {
		dst.Backend.TimeoutMs = src.Backend.TimeoutMs
	}
	if src.Backend.Addr != "" {
		dst.Backend.Addr = src.Backend.Addr
	}
	if src.Backend.DSN != "" {
		dst.Backend.DSN = src.Backend.DSN
	}
}

func envBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvBackendURL)); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendTimeoutMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backend.TimeoutMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendAddr)); v != "" {
		cfg.Backend.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDatabaseURL)); v != "" {
		cfg.Backend.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.General.TelemetryOptIn = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvWarningsAsErrors)); v != "" {
		cfg.Lint.WarningsAsErrors = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvRunFast)); v != "" {
		cfg.Run.Fast = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvIndexDir)); v != "" {
		cfg.Index.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

var overrideKeys = map[string]string{
	"backend.base_url":         EnvBackendURL,
	"backend.timeout_ms":       EnvBackendTimeoutMs,
	"backend.addr":             EnvBackendAddr,
	"backend.dsn":              EnvDatabaseURL,
	"general.telemetry_opt_in": EnvTelemetryOptIn,
	"lint.warnings_as_errors":  EnvWarningsAsErrors,
	"run.fast":                 EnvRunFast,
	"index.dir":                EnvIndexDir,
	"logging.level":            EnvLogLevel,
	"logging.format":           EnvLogFormat,
	"logging.source":           EnvLogSource,
	"logging.file":             EnvLogFile,
}

// EnvOverrideFor returns the env var name if the key is overridden by the environment.
func EnvOverrideFor(key string) (string, bool) {
	env, ok := overrideKeys[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}

// Timeout returns the backend timeout, falling back to the default for non-positive values.
func (b BackendConfig) Timeout() time.Duration {
	ms := b.TimeoutMs
	if ms <= 0 {
		ms = Defaults().Backend.TimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}
