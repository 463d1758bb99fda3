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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"oyster/internal/catalog"
	"oyster/internal/lint"
	applog "oyster/internal/log"
	"oyster/internal/storage"
	"oyster/internal/version"
)

// EnvAuthSecret names the variable holding the token signing secret.
const EnvAuthSecret = "OYS_AUTH_SECRET"

const devSecret = "dev-secret-change-me"

// maxBody bounds request bodies.
const maxBody = 4 << 20

// Config holds server configuration.
type Config struct {
	Addr   string // http bind address, e.g. ":8080"
	Secret string // HMAC secret for bearer tokens
	// Catalog defaults to catalog.Default().
	Catalog *catalog.Catalog
}

// Server exposes lint, describe, completion and search over HTTP. The
// database is optional; without it search and publish answer 503.
type Server struct {
	cfg Config
	db  *sql.DB
	cat *catalog.Catalog
	val *lint.Validator
	l   *slog.Logger
	now func() time.Time
}

// NewServer builds a server. db may be nil.
func NewServer(cfg Config, db *sql.DB) *Server {
	l := applog.WithComponent("backend")
	if cfg.Secret == "" {
		cfg.Secret = devSecret
		l.Warn("auth secret not set; using insecure dev secret", slog.String("env", EnvAuthSecret))
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	cat := cfg.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	return &Server{cfg: cfg, db: db, cat: cat, val: lint.New(cat), l: l, now: time.Now}
}

// LintResponse is the body of POST /api/lint.
type LintResponse struct {
	Diagnostics []lint.Diagnostic `json:"diagnostics"`
	Errors      int               `json:"errors"`
	Warnings    int               `json:"warnings"`
}

// PublishRequest is the body of POST /api/publish.
type PublishRequest struct {
	Workspace string                 `json:"workspace"`
	Documents []storage.SearchResult `json:"documents"`
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeText(w, http.StatusOK, "ok")
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.db == nil {
			writeText(w, http.StatusOK, "ready")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			writeText(w, http.StatusServiceUnavailable, "db not ready")
			return
		}
		writeText(w, http.StatusOK, "ready")
	})
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		writeText(w, http.StatusOK, version.String())
	})
	mux.HandleFunc("POST /api/auth/token", s.handleToken)
	mux.HandleFunc("POST /api/lint", s.handleLint)
	mux.HandleFunc("GET /api/commands/{name}", s.handleDescribe)
	mux.HandleFunc("GET /api/complete", s.handleComplete)
	mux.HandleFunc("GET /api/search", s.withAuth(s.handleSearch))
	mux.HandleFunc("POST /api/publish", s.withAuth(s.handlePublish))
	return s.logRequests(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.l.Info("listening", slog.String("addr", s.cfg.Addr), slog.Bool("db", s.db != nil))
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start opens the database when dsn is set and serves until ctx ends.
func Start(ctx context.Context, cfg Config, dsn string) error {
	var db *sql.DB
	if strings.TrimSpace(dsn) != "" {
		var err error
		if db, err = Open(ctx, dsn); err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
	}
	return NewServer(cfg, db).ListenAndServe(ctx)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	// Optional JSON body: { "subject": "name", "ttl_seconds": 3600 }
	var req struct {
		Subject    string `json:"subject"`
		TTLSeconds int64  `json:"ttl_seconds"`
	}
	b, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	_ = json.Unmarshal(b, &req)
	if req.Subject == "" {
		req.Subject = "dev"
	}
	if req.TTLSeconds <= 0 || req.TTLSeconds > 24*3600 {
		req.TTLSeconds = 3600
	}
	exp := s.now().Add(time.Duration(req.TTLSeconds) * time.Second)
	tok, err := signToken(s.cfg.Secret, req.Subject, exp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: tok, ExpiresAt: exp.UTC().Truncate(time.Second)})
}

// TokenResponse is the body of POST /api/auth/token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleLint(w http.ResponseWriter, r *http.Request) {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(b) > maxBody {
		writeError(w, http.StatusRequestEntityTooLarge, errors.New("script too large"))
		return
	}
	diags := s.val.Validate(string(b))
	errs, warns := lint.Count(diags)
	if diags == nil {
		diags = []lint.Diagnostic{}
	}
	writeJSON(w, http.StatusOK, LintResponse{Diagnostics: diags, Errors: errs, Warnings: warns})
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	d, ok := s.cat.Describe(name)
	if !ok {
		err := fmt.Errorf("%w: %s", catalog.ErrUnknownCommand, name)
		if hint, ok := s.cat.Suggest(name); ok {
			err = fmt.Errorf("%w (did you mean %s?)", err, hint)
		}
		writeError(w, http.StatusNotFound, err)
		return
	}
	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, d.Markdown())
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	list := s.cat.Complete(r.URL.Query().Get("prefix"))
	if list == nil {
		list = []catalog.Description{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, _ string) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("search needs a database"))
		return
	}
	v := r.URL.Query()
	ws := v.Get("workspace")
	if ws == "" {
		writeError(w, http.StatusBadRequest, errors.New("workspace is required"))
		return
	}
	q := storage.SearchQuery{
		Text:     v.Get("q"),
		Speaker:  v.Get("speaker"),
		Kinds:    v["kind"],
		Commands: v["command"],
		Path:     v.Get("path"),
	}
	var err error
	if q.Limit, err = intParam(v.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("limit: %w", err))
		return
	}
	if q.Offset, err = intParam(v.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("offset: %w", err))
		return
	}
	res, err := SearchPG(r.Context(), s.db, ws, q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if res == nil {
		res = []storage.SearchResult{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request, subject string) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("publish needs a database"))
		return
	}
	var req PublishRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 8*maxBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	n, err := Publish(r.Context(), s.db, req.Workspace, subject, req.Documents)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.l.Info("published", slog.String("workspace", req.Workspace), slog.String("by", subject), slog.Int("documents", n))
	writeJSON(w, http.StatusOK, map[string]int{"documents": n})
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.l.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("took", time.Since(start)))
	})
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, text)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
