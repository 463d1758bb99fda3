/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"oyster/internal/backend"
	"oyster/internal/storage"
	"oyster/internal/version"
)

func runServe(ctx context.Context, a *app, args []string) error {
	fs := a.flags("serve")
	addr := fs.String("addr", a.cfg.Backend.Addr, "listen address")
	dsn := fs.String("dsn", a.cfg.Backend.DSN, "Postgres DSN; without it search and publish are unavailable")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return a.usageError(fs, "unexpected arguments")
	}
	cfg := backend.Config{
		Addr:    *addr,
		Secret:  strings.TrimSpace(os.Getenv(backend.EnvAuthSecret)),
		Catalog: a.cat,
	}
	a.l.Info("serving", slog.String("addr", cfg.Addr), slog.Bool("database", *dsn != ""))
	return backend.Start(ctx, cfg, *dsn)
}

func runPublish(ctx context.Context, a *app, args []string) error {
	fs := a.flags("publish")
	rootDir := fs.String("root", "", "workspace root (default: working directory)")
	workspace := fs.String("workspace", "", "backend workspace name (default: root directory name)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return a.usageError(fs, "unexpected arguments")
	}
	if a.token == "" {
		fmt.Fprintln(a.stderr, "oyster publish: not logged in; run 'oyster login' first")
		return errFailed
	}
	ws, err := root(*rootDir)
	if err != nil {
		return err
	}
	stats, err := storage.BuildIndex(ctx, ws)
	if err != nil {
		return err
	}
	a.l.Debug("index refreshed", slog.Int("documents", stats.Documents))
	docs, err := storage.Documents(ctx, ws)
	if err != nil {
		return err
	}
	name := workspaceName(*workspace, ws)
	n, err := a.client().Publish(ctx, name, docs)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "published %d document(s) to workspace %q\n", n, name)
	return nil
}

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := a.flags("login")
	subject := fs.String("subject", defaultSubject(), "name the token is issued to")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime (at most 24h)")
	logout := fs.Bool("logout", false, "remove the stored token")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return a.usageError(fs, "unexpected arguments")
	}
	if *logout {
		if err := a.saveToken(""); err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, "logged out")
		return nil
	}
	resp, err := a.client().Token(ctx, *subject, *ttl)
	if err != nil {
		return err
	}
	if err := a.saveToken(resp.Token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	a.token = resp.Token
	fmt.Fprintf(a.stdout, "logged in as %s until %s\n", *subject, resp.ExpiresAt.Local().Format(time.DateTime))
	return nil
}

func runVersion(_ context.Context, a *app, args []string) error {
	fs := a.flags("version")
	if err := parse(fs, args); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "oyster %s\n", version.String())
	return nil
}

// workspaceName defaults a backend workspace to the base name of its root.
func workspaceName(name, ws string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if abs, err := filepath.Abs(ws); err == nil {
		ws = abs
	}
	return filepath.Base(ws)
}

func defaultSubject() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "dev"
}
