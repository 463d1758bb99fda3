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
	"io"
	"log/slog"

	"oyster/internal/backend"
	"oyster/internal/lint"
	"oyster/internal/script"
	"oyster/internal/telemetry"
)

// stdinName stands for standard input in file arguments.
const stdinName = "-"

func runLint(ctx context.Context, a *app, args []string) error {
	fs := a.flags("lint")
	asJSON := fs.Bool("json", false, "print results as JSON")
	wae := fs.BoolP("warnings-as-errors", "W", a.cfg.Lint.WarningsAsErrors, "fail on warnings too")
	conc := fs.IntP("concurrency", "j", a.cfg.Lint.Concurrency, "files linted in parallel (0 = one per CPU)")
	remote := fs.Bool("remote", false, "lint on the backend instead of locally")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return a.usageError(fs, "no files given")
	}

	var results []lint.FileResult
	var err error
	switch {
	case fs.NArg() == 1 && fs.Arg(0) == stdinName:
		results, err = a.lintStdin(ctx, *remote)
	case *remote:
		results, err = a.lintRemote(ctx, fs.Args())
	default:
		results, err = a.lintFiles(ctx, fs.Args(), *conc)
	}
	if err != nil {
		return err
	}

	failed := false
	stats := telemetry.LintStats{Files: len(results)}
	for _, r := range results {
		e, w := lint.Count(r.Diagnostics)
		stats.Errors += e
		stats.Warnings += w
		if r.Err != nil || lint.Failed(r.Diagnostics, *wae) {
			failed = true
		}
	}
	a.tel.Lint(stats)
	a.l.Info("lint finished",
		slog.Int("files", stats.Files),
		slog.Int("errors", stats.Errors),
		slog.Int("warnings", stats.Warnings))

	if *asJSON {
		if err := writeLintJSON(a.stdout, results); err != nil {
			return err
		}
	} else {
		printLint(a.stdout, results)
		fmt.Fprintf(a.stdout, "%d file(s), %d error(s), %d warning(s)\n", stats.Files, stats.Errors, stats.Warnings)
	}
	if failed {
		return errFailed
	}
	return nil
}

func (a *app) lintFiles(ctx context.Context, args []string, conc int) ([]lint.FileResult, error) {
	paths, err := lint.Expand(args)
	if err != nil {
		return nil, err
	}
	return lint.New(a.cat).ValidateFiles(ctx, paths, conc)
}

func (a *app) lintStdin(ctx context.Context, remote bool) ([]lint.FileResult, error) {
	data, err := io.ReadAll(a.stdin)
	if err != nil {
		return nil, err
	}
	text, err := script.Decode(data)
	if err != nil {
		return nil, err
	}
	r := lint.FileResult{Path: stdinName}
	if remote {
		resp, err := a.client().Lint(ctx, text)
		if err != nil {
			return nil, err
		}
		r.Diagnostics = resp.Diagnostics
	} else {
		r.Diagnostics = lint.New(a.cat).Validate(text)
	}
	return []lint.FileResult{r}, nil
}

func (a *app) lintRemote(ctx context.Context, args []string) ([]lint.FileResult, error) {
	paths, err := lint.Expand(args)
	if err != nil {
		return nil, err
	}
	c := a.client()
	results := make([]lint.FileResult, len(paths))
	for i, p := range paths {
		results[i].Path = p
		text, err := script.ReadFile(p)
		if err != nil {
			results[i].Err = err
			continue
		}
		resp, err := c.Lint(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		results[i].Diagnostics = resp.Diagnostics
	}
	return results, nil
}

func (a *app) client() *backend.Client {
	return backend.NewClient(a.cfg.Backend.BaseURL, a.token, a.cfg.Backend.Timeout())
}

func printLint(w io.Writer, results []lint.FileResult) {
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "%s: %v\n", r.Path, r.Err)
			continue
		}
		for _, d := range r.Diagnostics {
			fmt.Fprintf(w, "%s:%s [%s]\n", r.Path, d, d.Code)
		}
	}
}

type jsonFileResult struct {
	Path        string            `json:"path"`
	Error       string            `json:"error,omitempty"`
	Diagnostics []lint.Diagnostic `json:"diagnostics"`
}

func writeLintJSON(w io.Writer, results []lint.FileResult) error {
	out := make([]jsonFileResult, 0, len(results))
	for _, r := range results {
		jr := jsonFileResult{Path: r.Path, Diagnostics: r.Diagnostics}
		if jr.Diagnostics == nil {
			jr.Diagnostics = []lint.Diagnostic{}
		}
		if r.Err != nil {
			jr.Error = r.Err.Error()
		}
		out = append(out, jr)
	}
	return encodeJSON(w, out)
}
