/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package lint

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	applog "oyster/internal/log"
	"oyster/internal/script"
)

// FileResult is the outcome of linting one file. Err is set when the file
// could not be read; Diagnostics is then empty.
type FileResult struct {
	Path        string       `json:"path"`
	Diagnostics []Diagnostic `json:"diagnostics"`
	Err         error        `json:"-"`
}

// ValidateFiles lints paths concurrently with at most concurrency files in
// flight (GOMAXPROCS when <= 0). Results are in the order of paths. The
// returned error is only set when ctx is cancelled; unreadable files are
// reported per result.
func (v *Validator) ValidateFiles(ctx context.Context, paths []string, concurrency int) ([]FileResult, error) {
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	results := make([]FileResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i].Path = p
			text, err := script.ReadFile(p)
			if err != nil {
				applog.WithScript(applog.WithComponent("lint"), p).Warn("read failed", slog.Any("err", err))
				results[i].Err = err
				return nil
			}
			results[i].Diagnostics = v.Validate(text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Expand turns a list of files and directories into script paths. Directories
// are walked recursively for script extensions, skipping hidden directories;
// files named explicitly are kept whatever their extension.
func Expand(args []string) ([]string, error) {
	var out []string
	for _, a := range args {
		info, err := os.Stat(a)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, a)
			continue
		}
		var found []string
		err = filepath.WalkDir(a, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != a && len(d.Name()) > 1 && d.Name()[0] == '.' {
					return filepath.SkipDir
				}
				return nil
			}
			if script.IsScriptFile(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}
