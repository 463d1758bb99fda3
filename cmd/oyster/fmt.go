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

	"oyster/internal/lint"
	"oyster/internal/script"
	"oyster/internal/storage"
)

func runFmt(ctx context.Context, a *app, args []string) error {
	fs := a.flags("fmt")
	write := fs.BoolP("write", "w", false, "rewrite files in place (a backup is kept)")
	list := fs.BoolP("list", "l", false, "list files whose formatting differs")
	rootDir := fs.String("root", "", "workspace root holding the backups (default: the script's directory)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return a.usageError(fs, "no files given")
	}
	if fs.NArg() == 1 && fs.Arg(0) == stdinName {
		data, err := io.ReadAll(a.stdin)
		if err != nil {
			return err
		}
		text, err := script.Decode(data)
		if err != nil {
			return err
		}
		_, err = io.WriteString(a.stdout, script.FormatScript(text))
		return err
	}
	paths, err := lint.Expand(fs.Args())
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		text, err := script.ReadFile(p)
		if err != nil {
			return err
		}
		formatted := script.FormatScript(text)
		changed := formatted != text
		if *list {
			if changed {
				fmt.Fprintln(a.stdout, p)
			}
			if !*write {
				continue
			}
		}
		if !*write {
			if _, err := io.WriteString(a.stdout, formatted); err != nil {
				return err
			}
			continue
		}
		if !changed {
			continue
		}
		if err := storage.SaveScript(*rootDir, p, []byte(formatted)); err != nil {
			return err
		}
		a.l.Info("formatted", slog.String("script", p))
	}
	return nil
}
