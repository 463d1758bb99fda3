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
	"path/filepath"
	"strings"

	"oyster/internal/export"
	"oyster/internal/script"
)

func runExport(ctx context.Context, a *app, args []string) error {
	fs := a.flags("export")
	format := fs.String("format", "", "pdf or md (default: from --out, else pdf)")
	out := fs.StringP("out", "o", "", "output file (default: the script name with the format's extension)")
	title := fs.String("title", "", "document title (default: the script file name)")
	pageSize := fs.String("page-size", "A4", "PDF page size: A4, Letter or A5")
	fontSize := fs.Float64("font-size", 11, "PDF dialogue font size in points")
	directions := fs.BoolP("directions", "d", false, "include stage directions (jumps, waits, variables)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return a.usageError(fs, "expected exactly one script")
	}
	path := fs.Arg(0)
	a.info.Script = path

	f := strings.ToLower(strings.TrimPrefix(*format, "."))
	if f == "" {
		switch strings.ToLower(filepath.Ext(*out)) {
		case ".md", ".markdown":
			f = "md"
		default:
			f = "pdf"
		}
	}
	if f == "markdown" {
		f = "md"
	}
	if f != "pdf" && f != "md" {
		return a.usageError(fs, fmt.Sprintf("unknown format %q", *format))
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if *out == "" {
		*out = filepath.Join(filepath.Dir(path), base+"."+f)
	}
	if *title == "" {
		*title = base
	}

	text, err := script.ReadFile(path)
	if err != nil {
		return err
	}
	stmts := script.Parse(text)
	if err := ctx.Err(); err != nil {
		return err
	}
	switch f {
	case "pdf":
		err = export.ExportPDF(stmts, *title, *out, export.PDFOptions{
			PageSize:   *pageSize,
			FontSize:   *fontSize,
			Directions: *directions,
			Catalog:    a.cat,
		})
	default:
		blocks, meta := export.Layout(stmts, a.cat, *directions)
		if err = os.MkdirAll(filepath.Dir(*out), 0o755); err == nil {
			err = os.WriteFile(*out, []byte(export.Markdown(*title, blocks, meta)), 0o644)
		}
	}
	if err != nil {
		return err
	}
	a.l.Info("exported", slog.String("script", path), slog.String("out", *out), slog.String("format", f))
	fmt.Fprintln(a.stdout, *out)
	return nil
}
