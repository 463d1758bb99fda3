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
	"strings"
	"text/tabwriter"
	"time"

	"oyster/internal/storage"
)

func runIndex(ctx context.Context, a *app, args []string) error {
	fs := a.flags("index")
	rebuild := fs.Bool("rebuild", false, "drop the index and rebuild it from scratch (keeps transcripts)")
	rootDir := fs.String("root", "", "workspace root (default: working directory)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return a.usageError(fs, "unexpected arguments")
	}
	ws, err := root(*rootDir)
	if err != nil {
		return err
	}
	if rebuilt, err := storage.DetectAndRebuildIndex(ctx, ws); err != nil {
		return err
	} else if rebuilt {
		fmt.Fprintln(a.stderr, "index was unreadable and has been rebuilt")
	}
	var stats storage.IndexStats
	if *rebuild {
		stats, err = storage.RebuildIndex(ctx, ws)
	} else {
		stats, err = storage.BuildIndex(ctx, ws)
	}
	if err != nil {
		return err
	}
	a.l.Info("index built", slog.String("root", ws))
	fmt.Fprintf(a.stdout, "%s\n", formatStats(stats))
	return nil
}

func runSearch(ctx context.Context, a *app, args []string) error {
	fs := a.flags("search")
	speaker := fs.String("speaker", "", "only lines spoken by this Set_Name speaker")
	kinds := fs.StringSlice("kind", nil, "only these document kinds (line, option, marker, ...)")
	cmds := fs.StringSlice("command", nil, "only these commands")
	prefix := fs.String("path", "", "only scripts under this path prefix")
	limit := fs.Int("limit", 0, "maximum results (default 100)")
	offset := fs.Int("offset", 0, "skip this many results")
	rootDir := fs.String("root", "", "workspace root (default: working directory)")
	remote := fs.Bool("remote", false, "search the published workspace on the backend")
	workspace := fs.String("workspace", "", "backend workspace name (default: root directory name)")
	asJSON := fs.Bool("json", false, "print results as JSON")
	if err := parse(fs, args); err != nil {
		return err
	}
	q := storage.SearchQuery{
		Text:     strings.Join(fs.Args(), " "),
		Speaker:  *speaker,
		Kinds:    *kinds,
		Commands: *cmds,
		Path:     *prefix,
		Limit:    *limit,
		Offset:   *offset,
	}
	ws, err := root(*rootDir)
	if err != nil {
		return err
	}
	var res []storage.SearchResult
	if *remote {
		res, err = a.client().Search(ctx, workspaceName(*workspace, ws), q)
	} else {
		res, err = storage.Search(ctx, ws, q)
	}
	if err != nil {
		return err
	}
	if *asJSON {
		if res == nil {
			res = []storage.SearchResult{}
		}
		return encodeJSON(a.stdout, res)
	}
	printResults(a.stdout, res)
	return nil
}

func runRefs(ctx context.Context, a *app, args []string) error {
	fs := a.flags("refs")
	marker := fs.String("marker", "", "find the Line_Marker definition of this name and the lines that jump to it")
	variable := fs.String("variable", "", "find the declarations of this variable")
	rootDir := fs.String("root", "", "workspace root (default: working directory)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if (*marker == "") == (*variable == "") {
		return a.usageError(fs, "give exactly one of --marker or --variable")
	}
	ws, err := root(*rootDir)
	if err != nil {
		return err
	}
	var locs []storage.Location
	if *marker != "" {
		locs, err = storage.FindMarker(ctx, ws, *marker)
	} else {
		locs, err = storage.FindVariable(ctx, ws, *variable)
	}
	if err != nil {
		return err
	}
	if len(locs) == 0 {
		fmt.Fprintln(a.stderr, "no definitions found")
		return errFailed
	}
	for _, l := range locs {
		if l.Type != "" {
			fmt.Fprintf(a.stdout, "%s:%d: %s\n", l.Path, l.Line+1, l.Type)
		} else {
			fmt.Fprintf(a.stdout, "%s:%d\n", l.Path, l.Line+1)
		}
		if *marker == "" {
			continue
		}
		used, err := storage.WhereUsed(ctx, ws, l.Path, *marker)
		if err != nil {
			return err
		}
		for _, u := range used {
			fmt.Fprintf(a.stdout, "  used at %s:%d: %s\n", u.Path, u.Line+1, u.Command)
		}
	}
	return nil
}

func runTranscripts(ctx context.Context, a *app, args []string) error {
	fs := a.flags("transcripts")
	limit := fs.Int("limit", 10, "number of runs to list, newest first")
	keep := fs.Int("prune", -1, "delete all but this many newest runs")
	show := fs.Bool("lines", false, "print the dialogue of each run")
	rootDir := fs.String("root", "", "workspace root (default: working directory)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return a.usageError(fs, "expected one script path, relative to the workspace root")
	}
	ws, err := root(*rootDir)
	if err != nil {
		return err
	}
	path := fs.Arg(0)
	if *keep >= 0 {
		n, err := storage.PruneTranscripts(ctx, ws, path, *keep)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "pruned %d run(s)\n", n)
		return nil
	}
	recs, err := storage.ListTranscripts(ctx, ws, path, *limit)
	if err != nil {
		return err
	}
	for _, r := range recs {
		fmt.Fprintf(a.stdout, "#%d %s %s steps=%d choices=%d\n",
			r.ID, r.TS.Local().Format(time.DateTime), r.Reason, r.Steps, len(r.Choices))
		if *show {
			for _, ln := range r.Lines {
				fmt.Fprintf(a.stdout, "    %s\n", ln)
			}
		}
	}
	return nil
}

func formatStats(s storage.IndexStats) string {
	return fmt.Sprintf("%d file(s): %d indexed, %d unchanged, %d removed, %d document(s)",
		s.Files, s.Indexed, s.Unchanged, s.Removed, s.Documents)
}

func printResults(w io.Writer, res []storage.SearchResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range res {
		text := r.Snippet
		if text == "" {
			text = r.Text
		}
		who := r.Speaker
		if who == "" {
			who = "-"
		}
		fmt.Fprintf(tw, "%s:%d\t%s\t%s\t%s\n", r.Path, r.Line+1, r.Kind, who, text)
	}
	_ = tw.Flush()
}
