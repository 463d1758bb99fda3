/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"oyster/internal/catalog"
	applog "oyster/internal/log"
	"oyster/internal/script"
)

// Document kinds stored in the index.
const (
	KindDialogue = "dialogue"
	KindOption   = "option"
	KindMarker   = "marker"
	KindJump     = "jump"
	KindVariable = "variable"
	KindSpeaker  = "speaker"
	KindComment  = "comment"
	KindCommand  = "command"
)

// IndexStats summarises an index build.
type IndexStats struct {
	Files     int // script files found
	Indexed   int // files parsed and written
	Unchanged int // files skipped because their content hash matched
	Removed   int // scripts dropped because the file is gone
	Documents int // documents written
}

// document is one searchable row before insertion. refs name line markers
// in the same script that the row points at.
type document struct {
	line    int
	kind    string
	command string
	speaker string
	text    string
	refs    []string
}

type parsedScript struct {
	rel     string
	hash    string
	game    string
	version string
	lines   int
	docs    []document
	markers map[string]int
	vars    map[string]variable
}

type variable struct {
	typ  catalog.Type
	line int
}

// BuildIndex brings the workspace index up to date with the scripts under
// root. Files whose content hash is unchanged are skipped; scripts whose file
// disappeared are removed.
func BuildIndex(ctx context.Context, root string) (IndexStats, error) {
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return IndexStats{}, err
	}
	defer db.Close()
	return buildIndex(ctx, db, root)
}

func buildIndex(ctx context.Context, db *sql.DB, root string) (IndexStats, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_build").With(slog.String("root", root))
	start := time.Now()

	files, err := scriptFiles(root)
	if err != nil {
		return IndexStats{}, fmt.Errorf("walk workspace: %w", err)
	}
	known, err := knownHashes(ctx, db)
	if err != nil {
		return IndexStats{}, err
	}

	stats := IndexStats{Files: len(files)}
	parsed := make([]*parsedScript, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, rel := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				return err
			}
			sum := sha256.Sum256(data)
			hash := hex.EncodeToString(sum[:])
			if known[rel] == hash {
				return nil
			}
			text, err := script.Decode(data)
			if err != nil {
				return fmt.Errorf("decode %s: %w", rel, err)
			}
			ps := parseForIndex(text)
			ps.rel, ps.hash = rel, hash
			parsed[i] = ps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f] = true
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("begin tx: %w", err)
	}
	for rel := range known {
		if present[rel] {
			continue
		}
		if err := deleteScript(ctx, tx, rel); err != nil {
			_ = tx.Rollback()
			return stats, err
		}
		stats.Removed++
	}
	for _, ps := range parsed {
		if ps == nil {
			stats.Unchanged++
			continue
		}
		if err := deleteScript(ctx, tx, ps.rel); err != nil {
			_ = tx.Rollback()
			return stats, err
		}
		if err := insertScript(ctx, tx, ps); err != nil {
			_ = tx.Rollback()
			return stats, err
		}
		stats.Indexed++
		stats.Documents += len(ps.docs)
	}
	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("commit: %w", err)
	}
	l.Info("index built",
		slog.Int("files", stats.Files),
		slog.Int("indexed", stats.Indexed),
		slog.Int("unchanged", stats.Unchanged),
		slog.Int("removed", stats.Removed),
		slog.Duration("took", time.Since(start)))
	return stats, nil
}

// scriptFiles lists script files under root as slash-separated relative
// paths, skipping hidden directories such as the index directory itself.
func scriptFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !script.IsScriptFile(path) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(out)
	return out, err
}

func knownHashes(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT path, hash FROM scripts`)
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, h string
		if err := rows.Scan(&p, &h); err != nil {
			return nil, fmt.Errorf("scan script: %w", err)
		}
		out[p] = h
	}
	return out, rows.Err()
}

// parseForIndex turns a script into index rows.
func parseForIndex(text string) *parsedScript {
	cat := catalog.Default()
	lines := script.Scan(text)
	ps := &parsedScript{lines: len(lines), markers: map[string]int{}, vars: map[string]variable{}}
	speaker := ""
	add := func(d document) {
		d.speaker = speaker
		ps.docs = append(ps.docs, d)
	}
	for _, ln := range lines {
		if ln.Kind == script.LineComment {
			t := strings.TrimSpace(ln.Text)
			for _, m := range script.CommentMarkers {
				t = strings.TrimPrefix(t, m)
			}
			if t = strings.TrimSpace(t); t != "" {
				add(document{line: ln.Index, kind: KindComment, text: t})
			}
			continue
		}
		if ln.Stmt == nil {
			continue
		}
		s := *ln.Stmt
		name := s.Command
		cmd, known := cat.Resolve(name)
		if known {
			name = cmd.Name
		}
		arg := func(i int) string {
			v, _ := s.Arg(i)
			return v.Text()
		}
		switch {
		case name == "Act_Speak" || name == "Act_Append":
			add(document{line: ln.Index, kind: KindDialogue, command: name, text: arg(0)})
		case name == "Set_Name":
			speaker = arg(0)
			add(document{line: ln.Index, kind: KindSpeaker, command: name, text: speaker})
		case name == "Line_Marker":
			if _, dup := ps.markers[arg(0)]; !dup && arg(0) != "" {
				ps.markers[arg(0)] = ln.Index
			}
			add(document{line: ln.Index, kind: KindMarker, command: name, text: arg(0)})
		case name == "Show_Options":
			for i := 0; i < 3; i++ {
				if arg(i) == "" {
					continue
				}
				d := document{line: ln.Index, kind: KindOption, command: name, text: arg(i)}
				if lm, ok := s.Option("lm" + strconv.Itoa(i+1)); ok && lm.Text() != "" {
					d.refs = []string{lm.Text()}
				}
				add(d)
			}
		case name == "Meta":
			if v, ok := s.Option("game"); ok {
				ps.game = cat.CanonicalGame(v.Text())
			}
			if v, ok := s.Option("version"); ok {
				ps.version = v.Text()
			}
		case known && cmd.Declares != "":
			if _, seen := ps.vars[arg(0)]; !seen {
				ps.vars[arg(0)] = variable{typ: cmd.Declares, line: ln.Index}
			}
			add(document{line: ln.Index, kind: KindVariable, command: name, text: arg(0)})
		default:
			d := document{line: ln.Index, kind: KindCommand, command: name, text: strings.Join(s.Values(), " ")}
			if known {
				d.refs = markerRefs(cmd, s)
				if name == "Jump_To" {
					d.kind = KindJump
				}
			}
			add(d)
		}
	}
	return ps
}

// markerRefs collects the values of marker-typed parameters.
func markerRefs(cmd *catalog.Command, s script.Statement) []string {
	var out []string
	for i, p := range cmd.Required {
		if p.Role != catalog.RoleMarker {
			continue
		}
		if v, ok := s.Arg(i); ok && v.Text() != "" {
			out = append(out, v.Text())
		}
	}
	for _, p := range cmd.Optional {
		if p.Role != catalog.RoleMarker {
			continue
		}
		if v, ok := s.Option(p.Name); ok && v.Text() != "" {
			out = append(out, v.Text())
		}
	}
	return out
}

func deleteScript(ctx context.Context, tx *sql.Tx, rel string) error {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT script_id FROM scripts WHERE path=?`, rel).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find script %s: %w", rel, err)
	}
	stmts := []string{
		`DELETE FROM refs WHERE from_id IN (SELECT doc_id FROM documents WHERE script_id=?)`,
		`DELETE FROM documents WHERE script_id=?`,
		`DELETE FROM markers WHERE script_id=?`,
		`DELETE FROM variables WHERE script_id=?`,
		`DELETE FROM scripts WHERE script_id=?`,
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("delete script %s: %w", rel, err)
		}
	}
	return nil
}

func insertScript(ctx context.Context, tx *sql.Tx, ps *parsedScript) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO scripts(path, hash, game, version, lines, indexed_at) VALUES(?,?,?,?,?,?)`,
		ps.rel, ps.hash, nullIfEmpty(ps.game), nullIfEmpty(ps.version), ps.lines, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert script %s: %w", ps.rel, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("script id: %w", err)
	}

	ins, err := tx.PrepareContext(ctx, `INSERT INTO documents(script_id, line, kind, command, speaker, text) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer ins.Close()
	docIDs := make([]int64, len(ps.docs))
	markerDoc := make(map[string]int64)
	for i, d := range ps.docs {
		r, err := ins.ExecContext(ctx, id, d.line, d.kind, nullIfEmpty(d.command), nullIfEmpty(d.speaker), d.text)
		if err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		if docIDs[i], err = r.LastInsertId(); err != nil {
			return fmt.Errorf("document id: %w", err)
		}
		if d.kind == KindMarker && ps.markers[d.text] == d.line {
			markerDoc[d.text] = docIDs[i]
		}
	}
	for i, d := range ps.docs {
		for _, target := range d.refs {
			to, ok := markerDoc[target]
			if !ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO refs(from_id, to_id) VALUES(?,?)`, docIDs[i], to); err != nil {
				return fmt.Errorf("insert ref: %w", err)
			}
		}
	}
	for name, line := range ps.markers {
		if _, err := tx.ExecContext(ctx, `INSERT INTO markers(script_id, name, line) VALUES(?,?,?)`, id, name, line); err != nil {
			return fmt.Errorf("insert marker: %w", err)
		}
	}
	for name, v := range ps.vars {
		if _, err := tx.ExecContext(ctx, `INSERT INTO variables(script_id, name, type, line) VALUES(?,?,?,?)`, id, name, string(v.typ), v.line); err != nil {
			return fmt.Errorf("insert variable: %w", err)
		}
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
