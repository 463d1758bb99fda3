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
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SearchQuery describes a workspace search.
// Text uses SQLite FTS5 syntax (simple terms, phrases in quotes, AND/OR/NOT).
// Kinds restricts to document kinds such as dialogue, option or marker.
// Speaker matches the Set_Name speaker case-insensitively. Path is a path
// prefix relative to the workspace root.
// Limit/Offset implement pagination; reasonable defaults applied if zero.
type SearchQuery struct {
	Text     string
	Speaker  string
	Kinds    []string
	Commands []string
	Path     string
	Limit    int
	Offset   int
}

// SearchResult is a single match. Snippet marks matched terms with [ ] when
// Text was used. Line is 0-based.
type SearchResult struct {
	DocID   int64  `json:"docId"`
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Kind    string `json:"kind"`
	Command string `json:"command,omitempty"`
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text"`
	Snippet string `json:"snippet,omitempty"`
}

// Search runs a search over the workspace index. An empty Text lists the
// filtered documents in script order.
func Search(ctx context.Context, root string, q SearchQuery) ([]SearchResult, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace root is required")
	}
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return searchDB(ctx, db, q)
}

const resultColumns = "d.doc_id, s.path, d.line, d.kind, COALESCE(d.command,''), COALESCE(d.speaker,''), COALESCE(d.text,'')"

func searchDB(ctx context.Context, db *sql.DB, q SearchQuery) ([]SearchResult, error) {
	var args []any
	var sb strings.Builder
	if strings.TrimSpace(q.Text) != "" {
		sb.WriteString("SELECT " + resultColumns + ", snippet(fts_documents, 0, '[', ']', '…', 10)\n")
		sb.WriteString("FROM fts_documents JOIN documents d ON fts_documents.rowid = d.doc_id JOIN scripts s ON s.script_id = d.script_id\n")
		sb.WriteString("WHERE fts_documents MATCH ?\n")
		args = append(args, q.Text)
	} else {
		sb.WriteString("SELECT " + resultColumns + ", ''\n")
		sb.WriteString("FROM documents d JOIN scripts s ON s.script_id = d.script_id\nWHERE 1=1\n")
	}
	if len(q.Kinds) > 0 {
		sb.WriteString(" AND d.kind IN (" + placeholders(len(q.Kinds)) + ")\n")
		for _, k := range q.Kinds {
			args = append(args, k)
		}
	}
	if len(q.Commands) > 0 {
		sb.WriteString(" AND lower(d.command) IN (" + placeholders(len(q.Commands)) + ")\n")
		for _, c := range q.Commands {
			args = append(args, strings.ToLower(c))
		}
	}
	if s := strings.TrimSpace(q.Speaker); s != "" {
		sb.WriteString(" AND lower(d.speaker) = ?\n")
		args = append(args, strings.ToLower(s))
	}
	if p := strings.TrimSpace(q.Path); p != "" {
		sb.WriteString(" AND s.path LIKE ? ESCAPE '\\'\n")
		args = append(args, likePrefix(p))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	sb.WriteString("ORDER BY s.path, d.line, d.doc_id\n")
	sb.WriteString("LIMIT ? OFFSET ?")
	args = append(args, limit, q.Offset)

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

// Documents lists every indexed document in script order.
func Documents(ctx context.Context, root string) ([]SearchResult, error) {
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	rows, err := db.QueryContext(ctx, `SELECT `+resultColumns+`, ''
		FROM documents d JOIN scripts s ON s.script_id = d.script_id
		ORDER BY s.path, d.line, d.doc_id`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

func scanResults(rows *sql.Rows) ([]SearchResult, error) {
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var sn sql.NullString
		if err := rows.Scan(&r.DocID, &r.Path, &r.Line, &r.Kind, &r.Command, &r.Speaker, &r.Text, &sn); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Snippet = sn.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// WhereUsed lists the jumps, choices and checks in script path that target
// the line marker called marker.
func WhereUsed(ctx context.Context, root, path, marker string) ([]SearchResult, error) {
	if strings.TrimSpace(marker) == "" {
		return nil, errors.New("marker is required")
	}
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	q := `SELECT ` + resultColumns + `, ''
		FROM refs x
		JOIN documents d ON d.doc_id = x.from_id
		JOIN documents t ON t.doc_id = x.to_id
		JOIN scripts s ON s.script_id = d.script_id
		WHERE s.path = ? AND t.kind = 'marker' AND t.text = ?
		ORDER BY d.line, d.doc_id`
	rows, err := db.QueryContext(ctx, q, path, marker)
	if err != nil {
		return nil, fmt.Errorf("where-used query: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

// Location is a place in a workspace script. Line is 0-based.
type Location struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	// Type is set for variables.
	Type string `json:"type,omitempty"`
}

// FindMarker returns the first definition of a line marker in every script
// that defines it.
func FindMarker(ctx context.Context, root, name string) ([]Location, error) {
	return findNamed(ctx, root, `SELECT s.path, m.line, '' FROM markers m JOIN scripts s ON s.script_id = m.script_id WHERE m.name = ? ORDER BY s.path`, name)
}

// FindVariable returns the first declaration of a variable in every script
// that declares it.
func FindVariable(ctx context.Context, root, name string) ([]Location, error) {
	return findNamed(ctx, root, `SELECT s.path, v.line, v.type FROM variables v JOIN scripts s ON s.script_id = v.script_id WHERE v.name = ? ORDER BY s.path`, name)
}

func findNamed(ctx context.Context, root, query, name string) ([]Location, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("name is required")
	}
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	rows, err := db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", name, err)
	}
	defer rows.Close()
	var out []Location
	for rows.Next() {
		var loc Location
		if err := rows.Scan(&loc.Path, &loc.Line, &loc.Type); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

func likePrefix(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s) + "%"
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := strings.Builder{}
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("?")
	}
	return b.String()
}
