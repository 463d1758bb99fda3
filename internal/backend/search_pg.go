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
	"fmt"
	"strings"

	"oyster/internal/storage"
)

// SearchPG executes a search over the published documents of a workspace
// using tsvector and filters, and returns results as storage.SearchResult so
// they compare directly with a local index search. Text is matched with
// plainto_tsquery, which agrees with the local FTS5 index for plain terms.
func SearchPG(ctx context.Context, db *sql.DB, workspace string, q storage.SearchQuery) ([]storage.SearchResult, error) {
	var (
		args []any
		b    strings.Builder
	)
	// Helper to add parameter and return placeholder like $n
	place := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	b.WriteString("SELECT d.id, s.path, d.line, d.kind, COALESCE(d.command,''), COALESCE(d.speaker,''), d.text, ")
	if strings.TrimSpace(q.Text) != "" {
		tsq := "plainto_tsquery('simple', " + place(q.Text) + ")"
		b.WriteString("ts_headline('simple', d.text, " + tsq + ", 'StartSel=[, StopSel=], MaxFragments=1, MaxWords=12') ")
		b.WriteString("FROM documents d JOIN scripts s ON s.id = d.script_id JOIN workspaces w ON w.id = s.workspace_id ")
		b.WriteString("WHERE w.name = " + place(workspace) + " AND d.search_vector @@ " + tsq + " ")
	} else {
		b.WriteString("'' ")
		b.WriteString("FROM documents d JOIN scripts s ON s.id = d.script_id JOIN workspaces w ON w.id = s.workspace_id ")
		b.WriteString("WHERE w.name = " + place(workspace) + " ")
	}

	if len(q.Kinds) > 0 {
		b.WriteString(" AND d.kind = ANY (" + place(q.Kinds) + ") ")
	}
	if len(q.Commands) > 0 {
		lower := make([]string, len(q.Commands))
		for i, c := range q.Commands {
			lower[i] = strings.ToLower(c)
		}
		b.WriteString(" AND lower(d.command) = ANY (" + place(lower) + ") ")
	}
	if sp := strings.TrimSpace(q.Speaker); sp != "" {
		b.WriteString(" AND lower(d.speaker) = " + place(strings.ToLower(sp)) + " ")
	}
	if p := strings.TrimSpace(q.Path); p != "" {
		b.WriteString(" AND s.path LIKE " + place(likePrefix(p)) + " ")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	b.WriteString(" ORDER BY s.path, d.line, d.id ")
	b.WriteString(" LIMIT " + place(limit) + " OFFSET " + place(offset))

	rows, err := db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search pg query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []storage.SearchResult
	for rows.Next() {
		var r storage.SearchResult
		if err := rows.Scan(&r.DocID, &r.Path, &r.Line, &r.Kind, &r.Command, &r.Speaker, &r.Text, &r.Snippet); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// likePrefix escapes LIKE wildcards in p and appends %.
func likePrefix(p string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(p) + "%"
}
