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
	"errors"
	"fmt"
	"strings"

	"oyster/internal/storage"
)

// Publish replaces the published documents of workspace with docs, as read
// from a local index by storage.Documents. Scripts absent from docs are
// removed from the workspace. It returns the number of documents written.
func Publish(ctx context.Context, db *sql.DB, workspace, publishedBy string, docs []storage.SearchResult) (int, error) {
	workspace = strings.TrimSpace(workspace)
	if workspace == "" {
		return 0, errors.New("workspace is required")
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var wsID int64
	err = tx.QueryRowContext(ctx, `INSERT INTO workspaces(name, published_by) VALUES($1, $2)
		ON CONFLICT (name) DO UPDATE SET published_by = EXCLUDED.published_by, published_at = now()
		RETURNING id`, workspace, publishedBy).Scan(&wsID)
	if err != nil {
		return 0, fmt.Errorf("upsert workspace: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM scripts WHERE workspace_id = $1`, wsID); err != nil {
		return 0, fmt.Errorf("clear workspace: %w", err)
	}

	scriptIDs := map[string]int64{}
	for _, d := range docs {
		id, ok := scriptIDs[d.Path]
		if !ok {
			if err := tx.QueryRowContext(ctx, `INSERT INTO scripts(workspace_id, path) VALUES($1, $2) RETURNING id`, wsID, d.Path).Scan(&id); err != nil {
				return 0, fmt.Errorf("insert script %s: %w", d.Path, err)
			}
			scriptIDs[d.Path] = id
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO documents(script_id, line, kind, command, speaker, text) VALUES($1, $2, $3, $4, $5, $6)`,
			id, d.Line, d.Kind, nullIfEmpty(d.Command), nullIfEmpty(d.Speaker), d.Text); err != nil {
			return 0, fmt.Errorf("insert document %s:%d: %w", d.Path, d.Line, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(docs), nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
