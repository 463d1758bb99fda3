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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"oyster/internal/vm"
)

// language=SQL
// dialect=SQLite
const insertTranscriptSQL = `INSERT INTO transcripts(path, ts, reason, steps, lines, choices) VALUES (?, ?, ?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const listTranscriptsSQL = `SELECT id, path, ts, reason, steps, lines, choices FROM transcripts WHERE path = ? ORDER BY ts DESC, id DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const pruneTranscriptsSQL = `DELETE FROM transcripts WHERE path = ? AND id NOT IN (
	SELECT id FROM transcripts WHERE path = ? ORDER BY ts DESC, id DESC LIMIT ?
)`

// RunRecord is a stored transcript of one script run.
type RunRecord struct {
	ID      int64       `json:"id"`
	Path    string      `json:"path"`
	TS      time.Time   `json:"ts"`
	Reason  string      `json:"reason"`
	Steps   int         `json:"steps"`
	Lines   []string    `json:"lines"`
	Choices []vm.Choice `json:"choices"`
}

// SaveTranscript stores a run in the workspace index. The index is derived
// data; transcripts are kept for replay and comparison, not as canonical state.
func SaveTranscript(ctx context.Context, root string, rec RunRecord) (int64, error) {
	if strings.TrimSpace(rec.Path) == "" {
		return 0, errors.New("transcript path is required")
	}
	if rec.TS.IsZero() {
		rec.TS = time.Now()
	}
	lines, err := json.Marshal(nonNil(rec.Lines))
	if err != nil {
		return 0, fmt.Errorf("encode lines: %w", err)
	}
	choices, err := json.Marshal(nonNil(rec.Choices))
	if err != nil {
		return 0, fmt.Errorf("encode choices: %w", err)
	}
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()
	res, err := db.ExecContext(ctx, insertTranscriptSQL, rec.Path, rec.TS.UTC().Format(time.RFC3339Nano), rec.Reason, rec.Steps, string(lines), string(choices))
	if err != nil {
		return 0, fmt.Errorf("save transcript: %w", err)
	}
	return res.LastInsertId()
}

// ListTranscripts returns up to limit most recent runs of the script at path.
func ListTranscripts(ctx context.Context, root, path string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	rows, err := db.QueryContext(ctx, listTranscriptsSQL, path, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var tsStr, lines, choices string
		if err := rows.Scan(&rec.ID, &rec.Path, &tsStr, &rec.Reason, &rec.Steps, &lines, &choices); err != nil {
			return nil, err
		}
		rec.TS, _ = time.Parse(time.RFC3339Nano, tsStr)
		if err := json.Unmarshal([]byte(lines), &rec.Lines); err != nil {
			return nil, fmt.Errorf("decode transcript %d: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(choices), &rec.Choices); err != nil {
			return nil, fmt.Errorf("decode transcript %d: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PruneTranscripts keeps at most keepLast runs of the script at path and
// deletes older ones.
func PruneTranscripts(ctx context.Context, root, path string, keepLast int) (int64, error) {
	if keepLast <= 0 {
		return 0, nil
	}
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()
	res, err := db.ExecContext(ctx, pruneTranscriptsSQL, path, path, keepLast)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
