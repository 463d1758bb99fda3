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
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "oyster/internal/log"
	"oyster/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	// IndexDirName holds the per-workspace index data under the workspace root.
	IndexDirName  = ".oyster"
	IndexFileName = "index.sqlite"

	// schemaVersion tracks the local SQLite schema for the index.
	// Bump this when you perform breaking schema changes and add migrations.
	schemaVersion = 2
)

var indexDir = IndexDirName

// SetIndexDir overrides where index data lives. A relative dir is resolved
// against the workspace root; an empty dir restores the default.
func SetIndexDir(dir string) {
	if strings.TrimSpace(dir) == "" {
		dir = IndexDirName
	}
	indexDir = dir
}

// Dir returns the index data directory of the workspace at root.
func Dir(root string) string {
	if filepath.IsAbs(indexDir) {
		return indexDir
	}
	return filepath.Join(root, indexDir)
}

// IndexPath returns the full path to the workspace index database file.
func IndexPath(root string) string {
	return filepath.Join(Dir(root), IndexFileName)
}

// InitOrOpenIndex ensures that the workspace SQLite index exists at
// .oyster/index.sqlite, opens it in WAL mode and brings the schema up to date.
// Callers close the returned *sql.DB.
func InitOrOpenIndex(root string) (*sql.DB, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_init").With(
		slog.String("root", root),
	)
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace root is required")
	}
	if err := os.MkdirAll(Dir(root), 0o755); err != nil {
		l.Error("create index dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	path := IndexPath(root)
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		l.Warn("enable foreign_keys failed", slog.Any("err", err))
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure index schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("index ready", slog.String("path", path))
	return db, nil
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var curSchema int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		// keep the stored schema for migrations
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if cur > schemaVersion {
		// Never downgrade.
		return nil
	}
	for cur < schemaVersion {
		next := cur + 1
		switch next {
		case 2:
			// Version 1 indexes had no speaker column.
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				return fmt.Errorf("begin migration %d: %w", next, err)
			}
			has, err := hasColumn(ctx, tx, "documents", "speaker")
			if err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d: %w", next, err)
			}
			if !has {
				if _, err := tx.ExecContext(ctx, `ALTER TABLE documents ADD COLUMN speaker TEXT;`); err != nil {
					_ = tx.Rollback()
					return fmt.Errorf("migration %d stmt failed: %w", next, err)
				}
			}
			if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d update version: %w", next, err)
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("migration %d commit: %w", next, err)
			}
			// best effort
			_, _ = db.ExecContext(ctx, `INSERT INTO fts_documents(fts_documents) VALUES('optimize')`)
		}
		cur = next
	}
	return nil
}

func hasColumn(ctx context.Context, tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// ensureIndexSchema creates the index tables and FTS structures if they do not exist.
func ensureIndexSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		// One row per indexed script file; path is relative to the workspace root.
		`CREATE TABLE IF NOT EXISTS scripts (
			script_id  INTEGER PRIMARY KEY,
			path       TEXT    NOT NULL UNIQUE,
			hash       TEXT    NOT NULL,
			game       TEXT,
			version    TEXT,
			lines      INTEGER NOT NULL,
			indexed_at TEXT    NOT NULL
		);`,
		// Searchable content: dialogue, options, markers, variables, comments.
		`CREATE TABLE IF NOT EXISTS documents (
			doc_id    INTEGER PRIMARY KEY,
			script_id INTEGER NOT NULL REFERENCES scripts(script_id) ON DELETE CASCADE,
			line      INTEGER NOT NULL,
			kind      TEXT    NOT NULL,
			command   TEXT,
			speaker   TEXT,
			text      TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_script ON documents(script_id, line);`,

		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_documents USING fts5(
			text,
			content='documents',
			content_rowid='doc_id',
			tokenize = 'unicode61'
		);`,

		// Jumps and choices pointing at the Line_Marker document they target.
		`CREATE TABLE IF NOT EXISTS refs (
			from_id INTEGER NOT NULL,
			to_id   INTEGER NOT NULL,
			PRIMARY KEY(from_id, to_id),
			FOREIGN KEY(from_id) REFERENCES documents(doc_id) ON DELETE CASCADE,
			FOREIGN KEY(to_id)   REFERENCES documents(doc_id) ON DELETE CASCADE
		);`,

		`CREATE TABLE IF NOT EXISTS markers (
			script_id INTEGER NOT NULL REFERENCES scripts(script_id) ON DELETE CASCADE,
			name      TEXT    NOT NULL,
			line      INTEGER NOT NULL,
			PRIMARY KEY(script_id, name)
		);`,
		`CREATE TABLE IF NOT EXISTS variables (
			script_id INTEGER NOT NULL REFERENCES scripts(script_id) ON DELETE CASCADE,
			name      TEXT    NOT NULL,
			type      TEXT    NOT NULL,
			line      INTEGER NOT NULL,
			PRIMARY KEY(script_id, name)
		);`,

		// Recorded runs.
		`CREATE TABLE IF NOT EXISTS transcripts (
			id      INTEGER PRIMARY KEY,
			path    TEXT    NOT NULL,
			ts      TEXT    NOT NULL,
			reason  TEXT    NOT NULL,
			steps   INTEGER NOT NULL,
			lines   TEXT    NOT NULL,
			choices TEXT    NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transcripts_path_ts ON transcripts(path, ts);`,
		`CREATE INDEX IF NOT EXISTS idx_refs_to ON refs(to_id);`,
		`CREATE INDEX IF NOT EXISTS idx_markers_name ON markers(name);`,
		`CREATE INDEX IF NOT EXISTS idx_variables_name ON variables(name);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure index schema: %w", err)
		}
	}
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
			INSERT INTO fts_documents(rowid, text) VALUES (new.doc_id, new.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
			INSERT INTO fts_documents(fts_documents, rowid, text) VALUES ('delete', old.doc_id, old.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS documents_au AFTER UPDATE OF text ON documents BEGIN
			INSERT INTO fts_documents(fts_documents, rowid, text) VALUES ('delete', old.doc_id, old.text);
			INSERT INTO fts_documents(rowid, text) VALUES (new.doc_id, new.text);
		END;`,
	}
	for _, q := range triggers {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure fts triggers: %w", err)
		}
	}
	return nil
}

// DetectAndRebuildIndex checks the index for corruption or a missing schema
// and rebuilds it from the workspace scripts when needed. It reports whether
// a rebuild happened.
func DetectAndRebuildIndex(ctx context.Context, root string) (bool, error) {
	path := IndexPath(root)
	db, err := InitOrOpenIndex(root)
	if err != nil {
		backupIndexFile(path)
		removeIndexFiles(path)
		if _, rbErr := RebuildIndex(ctx, root); rbErr != nil {
			return false, fmt.Errorf("rebuild after open failure: %w (open err: %v)", rbErr, err)
		}
		return true, nil
	}
	needs := false
	var chk string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk); err != nil || !strings.Contains(strings.ToLower(chk), "ok") {
		needs = true
	}
	if !needs {
		if _, err := db.ExecContext(ctx, `SELECT 1 FROM documents LIMIT 1;`); err != nil {
			needs = true
		}
	}
	_ = db.Close()
	if !needs {
		return false, nil
	}
	backupIndexFile(path)
	removeIndexFiles(path)
	if _, err := RebuildIndex(ctx, root); err != nil {
		return false, err
	}
	return true, nil
}

// backupIndexFile copies the current index file into the backups folder next to it.
func backupIndexFile(indexPath string) {
	bdir := filepath.Join(filepath.Dir(indexPath), BackupsDirName)
	_ = os.MkdirAll(bdir, 0o755)
	stamp := time.Now().Format("20060102-150405")
	bak := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(indexPath), stamp))
	if data, err := os.ReadFile(indexPath); err == nil {
		_ = os.WriteFile(bak, data, 0o644)
	}
}

func removeIndexFiles(indexPath string) {
	for _, suffix := range []string{"", "-wal", "-shm"} {
		_ = os.Remove(indexPath + suffix)
	}
}

// RebuildIndex drops the derived tables and indexes every script again.
// Transcripts and meta are kept.
func RebuildIndex(ctx context.Context, root string) (IndexStats, error) {
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return IndexStats{}, err
	}
	defer db.Close()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return IndexStats{}, fmt.Errorf("begin tx: %w", err)
	}
	drops := []string{
		"DROP TABLE IF EXISTS refs;",
		"DROP TABLE IF EXISTS markers;",
		"DROP TABLE IF EXISTS variables;",
		"DROP TRIGGER IF EXISTS documents_ai;",
		"DROP TRIGGER IF EXISTS documents_ad;",
		"DROP TRIGGER IF EXISTS documents_au;",
		"DROP TABLE IF EXISTS documents;",
		"DROP TABLE IF EXISTS fts_documents;",
		"DROP TABLE IF EXISTS scripts;",
	}
	for _, q := range drops {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			_ = tx.Rollback()
			return IndexStats{}, fmt.Errorf("drop schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return IndexStats{}, fmt.Errorf("drop commit: %w", err)
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		return IndexStats{}, err
	}
	return buildIndex(ctx, db, root)
}
