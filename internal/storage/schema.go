/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"geomarks/internal/domain"
	"geomarks/internal/version"
)

// schemaVersion identifies the table layout written by this build. It is
// recorded once, when the database is created; there is no migration chain.
const schemaVersion = 1

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS version (
		id          INTEGER PRIMARY KEY CHECK(id=1),
		schema      INTEGER NOT NULL,
		app         TEXT,
		created_at  TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS markers (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		latitude    REAL      NOT NULL,
		longitude   REAL      NOT NULL,
		created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS marker_images (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		marker_id   INTEGER   NOT NULL REFERENCES markers(id) ON DELETE CASCADE,
		uri         TEXT      NOT NULL CHECK(length(uri) > 0),
		created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE INDEX IF NOT EXISTS idx_marker_images_marker ON marker_images(marker_id, id);`,
}

// language=SQL
// dialect=SQLite
const seedVersionSQL = `INSERT OR IGNORE INTO version (id, schema, app, created_at) VALUES (1, ?, ?, ?)`

// Initialize ensures the schema exists and that referential integrity is
// enforced on the current connection. It is idempotent: existing tables and
// rows are never altered, so it is safe to call on every start.
func (s *Store) Initialize(ctx context.Context) error {
	l := s.opLog("initialize")
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		l.Error("begin schema tx failed", slog.Any("err", err))
		return &domain.InitializationError{Op: "begin schema transaction", Err: err}
	}
	defer func() { _ = tx.Rollback() }()
	for _, q := range schemaDDL {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			l.Error("schema ddl failed", slog.Any("err", err))
			return &domain.InitializationError{Op: "create schema", Err: err}
		}
	}
	if _, err := tx.ExecContext(ctx, seedVersionSQL, schemaVersion, version.String(), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return &domain.InitializationError{Op: "seed version", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &domain.InitializationError{Op: "commit schema", Err: err}
	}

	cur, err := s.SchemaVersion(ctx)
	if err != nil {
		return &domain.InitializationError{Op: "read schema version", Err: err}
	}
	if cur > schemaVersion {
		return &domain.InitializationError{Op: "check schema version", Err: fmt.Errorf("database schema %d is newer than supported %d", cur, schemaVersion)}
	}
	if err := s.ensureForeignKeys(ctx); err != nil {
		l.Error("foreign keys not enforced", slog.Any("err", err))
		return &domain.InitializationError{Op: "enable foreign keys", Err: err}
	}
	l.Debug("schema ready", slog.Int("schema", cur))
	return nil
}

// ensureForeignKeys switches enforcement on if the connection came up without
// it, then reads the setting back. The read-back is the real guard: a driver
// that ignored the DSN pragma would otherwise fail silently.
func (s *Store) ensureForeignKeys(ctx context.Context) error {
	var on int
	if err := s.db.QueryRowContext(ctx, `PRAGMA foreign_keys;`).Scan(&on); err != nil {
		return err
	}
	if on == 1 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys=ON;`); err != nil {
		return err
	}
	if err := s.db.QueryRowContext(ctx, `PRAGMA foreign_keys;`).Scan(&on); err != nil {
		return err
	}
	if on != 1 {
		return errors.New("PRAGMA foreign_keys is still off")
	}
	return nil
}

// SchemaVersion returns the schema number recorded when the database was created.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}
