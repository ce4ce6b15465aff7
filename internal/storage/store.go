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
	"os"
	"path/filepath"
	"strings"
	"time"

	"geomarks/internal/domain"
	applog "geomarks/internal/log"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	// DefaultFileName is the database file created inside the data directory.
	DefaultFileName = "markers.db"

	defaultBusyTimeout = 5 * time.Second
)

// Options configures Open.
type Options struct {
	// Path of the database file. Parent directories are created.
	Path string
	// BusyTimeout bounds how long a statement waits on a locked database.
	BusyTimeout time.Duration
	// Logger defaults to the "storage" component logger.
	Logger *slog.Logger
}

// Store is the SQLite-backed marker store. It is safe for concurrent use:
// the pool holds a single connection, so statements and transactions are
// serialised in the order the pool hands the connection out.
type Store struct {
	db   *sql.DB
	path string
	log  *slog.Logger
}

// Open opens (creating if needed) the database at opts.Path and runs Initialize.
// Any failure is returned as a *domain.InitializationError and the pool is closed.
func Open(ctx context.Context, opts Options) (*Store, error) {
	l := opts.Logger
	if l == nil {
		l = applog.WithComponent("storage")
	}
	if strings.TrimSpace(opts.Path) == "" {
		return nil, &domain.InitializationError{Op: "open", Err: errors.New("database path is required")}
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = defaultBusyTimeout
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		l.Error("create data dir failed", slog.Any("err", err))
		return nil, &domain.InitializationError{Op: "create data dir", Err: err}
	}
	db, err := sql.Open("sqlite", dsn(opts.Path, opts.BusyTimeout))
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, &domain.InitializationError{Op: "open", Err: err}
	}
	// One connection for an embedded single-user database: writes are
	// serialised and per-connection pragmas are never skipped.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, path: opts.Path, log: l.With(slog.String("path", opts.Path))}
	if err := s.Initialize(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.log.Info("store ready")
	return s, nil
}

// dsn builds the modernc connection string. Each _pragma is executed by the
// driver on every new connection, which is what keeps foreign keys enforced.
func dsn(path string, busy time.Duration) string {
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_txlock=immediate",
		filepath.ToSlash(path), busy.Milliseconds())
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) opLog(op string) *slog.Logger { return applog.WithOperation(s.log, op) }

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// parseTimestamp reads the RFC3339 text produced by the select lists below.
// Rows written by older builds may carry no timestamp; they get the zero time.
func parseTimestamp(ns sql.NullString) time.Time {
	if !ns.Valid || ns.String == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return time.Time{}
	}
	return ts
}
