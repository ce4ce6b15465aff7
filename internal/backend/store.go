/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package backend is the PostgreSQL engine for the marker store. It offers
// the same contract as the embedded SQLite store for installs that keep their
// markers on a server.
package backend

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"geomarks/internal/domain"
	applog "geomarks/internal/log"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the PostgreSQL-backed marker store.
type Store struct {
	db  *sql.DB
	dsn string
	log *slog.Logger
}

// Open connects to dsn, verifies the server is reachable and applies the
// embedded migrations. Failures are returned as *domain.InitializationError.
func Open(ctx context.Context, dsn string) (*Store, error) {
	l := applog.WithComponent("backend")
	if strings.TrimSpace(dsn) == "" {
		return nil, &domain.InitializationError{Op: "open", Err: errors.New("postgres dsn is required")}
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, &domain.InitializationError{Op: "open", Err: err}
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		l.Error("ping failed", slog.Any("err", err))
		return nil, &domain.InitializationError{Op: "ping", Err: err}
	}
	s := &Store{db: db, dsn: dsn, log: l}
	if err := s.Initialize(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	l.Info("store ready")
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// language=SQL
// dialect=PostgreSQL
const pgForeignKeyCountSQL = `SELECT count(*) FROM pg_constraint
WHERE conrelid = 'marker_images'::regclass AND contype = 'f'`

// Initialize applies pending migrations and checks that marker_images still
// carries its foreign key. It is idempotent.
func (s *Store) Initialize(ctx context.Context) error {
	l := applog.WithOperation(s.log, "initialize")
	if err := s.migrateUp(); err != nil {
		l.Error("migrate failed", slog.Any("err", err))
		return &domain.InitializationError{Op: "migrate", Err: err}
	}
	var n int
	err := s.db.QueryRowContext(ctx, pgForeignKeyCountSQL).Scan(&n)
	if err != nil {
		return &domain.InitializationError{Op: "check foreign key", Err: err}
	}
	if n == 0 {
		return &domain.InitializationError{Op: "check foreign key", Err: errors.New("marker_images has no foreign key to markers")}
	}
	return nil
}

// migrateUp runs the embedded migrations on a dedicated pool. The migrate
// driver pins a connection for its advisory lock and closes its pool on Close,
// so it never shares the store's pool.
func (s *Store) migrateUp() error {
	mdb, err := sql.Open("pgx", s.dsn)
	if err != nil {
		return fmt.Errorf("open migration pool: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		_ = mdb.Close()
		return fmt.Errorf("open migration source: %w", err)
	}
	driver, err := migratepgx.WithInstance(mdb, &migratepgx.Config{})
	if err != nil {
		_ = mdb.Close()
		return fmt.Errorf("create pgx migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()
	m.Log = migrateLogger{l: s.log}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateLogger routes golang-migrate output into slog.
type migrateLogger struct{ l *slog.Logger }

func (m migrateLogger) Printf(format string, v ...any) {
	m.l.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("source", "migrate"))
}

func (m migrateLogger) Verbose() bool { return false }

// WithCredentials returns dsn with user and password filled in. Empty values
// leave the corresponding part of dsn unchanged.
func WithCredentials(dsn, user, password string) (string, error) {
	if user == "" && password == "" {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse postgres dsn: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("postgres dsn must be a URL, got scheme %q", u.Scheme)
	}
	name := user
	if name == "" && u.User != nil {
		name = u.User.Username()
	}
	if password == "" {
		if u.User != nil {
			if p, ok := u.User.Password(); ok {
				u.User = url.UserPassword(name, p)
				return u.String(), nil
			}
		}
		u.User = url.User(name)
		return u.String(), nil
	}
	u.User = url.UserPassword(name, password)
	return u.String(), nil
}
