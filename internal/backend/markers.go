/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"geomarks/internal/domain"
	applog "geomarks/internal/log"

	"github.com/jackc/pgx/v5/pgconn"
)

// language=SQL
// dialect=PostgreSQL
const pgInsertMarkerSQL = `INSERT INTO markers (latitude, longitude) VALUES ($1, $2) RETURNING id`

// language=SQL
// dialect=PostgreSQL
const pgSelectMarkerSQL = `SELECT id, latitude, longitude, created_at FROM markers WHERE id = $1`

// language=SQL
// dialect=PostgreSQL
const pgListMarkersSQL = `SELECT id, latitude, longitude, created_at FROM markers ORDER BY id`

// language=SQL
// dialect=PostgreSQL
const pgDeleteImagesOfMarkerSQL = `DELETE FROM marker_images WHERE marker_id = $1`

// language=SQL
// dialect=PostgreSQL
const pgDeleteMarkerSQL = `DELETE FROM markers WHERE id = $1`

// CreateMarker stores a new marker and returns its id.
func (s *Store) CreateMarker(ctx context.Context, lat, lon float64) (int64, error) {
	if err := domain.ValidateCoordinates(lat, lon); err != nil {
		return 0, err
	}
	var id int64
	err := s.db.QueryRowContext(ctx, pgInsertMarkerSQL, lat, lon).Scan(&id)
	if err != nil {
		return 0, classify("create marker", err)
	}
	return id, nil
}

// GetMarker looks a marker up by id; a missing marker yields found=false.
func (s *Store) GetMarker(ctx context.Context, id int64) (domain.Marker, bool, error) {
	var m domain.Marker
	err := s.db.QueryRowContext(ctx, pgSelectMarkerSQL, id).
		Scan(&m.ID, &m.Latitude, &m.Longitude, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Marker{}, false, nil
	}
	if err != nil {
		return domain.Marker{}, false, classify("get marker", err)
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return m, true, nil
}

// ListMarkers returns every marker in ascending id order.
func (s *Store) ListMarkers(ctx context.Context) ([]domain.Marker, error) {
	rows, err := s.db.QueryContext(ctx, pgListMarkersSQL)
	if err != nil {
		return nil, classify("list markers", err)
	}
	defer rows.Close()
	out := make([]domain.Marker, 0, 16)
	for rows.Next() {
		var m domain.Marker
		if err := rows.Scan(&m.ID, &m.Latitude, &m.Longitude, &m.CreatedAt); err != nil {
			return nil, classify("list markers", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list markers", err)
	}
	return out, nil
}

// DeleteMarker removes the marker and its images in one transaction. An
// unknown id is a no-op.
func (s *Store) DeleteMarker(ctx context.Context, id int64) error {
	l := applog.WithOperation(s.log, "delete_marker").With(slog.Int64("id", id))
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.StorageError{Op: "delete marker", Err: err}
	}
	defer func() { _ = tx.Rollback() }()
	imgs, err := tx.ExecContext(ctx, pgDeleteImagesOfMarkerSQL, id)
	if err != nil {
		return &domain.StorageError{Op: "delete marker images", Err: err}
	}
	res, err := tx.ExecContext(ctx, pgDeleteMarkerSQL, id)
	if err != nil {
		return &domain.StorageError{Op: "delete marker", Err: err}
	}
	if err := tx.Commit(); err != nil {
		l.Error("commit failed", slog.Any("err", err))
		return &domain.StorageError{Op: "delete marker", Err: err}
	}
	nImg, _ := imgs.RowsAffected()
	nMarker, _ := res.RowsAffected()
	l.Debug("marker deleted", slog.Int64("markers", nMarker), slog.Int64("images", nImg))
	return nil
}

// PostgreSQL SQLSTATE codes mapped to ConstraintError.
const (
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgNotNullViolation    = "23502"
)

// classify maps driver errors onto the domain taxonomy.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation, pgCheckViolation, pgNotNullViolation:
			return &domain.ConstraintError{Op: op, Err: err}
		}
	}
	return &domain.StorageError{Op: op, Err: err}
}
