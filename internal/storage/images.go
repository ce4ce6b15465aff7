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
	"log/slog"

	"geomarks/internal/domain"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// language=SQL
// dialect=SQLite
const markerExistsSQL = `SELECT 1 FROM markers WHERE id = ?`

// language=SQL
// dialect=SQLite
const insertImageSQL = `INSERT INTO marker_images (marker_id, uri) VALUES (?, ?)`

// language=SQL
// dialect=SQLite
const listImagesSQL = `SELECT id, marker_id, uri, strftime('%Y-%m-%dT%H:%M:%SZ', created_at)
FROM marker_images WHERE marker_id = ? ORDER BY id`

// language=SQL
// dialect=SQLite
const deleteImageSQL = `DELETE FROM marker_images WHERE id = ?`

// CreateImage attaches a photo reference to an existing marker. A missing
// owner is rejected with a *domain.ConstraintError and nothing is stored.
func (s *Store) CreateImage(ctx context.Context, markerID int64, uri string) (int64, error) {
	if err := domain.ValidateURI(uri); err != nil {
		return 0, err
	}
	l := s.opLog("create_image").With(slog.Int64("marker_id", markerID))
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &domain.StorageError{Op: "create image", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, markerExistsSQL, markerID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		l.Debug("owner missing")
		return 0, &domain.ConstraintError{Op: "create image", Err: domain.MissingMarker(markerID)}
	}
	if err != nil {
		return 0, &domain.StorageError{Op: "create image", Err: err}
	}
	res, err := tx.ExecContext(ctx, insertImageSQL, markerID, uri)
	if err != nil {
		if isConstraint(err) {
			return 0, &domain.ConstraintError{Op: "create image", Err: err}
		}
		l.Error("insert failed", slog.Any("err", err))
		return 0, &domain.StorageError{Op: "create image", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &domain.StorageError{Op: "create image", Err: err}
	}
	if err := tx.Commit(); err != nil {
		if isConstraint(err) {
			return 0, &domain.ConstraintError{Op: "create image", Err: err}
		}
		return 0, &domain.StorageError{Op: "create image", Err: err}
	}
	l.Debug("image created", slog.Int64("id", id))
	return id, nil
}

// ListImages returns the images of one marker in insertion order. An unknown
// marker simply has no images.
func (s *Store) ListImages(ctx context.Context, markerID int64) ([]domain.Image, error) {
	rows, err := s.db.QueryContext(ctx, listImagesSQL, markerID)
	if err != nil {
		return nil, &domain.StorageError{Op: "list images", Err: err}
	}
	defer rows.Close()
	out := make([]domain.Image, 0, 4)
	for rows.Next() {
		var (
			img domain.Image
			ts  sql.NullString
		)
		if err := rows.Scan(&img.ID, &img.MarkerID, &img.URI, &ts); err != nil {
			return nil, &domain.StorageError{Op: "list images", Err: err}
		}
		img.CreatedAt = parseTimestamp(ts)
		out = append(out, img)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "list images", Err: err}
	}
	return out, nil
}

// DeleteImage removes a single image. The owning marker is left untouched and
// an unknown id is a no-op.
func (s *Store) DeleteImage(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, deleteImageSQL, id)
	if err != nil {
		s.opLog("delete_image").Error("delete failed", slog.Int64("id", id), slog.Any("err", err))
		return &domain.StorageError{Op: "delete image", Err: err}
	}
	n, _ := res.RowsAffected()
	s.opLog("delete_image").Debug("image deleted", slog.Int64("id", id), slog.Int64("rows", n))
	return nil
}

// isConstraint reports whether err is any SQLITE_CONSTRAINT result, including
// the extended foreign-key, check and not-null codes.
func isConstraint(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}
