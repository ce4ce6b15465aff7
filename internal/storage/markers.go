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
)

// language=SQL
// dialect=SQLite
const insertMarkerSQL = `INSERT INTO markers (latitude, longitude) VALUES (?, ?)`

// language=SQL
// dialect=SQLite
const selectMarkerSQL = `SELECT id, latitude, longitude, strftime('%Y-%m-%dT%H:%M:%SZ', created_at)
FROM markers WHERE id = ?`

// language=SQL
// dialect=SQLite
const listMarkersSQL = `SELECT id, latitude, longitude, strftime('%Y-%m-%dT%H:%M:%SZ', created_at)
FROM markers ORDER BY id`

// language=SQL
// dialect=SQLite
const deleteImagesOfMarkerSQL = `DELETE FROM marker_images WHERE marker_id = ?`

// language=SQL
// dialect=SQLite
const deleteMarkerSQL = `DELETE FROM markers WHERE id = ?`

// CreateMarker stores a new marker and returns its id. Ids are never reused,
// even after the highest marker has been deleted.
func (s *Store) CreateMarker(ctx context.Context, lat, lon float64) (int64, error) {
	if err := domain.ValidateCoordinates(lat, lon); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, insertMarkerSQL, lat, lon)
	if err != nil {
		s.opLog("create_marker").Error("insert failed", slog.Any("err", err))
		return 0, &domain.StorageError{Op: "create marker", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &domain.StorageError{Op: "create marker", Err: err}
	}
	s.opLog("create_marker").Debug("marker created", slog.Int64("id", id))
	return id, nil
}

// GetMarker looks a marker up by id. A missing marker is reported with
// found=false and a nil error.
func (s *Store) GetMarker(ctx context.Context, id int64) (domain.Marker, bool, error) {
	m, err := scanMarker(s.db.QueryRowContext(ctx, selectMarkerSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Marker{}, false, nil
	}
	if err != nil {
		return domain.Marker{}, false, &domain.StorageError{Op: "get marker", Err: err}
	}
	return m, true, nil
}

// ListMarkers returns every marker in ascending id order.
func (s *Store) ListMarkers(ctx context.Context) ([]domain.Marker, error) {
	rows, err := s.db.QueryContext(ctx, listMarkersSQL)
	if err != nil {
		return nil, &domain.StorageError{Op: "list markers", Err: err}
	}
	defer rows.Close()
	out := make([]domain.Marker, 0, 16)
	for rows.Next() {
		m, err := scanMarker(rows)
		if err != nil {
			return nil, &domain.StorageError{Op: "list markers", Err: err}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "list markers", Err: err}
	}
	return out, nil
}

// DeleteMarker removes the marker and all of its images as one unit: either
// both are gone afterwards or neither is. The images are deleted explicitly in
// the same transaction; the ON DELETE CASCADE on marker_images covers the same
// ground at the schema level. Deleting an unknown id is a no-op.
func (s *Store) DeleteMarker(ctx context.Context, id int64) error {
	l := s.opLog("delete_marker").With(slog.Int64("id", id))
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.StorageError{Op: "delete marker", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	imgs, err := tx.ExecContext(ctx, deleteImagesOfMarkerSQL, id)
	if err != nil {
		l.Error("delete images failed", slog.Any("err", err))
		return &domain.StorageError{Op: "delete marker images", Err: err}
	}
	res, err := tx.ExecContext(ctx, deleteMarkerSQL, id)
	if err != nil {
		l.Error("delete marker failed", slog.Any("err", err))
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

func scanMarker(rs rowScanner) (domain.Marker, error) {
	var (
		m  domain.Marker
		ts sql.NullString
	)
	if err := rs.Scan(&m.ID, &m.Latitude, &m.Longitude, &ts); err != nil {
		return domain.Marker{}, err
	}
	m.CreatedAt = parseTimestamp(ts)
	return m, nil
}
