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
	"fmt"

	"geomarks/internal/domain"
)

// language=SQL
// dialect=PostgreSQL
const pgLockMarkerSQL = `SELECT 1 FROM markers WHERE id = $1 FOR SHARE`

// language=SQL
// dialect=PostgreSQL
const pgInsertImageSQL = `INSERT INTO marker_images (marker_id, uri) VALUES ($1, $2) RETURNING id`

// language=SQL
// dialect=PostgreSQL
const pgListImagesSQL = `SELECT id, marker_id, uri, created_at FROM marker_images WHERE marker_id = $1 ORDER BY id`

// language=SQL
// dialect=PostgreSQL
const pgDeleteImageSQL = `DELETE FROM marker_images WHERE id = $1`

// language=SQL
// dialect=PostgreSQL
const pgStatsSQL = `SELECT (SELECT count(*) FROM markers), (SELECT count(*) FROM marker_images)`

// language=SQL
// dialect=PostgreSQL
const pgOrphanImagesSQL = `SELECT i.id, i.marker_id FROM marker_images i
LEFT JOIN markers m ON m.id = i.marker_id WHERE m.id IS NULL ORDER BY i.id`

// CreateImage attaches a photo reference to an existing marker. The owner row
// is share-locked so a concurrent DeleteMarker cannot slip in between the
// check and the insert.
func (s *Store) CreateImage(ctx context.Context, markerID int64, uri string) (int64, error) {
	if err := domain.ValidateURI(uri); err != nil {
		return 0, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &domain.StorageError{Op: "create image", Err: err}
	}
	defer func() { _ = tx.Rollback() }()
	var one int
	err = tx.QueryRowContext(ctx, pgLockMarkerSQL, markerID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &domain.ConstraintError{Op: "create image", Err: domain.MissingMarker(markerID)}
	}
	if err != nil {
		return 0, classify("create image", err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx, pgInsertImageSQL, markerID, uri).Scan(&id); err != nil {
		return 0, classify("create image", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, classify("create image", err)
	}
	return id, nil
}

// ListImages returns the images of one marker in insertion order.
func (s *Store) ListImages(ctx context.Context, markerID int64) ([]domain.Image, error) {
	rows, err := s.db.QueryContext(ctx, pgListImagesSQL, markerID)
	if err != nil {
		return nil, classify("list images", err)
	}
	defer rows.Close()
	out := make([]domain.Image, 0, 4)
	for rows.Next() {
		var img domain.Image
		if err := rows.Scan(&img.ID, &img.MarkerID, &img.URI, &img.CreatedAt); err != nil {
			return nil, classify("list images", err)
		}
		img.CreatedAt = img.CreatedAt.UTC()
		out = append(out, img)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list images", err)
	}
	return out, nil
}

// DeleteImage removes one image; the marker is untouched and an unknown id is
// a no-op.
func (s *Store) DeleteImage(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, pgDeleteImageSQL, id); err != nil {
		return classify("delete image", err)
	}
	return nil
}

// Stats counts markers and images.
func (s *Store) Stats(ctx context.Context) (domain.Stats, error) {
	var st domain.Stats
	err := s.db.QueryRowContext(ctx, pgStatsSQL).Scan(&st.Markers, &st.Images)
	if err != nil {
		return domain.Stats{}, classify("stats", err)
	}
	return st, nil
}

// CheckIntegrity reports image rows whose marker is missing. PostgreSQL
// enforces the foreign key, so a non-empty result means it was dropped or
// bypassed.
func (s *Store) CheckIntegrity(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, pgOrphanImagesSQL)
	if err != nil {
		return nil, classify("check integrity", err)
	}
	defer rows.Close()
	var problems []string
	for rows.Next() {
		var id, markerID int64
		if err := rows.Scan(&id, &markerID); err != nil {
			return nil, classify("check integrity", err)
		}
		problems = append(problems, fmt.Sprintf("marker_images row %d references missing markers %d", id, markerID))
	}
	return problems, rows.Err()
}
