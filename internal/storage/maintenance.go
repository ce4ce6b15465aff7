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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"geomarks/internal/domain"
)

// Stats counts markers and images.
func (s *Store) Stats(ctx context.Context) (domain.Stats, error) {
	var st domain.Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM markers), (SELECT COUNT(*) FROM marker_images)`).Scan(&st.Markers, &st.Images)
	if err != nil {
		return domain.Stats{}, &domain.StorageError{Op: "stats", Err: err}
	}
	return st, nil
}

// CheckIntegrity runs SQLite's quick_check and foreign_key_check and returns
// one line per problem found. An empty result means the file is healthy and no
// image row points at a missing marker.
func (s *Store) CheckIntegrity(ctx context.Context) ([]string, error) {
	var problems []string
	rows, err := s.db.QueryContext(ctx, `PRAGMA quick_check;`)
	if err != nil {
		return nil, &domain.StorageError{Op: "quick check", Err: err}
	}
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			_ = rows.Close()
			return nil, &domain.StorageError{Op: "quick check", Err: err}
		}
		if !strings.EqualFold(strings.TrimSpace(line), "ok") {
			problems = append(problems, line)
		}
	}
	_ = rows.Close()

	fk, err := s.db.QueryContext(ctx, `PRAGMA foreign_key_check;`)
	if err != nil {
		return nil, &domain.StorageError{Op: "foreign key check", Err: err}
	}
	defer fk.Close()
	for fk.Next() {
		var (
			table, parent string
			rowid         any
			fkid          int
		)
		if err := fk.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return nil, &domain.StorageError{Op: "foreign key check", Err: err}
		}
		problems = append(problems, fmt.Sprintf("%s row %v references missing %s", table, rowid, parent))
	}
	if err := fk.Err(); err != nil {
		return nil, &domain.StorageError{Op: "foreign key check", Err: err}
	}
	if len(problems) > 0 {
		s.opLog("check").Warn("integrity problems", slog.Int("count", len(problems)))
	}
	return problems, nil
}

// Backup writes a consistent copy of the live database into dir using
// VACUUM INTO and returns the path of the new file.
func (s *Store) Backup(ctx context.Context, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &domain.StorageError{Op: "backup", Err: err}
	}
	base := strings.TrimSuffix(filepath.Base(s.path), filepath.Ext(s.path))
	stamp := time.Now().Format("20060102-150405.000")
	dst := filepath.Join(dir, fmt.Sprintf("%s.%s.bak", base, stamp))
	for i := 1; ; i++ {
		if _, err := os.Stat(dst); os.IsNotExist(err) {
			break
		}
		dst = filepath.Join(dir, fmt.Sprintf("%s.%s-%d.bak", base, stamp, i))
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, dst); err != nil {
		s.opLog("backup").Error("vacuum into failed", slog.String("dst", dst), slog.Any("err", err))
		return "", &domain.StorageError{Op: "backup", Err: err}
	}
	s.opLog("backup").Info("backup written", slog.String("dst", dst))
	return dst, nil
}

// PruneBackups keeps the newest keep backups in dir and removes the rest.
// It returns how many files were removed.
func PruneBackups(dir string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	var baks []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".bak") {
			baks = append(baks, e.Name())
		}
	}
	if len(baks) <= keep {
		return 0, nil
	}
	// Names embed a sortable timestamp, newest last.
	sort.Strings(baks)
	removed := 0
	for _, name := range baks[:len(baks)-keep] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
