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
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
)

// dumpDB renders the schema and every user row so two states can be compared.
func dumpDB(t *testing.T, db *sql.DB) string {
	t.Helper()
	ctx := context.Background()
	var b strings.Builder
	rows, err := db.QueryContext(ctx, `SELECT type, name, COALESCE(sql, '') FROM sqlite_master ORDER BY type, name`)
	if err != nil {
		t.Fatalf("read sqlite_master: %v", err)
	}
	var tables []string
	for rows.Next() {
		var typ, name, ddl string
		if err := rows.Scan(&typ, &name, &ddl); err != nil {
			t.Fatalf("scan sqlite_master: %v", err)
		}
		fmt.Fprintf(&b, "%s %s %s\n", typ, name, ddl)
		if typ == "table" {
			tables = append(tables, name)
		}
	}
	_ = rows.Close()
	for _, tbl := range tables {
		r, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %q ORDER BY rowid", tbl))
		if err != nil {
			t.Fatalf("select %s: %v", tbl, err)
		}
		cols, _ := r.Columns()
		for r.Next() {
			vals := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err := r.Scan(ptrs...); err != nil {
				t.Fatalf("scan %s: %v", tbl, err)
			}
			fmt.Fprintf(&b, "%s %#v\n", tbl, vals)
		}
		_ = r.Close()
	}
	return b.String()
}

func TestInitializeIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := mustMarker(t, s, 58.0, 56.1)
	mustImage(t, s, id, "file://a")

	before := dumpDB(t, s.db)
	for i := 0; i < 3; i++ {
		if err := s.Initialize(ctx); err != nil {
			t.Fatalf("Initialize #%d: %v", i, err)
		}
	}
	if diff := cmp.Diff(before, dumpDB(t, s.db)); diff != "" {
		t.Fatalf("Initialize changed the database (-before +after):\n%s", diff)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	ctx := context.Background()
	s, err := Open(ctx, Options{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id, err := s.CreateMarker(ctx, 1.5, 2.5)
	if err != nil {
		t.Fatalf("CreateMarker: %v", err)
	}
	before := dumpDB(t, s.db)
	_ = s.Close()

	s2, err := Open(ctx, Options{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if diff := cmp.Diff(before, dumpDB(t, s2.db)); diff != "" {
		t.Fatalf("reopen changed the database (-before +after):\n%s", diff)
	}
	if _, found, _ := s2.GetMarker(ctx, id); !found {
		t.Fatalf("marker %d lost across reopen", id)
	}
}

func TestOpenAdoptsExistingTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	raw, err := sql.Open("sqlite", "file:"+filepath.ToSlash(path))
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	// Layout written by earlier builds: no CHECK, no version row.
	for _, q := range []string{
		`CREATE TABLE markers (id INTEGER PRIMARY KEY AUTOINCREMENT, latitude REAL NOT NULL, longitude REAL NOT NULL, created_at DATETIME DEFAULT CURRENT_TIMESTAMP)`,
		`CREATE TABLE marker_images (id INTEGER PRIMARY KEY AUTOINCREMENT, marker_id INTEGER NOT NULL, uri TEXT NOT NULL, created_at DATETIME DEFAULT CURRENT_TIMESTAMP, FOREIGN KEY (marker_id) REFERENCES markers (id) ON DELETE CASCADE)`,
		`INSERT INTO markers (latitude, longitude) VALUES (10, 20)`,
		`INSERT INTO marker_images (marker_id, uri) VALUES (1, 'file://old')`,
	} {
		if _, err := raw.Exec(q); err != nil {
			t.Fatalf("seed %q: %v", q, err)
		}
	}
	_ = raw.Close()

	s, err := Open(context.Background(), Options{Path: path})
	if err != nil {
		t.Fatalf("Open on existing database: %v", err)
	}
	defer s.Close()
	imgs, err := s.ListImages(context.Background(), 1)
	if err != nil || len(imgs) != 1 || imgs[0].URI != "file://old" {
		t.Fatalf("existing rows not readable: %+v %v", imgs, err)
	}
}

func TestScenarioIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	m, err := s.CreateMarker(ctx, 58.0, 56.1)
	if err != nil || m != 1 {
		t.Fatalf("CreateMarker = %d, %v; want 1", m, err)
	}
	a, err := s.CreateImage(ctx, 1, "file://a")
	if err != nil || a != 1 {
		t.Fatalf("CreateImage a = %d, %v; want 1", a, err)
	}
	b, err := s.CreateImage(ctx, 1, "file://b")
	if err != nil || b != 2 {
		t.Fatalf("CreateImage b = %d, %v; want 2", b, err)
	}
	if err := s.DeleteMarker(ctx, 1); err != nil {
		t.Fatalf("DeleteMarker: %v", err)
	}
	imgs, err := s.ListImages(ctx, 1)
	if err != nil || len(imgs) != 0 {
		t.Fatalf("ListImages after delete = %v, %v", imgs, err)
	}
	if _, found, err := s.GetMarker(ctx, 1); found || err != nil {
		t.Fatalf("GetMarker after delete = found %v, err %v", found, err)
	}
}

func TestConcurrentCreateMarker(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	const n = 16
	ids := make([]int64, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			id, err := s.CreateMarker(gctx, float64(i), float64(-i))
			ids[i] = id
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent CreateMarker: %v", err)
	}
	seen := map[int64]bool{}
	for _, id := range ids {
		if id <= 0 || seen[id] {
			t.Fatalf("invalid or duplicate id %d in %v", id, ids)
		}
		seen[id] = true
		if _, found, err := s.GetMarker(ctx, id); !found || err != nil {
			t.Fatalf("marker %d not retrievable: %v", id, err)
		}
	}
}
