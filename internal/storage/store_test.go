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
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"geomarks/internal/domain"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Open(ctx, Options{Path: filepath.Join(t.TempDir(), DefaultFileName), BusyTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustMarker(t *testing.T, s *Store, lat, lon float64) int64 {
	t.Helper()
	id, err := s.CreateMarker(context.Background(), lat, lon)
	if err != nil {
		t.Fatalf("CreateMarker(%v,%v): %v", lat, lon, err)
	}
	return id
}

func mustImage(t *testing.T, s *Store, markerID int64, uri string) int64 {
	t.Helper()
	id, err := s.CreateImage(context.Background(), markerID, uri)
	if err != nil {
		t.Fatalf("CreateImage(%d,%q): %v", markerID, uri, err)
	}
	return id
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), Options{Path: "  "})
	if !errors.Is(err, domain.ErrInitialization) {
		t.Fatalf("expected initialization error, got %v", err)
	}
}

func TestOpenEnablesWALAndForeignKeys(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	var mode string
	if err := s.db.QueryRowContext(ctx, "PRAGMA journal_mode;").Scan(&mode); err != nil {
		t.Fatalf("read journal_mode: %v", err)
	}
	if mode != "wal" && mode != "WAL" {
		t.Fatalf("expected WAL mode, got %s", mode)
	}
	var fk int
	if err := s.db.QueryRowContext(ctx, "PRAGMA foreign_keys;").Scan(&fk); err != nil {
		t.Fatalf("read foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Fatalf("foreign_keys = %d, want 1", fk)
	}
	v, err := s.SchemaVersion(ctx)
	if err != nil || v != schemaVersion {
		t.Fatalf("SchemaVersion = %d, %v; want %d", v, err, schemaVersion)
	}
}

func TestForeignKeysOnAfterReconnect(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	// Force the pool to drop its connection; the next statement dials a fresh one.
	s.db.SetMaxIdleConns(0)
	s.db.SetMaxIdleConns(1)
	var fk int
	if err := s.db.QueryRowContext(ctx, "PRAGMA foreign_keys;").Scan(&fk); err != nil {
		t.Fatalf("read foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Fatalf("foreign_keys = %d on a new connection, want 1", fk)
	}
	// And the engine itself rejects an orphan insert that bypasses CreateImage.
	if _, err := s.db.ExecContext(ctx, `INSERT INTO marker_images (marker_id, uri) VALUES (999, 'x')`); !isConstraint(err) {
		t.Fatalf("expected FK constraint error, got %v", err)
	}
}

func TestMarkerRoundTripIsBitExact(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	coords := [][2]float64{
		{52.520008, 13.404954},
		{-33.8688, 151.2093},
		{0, 0},
		{-45.5, -180},
		{90, 180},
		{0.1 + 0.2, 1e-300},
		{math.SmallestNonzeroFloat64, math.MaxFloat64},
	}
	for _, c := range coords {
		id := mustMarker(t, s, c[0], c[1])
		m, found, err := s.GetMarker(ctx, id)
		if err != nil || !found {
			t.Fatalf("GetMarker(%d) = found %v, err %v", id, found, err)
		}
		if math.Float64bits(m.Latitude) != math.Float64bits(c[0]) || math.Float64bits(m.Longitude) != math.Float64bits(c[1]) {
			t.Fatalf("round trip changed coordinates: got (%v,%v) want (%v,%v)", m.Latitude, m.Longitude, c[0], c[1])
		}
		if m.ID != id {
			t.Fatalf("id = %d, want %d", m.ID, id)
		}
		if m.CreatedAt.IsZero() {
			t.Fatalf("created_at not populated")
		}
	}
}

func TestCreateMarkerRejectsNonFinite(t *testing.T) {
	s := openTestStore(t)
	for _, c := range [][2]float64{{math.NaN(), 0}, {0, math.Inf(1)}, {math.Inf(-1), 0}} {
		if _, err := s.CreateMarker(context.Background(), c[0], c[1]); !errors.Is(err, domain.ErrConstraint) {
			t.Fatalf("CreateMarker(%v,%v) error = %v, want constraint", c[0], c[1], err)
		}
	}
	st, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Markers != 0 {
		t.Fatalf("rejected markers were persisted: %+v", st)
	}
}

func TestGetMarkerNotFoundIsNotAnError(t *testing.T) {
	s := openTestStore(t)
	m, found, err := s.GetMarker(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetMarker error: %v", err)
	}
	if found {
		t.Fatalf("expected not found, got %+v", m)
	}
}

func TestListOrderingAscendingID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := mustMarker(t, s, 1, 1)
	b := mustMarker(t, s, 2, 2)
	c := mustMarker(t, s, 3, 3)
	if err := s.DeleteMarker(ctx, b); err != nil {
		t.Fatalf("DeleteMarker: %v", err)
	}
	d := mustMarker(t, s, 4, 4)
	ms, err := s.ListMarkers(ctx)
	if err != nil {
		t.Fatalf("ListMarkers: %v", err)
	}
	var got []int64
	for _, m := range ms {
		got = append(got, m.ID)
	}
	if diff := cmp.Diff([]int64{a, c, d}, got); diff != "" {
		t.Fatalf("marker ids mismatch (-want +got):\n%s", diff)
	}

	i1 := mustImage(t, s, a, "file:///1.jpg")
	i2 := mustImage(t, s, a, "file:///2.jpg")
	i3 := mustImage(t, s, a, "file:///3.jpg")
	imgs, err := s.ListImages(ctx, a)
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	want := []domain.Image{
		{ID: i1, MarkerID: a, URI: "file:///1.jpg"},
		{ID: i2, MarkerID: a, URI: "file:///2.jpg"},
		{ID: i3, MarkerID: a, URI: "file:///3.jpg"},
	}
	if diff := cmp.Diff(want, imgs, cmpopts.IgnoreFields(domain.Image{}, "CreatedAt")); diff != "" {
		t.Fatalf("images mismatch (-want +got):\n%s", diff)
	}
}

func TestIDsNeverReused(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	first := mustMarker(t, s, 1, 1)
	img := mustImage(t, s, first, "content://a")
	if err := s.DeleteMarker(ctx, first); err != nil {
		t.Fatalf("DeleteMarker: %v", err)
	}
	second := mustMarker(t, s, 1, 1)
	if second <= first {
		t.Fatalf("marker id reused: first %d, second %d", first, second)
	}
	img2 := mustImage(t, s, second, "content://b")
	if img2 <= img {
		t.Fatalf("image id reused: first %d, second %d", img, img2)
	}
}

func TestDeleteMarkerCascades(t *testing.T) {
	for _, n := range []int{0, 1, 5} {
		s := openTestStore(t)
		ctx := context.Background()
		id := mustMarker(t, s, 10, 20)
		keep := mustMarker(t, s, 30, 40)
		keepImg := mustImage(t, s, keep, "file:///keep.jpg")
		for i := 0; i < n; i++ {
			mustImage(t, s, id, "file:///p.jpg")
		}
		if err := s.DeleteMarker(ctx, id); err != nil {
			t.Fatalf("n=%d DeleteMarker: %v", n, err)
		}
		if _, found, _ := s.GetMarker(ctx, id); found {
			t.Fatalf("n=%d marker still present", n)
		}
		imgs, err := s.ListImages(ctx, id)
		if err != nil || len(imgs) != 0 {
			t.Fatalf("n=%d images left behind: %v (err %v)", n, imgs, err)
		}
		left, _ := s.ListImages(ctx, keep)
		if len(left) != 1 || left[0].ID != keepImg {
			t.Fatalf("n=%d unrelated images touched: %+v", n, left)
		}
		probs, err := s.CheckIntegrity(ctx)
		if err != nil || len(probs) != 0 {
			t.Fatalf("n=%d integrity: %v %v", n, probs, err)
		}
	}
}

func TestDeleteMarkerIsAtomic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := mustMarker(t, s, 1, 2)
	mustImage(t, s, id, "file:///a.jpg")
	mustImage(t, s, id, "file:///b.jpg")
	// Fail the second statement of the delete after the images are gone.
	if _, err := s.db.ExecContext(ctx, `CREATE TRIGGER fail_marker_delete BEFORE DELETE ON markers
		BEGIN SELECT RAISE(ABORT, 'injected failure'); END;`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}
	err := s.DeleteMarker(ctx, id)
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if _, found, _ := s.GetMarker(ctx, id); !found {
		t.Fatalf("marker removed despite failure")
	}
	imgs, _ := s.ListImages(ctx, id)
	if len(imgs) != 2 {
		t.Fatalf("images partially deleted: %d left, want 2", len(imgs))
	}
}

func TestDeleteMarkerMissingIsNoop(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := mustMarker(t, s, 1, 1)
	if err := s.DeleteMarker(ctx, id); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := s.DeleteMarker(ctx, id); err != nil {
		t.Fatalf("second delete should be a no-op, got %v", err)
	}
	if err := s.DeleteImage(ctx, 12345); err != nil {
		t.Fatalf("DeleteImage on missing id: %v", err)
	}
}

func TestCreateImageForMissingMarker(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.CreateImage(ctx, 999, "file:///orphan.jpg")
	if !errors.Is(err, domain.ErrConstraint) {
		t.Fatalf("expected constraint error, got %v", err)
	}
	var ce *domain.ConstraintError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConstraintError, got %T", err)
	}
	st, _ := s.Stats(ctx)
	if st.Images != 0 {
		t.Fatalf("orphan image persisted: %+v", st)
	}
}

func TestCreateImageRejectsEmptyURI(t *testing.T) {
	s := openTestStore(t)
	id := mustMarker(t, s, 1, 1)
	if _, err := s.CreateImage(context.Background(), id, " "); !errors.Is(err, domain.ErrConstraint) {
		t.Fatalf("expected constraint error, got %v", err)
	}
}

func TestDeleteImageLeavesMarker(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := mustMarker(t, s, 5, 5)
	a := mustImage(t, s, id, "file:///a.jpg")
	b := mustImage(t, s, id, "file:///b.jpg")
	if err := s.DeleteImage(ctx, a); err != nil {
		t.Fatalf("DeleteImage: %v", err)
	}
	if _, found, _ := s.GetMarker(ctx, id); !found {
		t.Fatalf("marker removed by image delete")
	}
	imgs, _ := s.ListImages(ctx, id)
	if len(imgs) != 1 || imgs[0].ID != b {
		t.Fatalf("unexpected images: %+v", imgs)
	}
}

func TestListImagesUnknownMarkerEmpty(t *testing.T) {
	s := openTestStore(t)
	imgs, err := s.ListImages(context.Background(), 7)
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	if imgs == nil || len(imgs) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", imgs)
	}
}
