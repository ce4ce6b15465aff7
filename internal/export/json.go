/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package export writes the marker collection out as a JSON snapshot or a
// printable PDF report.
package export

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"geomarks/internal/domain"
	"geomarks/internal/version"

	gojsonschema "github.com/xeipuuv/gojsonschema"
)

// FormatV1 identifies the snapshot layout.
const FormatV1 = "geomarks/v1"

//go:embed snapshot.schema.json
var snapshotSchema []byte

// Source is what an export reads from. The access facade satisfies it.
type Source interface {
	GetMarkers(ctx context.Context) ([]domain.Marker, error)
	GetMarkerImages(ctx context.Context, markerID int64) ([]domain.Image, error)
}

// MarkerEntry is one marker together with its images.
type MarkerEntry struct {
	domain.Marker
	Images []domain.Image `json:"images"`
}

// Snapshot is the full export document.
type Snapshot struct {
	Format     string        `json:"format"`
	AppVersion string        `json:"app_version"`
	ExportedAt time.Time     `json:"exported_at"`
	Markers    []MarkerEntry `json:"markers"`
}

// Build collects every marker and its images from src.
func Build(ctx context.Context, src Source) (Snapshot, error) {
	ms, err := src.GetMarkers(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list markers: %w", err)
	}
	snap := Snapshot{
		Format:     FormatV1,
		AppVersion: version.String(),
		ExportedAt: time.Now().UTC().Truncate(time.Second),
		Markers:    make([]MarkerEntry, 0, len(ms)),
	}
	for _, m := range ms {
		imgs, err := src.GetMarkerImages(ctx, m.ID)
		if err != nil {
			return Snapshot{}, fmt.Errorf("list images of marker %d: %w", m.ID, err)
		}
		if imgs == nil {
			imgs = []domain.Image{}
		}
		snap.Markers = append(snap.Markers, MarkerEntry{Marker: m, Images: imgs})
	}
	return snap, nil
}

// WriteJSON builds a snapshot, validates it against the embedded schema and
// writes it to w as indented JSON.
func WriteJSON(ctx context.Context, src Source, w io.Writer) (Snapshot, error) {
	snap, err := Build(ctx, src)
	if err != nil {
		return Snapshot{}, err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return Snapshot{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := Validate(data); err != nil {
		return Snapshot{}, err
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return Snapshot{}, fmt.Errorf("write snapshot: %w", err)
	}
	return snap, nil
}

// Validate checks a JSON document against the snapshot schema.
func Validate(data []byte) error {
	res, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(snapshotSchema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validate snapshot: %w", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("snapshot does not match schema: %s", strings.Join(msgs, "; "))
}
