/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package domain holds the persisted entities and the error taxonomy shared by
// every storage engine and by the access facade.
package domain

import (
	"math"
	"strings"
	"time"
)

// Marker is a user-placed geographic point. It is immutable once stored.
type Marker struct {
	ID        int64     `json:"id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	CreatedAt time.Time `json:"created_at"`
}

// Image is a reference to a photo owned by exactly one Marker.
// URI is opaque; the bytes live with the photo storage collaborator.
type Image struct {
	ID        int64     `json:"id"`
	MarkerID  int64     `json:"marker_id"`
	URI       string    `json:"uri"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidateCoordinates rejects NaN and infinite values. Range is not checked;
// the map collaborator owns what a sensible coordinate is.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) {
		return &ConstraintError{Op: "validate coordinates", Err: errNonFinite("latitude", lat)}
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) {
		return &ConstraintError{Op: "validate coordinates", Err: errNonFinite("longitude", lon)}
	}
	return nil
}

// ValidateURI requires a non-blank photo reference.
func ValidateURI(uri string) error {
	if strings.TrimSpace(uri) == "" {
		return &ConstraintError{Op: "validate uri", Err: errEmptyURI}
	}
	return nil
}

// Stats summarises the contents of a store.
type Stats struct {
	Markers int64 `json:"markers"`
	Images  int64 `json:"images"`
}
