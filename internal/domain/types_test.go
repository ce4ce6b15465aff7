/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package domain

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestValidateCoordinates(t *testing.T) {
	cases := []struct {
		name     string
		lat, lon float64
		wantErr  bool
	}{
		{"regular", 58.0, 56.1, false},
		{"poles and antimeridian", -90, 180, false},
		{"nan latitude", math.NaN(), 1, true},
		{"inf longitude", 1, math.Inf(1), true},
		{"negative inf latitude", math.Inf(-1), 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCoordinates(tc.lat, tc.lon)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateCoordinates(%v, %v) err=%v, wantErr=%v", tc.lat, tc.lon, err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, ErrConstraint) {
				t.Fatalf("expected ErrConstraint, got %v", err)
			}
		})
	}
}

func TestValidateURI(t *testing.T) {
	if err := ValidateURI("file://a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, uri := range []string{"", "   ", "\t\n"} {
		if err := ValidateURI(uri); !errors.Is(err, ErrConstraint) {
			t.Fatalf("ValidateURI(%q) = %v, want ErrConstraint", uri, err)
		}
	}
}

func TestErrorTaxonomyMatching(t *testing.T) {
	cause := errors.New("disk I/O error")
	var err error = &StorageError{Op: "insert marker", Err: cause}
	if !errors.Is(err, ErrStorage) || !errors.Is(err, cause) {
		t.Fatalf("storage error does not match sentinel and cause: %v", err)
	}
	if errors.Is(err, ErrConstraint) || errors.Is(err, ErrInitialization) {
		t.Fatalf("storage error matched a foreign sentinel")
	}
	err = &InitializationError{Op: "schema", Err: cause}
	if !errors.Is(err, ErrInitialization) {
		t.Fatalf("initialization error does not match sentinel")
	}
	if !strings.Contains(err.Error(), "disk I/O error") {
		t.Fatalf("message lost cause: %q", err.Error())
	}
	var ce *ConstraintError
	if !errors.As(&ConstraintError{Op: "insert image", Err: MissingMarker(7)}, &ce) || !strings.Contains(ce.Error(), "marker 7") {
		t.Fatalf("constraint error lost marker id")
	}
}

func TestMarkerJSONFieldNames(t *testing.T) {
	m := Marker{ID: 1, Latitude: 58.0, Longitude: 56.1, CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	for _, key := range []string{"\"id\"", "\"latitude\"", "\"longitude\"", "\"created_at\""} {
		if !strings.Contains(s, key) {
			t.Fatalf("missing %s in %s", key, s)
		}
	}
}
