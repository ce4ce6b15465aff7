/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"sync"

	"geomarks/internal/domain"
)

// Region is the visible map area.
type Region struct {
	Latitude       float64
	Longitude      float64
	LatitudeDelta  float64
	LongitudeDelta float64
}

// DefaultRegion is where the map opens.
var DefaultRegion = Region{Latitude: 58.00758, Longitude: 56.18743, LatitudeDelta: 0.005, LongitudeDelta: 0.02}

// MapScreen controls the map view: it lists markers, adds one on long press
// and opens the detail view on selection.
type MapScreen struct {
	svc   Service
	nav   Navigator
	alert Alerter

	mu      sync.Mutex
	markers []domain.Marker
}

// NewMapScreen wires the map controller.
func NewMapScreen(svc Service, nav Navigator, alert Alerter) *MapScreen {
	return &MapScreen{svc: svc, nav: nav, alert: alertOrNop(alert)}
}

// Focus reloads the marker list, as the screen does whenever it becomes
// visible. On failure the previous list is kept.
func (m *MapScreen) Focus(ctx context.Context) error {
	ms, err := m.svc.GetMarkers(ctx)
	if err != nil {
		m.alert(TitleError, MsgLoadErr)
		return err
	}
	m.mu.Lock()
	m.markers = ms
	m.mu.Unlock()
	return nil
}

// LongPress drops a marker at the pressed coordinate.
func (m *MapScreen) LongPress(ctx context.Context, lat, lon float64) (int64, error) {
	id, err := m.svc.AddMarker(ctx, lat, lon)
	if err != nil {
		m.alert(TitleError, MsgAddMarkerErr)
		return 0, err
	}
	mk, found, err := m.svc.GetMarkerByID(ctx, id)
	if err != nil || !found {
		// Stored but not readable back; show what we know.
		mk = domain.Marker{ID: id, Latitude: lat, Longitude: lon}
	}
	m.mu.Lock()
	m.markers = append(m.markers, mk)
	m.mu.Unlock()
	return id, nil
}

// Select opens the detail view for a marker.
func (m *MapScreen) Select(id int64) {
	if m.nav != nil {
		m.nav.ShowDetail(id)
	}
}

// Markers returns the markers currently shown.
func (m *MapScreen) Markers() []domain.Marker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Marker(nil), m.markers...)
}
