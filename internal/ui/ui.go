/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package ui holds the screen controllers for the map and marker detail
// views. They carry no rendering code: everything a screen needs from the
// platform (dialogs, photo picking, navigation, alerts) is injected, which
// keeps the flows testable and lets the CLI drive them from a terminal.
package ui

import (
	"context"

	"geomarks/internal/domain"
)

// Service is the subset of the access facade the screens call.
type Service interface {
	AddMarker(ctx context.Context, lat, lon float64) (int64, error)
	GetMarkers(ctx context.Context) ([]domain.Marker, error)
	GetMarkerByID(ctx context.Context, id int64) (domain.Marker, bool, error)
	DeleteMarker(ctx context.Context, id int64) error
	AddImage(ctx context.Context, markerID int64, uri string) (int64, error)
	GetMarkerImages(ctx context.Context, markerID int64) ([]domain.Image, error)
	DeleteImage(ctx context.Context, id int64) error
}

// Confirmer asks the user a yes/no question. Returning false cancels.
type Confirmer func(ctx context.Context, title, message string) bool

// PhotoPicker asks the user for a photo. ok=false means the user cancelled.
type PhotoPicker func(ctx context.Context) (uri string, ok bool, err error)

// Alerter shows a message the user has to acknowledge.
type Alerter func(title, message string)

// Navigator moves between screens.
type Navigator interface {
	ShowDetail(markerID int64)
	Back()
}

// Dialog texts.
const (
	TitleDeleteMarker  = "Delete marker"
	MsgDeleteMarker    = "Are you sure you want to delete this marker?"
	TitleDeleteImages  = "Delete photos"
	MsgDeleteImages    = "All photos attached to this marker will be deleted as well. Continue?"
	TitleDeletePhoto   = "Delete photo"
	MsgDeletePhoto     = "Are you sure you want to delete this photo?"
	TitleError         = "Error"
	MsgDeleteMarkerErr = "Could not delete the marker."
	MsgDeletePhotoErr  = "Could not delete the photo."
	MsgAddPhotoErr     = "Could not attach the photo."
	MsgAddMarkerErr    = "Could not add the marker."
	MsgLoadErr         = "Could not load data."
)

func alertOrNop(a Alerter) Alerter {
	if a != nil {
		return a
	}
	return func(string, string) {}
}
