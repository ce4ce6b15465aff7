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
	"errors"
	"sync"

	"geomarks/internal/domain"
)

// DetailView is what the detail screen renders.
type DetailView struct {
	Marker   domain.Marker
	Images   []domain.Image
	NotFound bool
}

// DetailScreen controls the marker detail view.
type DetailScreen struct {
	svc     Service
	nav     Navigator
	alert   Alerter
	confirm Confirmer
	pick    PhotoPicker

	mu   sync.Mutex
	id   int64
	view DetailView
}

// NewDetailScreen wires the detail controller. confirm must not be nil:
// destructive actions are never taken without asking.
func NewDetailScreen(svc Service, nav Navigator, alert Alerter, confirm Confirmer, pick PhotoPicker) *DetailScreen {
	if confirm == nil {
		confirm = func(context.Context, string, string) bool { return false }
	}
	return &DetailScreen{svc: svc, nav: nav, alert: alertOrNop(alert), confirm: confirm, pick: pick}
}

// Load fetches the marker and its photos. A missing marker is not an error;
// the view reports NotFound instead.
func (d *DetailScreen) Load(ctx context.Context, id int64) error {
	m, found, err := d.svc.GetMarkerByID(ctx, id)
	if err != nil {
		d.alert(TitleError, MsgLoadErr)
		return err
	}
	v := DetailView{Marker: m, NotFound: !found}
	if found {
		imgs, err := d.svc.GetMarkerImages(ctx, id)
		if err != nil {
			d.alert(TitleError, MsgLoadErr)
			return err
		}
		v.Images = imgs
	}
	d.mu.Lock()
	d.id, d.view = id, v
	d.mu.Unlock()
	return nil
}

// View returns the current view state.
func (d *DetailScreen) View() DetailView {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := d.view
	v.Images = append([]domain.Image(nil), d.view.Images...)
	return v
}

// ErrNoMarker is returned by actions invoked before a marker was loaded.
var ErrNoMarker = errors.New("no marker loaded")

func (d *DetailScreen) current() (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.id, d.id != 0 && !d.view.NotFound
}

// AddPhoto asks the picker for a photo and attaches it. A cancelled pick is
// not an error and changes nothing.
func (d *DetailScreen) AddPhoto(ctx context.Context) (int64, error) {
	id, ok := d.current()
	if !ok {
		return 0, ErrNoMarker
	}
	if d.pick == nil {
		return 0, errors.New("no photo picker configured")
	}
	uri, picked, err := d.pick(ctx)
	if err != nil {
		d.alert(TitleError, MsgAddPhotoErr)
		return 0, err
	}
	if !picked {
		return 0, nil
	}
	imgID, err := d.svc.AddImage(ctx, id, uri)
	if err != nil {
		d.alert(TitleError, MsgAddPhotoErr)
		return 0, err
	}
	d.mu.Lock()
	d.view.Images = append(d.view.Images, domain.Image{ID: imgID, MarkerID: id, URI: uri})
	d.mu.Unlock()
	return imgID, nil
}

// DeleteImage removes one photo after a single confirmation. It reports
// whether the photo was deleted.
func (d *DetailScreen) DeleteImage(ctx context.Context, imageID int64) (bool, error) {
	if !d.confirm(ctx, TitleDeletePhoto, MsgDeletePhoto) {
		return false, nil
	}
	if err := d.svc.DeleteImage(ctx, imageID); err != nil {
		d.alert(TitleError, MsgDeletePhotoErr)
		return false, err
	}
	d.mu.Lock()
	kept := d.view.Images[:0]
	for _, img := range d.view.Images {
		if img.ID != imageID {
			kept = append(kept, img)
		}
	}
	d.view.Images = kept
	d.mu.Unlock()
	return true, nil
}

// DeleteMarker removes the loaded marker and its photos. The user confirms
// twice: once for the marker and once for the photos that go with it. On
// success the screen navigates back; on failure it alerts and stays.
func (d *DetailScreen) DeleteMarker(ctx context.Context) (bool, error) {
	id, ok := d.current()
	if !ok {
		return false, ErrNoMarker
	}
	if !d.confirm(ctx, TitleDeleteMarker, MsgDeleteMarker) {
		return false, nil
	}
	if !d.confirm(ctx, TitleDeleteImages, MsgDeleteImages) {
		return false, nil
	}
	if err := d.svc.DeleteMarker(ctx, id); err != nil {
		d.alert(TitleError, MsgDeleteMarkerErr)
		return false, err
	}
	d.mu.Lock()
	d.view = DetailView{NotFound: true}
	d.mu.Unlock()
	if d.nav != nil {
		d.nav.Back()
	}
	return true, nil
}
