/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package access is the single entry point UI code uses to reach the marker
// store. It forwards each call to the injected store and tracks two
// observable facts for the UI: how many calls are in flight and the most
// recent failure.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"geomarks/internal/domain"
	applog "geomarks/internal/log"
)

// Store is the persistence contract the facade needs. Both the embedded
// SQLite store and the PostgreSQL store satisfy it.
type Store interface {
	CreateMarker(ctx context.Context, lat, lon float64) (int64, error)
	GetMarker(ctx context.Context, id int64) (domain.Marker, bool, error)
	ListMarkers(ctx context.Context) ([]domain.Marker, error)
	DeleteMarker(ctx context.Context, id int64) error
	CreateImage(ctx context.Context, markerID int64, uri string) (int64, error)
	ListImages(ctx context.Context, markerID int64) ([]domain.Image, error)
	DeleteImage(ctx context.Context, id int64) error
}

// EventSink receives anonymous operation events. *telemetry.Client fits.
type EventSink interface {
	Event(name string, props map[string]any)
}

// OpError is a failure recorded by the facade.
type OpError struct {
	Op  string
	At  time.Time
	Err error
}

func (e *OpError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *OpError) Unwrap() error { return e.Err }

// State is a snapshot of the facade's observable status.
type State struct {
	InFlight  int
	LastError *OpError
}

// Busy reports whether any call was in flight when the snapshot was taken.
func (s State) Busy() bool { return s.InFlight > 0 }

// Option configures a Facade.
type Option func(*Facade)

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Facade) {
		if l != nil {
			f.log = l
		}
	}
}

// WithEvents sends one event per completed call to sink.
func WithEvents(sink EventSink) Option {
	return func(f *Facade) { f.events = sink }
}

// Facade wraps a Store. It is safe for concurrent use. Every call returns its
// own result; the shared state is informational only.
type Facade struct {
	store  Store
	log    *slog.Logger
	events EventSink
	now    func() time.Time

	// notifyMu serialises listener delivery; it is taken before mu.
	notifyMu sync.Mutex

	mu        sync.Mutex
	inFlight  int
	lastErr   *OpError
	listeners map[int]func(State)
	nextID    int
}

// New builds a facade over store.
func New(store Store, opts ...Option) *Facade {
	f := &Facade{
		store:     store,
		log:       applog.WithComponent("facade"),
		now:       time.Now,
		listeners: map[int]func(State){},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// AddMarker creates a marker at the given coordinates and returns its id.
func (f *Facade) AddMarker(ctx context.Context, lat, lon float64) (int64, error) {
	var id int64
	err := f.run(ctx, "add_marker", func(ctx context.Context) error {
		var err error
		id, err = f.store.CreateMarker(ctx, lat, lon)
		return err
	})
	return id, err
}

// GetMarkers lists all markers in ascending id order.
func (f *Facade) GetMarkers(ctx context.Context) ([]domain.Marker, error) {
	var out []domain.Marker
	err := f.run(ctx, "get_markers", func(ctx context.Context) error {
		var err error
		out, err = f.store.ListMarkers(ctx)
		return err
	})
	return out, err
}

// GetMarkerByID returns the marker, or found=false when there is none.
func (f *Facade) GetMarkerByID(ctx context.Context, id int64) (domain.Marker, bool, error) {
	var (
		m     domain.Marker
		found bool
	)
	err := f.run(ctx, "get_marker", func(ctx context.Context) error {
		var err error
		m, found, err = f.store.GetMarker(ctx, id)
		return err
	})
	return m, found, err
}

// DeleteMarker removes the marker and all its images. Deleting an id that
// does not exist succeeds.
func (f *Facade) DeleteMarker(ctx context.Context, id int64) error {
	return f.run(ctx, "delete_marker", func(ctx context.Context) error {
		return f.store.DeleteMarker(ctx, id)
	})
}

// AddImage attaches a photo reference to a marker.
func (f *Facade) AddImage(ctx context.Context, markerID int64, uri string) (int64, error) {
	var id int64
	err := f.run(ctx, "add_image", func(ctx context.Context) error {
		var err error
		id, err = f.store.CreateImage(ctx, markerID, uri)
		return err
	})
	return id, err
}

// GetMarkerImages lists a marker's images in insertion order.
func (f *Facade) GetMarkerImages(ctx context.Context, markerID int64) ([]domain.Image, error) {
	var out []domain.Image
	err := f.run(ctx, "get_marker_images", func(ctx context.Context) error {
		var err error
		out, err = f.store.ListImages(ctx, markerID)
		return err
	})
	return out, err
}

// DeleteImage removes one image.
func (f *Facade) DeleteImage(ctx context.Context, id int64) error {
	return f.run(ctx, "delete_image", func(ctx context.Context) error {
		return f.store.DeleteImage(ctx, id)
	})
}

// State returns a snapshot of the in-flight count and last error.
func (f *Facade) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateLocked()
}

// Busy reports whether at least one call is in flight.
func (f *Facade) Busy() bool { return f.InFlight() > 0 }

// InFlight returns the number of calls currently running.
func (f *Facade) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

// LastError returns the most recent failure, or nil. Later successes do not
// clear it.
func (f *Facade) LastError() *OpError {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// ClearError forgets the recorded failure, typically after the UI showed it.
func (f *Facade) ClearError() {
	f.mu.Lock()
	f.lastErr = nil
	f.mu.Unlock()
	f.publish()
}

// Subscribe registers fn to receive a State after every change. The returned
// function removes the subscription. fn runs on the goroutine that caused the
// change. It must not block or call back into the facade, and may see the same
// state twice when calls overlap.
func (f *Facade) Subscribe(fn func(State)) (cancel func()) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.listeners, id)
			f.mu.Unlock()
		})
	}
}

// run brackets one store call. The in-flight count is released in a deferred
// function, so it drops back on success, failure and panic alike.
func (f *Facade) run(ctx context.Context, op string, fn func(context.Context) error) (err error) {
	f.begin()
	start := f.now()
	defer func() {
		r := recover()
		if r != nil {
			err = &domain.StorageError{Op: op, Err: fmt.Errorf("panic: %v", r)}
		}
		f.end(op, err, start)
		if r != nil {
			panic(r)
		}
	}()
	return fn(ctx)
}

func (f *Facade) begin() {
	f.mu.Lock()
	f.inFlight++
	f.mu.Unlock()
	f.publish()
}

func (f *Facade) end(op string, err error, start time.Time) {
	elapsed := f.now().Sub(start)
	f.mu.Lock()
	f.inFlight--
	if err != nil {
		f.lastErr = &OpError{Op: op, At: f.now(), Err: err}
	}
	f.mu.Unlock()

	l := applog.WithOperation(f.log, op)
	if err != nil {
		l.Warn("call failed", slog.String("kind", errorKind(err)), slog.Any("err", err))
	} else {
		l.Debug("call done", slog.Duration("took", elapsed))
	}
	if f.events != nil {
		f.events.Event("store_call", map[string]any{
			"op":   op,
			"ok":   err == nil,
			"kind": errorKind(err),
			"ms":   elapsed.Milliseconds(),
		})
	}
	f.publish()
}

// publish hands the current state to every listener. Deliveries are
// serialised and each reads the state afresh, so when calls overlap the last
// state a listener receives is never older than the latest transition.
func (f *Facade) publish() {
	f.notifyMu.Lock()
	defer f.notifyMu.Unlock()
	f.mu.Lock()
	st, ls := f.stateLocked(), f.listenersLocked()
	f.mu.Unlock()
	for _, fn := range ls {
		fn(st)
	}
}

func (f *Facade) stateLocked() State {
	return State{InFlight: f.inFlight, LastError: f.lastErr}
}

func (f *Facade) listenersLocked() []func(State) {
	if len(f.listeners) == 0 {
		return nil
	}
	out := make([]func(State), 0, len(f.listeners))
	for _, fn := range f.listeners {
		out = append(out, fn)
	}
	return out
}

// errorKind names the taxonomy class of err for logs and events.
func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrConstraint):
		return "constraint"
	case errors.Is(err, domain.ErrInitialization):
		return "initialization"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "storage"
	}
}
