/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestClient_EventAndUploadCrash(t *testing.T) {
	var mu sync.Mutex
	var events [][]byte
	var crashes [][]byte

	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		mu.Lock()
		events = append(events, b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/crash", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		mu.Lock()
		crashes = append(crashes, b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", CrashURL: srv.URL + "/crash", Timeout: 2 * time.Second})
	defer c.Close()
	if !c.Enabled() {
		t.Fatalf("expected client to be enabled")
	}

	count := func(b *[][]byte) int {
		mu.Lock()
		defer mu.Unlock()
		return len(*b)
	}
	waitFor := func(b *[][]byte) {
		deadline := time.Now().Add(2 * time.Second)
		for count(b) == 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
	}

	c.Event("op", map[string]any{"op": "add_marker", "ok": true, "blob": []byte("x"), "ms": int64(3)})
	c.Flush(context.Background())
	waitFor(&events)
	if count(&events) == 0 {
		t.Fatalf("expected at least one event to be sent")
	}
	mu.Lock()
	first := events[0]
	mu.Unlock()
	var m map[string]any
	if err := json.Unmarshal(first, &m); err != nil {
		t.Fatalf("bad event json: %v", err)
	}
	if m["name"] != "op" || m["op"] != "add_marker" || m["ok"] != true {
		t.Fatalf("event payload mismatch: %v", m)
	}
	if m["session"] != c.Session() || c.Session() == "" {
		t.Fatalf("session id missing: %v", m["session"])
	}
	if _, ok := m["blob"]; ok {
		t.Fatalf("non-scalar property forwarded: %v", m)
	}
	if _, ok := m["ts"].(string); !ok {
		t.Fatalf("missing ts field")
	}

	c.UploadCrash([]byte("STACKTRACE"))
	waitFor(&crashes)
	mu.Lock()
	defer mu.Unlock()
	if len(crashes) == 0 || string(crashes[0]) != "STACKTRACE" {
		t.Fatalf("expected crash upload, got %q", crashes)
	}
}

func TestLoadReadsEndpointsFromEnv(t *testing.T) {
	t.Setenv("GEOMARKS_TELEMETRY_URL", " http://127.0.0.1:0/events ")
	t.Setenv("GEOMARKS_CRASH_UPLOAD_URL", "")
	t.Setenv("GEOMARKS_TELEMETRY_TIMEOUT_MS", "100")

	cfg := Load(true)
	if !cfg.OptIn || cfg.EventsURL != "http://127.0.0.1:0/events" || cfg.Timeout != 100*time.Millisecond {
		t.Fatalf("Load did not parse correctly: %+v", cfg)
	}
	if Load(false).OptIn {
		t.Fatalf("opt-in must follow the argument")
	}
}

func TestClient_DisabledAndEmptyEventName(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{OptIn: false, EventsURL: srv.URL + "/events", CrashURL: srv.URL + "/crash", Timeout: time.Second})
	defer c.Close()
	if c.Enabled() {
		t.Fatalf("expected disabled client")
	}
	c.Event("ignored", nil)
	c.UploadCrash([]byte("ignored"))

	c2 := New(Config{OptIn: true, EventsURL: srv.URL + "/events", Timeout: time.Second})
	defer c2.Close()
	c2.Event("", nil)
	c2.Flush(context.Background())
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("expected no requests, got %d", hits)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	c.Event("x", nil)
	c.UploadCrash([]byte("x"))
	c.Flush(context.Background())
	c.Close()
	if c.Enabled() || c.Session() != "" {
		t.Fatalf("nil client must be inert")
	}
}

func TestSendErrorsAreSwallowed(t *testing.T) {
	c := New(Config{OptIn: true, EventsURL: "http://127.0.0.1:1/events", CrashURL: "http://127.0.0.1:1/crash", Timeout: 50 * time.Millisecond, DebugLogging: true})
	defer c.Close()
	c.Event("err", map[string]any{"a": 1})
	c.Flush(context.Background())
	c.UploadCrash([]byte("oops"))
	time.Sleep(100 * time.Millisecond)
}
