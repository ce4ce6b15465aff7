/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic in the CLI into a written report, an optional
// database snapshot and a non-zero exit.
package crash

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "geomarks/internal/log"
	"geomarks/internal/telemetry"
	"geomarks/internal/version"
)

// exitFn is replaced in tests.
var exitFn = os.Exit

// Handler carries what Recover needs. The zero value writes the report to the
// OS temp dir and does nothing else.
type Handler struct {
	// Dir receives crash-*.log files. Created on demand.
	Dir string
	// Telemetry, when opted in, receives a copy of the report.
	Telemetry *telemetry.Client
	// Snapshot, if set, is asked for a copy of the database before exit.
	// It returns the path of the copy.
	Snapshot func(ctx context.Context) (string, error)
	// Exit ends the process; nil means os.Exit.
	Exit func(code int)
}

// Recover captures a panic, logs it with its stack, writes a report and an
// optional snapshot, then exits with code 2.
//
// Usage: defer h.Recover() with h a *Handler; fields may be filled in later.
func (h *Handler) Recover() {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	reportPath, err := h.writeReport(r, stack)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err))
	}
	if h.Snapshot != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if path, err := h.Snapshot(ctx); err != nil {
			l.Error("crash snapshot failed", slog.Any("err", err))
		} else {
			l.Info("crash snapshot written", slog.String("path", path))
		}
		cancel()
	}

	_, _ = fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath)
	_, _ = fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH)
	if h.Exit != nil {
		h.Exit(2)
		return
	}
	exitFn(2)
}

func (h *Handler) writeReport(panicVal any, stack []byte) (string, error) {
	dir := h.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", stamp))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "Geomarks Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if s := h.Telemetry.Session(); s != "" {
		_, _ = fmt.Fprintf(&buf, "Session: %s\n", s)
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return path, err
	}
	_ = f.Sync()
	if err := f.Close(); err != nil {
		return path, err
	}

	h.Telemetry.UploadCrash(buf.Bytes())
	return path, nil
}
