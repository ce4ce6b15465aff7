/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"geomarks/internal/access"
	"geomarks/internal/backend"
	"geomarks/internal/config"
	"geomarks/internal/crash"
	"geomarks/internal/domain"
	applog "geomarks/internal/log"
	"geomarks/internal/storage"
	"geomarks/internal/telemetry"
	"geomarks/internal/version"
)

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Geomarks: markers and photo references on your device")
	_, _ = fmt.Fprintf(w, "Version: %s\n", version.String())
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Usage:")
	_, _ = fmt.Fprintln(w, "  geomarks version|-v|--version            Show version")
	_, _ = fmt.Fprintln(w, "  geomarks init                            Create or upgrade the database")
	_, _ = fmt.Fprintln(w, "  geomarks add <lat> <lon>                 Add a marker")
	_, _ = fmt.Fprintln(w, "  geomarks list                            List markers")
	_, _ = fmt.Fprintln(w, "  geomarks show <id>                       Show a marker and its photos")
	_, _ = fmt.Fprintln(w, "  geomarks attach <id> <uri>               Attach a photo reference to a marker")
	_, _ = fmt.Fprintln(w, "  geomarks detach <marker-id> <image-id>   Remove a photo (asks first)")
	_, _ = fmt.Fprintln(w, "  geomarks delete <id>                     Delete a marker and its photos (asks twice)")
	_, _ = fmt.Fprintln(w, "  geomarks export json [<file>]            Write a JSON snapshot (stdout if no file)")
	_, _ = fmt.Fprintln(w, "  geomarks export pdf <file>               Write a PDF report")
	_, _ = fmt.Fprintln(w, "  geomarks check                           Run integrity checks")
	_, _ = fmt.Fprintln(w, "  geomarks backup [--keep N]               Copy the sqlite database to the backup dir")
	_, _ = fmt.Fprintln(w, "  geomarks stats                           Count markers and photos")
	_, _ = fmt.Fprintln(w, "  geomarks config show|set-password|forget-password")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Flags: --yes skips confirmation questions.")
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// markerStore is what the CLI needs from either engine.
type markerStore interface {
	access.Store
	Stats(ctx context.Context) (domain.Stats, error)
	CheckIntegrity(ctx context.Context) ([]string, error)
	Close() error
}

// app bundles everything a command can use.
type app struct {
	cfg    config.AppConfig
	secret string
	store  markerStore
	facade *access.Facade
	tel    *telemetry.Client
	in     io.Reader
	out    io.Writer
	errw   io.Writer
	yes    bool
	log    *slog.Logger
}

// crashExit ends the process after a crash report; tests replace it.
var crashExit = os.Exit

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	ch := &crash.Handler{Exit: crashExit}
	defer ch.Recover()

	args, yes := stripFlag(args, "--yes", "-y")
	if len(args) == 0 {
		usage(stdout)
		return 0
	}
	switch args[0] {
	case "version", "--version", "-v":
		_, _ = fmt.Fprintln(stdout, "Geomarks")
		_, _ = fmt.Fprintln(stdout, version.String())
		return 0
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	}

	cfg, secret, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	applog.Init(logOptions(cfg.Logging))
	defer func() { _ = applog.Close() }()
	l := applog.WithComponent("cli")
	l.Debug("start", slog.Int("args", len(args)))

	if args[0] == "config" {
		a := &app{cfg: cfg, secret: secret, in: stdin, out: stdout, errw: stderr, log: l}
		return a.exit(a.cmdConfig(args[1:]))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	tel := telemetry.New(telemetry.Load(cfg.General.TelemetryOptIn))
	defer func() {
		tel.Flush(context.Background())
		tel.Close()
	}()
	dataDir, _ := config.DataDir()
	ch.Dir = filepath.Join(dataDir, "crash")
	ch.Telemetry = tel

	st, err := openStore(ctx, cfg, secret)
	if err != nil {
		l.Error("open store failed", slog.Any("err", err))
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	defer func() { _ = st.Close() }()
	if sq, ok := st.(*storage.Store); ok {
		ch.Snapshot = func(ctx context.Context) (string, error) { return sq.Backup(ctx, cfg.Store.BackupDir) }
	}

	a := &app{
		cfg:    cfg,
		secret: secret,
		store:  st,
		facade: access.New(st, access.WithEvents(tel)),
		tel:    tel,
		in:     stdin,
		out:    stdout,
		errw:   stderr,
		yes:    yes,
		log:    l,
	}
	return a.guardedDispatch(ctx, ch, args)
}

// guardedDispatch runs a command with crash recovery armed while the store,
// telemetry and log sink are still open, so the crash snapshot can read the
// database. A recovered panic exits with 2.
func (a *app) guardedDispatch(ctx context.Context, ch *crash.Handler, args []string) (code int) {
	code = 2
	defer ch.Recover()
	return a.exit(a.dispatch(ctx, args))
}

type command func(a *app, ctx context.Context, args []string) error

var commands = map[string]command{
	"init":   func(a *app, ctx context.Context, _ []string) error { return a.cmdInit(ctx) },
	"add":    (*app).cmdAdd,
	"list":   func(a *app, ctx context.Context, _ []string) error { return a.cmdList(ctx) },
	"show":   (*app).cmdShow,
	"attach": (*app).cmdAttach,
	"detach": (*app).cmdDetach,
	"delete": (*app).cmdDelete,
	"export": (*app).cmdExport,
	"check":  func(a *app, ctx context.Context, _ []string) error { return a.cmdCheck(ctx) },
	"backup": (*app).cmdBackup,
	"stats":  func(a *app, ctx context.Context, _ []string) error { return a.cmdStats(ctx) },
}

func (a *app) dispatch(ctx context.Context, args []string) error {
	if cmd, ok := commands[args[0]]; ok {
		return cmd(a, ctx, args[1:])
	}
	usage(a.out)
	return usageError("unknown command " + strconv.Quote(args[0]))
}

// usageError marks bad invocations; they exit with 2.
type usageError string

func (e usageError) Error() string { return string(e) }

func (a *app) exit(err error) int {
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintln(a.errw, "Error:", err)
	var ue usageError
	if errors.As(err, &ue) {
		return 2
	}
	a.log.Error("command failed", slog.Any("err", err))
	return 1
}

func openStore(ctx context.Context, cfg config.AppConfig, secret string) (markerStore, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		dsn, err := backend.WithCredentials(cfg.Postgres.DSN, cfg.Postgres.User, secret)
		if err != nil {
			return nil, &domain.InitializationError{Op: "postgres dsn", Err: err}
		}
		s, err := backend.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := storage.Open(ctx, storage.Options{Path: cfg.Store.Path, BusyTimeout: cfg.Store.BusyTimeout()})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func logOptions(lc config.LoggingConfig) applog.Options {
	opts := applog.FromEnv()
	if lc.Level != "" {
		opts.Level = lc.Level
	}
	if lc.Format != "" {
		opts.Format = lc.Format
	}
	if lc.File != "" {
		opts.File = lc.File
	}
	opts.AddSource = opts.AddSource || lc.Source
	return opts
}

// stripFlag removes every occurrence of the given flags and reports whether
// any was present.
func stripFlag(args []string, names ...string) ([]string, bool) {
	out := make([]string, 0, len(args))
	found := false
	for _, a := range args {
		hit := false
		for _, n := range names {
			if a == n {
				hit = true
			}
		}
		if hit {
			found = true
			continue
		}
		out = append(out, a)
	}
	return out, found
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, usageError(fmt.Sprintf("invalid id %q", s))
	}
	return id, nil
}
