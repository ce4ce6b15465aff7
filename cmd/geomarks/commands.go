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
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"geomarks/internal/config"
	"geomarks/internal/export"
	"geomarks/internal/storage"
	"geomarks/internal/ui"

	"gopkg.in/yaml.v3"
)

func (a *app) term() *terminal { return newTerminal(a.in, a.out, a.errw, a.yes) }

func (a *app) cmdInit(ctx context.Context) error {
	if sq, ok := a.store.(*storage.Store); ok {
		v, err := sq.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.out, "Database ready at %s (schema %d)\n", sq.Path(), v)
		return nil
	}
	_, _ = fmt.Fprintln(a.out, "PostgreSQL store ready")
	return nil
}

func (a *app) cmdAdd(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("add requires <lat> <lon>")
	}
	lat, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return usageError(fmt.Sprintf("invalid latitude %q", args[0]))
	}
	lon, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return usageError(fmt.Sprintf("invalid longitude %q", args[1]))
	}
	t := a.term()
	ms := ui.NewMapScreen(a.facade, nil, t.alert)
	id, err := ms.LongPress(ctx, lat, lon)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "Added marker %d\n", id)
	return nil
}

func (a *app) cmdList(ctx context.Context) error {
	t := a.term()
	ms := ui.NewMapScreen(a.facade, nil, t.alert)
	if err := ms.Focus(ctx); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tLATITUDE\tLONGITUDE\tCREATED")
	for _, m := range ms.Markers() {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", m.ID, fmtCoord(m.Latitude), fmtCoord(m.Longitude), fmtTime(m.CreatedAt))
	}
	return tw.Flush()
}

func (a *app) loadDetail(ctx context.Context, idArg string, pick ui.PhotoPicker) (*ui.DetailScreen, *printNav, error) {
	id, err := parseID(idArg)
	if err != nil {
		return nil, nil, err
	}
	t := a.term()
	nav := &printNav{out: a.out}
	d := ui.NewDetailScreen(a.facade, nav, t.alert, t.confirm, pick)
	if err := d.Load(ctx, id); err != nil {
		return nil, nil, err
	}
	return d, nav, nil
}

func (a *app) cmdShow(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("show requires <id>")
	}
	d, _, err := a.loadDetail(ctx, args[0], nil)
	if err != nil {
		return err
	}
	v := d.View()
	if v.NotFound {
		return fmt.Errorf("marker %s not found", args[0])
	}
	_, _ = fmt.Fprintf(a.out, "Marker %d\n", v.Marker.ID)
	_, _ = fmt.Fprintf(a.out, "Coordinates: %s, %s\n", fmtCoord(v.Marker.Latitude), fmtCoord(v.Marker.Longitude))
	_, _ = fmt.Fprintf(a.out, "Created: %s\n", fmtTime(v.Marker.CreatedAt))
	if len(v.Images) == 0 {
		_, _ = fmt.Fprintln(a.out, "No photos yet")
		return nil
	}
	_, _ = fmt.Fprintln(a.out, "Photos:")
	for _, img := range v.Images {
		_, _ = fmt.Fprintf(a.out, "  %d  %s\n", img.ID, img.URI)
	}
	return nil
}

func (a *app) cmdAttach(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("attach requires <id> <uri>")
	}
	d, _, err := a.loadDetail(ctx, args[0], fixedPhoto(args[1]))
	if err != nil {
		return err
	}
	if d.View().NotFound {
		return fmt.Errorf("marker %s not found", args[0])
	}
	imgID, err := d.AddPhoto(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "Attached photo %d\n", imgID)
	return nil
}

func (a *app) cmdDetach(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("detach requires <marker-id> <image-id>")
	}
	imgID, err := parseID(args[1])
	if err != nil {
		return err
	}
	d, _, err := a.loadDetail(ctx, args[0], nil)
	if err != nil {
		return err
	}
	attached := false
	for _, img := range d.View().Images {
		if img.ID == imgID {
			attached = true
		}
	}
	if !attached {
		return fmt.Errorf("photo %d is not attached to marker %s", imgID, args[0])
	}
	ok, err := d.DeleteImage(ctx, imgID)
	if err != nil {
		return err
	}
	if !ok {
		_, _ = fmt.Fprintln(a.out, "Cancelled")
		return nil
	}
	_, _ = fmt.Fprintf(a.out, "Removed photo %d\n", imgID)
	return nil
}

func (a *app) cmdDelete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("delete requires <id>")
	}
	d, nav, err := a.loadDetail(ctx, args[0], nil)
	if err != nil {
		return err
	}
	if d.View().NotFound {
		_, _ = fmt.Fprintf(a.out, "Marker %s not found, nothing to delete\n", args[0])
		return nil
	}
	ok, err := d.DeleteMarker(ctx)
	if err != nil {
		return err
	}
	if !ok {
		_, _ = fmt.Fprintln(a.out, "Cancelled")
		return nil
	}
	if nav.backs > 0 {
		_, _ = fmt.Fprintf(a.out, "Deleted marker %s\n", args[0])
	}
	return nil
}

func (a *app) cmdExport(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("export requires json|pdf")
	}
	switch args[0] {
	case "json":
		var w io.Writer = a.out
		if len(args) > 1 {
			f, err := os.Create(args[1])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			w = f
		}
		snap, err := export.WriteJSON(ctx, a.facade, w)
		if err != nil {
			return err
		}
		if len(args) > 1 {
			_, _ = fmt.Fprintf(a.out, "Exported %d markers to %s\n", len(snap.Markers), args[1])
		}
		return nil
	case "pdf":
		if len(args) < 2 {
			return usageError("export pdf requires <file>")
		}
		snap, err := export.WritePDF(ctx, a.facade, args[1], export.PDFOptions{})
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.out, "Exported %d markers to %s\n", len(snap.Markers), args[1])
		return nil
	}
	return usageError(fmt.Sprintf("unknown export format %q", args[0]))
}

func (a *app) cmdCheck(ctx context.Context) error {
	problems, err := a.store.CheckIntegrity(ctx)
	if err != nil {
		return err
	}
	if len(problems) == 0 {
		_, _ = fmt.Fprintln(a.out, "ok")
		return nil
	}
	for _, p := range problems {
		_, _ = fmt.Fprintln(a.out, p)
	}
	return fmt.Errorf("%d integrity problems found", len(problems))
}

func (a *app) cmdBackup(ctx context.Context, args []string) error {
	sq, ok := a.store.(*storage.Store)
	if !ok {
		return errors.New("backup is only available for the sqlite store; use pg_dump for postgres")
	}
	keep := 0
	if len(args) == 2 && args[0] == "--keep" {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return usageError(fmt.Sprintf("invalid --keep value %q", args[1]))
		}
		keep = n
	} else if len(args) != 0 {
		return usageError("backup accepts only --keep N")
	}
	path, err := sq.Backup(ctx, a.cfg.Store.BackupDir)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(a.out, "Backup written to", path)
	if keep > 0 {
		n, err := storage.PruneBackups(a.cfg.Store.BackupDir, keep)
		if err != nil {
			return err
		}
		if n > 0 {
			_, _ = fmt.Fprintf(a.out, "Removed %d old backups\n", n)
		}
	}
	return nil
}

func (a *app) cmdStats(ctx context.Context) error {
	st, err := a.store.Stats(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "markers: %d\nphotos:  %d\n", st.Markers, st.Images)
	return nil
}

func (a *app) cmdConfig(args []string) error {
	if len(args) == 0 {
		return usageError("config requires show|set-password|forget-password")
	}
	switch args[0] {
	case "show":
		data, err := yaml.Marshal(a.cfg)
		if err != nil {
			return err
		}
		_, _ = a.out.Write(data)
		state := "not set"
		if a.secret != "" {
			state = "set (keychain)"
		}
		_, _ = fmt.Fprintf(a.out, "# postgres password: %s\n", state)
		for _, key := range overridableKeys {
			if env, ok := config.EnvOverrideFor(key); ok {
				_, _ = fmt.Fprintf(a.out, "# %s overridden by %s\n", key, env)
			}
		}
		return nil
	case "set-password":
		_, _ = fmt.Fprint(a.out, "Postgres password: ")
		pw, err := a.term().in.ReadString('\n')
		if err != nil && pw == "" {
			return errors.New("no password given")
		}
		pw = strings.TrimRight(pw, "\r\n")
		if pw == "" {
			return errors.New("no password given")
		}
		fileCfg, err := config.LoadFile()
		if err != nil {
			return err
		}
		if err := config.Save(fileCfg, pw); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(a.out, "Password stored in the OS keychain")
		return nil
	case "forget-password":
		if err := config.ForgetPassword(a.cfg.Postgres.User); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(a.out, "Password removed from the OS keychain")
		return nil
	}
	return usageError(fmt.Sprintf("unknown config command %q", args[0]))
}

var overridableKeys = []string{
	"store.driver", "store.path", "store.busy_timeout_ms", "postgres.dsn",
	"general.telemetry_opt_in", "logging.level", "logging.format", "logging.source", "logging.file",
}

func fmtCoord(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
