/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// PDFOptions controls the report layout. Units are millimetres on A4.
type PDFOptions struct {
	Title string
	// OmitImages lists only the markers, one line each.
	OmitImages bool
}

var pdfColumns = []struct {
	title string
	width float64
	align string
}{
	{"ID", 18, "R"},
	{"Latitude", 38, "R"},
	{"Longitude", 38, "R"},
	{"Created (UTC)", 52, "L"},
	{"Photos", 24, "R"},
}

// WritePDF renders a tabular report of all markers, followed by each
// marker's photo references, and writes it to outPath.
func WritePDF(ctx context.Context, src Source, outPath string, opt PDFOptions) (Snapshot, error) {
	snap, err := Build(ctx, src)
	if err != nil {
		return Snapshot{}, err
	}
	title := opt.Title
	if title == "" {
		title = "Geomarks"
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetAuthor("Geomarks "+snap.AppVersion, true)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr(title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("%d markers, exported %s", len(snap.Markers), snap.ExportedAt.Format(time.RFC3339)), "", 1, "L", false, 0, "")
	pdf.Ln(3)

	header := func() {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(230, 230, 230)
		for _, c := range pdfColumns {
			pdf.CellFormat(c.width, 7, c.title, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 10)
	}
	header()
	for _, e := range snap.Markers {
		created := ""
		if !e.CreatedAt.IsZero() {
			created = e.CreatedAt.UTC().Format("2006-01-02 15:04:05")
		}
		cells := []string{
			strconv.FormatInt(e.ID, 10),
			strconv.FormatFloat(e.Latitude, 'f', -1, 64),
			strconv.FormatFloat(e.Longitude, 'f', -1, 64),
			created,
			strconv.Itoa(len(e.Images)),
		}
		for i, c := range pdfColumns {
			pdf.CellFormat(c.width, 6, cells[i], "1", 0, c.align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	if !opt.OmitImages {
		for _, e := range snap.Markers {
			if len(e.Images) == 0 {
				continue
			}
			pdf.Ln(4)
			pdf.SetFont("Helvetica", "B", 11)
			pdf.CellFormat(0, 7, fmt.Sprintf("Marker %d photos", e.ID), "", 1, "L", false, 0, "")
			pdf.SetFont("Helvetica", "", 9)
			for _, img := range e.Images {
				pdf.CellFormat(18, 5, strconv.FormatInt(img.ID, 10), "", 0, "R", false, 0, "")
				pdf.MultiCell(0, 5, "  "+tr(img.URI), "", "L", false)
			}
		}
	}

	if err := pdf.Error(); err != nil {
		return Snapshot{}, fmt.Errorf("render pdf: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return Snapshot{}, fmt.Errorf("ensure out dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return Snapshot{}, fmt.Errorf("write pdf: %w", err)
	}
	return snap, nil
}
