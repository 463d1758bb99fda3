/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"oyster/internal/catalog"
	"oyster/internal/script"
)

// PDFOptions controls PDF export behavior.
// Units are points (pt). Built-in Helvetica and Courier keep the file small
// and portable; text is converted to cp1252, so characters outside it are
// replaced.
type PDFOptions struct {
	PageSize   string  // "A4" (default), "Letter", "A5"
	FontSize   float64 // dialogue size, default 11
	Directions bool    // include stage directions (jumps, waits, variables)
	Catalog    *catalog.Catalog
}

// ExportPDF writes a reading script of stmts to outPath, creating the
// directory if needed.
func ExportPDF(stmts []script.Statement, title, outPath string, opt PDFOptions) error {
	if strings.TrimSpace(outPath) == "" {
		return fmt.Errorf("output path is empty")
	}
	size := opt.PageSize
	if size == "" {
		size = "A4"
	}
	fs := opt.FontSize
	if fs <= 0 {
		fs = 11
	}
	blocks, meta := Layout(stmts, opt.Catalog, opt.Directions)

	pdf := gofpdf.New("P", "pt", size, "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(title, true)
	pdf.SetAuthor("Oyster", false)
	pdf.SetMargins(56, 56, 56)
	pdf.SetAutoPageBreak(true, 56)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-40)
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("%d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Helvetica", "B", fs+7)
		pdf.SetTextColor(0, 0, 0)
		pdf.MultiCell(0, (fs+7)*1.3, tr(title), "", "C", false)
	}
	if sub := subtitle(meta); sub != "" {
		pdf.SetFont("Helvetica", "I", fs-1)
		pdf.SetTextColor(96, 96, 96)
		pdf.MultiCell(0, fs*1.3, tr(sub), "", "C", false)
	}
	pdf.Ln(fs)

	left, _, _, _ := pdf.GetMargins()
	indent := func(d float64) { pdf.SetX(left + d) }
	width, _ := pdf.GetPageSize()
	body := width - 2*left
	for _, b := range blocks {
		switch b.Kind {
		case BlockHeading:
			pdf.Ln(fs * 0.6)
			pdf.SetFont("Helvetica", "B", fs+1)
			pdf.SetTextColor(0, 0, 0)
			pdf.MultiCell(0, fs*1.4, tr(strings.ToUpper(b.Text)), "B", "L", false)
			pdf.Ln(fs * 0.4)
		case BlockSpeaker:
			pdf.Ln(fs * 0.3)
			pdf.SetFont("Courier", "B", fs)
			pdf.SetTextColor(0, 0, 0)
			indent(body * 0.3)
			pdf.MultiCell(body*0.7, fs*1.3, tr(strings.ToUpper(b.Text)), "", "L", false)
		case BlockLine:
			pdf.SetFont("Courier", "", fs)
			pdf.SetTextColor(0, 0, 0)
			text := b.Text
			if b.Append {
				text = "... " + text
			}
			indent(body * 0.15)
			pdf.MultiCell(body*0.7, fs*1.3, tr(text), "", "L", false)
		case BlockOption:
			pdf.SetFont("Helvetica", "", fs)
			pdf.SetTextColor(0, 0, 96)
			indent(body * 0.2)
			pdf.MultiCell(body*0.8, fs*1.3, tr(b.Text), "", "L", false)
		case BlockDirection:
			pdf.SetFont("Helvetica", "I", fs-1)
			pdf.SetTextColor(96, 96, 96)
			indent(body * 0.1)
			pdf.MultiCell(body*0.9, fs*1.3, tr("("+b.Text+")"), "", "L", false)
		}
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
