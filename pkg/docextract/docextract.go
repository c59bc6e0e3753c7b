// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package docextract backs the extract_document_text tool: plain-text
// extraction from PDF, DOCX, and XLSX binaries so agents can read
// documents dropped into their workspace without a rendering pipeline.
package docextract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

const maxExcelCellsPerSheet = 1000

// Result is the text extracted from a document, plus a rough page/sheet
// count so the calling agent can judge how much content it's getting.
type Result struct {
	Text  string
	Pages int
}

// Extract reads filePath and returns its text content. The format is
// chosen from the file extension; supported extensions are .pdf, .docx,
// and .xlsx.
func Extract(filePath string) (Result, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".pdf":
		return extractPDF(filePath)
	case ".docx":
		return extractDocx(filePath)
	case ".xlsx":
		return extractXlsx(filePath)
	default:
		return Result{}, fmt.Errorf("docextract: unsupported extension %q", filepath.Ext(filePath))
	}
}

func extractPDF(filePath string) (Result, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return Result{}, fmt.Errorf("docextract: open pdf: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Result{}, fmt.Errorf("docextract: stat pdf: %w", err)
	}

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return Result{}, fmt.Errorf("docextract: parse pdf: %w", err)
	}

	totalPages := reader.NumPage()
	var parts []string
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			parts = append(parts, fmt.Sprintf("--- page %d (extraction failed: %v) ---", pageNum, err))
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, fmt.Sprintf("--- page %d ---\n%s", pageNum, text))
		}
	}

	return Result{Text: strings.Join(parts, "\n\n"), Pages: totalPages}, nil
}

func extractDocx(filePath string) (Result, error) {
	doc, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return Result{}, fmt.Errorf("docextract: open docx: %w", err)
	}
	defer doc.Close()

	content := doc.Editable().GetContent()
	paragraphs := len(strings.Split(content, "\n\n"))
	return Result{Text: content, Pages: paragraphs}, nil
}

func extractXlsx(filePath string) (Result, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return Result{}, fmt.Errorf("docextract: open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	var parts []string
	for _, sheetName := range sheets {
		var sheetText strings.Builder
		fmt.Fprintf(&sheetText, "--- sheet: %s ---\n", sheetName)

		rows, err := f.GetRows(sheetName)
		if err != nil {
			fmt.Fprintf(&sheetText, "error reading sheet: %v\n", err)
			parts = append(parts, sheetText.String())
			continue
		}

		cellCount := 0
		for rowIndex, row := range rows {
			if cellCount >= maxExcelCellsPerSheet {
				sheetText.WriteString("... (truncated)\n")
				break
			}
			for colIndex, cell := range row {
				if cellCount >= maxExcelCellsPerSheet {
					break
				}
				text := strings.TrimSpace(cell)
				if text == "" {
					continue
				}
				col, _ := excelize.ColumnNumberToName(colIndex + 1)
				fmt.Fprintf(&sheetText, "%s%d: %s\n", col, rowIndex+1, text)
				cellCount++
			}
		}

		if text := strings.TrimSpace(sheetText.String()); text != "" {
			parts = append(parts, text)
		}
	}

	return Result{Text: strings.Join(parts, "\n\n"), Pages: len(sheets)}, nil
}
