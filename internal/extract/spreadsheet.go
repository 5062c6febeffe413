package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/mike-a-ellis/docqa/internal/document"
)

// Spreadsheet reads .xlsx workbooks. By default every non-empty data row
// becomes one candidate chunk; with wholeSheet each sheet is flattened into a
// pipe-delimited text block instead.
type Spreadsheet struct {
	wholeSheet bool
}

// NewSpreadsheet creates a spreadsheet extractor.
func NewSpreadsheet(wholeSheet bool) *Spreadsheet {
	return &Spreadsheet{wholeSheet: wholeSheet}
}

type sheetData struct {
	name   string
	header []string
	rows   [][]string
}

func (s *Spreadsheet) Extract(_ context.Context, path string) (Result, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	var sheets []sheetData
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return Result{}, fmt.Errorf("failed to read sheet %q: %w", name, err)
		}
		if len(rows) == 0 || blankRow(rows[0]) || allBlank(rows) {
			continue
		}
		sheets = append(sheets, sheetData{name: name, header: rows[0], rows: rows[1:]})
	}

	meta := document.Metadata{"total_sheets": len(sheets)}
	if s.wholeSheet {
		return TextResult(flattenSheets(sheets), meta), nil
	}
	return ChunksResult(rowChunks(sheets), meta), nil
}

// flattenSheets renders each sheet as "[name]" followed by one "| a | b |"
// line per row, header first. Sheets are separated by a blank line.
func flattenSheets(sheets []sheetData) string {
	blocks := make([]string, 0, len(sheets))
	for _, sheet := range sheets {
		lines := []string{"[" + sheet.name + "]", "| " + strings.Join(sheet.header, " | ") + " |"}
		for _, row := range sheet.rows {
			if blankRow(row) {
				continue
			}
			lines = append(lines, "| "+strings.Join(padRow(row, len(sheet.header)), " | ")+" |")
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

// rowChunks emits one chunk per non-empty row. Every non-empty column is
// written into the text as "header: value" and copied into the metadata.
func rowChunks(sheets []sheetData) []document.Chunk {
	var chunks []document.Chunk
	for _, sheet := range sheets {
		header := columnNames(sheet.header)
		for i, row := range sheet.rows {
			if blankRow(row) {
				continue
			}
			// Data rows start below the header on spreadsheet row 2.
			rowNumber := i + 2
			meta := document.Metadata{"sheet": sheet.name, "row": rowNumber}

			lines := []string{fmt.Sprintf("[%s] row %d", sheet.name, rowNumber)}
			for col, value := range padRow(row, len(header)) {
				value = strings.TrimSpace(value)
				if value == "" {
					continue
				}
				name := columnName(header, col)
				lines = append(lines, name+": "+value)
				if _, reserved := meta[name]; !reserved {
					meta[name] = value
				}
			}

			chunk := document.NewChunk(strings.Join(lines, "\n"))
			chunk.Metadata = meta
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// padRow right-pads row with empty cells up to width.
func padRow(row []string, width int) []string {
	if len(row) >= width {
		return row
	}
	padded := make([]string, width)
	copy(padded, row)
	return padded
}

func columnNames(header []string) []string {
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.TrimSpace(h)
	}
	return names
}

// columnName returns the header for col, or "column_N" for unnamed and
// overflow columns.
func columnName(header []string, col int) string {
	if col < len(header) && header[col] != "" {
		return header[col]
	}
	return fmt.Sprintf("column_%d", col+1)
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func allBlank(rows [][]string) bool {
	for _, row := range rows {
		if !blankRow(row) {
			return false
		}
	}
	return true
}
