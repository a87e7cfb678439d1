// Package exporter serializes report rows into Excel workbooks: one
// result workbook per run date plus a sibling error-only workbook for
// operator follow-up.
package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"sftpaudit/pkg/contracts/domain"
)

// headers are the columns of the report sheet, in output order.
var headers = []string{"Account Name", "Folder", "Latest File Name", "Latest File Date"}

// columnWidths keeps the sheet readable without manual resizing.
var columnWidths = map[string]float64{
	"A": 28,
	"B": 36,
	"C": 48,
	"D": 30,
}

// ExcelWriter writes report rows to xlsx workbooks.
type ExcelWriter struct {
	sheetName string
}

// NewExcelWriter creates a writer that renders to the given sheet name.
func NewExcelWriter(sheetName string) *ExcelWriter {
	if sheetName == "" {
		sheetName = "Latest Files"
	}
	return &ExcelWriter{sheetName: sheetName}
}

// WriteReport writes the rows to outputPath, grouped visually by account
// with a blank separator row between accounts. Row order follows the
// account/folder iteration order of the collection pass.
func (w *ExcelWriter) WriteReport(rows []domain.ReportRow, outputPath string) error {
	slog.Info("Writing report workbook",
		slog.String("path", outputPath),
		slog.Int("row_count", len(rows)))

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := w.sheetName
	f.SetSheetName(f.GetSheetName(0), sheet)

	if err := w.writeHeader(f, sheet); err != nil {
		return err
	}

	rowNum := 2
	var prevAccount string
	for i, row := range rows {
		if i > 0 && row.Account != prevAccount {
			rowNum++ // blank separator row between accounts
		}
		prevAccount = row.Account

		cells := []interface{}{row.Account, row.Folder, row.FileName, row.FileDate}
		for colIdx, val := range cells {
			col, err := excelize.ColumnNumberToName(colIdx + 1)
			if err != nil {
				return fmt.Errorf("failed to resolve column %d: %w", colIdx+1, err)
			}
			if err := f.SetCellValue(sheet, fmt.Sprintf("%s%d", col, rowNum), val); err != nil {
				return fmt.Errorf("failed to set cell value: %w", err)
			}
		}
		rowNum++
	}

	for col, width := range columnWidths {
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	if err := f.SaveAs(outputPath); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", outputPath, err)
	}
	return nil
}

// writeHeader renders the bold, filled header row.
func (w *ExcelWriter) writeHeader(f *excelize.File, sheet string) error {
	styleID, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for colIdx, h := range headers {
		col, err := excelize.ColumnNumberToName(colIdx + 1)
		if err != nil {
			return fmt.Errorf("failed to resolve column %d: %w", colIdx+1, err)
		}
		cell := col + "1"
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("failed to write header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, styleID); err != nil {
			return fmt.Errorf("failed to style header cell %s: %w", cell, err)
		}
	}
	return nil
}

// ErrorRows filters the rows that carry an error marker (connection
// error, listing error, or folder-not-configured), preserving order.
func ErrorRows(rows []domain.ReportRow) []domain.ReportRow {
	var out []domain.ReportRow
	for _, row := range rows {
		if row.IsError() {
			out = append(out, row)
		}
	}
	return out
}

// WriteErrorReport writes the error-only workbook when errRows is
// non-empty, returning whether a file was written.
func (w *ExcelWriter) WriteErrorReport(errRows []domain.ReportRow, outputPath string) (bool, error) {
	if len(errRows) == 0 {
		return false, nil
	}
	if err := w.WriteReport(errRows, outputPath); err != nil {
		return false, err
	}
	return true, nil
}
