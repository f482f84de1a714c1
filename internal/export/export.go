// Package export writes tabular reports to disk as CSV or Excel files.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
)

// Format selects the output file type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseFormat maps a user-supplied string, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("%w: unknown export format %q", models.ErrValidation, s)
	}
}

// Table is an ordered header row plus data rows.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]string
}

// Export writes the table to path in the given format.
func Export(table Table, format Format, path string) error {
	switch format {
	case FormatCSV:
		return exportCSV(table, path)
	case FormatXLSX:
		return exportXLSX(table, path)
	case FormatPDF:
		return fmt.Errorf("%w: pdf export requires the desktop document emitter", models.ErrPermanent)
	default:
		return fmt.Errorf("%w: unknown export format %q", models.ErrValidation, format)
	}
}

func exportCSV(table Table, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(table.Headers); err != nil {
		return fmt.Errorf("failed to write export header: %w", err)
	}
	for _, row := range table.Rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write export row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush export file: %w", err)
	}
	return f.Sync()
}

func exportXLSX(table Table, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := table.Name
	if sheet == "" {
		sheet = "Export"
	}
	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("failed to create worksheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range table.Headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to address header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to write header cell: %w", err)
		}
	}
	if len(table.Headers) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(table.Headers), 1)
		if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
			return fmt.Errorf("failed to style header row: %w", err)
		}
	}

	for r, row := range table.Rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return fmt.Errorf("failed to address data cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("failed to write data cell: %w", err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}
