package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExcelExporter writes one styled sheet of rows
type ExcelExporter struct {
	file    *excelize.File
	options ExcelOptions
}

// ExcelOptions configures Excel export behavior
type ExcelOptions struct {
	SheetName    string
	FreezeHeader bool
	AutoFilter   bool
	NumberFormat string
	HeaderFill   string
	HeaderFont   string
}

func DefaultExcelOptions() ExcelOptions {
	return ExcelOptions{
		SheetName:    "Sales",
		FreezeHeader: true,
		AutoFilter:   true,
		NumberFormat: "#,##0.00",
		HeaderFill:   "2E7D32",
		HeaderFont:   "FFFFFF",
	}
}

func NewExcelExporter(options ExcelOptions) *ExcelExporter {
	file := excelize.NewFile()
	file.SetSheetName("Sheet1", options.SheetName)
	return &ExcelExporter{file: file, options: options}
}

// WriteHeader writes the header row in bold on a colored fill.
func (e *ExcelExporter) WriteHeader(columns []string) error {
	sheet := e.options.SheetName

	style, err := e.file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: e.options.HeaderFont},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{e.options.HeaderFill}},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := e.file.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
		e.file.SetCellStyle(sheet, cell, cell, style)
	}

	if e.options.FreezeHeader {
		return e.file.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		})
	}
	return nil
}

// WriteRows writes rows below the header in column order.
func (e *ExcelExporter) WriteRows(rows []map[string]interface{}, columns []string) error {
	sheet := e.options.SheetName

	dateStyle, err := e.file.NewStyle(&excelize.Style{NumFmt: 22})
	if err != nil {
		return err
	}
	numberStyle, err := e.file.NewStyle(&excelize.Style{CustomNumFmt: &e.options.NumberFormat})
	if err != nil {
		return err
	}

	widths := make([]float64, len(columns))
	for i, col := range columns {
		widths[i] = float64(len(col))
	}

	for r, row := range rows {
		for c, col := range columns {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			val := row[col]
			if err := e.file.SetCellValue(sheet, cell, val); err != nil {
				return fmt.Errorf("failed to set cell value: %w", err)
			}
			switch val.(type) {
			case time.Time:
				e.file.SetCellStyle(sheet, cell, cell, dateStyle)
			case float64:
				e.file.SetCellStyle(sheet, cell, cell, numberStyle)
			}
			if w := float64(len(fmt.Sprintf("%v", val))); w > widths[c] {
				widths[c] = w
			}
		}
	}

	if e.options.AutoFilter && len(rows) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(columns), len(rows)+1)
		if err := e.file.AutoFilter(sheet, "A1:"+last, nil); err != nil {
			return err
		}
	}

	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		e.file.SetColWidth(sheet, col, col, clampWidth(w*1.2))
	}
	return nil
}

func clampWidth(w float64) float64 {
	if w < 10 {
		return 10
	}
	if w > 50 {
		return 50
	}
	return w
}

func (e *ExcelExporter) WriteTo(w io.Writer) error {
	return e.file.Write(w)
}

func (e *ExcelExporter) Close() error {
	return e.file.Close()
}
