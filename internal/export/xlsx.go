package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet the comparison is written to.
const SheetName = "Comparison"

var columnWidths = []float64{22, 50, 60, 60}

// Fill colors per column: timestamp, user, response A, response B.
var columnFills = []string{"F3F4F6", "DBEAFE", "DCFCE7", "FEF3C7"}

const headerFill = "1F2937"

// XLSXExporter writes a single styled worksheet.
type XLSXExporter struct{}

func (e *XLSXExporter) Export(t Transcript, w io.Writer) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerFill}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	cellStyles := make([]int, len(columnFills))
	for i, color := range columnFills {
		cellStyles[i], err = f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}},
			Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
		})
		if err != nil {
			return fmt.Errorf("column style: %w", err)
		}
	}

	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return fmt.Errorf("column width: %w", err)
		}
	}

	if err := writeRow(f, 1, t.Header(), func(int) int { return headerStyle }); err != nil {
		return err
	}
	for i, row := range t.Rows() {
		if err := writeRow(f, i+2, row.fields(), func(col int) int { return cellStyles[col] }); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, rowNum int, values []string, style func(col int) int) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, rowNum)
		if err != nil {
			return err
		}
		if err := f.SetCellStr(SheetName, cell, v); err != nil {
			return fmt.Errorf("set %s: %w", cell, err)
		}
		if err := f.SetCellStyle(SheetName, cell, cell, style(i)); err != nil {
			return fmt.Errorf("style %s: %w", cell, err)
		}
	}
	return nil
}

func (e *XLSXExporter) Extension() string {
	return "xlsx"
}

func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}
