package hierarchy

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet the report is written to.
const SheetName = "Hierarchical Suppliers"

// amountFormat is the built-in "#,##0.00" number format.
const amountFormat = 4

// WriteXLSX writes rows as a workbook: bold parent rows, italic grey member
// rows.
func WriteXLSX(w io.Writer, rows []Row) error {
	f, err := buildWorkbook(rows)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// SaveXLSX writes the workbook to path.
func SaveXLSX(path string, rows []Row) error {
	f, err := buildWorkbook(rows)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func buildWorkbook(rows []Row) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D9E1F2"}},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	parentStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		NumFmt: amountFormat,
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create parent style: %w", err)
	}
	childStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Italic: true, Color: "505050"},
		NumFmt: amountFormat,
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create child style: %w", err)
	}

	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := writeRow(f, 1, header, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	for i, row := range rows {
		var parentSpend interface{} = ""
		if row.ParentSpend != nil {
			parentSpend = *row.ParentSpend
		}
		cells := []interface{}{
			row.OriginalOrder,
			row.ParentOrder,
			row.displayName(),
			row.Spend,
			parentSpend,
		}
		style := parentStyle
		if row.Child {
			style = childStyle
		}
		if err := writeRow(f, i+2, cells, style); err != nil {
			f.Close()
			return nil, err
		}
	}

	if err := f.SetColWidth(SheetName, "C", "C", 45); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to size name column: %w", err)
	}

	return f, nil
}

func writeRow(f *excelize.File, rowNum int, cells []interface{}, style int) error {
	start, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	end, err := excelize.CoordinatesToCellName(len(cells), rowNum)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetName, start, &cells); err != nil {
		return fmt.Errorf("failed to write row %d: %w", rowNum, err)
	}
	if err := f.SetCellStyle(SheetName, start, end, style); err != nil {
		return fmt.Errorf("failed to style row %d: %w", rowNum, err)
	}
	return nil
}
