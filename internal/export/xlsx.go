package export

import (
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ContentType is the MIME type of encoded workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var ErrEmptyWorkbook = errors.New("workbook has no sheets")

const defaultSheet = "Sheet1"

// Encode writes the workbook as an xlsx document. Each sheet gets a header
// row from its columns followed by one line per row; missing keys stay blank.
func Encode(wb Workbook) ([]byte, error) {
	if len(wb.Sheets) == 0 {
		return nil, ErrEmptyWorkbook
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range wb.Sheets {
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, sheet.Name); err != nil {
				return nil, fmt.Errorf("rename sheet %q: %w", sheet.Name, err)
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			return nil, fmt.Errorf("create sheet %q: %w", sheet.Name, err)
		}
		if err := writeSheet(f, sheet); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet Sheet) error {
	header := make([]interface{}, len(sheet.Columns))
	for i, col := range sheet.Columns {
		header[i] = col
	}
	if err := f.SetSheetRow(sheet.Name, "A1", &header); err != nil {
		return fmt.Errorf("write header of %q: %w", sheet.Name, err)
	}

	for r, row := range sheet.Rows {
		if len(row) == 0 {
			continue
		}
		values := make([]interface{}, len(sheet.Columns))
		for i, col := range sheet.Columns {
			if v, ok := row[col]; ok {
				values[i] = v
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet.Name, cell, &values); err != nil {
			return fmt.Errorf("write row %d of %q: %w", r, sheet.Name, err)
		}
	}
	return nil
}
