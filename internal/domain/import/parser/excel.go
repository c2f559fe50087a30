package parser

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// importSheetName is the worksheet the importer looks for first. The match
// is case-sensitive; templates we generate always use this exact name.
const importSheetName = "Import"

// ExcelSource parses XLSX uploads via excelize.
type ExcelSource struct {
	rows [][]string
}

// NewExcelSource opens the workbook and selects the worksheet: "Import" if
// present, otherwise the first sheet. A workbook without any worksheet is a
// structural failure.
func NewExcelSource(data []byte) (*ExcelSource, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet has no worksheets")
	}

	sheet := sheets[0]
	for _, s := range sheets {
		if s == importSheetName {
			sheet = s
			break
		}
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return &ExcelSource{rows: rows}, nil
}

// Each yields data rows starting at physical row 2 (row 1 is the header).
// The first fully-empty row terminates the sequence; spreadsheets routinely
// carry formatting artifacts below the data and those must not become rows.
func (s *ExcelSource) Each(fn func(Row) bool) error {
	if len(s.rows) == 0 {
		return fmt.Errorf("sheet has no header row")
	}
	headers := s.rows[0]

	for i := 1; i < len(s.rows); i++ {
		if allCellsEmpty(s.rows[i]) {
			return nil
		}
		row := Row{Number: i + 1, Fields: zipFields(headers, s.rows[i])}
		if !fn(row) {
			return nil
		}
	}
	return nil
}

func allCellsEmpty(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
