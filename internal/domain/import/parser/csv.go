package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// CSVSource parses comma-separated uploads. Quoted fields follow standard
// double-quote escaping; single-line quoted fields are the supported case.
type CSVSource struct {
	data []byte
}

// NewCSVSource wraps raw CSV bytes. The stream is not touched until Each.
func NewCSVSource(data []byte) *CSVSource {
	return &CSVSource{data: stripUTF8BOM(data)}
}

// Each reads the header line, then yields one Row per data record. Row
// numbers come from the physical line position reported by the reader, so
// blank lines the csv reader skips still advance the numbering. Records
// whose fields are all blank are dropped.
func (s *CSVSource) Each(fn func(Row) bool) error {
	r := csv.NewReader(bytes.NewReader(s.data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	headers, err := r.Read()
	if err == io.EOF {
		return fmt.Errorf("file has no header row")
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	for {
		record, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read csv record: %w", err)
		}

		// Physical line of the record's first field. The csv reader has
		// already consumed any blank lines, so this keeps row numbers
		// aligned with the file as the user sees it.
		line, _ := r.FieldPos(0)

		row := Row{Number: line, Fields: zipFields(headers, record)}
		if row.IsBlank() {
			continue
		}
		if !fn(row) {
			return nil
		}
	}
}

func stripUTF8BOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}
