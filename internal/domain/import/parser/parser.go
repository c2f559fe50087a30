// Package parser converts uploaded CSV and XLSX byte streams into an ordered
// sequence of header-keyed rows. Format details stay behind the RowSource
// interface so the validators and orchestrators never see them.
package parser

import (
	"strings"
)

// Row is a single parsed data row. Number is the physical position in the
// file (the header line is 1, so the first data row is 2), including any
// blank lines that were skipped.
type Row struct {
	Number int
	Fields map[string]string
}

// Get returns the trimmed value for a header name, case-insensitively.
func (r Row) Get(name string) string {
	return strings.TrimSpace(r.Fields[strings.ToLower(name)])
}

// GetAny returns the first non-blank value among the given header aliases.
func (r Row) GetAny(names ...string) string {
	for _, n := range names {
		if v := r.Get(n); v != "" {
			return v
		}
	}
	return ""
}

// IsBlank reports whether every field value is empty.
func (r Row) IsBlank() bool {
	for _, v := range r.Fields {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// RowSource yields parsed rows in file order. Each stops early when fn
// returns false; the remaining input is never materialized.
type RowSource interface {
	Each(fn func(Row) bool) error
}

// zipFields builds a field map by pairing headers with values positionally.
// Extra or missing trailing columns are tolerated (zip to the shorter list).
func zipFields(headers, values []string) map[string]string {
	n := len(headers)
	if len(values) < n {
		n = len(values)
	}
	fields := make(map[string]string, n)
	for i := 0; i < n; i++ {
		key := strings.ToLower(strings.TrimSpace(headers[i]))
		if key == "" {
			continue
		}
		fields[key] = values[i]
	}
	return fields
}
