package service

import "fmt"

// RowStatus is the terminal outcome of one row.
type RowStatus string

const (
	StatusValid    RowStatus = "valid"
	StatusInserted RowStatus = "inserted"
	StatusUpdated  RowStatus = "updated"
	StatusSkipped  RowStatus = "skipped"
	StatusError    RowStatus = "error"
)

// DuplicateStrategy is the caller-chosen policy for key collisions.
type DuplicateStrategy string

const (
	StrategySkip   DuplicateStrategy = "skip"
	StrategyUpdate DuplicateStrategy = "update"
)

// ParseDuplicateStrategy parses the form value, defaulting to skip.
func ParseDuplicateStrategy(raw string) (DuplicateStrategy, error) {
	switch raw {
	case "", "skip":
		return StrategySkip, nil
	case "update":
		return StrategyUpdate, nil
	default:
		return "", structuralf("unknown duplicate strategy %q, expected \"skip\" or \"update\"", raw)
	}
}

// RowResult is the per-row outcome returned in the report.
type RowResult struct {
	RowNumber int       `json:"rowNumber"`
	Status    RowStatus `json:"status"`
	Message   string    `json:"message,omitempty"`
}

// ImportRunReport is the response body of one import run. Built fresh per
// invocation and never persisted row-by-row.
type ImportRunReport struct {
	FileName          string            `json:"fileName"`
	DryRun            bool              `json:"dryRun"`
	DuplicateStrategy DuplicateStrategy `json:"duplicateStrategy"`
	Timezone          *string           `json:"timezone"`
	TotalRows         int               `json:"totalRows"`
	Inserted          int               `json:"inserted"`
	Updated           int               `json:"updated"`
	Skipped           int               `json:"skipped"`
	Rows              []RowResult       `json:"rows"`
}

func newReport(fileName string, dryRun bool, strategy DuplicateStrategy, timezone string) *ImportRunReport {
	r := &ImportRunReport{
		FileName:          fileName,
		DryRun:            dryRun,
		DuplicateStrategy: strategy,
		Rows:              []RowResult{},
	}
	if timezone != "" {
		r.Timezone = &timezone
	}
	return r
}

// add appends a row result and maintains the summary counters. Error rows
// only count toward the total.
func (r *ImportRunReport) add(rowNumber int, status RowStatus, message string) {
	r.Rows = append(r.Rows, RowResult{RowNumber: rowNumber, Status: status, Message: message})
	r.TotalRows++
	switch status {
	case StatusInserted:
		r.Inserted++
	case StatusUpdated:
		r.Updated++
	case StatusSkipped:
		r.Skipped++
	}
}

func (r *ImportRunReport) addError(rowNumber int, format string, args ...any) {
	r.add(rowNumber, StatusError, fmt.Sprintf(format, args...))
}
