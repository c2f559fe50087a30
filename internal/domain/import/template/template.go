// Package template produces downloadable example files whose headers match
// exactly what the import validators expect.
package template

import (
	"fmt"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"
)

const sheetImport = "Import"

// expenseRow mirrors the expense import schema, header for header.
type expenseRow struct {
	Date        string `csv:"Date"`
	Amount      string `csv:"Amount"`
	Category    string `csv:"Category"`
	Description string `csv:"Description"`
	Notes       string `csv:"Notes"`
	Tags        string `csv:"Tags"`
}

// balanceRow mirrors the balance import schema.
type balanceRow struct {
	Date    string `csv:"Date"`
	Balance string `csv:"Balance"`
	Notes   string `csv:"Notes"`
}

var expenseExamples = []expenseRow{
	{Date: "2024-01-15", Amount: "42.50", Category: "Food & Dining", Description: "Lunch with team", Notes: "Client visit", Tags: "work; lunch"},
	{Date: "2024-01-16", Amount: "9.99", Category: "Entertainment", Description: "Movie rental", Notes: "", Tags: ""},
}

var balanceExamples = []balanceRow{
	{Date: "2024-01-31", Balance: "12500.00", Notes: "End of month"},
	{Date: "2024-02-29", Balance: "-843.12", Notes: "Credit card liability"},
}

// ExpenseCSV renders the expense template as CSV bytes.
func ExpenseCSV() ([]byte, error) {
	out, err := gocsv.MarshalBytes(&expenseExamples)
	if err != nil {
		return nil, fmt.Errorf("marshal expense template: %w", err)
	}
	return out, nil
}

// BalanceCSV renders the balance template as CSV bytes.
func BalanceCSV() ([]byte, error) {
	out, err := gocsv.MarshalBytes(&balanceExamples)
	if err != nil {
		return nil, fmt.Errorf("marshal balance template: %w", err)
	}
	return out, nil
}

// ExpenseXLSX builds a workbook with the Import sheet, a Categories sheet
// backing an in-cell dropdown on the Category column, and an Instructions
// sheet. Only the Import sheet is ever read back.
func ExpenseXLSX(categories []string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetImport); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	headers := []any{"Date", "Amount", "Category", "Description", "Notes", "Tags"}
	if err := f.SetSheetRow(sheetImport, "A1", &headers); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, ex := range expenseExamples {
		cell := fmt.Sprintf("A%d", i+2)
		row := []any{ex.Date, ex.Amount, ex.Category, ex.Description, ex.Notes, ex.Tags}
		if err := f.SetSheetRow(sheetImport, cell, &row); err != nil {
			return nil, fmt.Errorf("write example row: %w", err)
		}
	}

	if len(categories) > 0 {
		if _, err := f.NewSheet("Categories"); err != nil {
			return nil, fmt.Errorf("add categories sheet: %w", err)
		}
		for i, name := range categories {
			if err := f.SetCellValue("Categories", fmt.Sprintf("A%d", i+1), name); err != nil {
				return nil, fmt.Errorf("write category: %w", err)
			}
		}
		dv := excelize.NewDataValidation(true)
		dv.Sqref = "C2:C5000"
		dv.SetSqrefDropList(fmt.Sprintf("Categories!$A$1:$A$%d", len(categories)))
		if err := f.AddDataValidation(sheetImport, dv); err != nil {
			return nil, fmt.Errorf("add dropdown: %w", err)
		}
	}

	if err := writeInstructions(f, []string{
		"Fill in one expense per row on the Import sheet.",
		"Date uses YYYY-MM-DD. Amount must be a positive number.",
		"Category must match one of your existing categories; use the dropdown.",
		"Tags are optional, separated by semicolons.",
		"Leave a row completely empty to mark the end of your data.",
	}); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// BalanceXLSX builds the balance workbook variant.
func BalanceXLSX() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetImport); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	headers := []any{"Date", "Balance", "Notes"}
	if err := f.SetSheetRow(sheetImport, "A1", &headers); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, ex := range balanceExamples {
		cell := fmt.Sprintf("A%d", i+2)
		row := []any{ex.Date, ex.Balance, ex.Notes}
		if err := f.SetSheetRow(sheetImport, cell, &row); err != nil {
			return nil, fmt.Errorf("write example row: %w", err)
		}
	}

	if err := writeInstructions(f, []string{
		"Record one balance per row on the Import sheet.",
		"Date uses YYYY-MM-DD. One balance per day per asset.",
		"Balances may be negative for liabilities.",
	}); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeInstructions(f *excelize.File, lines []string) error {
	if _, err := f.NewSheet("Instructions"); err != nil {
		return fmt.Errorf("add instructions sheet: %w", err)
	}
	for i, line := range lines {
		if err := f.SetCellValue("Instructions", fmt.Sprintf("A%d", i+1), line); err != nil {
			return fmt.Errorf("write instruction: %w", err)
		}
	}
	return nil
}
