package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/moneta-app/moneta-api/internal/domain/import/dedup"
	"github.com/moneta-app/moneta-api/internal/domain/import/normalizer"
	"github.com/moneta-app/moneta-api/internal/domain/import/parser"
	"github.com/moneta-app/moneta-api/internal/domain/import/repository"
	"github.com/moneta-app/moneta-api/internal/domain/import/tags"
	"github.com/moneta-app/moneta-api/pkg/metrics"
	"github.com/moneta-app/moneta-api/pkg/money"
)

// Capital One statement exports carry these columns. Credits (payments,
// refunds) populate Credit and leave Debit empty.
const (
	capitalOneDateCol        = "transaction date"
	capitalOneDescriptionCol = "description"
	capitalOneCategoryCol    = "category"
	capitalOneDebitCol       = "debit"
	capitalOneCreditCol      = "credit"
)

var cardTypeColors = map[string]string{
	"quicksilver": "#d03027",
	"venture":     "#013d5b",
	"savor":       "#a64d79",
}

const defaultCardTagColor = "#004977"

// CapitalOneRow is one classified statement row. CanImport is true only for
// non-credit, non-duplicate, well-formed rows; selection for commit is a
// separate, caller-driven step.
type CapitalOneRow struct {
	RowNumber   int             `json:"rowNumber"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	IsCredit    bool            `json:"isCredit"`
	IsDuplicate bool            `json:"isDuplicate"`
	CanImport   bool            `json:"canImport"`
	Error       string          `json:"error,omitempty"`
}

// CapitalOnePreview is the dry-run result the caller builds a selection
// from. Nothing is written while producing it.
type CapitalOnePreview struct {
	FileName        string          `json:"fileName"`
	Rows            []CapitalOneRow `json:"rows"`
	ImportableCount int             `json:"importableCount"`
}

// PreviewCapitalOne parses and classifies a statement without writing.
func (s *Service) PreviewCapitalOne(ctx context.Context, userID uuid.UUID, fileName string, data []byte) (*CapitalOnePreview, error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "import.capital_one.preview", trace.WithAttributes(
		attribute.String("file", fileName),
	))
	defer span.End()
	defer metrics.ObserveRun(sourceCapitalOne, true, started)

	rows, err := s.classifyCapitalOne(ctx, userID, fileName, data)
	if err != nil {
		return nil, err
	}

	preview := &CapitalOnePreview{FileName: fileName, Rows: rows}
	for _, row := range rows {
		if row.CanImport {
			preview.ImportableCount++
		}
	}
	return preview, nil
}

// CapitalOneCommitRequest names the rows to import out of a previously
// previewed statement. Selection is opt-in per row.
type CapitalOneCommitRequest struct {
	UserID            uuid.UUID
	FileName          string
	Data              []byte
	CardType          string
	Selected          []int
	CategoryOverrides map[int]string
}

// CommitCapitalOne imports the selected rows. Credit rows and duplicates
// are skipped regardless of selection, and overrides apply only to rows
// that are both selected and importable.
func (s *Service) CommitCapitalOne(ctx context.Context, req CapitalOneCommitRequest) (*ImportRunReport, error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "import.capital_one.commit", trace.WithAttributes(
		attribute.String("file", req.FileName),
	))
	defer span.End()
	defer metrics.ObserveRun(sourceCapitalOne, false, started)

	rows, err := s.classifyCapitalOne(ctx, req.UserID, req.FileName, req.Data)
	if err != nil {
		return nil, err
	}
	categories, err := s.stores.Categories.ListForUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	vc := newValidateContext(categories, nil)
	resolver, err := tags.NewResolver(ctx, s.stores.Tags, req.UserID)
	if err != nil {
		return nil, err
	}

	cardTag, err := s.cardTypeTag(ctx, resolver, req.CardType)
	if err != nil {
		return nil, err
	}

	selected := make(map[int]bool, len(req.Selected))
	for _, n := range req.Selected {
		selected[n] = true
	}

	report := newReport(req.FileName, false, StrategySkip, "")
	for _, row := range rows {
		switch {
		case row.Error != "":
			report.add(row.RowNumber, StatusError, row.Error)
		case row.IsCredit:
			report.add(row.RowNumber, StatusSkipped, "Credit or payment row, not importable")
		case row.IsDuplicate:
			report.add(row.RowNumber, StatusSkipped, "Duplicate of an existing expense")
		case !selected[row.RowNumber]:
			report.add(row.RowNumber, StatusSkipped, "Not selected for import")
		default:
			categoryName := row.Category
			if override, ok := req.CategoryOverrides[row.RowNumber]; ok {
				categoryName = override
			}
			ref, ok := vc.lookupCategory(categoryName)
			if !ok {
				report.addError(row.RowNumber, "Unknown category %q", categoryName)
				continue
			}
			exp := &repository.Expense{
				ID:         uuid.New(),
				UserID:     req.UserID,
				CategoryID: ref.ID,
				Title:      row.Description,
				Amount:     row.Amount,
				SpentAt:    row.Date,
			}
			if err := s.stores.Expenses.Create(ctx, exp, cardTag); err != nil {
				return nil, fmt.Errorf("insert statement row %d: %w", row.RowNumber, err)
			}
			report.add(row.RowNumber, StatusInserted, "")
		}
	}

	s.observeRows(sourceCapitalOne, report)
	return report, nil
}

// classifyCapitalOne parses the statement and classifies every row. Category
// names here are derived, not user-entered, so the duplicate key omits the
// category id. In-file duplicates are caught by registering each row's key
// as it is seen.
func (s *Service) classifyCapitalOne(ctx context.Context, userID uuid.UUID, fileName string, data []byte) ([]CapitalOneRow, error) {
	if int64(len(data)) > s.opts.MaxFileBytes {
		return nil, structuralf("file is larger than the %d MB limit", s.opts.MaxFileBytes>>20)
	}
	if strings.ToLower(filepath.Ext(fileName)) != ".csv" {
		return nil, structuralf("Capital One statements must be .csv files")
	}
	categories, err := s.stores.Categories.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if len(categories) == 0 {
		return nil, structuralf("no categories exist yet, create at least one before importing")
	}
	index, err := s.buildStatementIndex(ctx, userID)
	if err != nil {
		return nil, err
	}
	vc := newValidateContext(categories, nil)

	var rows []CapitalOneRow
	err = parser.NewCSVSource(data).Each(func(row parser.Row) bool {
		if len(rows) >= s.opts.MaxRows {
			rows = append(rows, CapitalOneRow{
				RowNumber: row.Number,
				Error:     fmt.Sprintf("Row limit of %d reached, remaining rows were not processed", s.opts.MaxRows),
			})
			return false
		}
		parsed := s.parseCapitalOneRow(row, vc, categories)
		if parsed.Error == "" && !parsed.IsCredit {
			key := dedup.StatementKey(parsed.Date, parsed.Amount, parsed.Description)
			if index.Has(key) {
				parsed.IsDuplicate = true
			} else {
				index.Add(key, uuid.Nil)
			}
		}
		parsed.CanImport = parsed.Error == "" && !parsed.IsCredit && !parsed.IsDuplicate
		rows = append(rows, parsed)
		return true
	})
	if err != nil {
		return nil, structuralf("could not read the file: %v", err)
	}
	return rows, nil
}

func (s *Service) parseCapitalOneRow(row parser.Row, vc *validateContext, categories []repository.CategoryRef) CapitalOneRow {
	out := CapitalOneRow{
		RowNumber:   row.Number,
		Description: normalizer.CleanTitle(row.Get(capitalOneDescriptionCol)),
	}

	rawDate := row.Get(capitalOneDateCol)
	debit := row.Get(capitalOneDebitCol)
	credit := row.Get(capitalOneCreditCol)

	var missing []string
	if rawDate == "" {
		missing = append(missing, "Transaction Date")
	}
	if out.Description == "" {
		missing = append(missing, "Description")
	}
	if debit == "" && credit == "" {
		missing = append(missing, "Debit or Credit")
	}
	if len(missing) > 0 {
		out.Error = "Missing required fields: " + strings.Join(missing, ", ")
		return out
	}

	date, err := parseDate(rawDate, nil)
	if err != nil {
		out.Error = "Invalid date format"
		return out
	}
	out.Date = date

	out.IsCredit = credit != "" && debit == ""
	rawAmount := debit
	if out.IsCredit {
		rawAmount = credit
	}
	amount, err := money.ParseAmount(rawAmount)
	if err != nil {
		out.Error = fmt.Sprintf("Amount %q is not a valid number", rawAmount)
		return out
	}
	out.Amount = amount.Abs()

	derived := s.mapper.Map(out.Description + " " + row.Get(capitalOneCategoryCol))
	out.Category = categoryRefFor(derived, vc, categories).Name
	return out
}

// cardTypeTag resolves the fixed per-card tag, creating it with the card
// type's fixed color on first use.
func (s *Service) cardTypeTag(ctx context.Context, resolver *tags.Resolver, cardType string) ([]uuid.UUID, error) {
	name := strings.TrimSpace(cardType)
	if name == "" {
		name = "Capital One"
	}
	color, ok := cardTypeColors[strings.ToLower(name)]
	if !ok {
		color = defaultCardTagColor
	}
	id, _, err := resolver.ResolveFixed(ctx, name, color, false)
	if err != nil {
		return nil, err
	}
	return []uuid.UUID{id}, nil
}
