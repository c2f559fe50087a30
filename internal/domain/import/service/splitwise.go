package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/moneta-app/moneta-api/internal/domain/import/dedup"
	"github.com/moneta-app/moneta-api/internal/domain/import/repository"
	"github.com/moneta-app/moneta-api/internal/domain/import/tags"
	"github.com/moneta-app/moneta-api/internal/domain/splitwise"
	"github.com/moneta-app/moneta-api/pkg/metrics"
	"github.com/moneta-app/moneta-api/pkg/money"
)

const (
	splitwiseTagName  = "splitwise"
	splitwiseTagColor = "#5bc5a7"
	splitwiseFileName = "splitwise"
)

// SplitwiseClient is the slice of the Splitwise API the importer consumes.
type SplitwiseClient interface {
	CurrentUser(ctx context.Context) (*splitwise.User, error)
	Expenses(ctx context.Context, datedAfter time.Time, limit int) ([]splitwise.Expense, error)
}

// SplitwiseRow is one classified Splitwise expense. The amount is the
// user's owed share, not the expense's full cost.
type SplitwiseRow struct {
	ExternalID  int64           `json:"externalId"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	IsPayment   bool            `json:"isPayment"`
	IsDuplicate bool            `json:"isDuplicate"`
	CanImport   bool            `json:"canImport"`
}

// SplitwisePreview is the dry-run result the caller selects from.
type SplitwisePreview struct {
	Rows            []SplitwiseRow `json:"rows"`
	ImportableCount int            `json:"importableCount"`
}

// PreviewSplitwise pulls recent expenses from the live API and classifies
// them without writing anything.
func (s *Service) PreviewSplitwise(ctx context.Context, userID uuid.UUID, datedAfter time.Time) (*SplitwisePreview, error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "import.splitwise.preview")
	defer span.End()
	defer metrics.ObserveRun(sourceSplitwise, true, started)

	rows, err := s.classifySplitwise(ctx, userID, datedAfter)
	if err != nil {
		return nil, err
	}

	preview := &SplitwisePreview{Rows: rows}
	for _, row := range rows {
		if row.CanImport {
			preview.ImportableCount++
		}
	}
	return preview, nil
}

// SplitwiseCommitRequest names the Splitwise expenses to import, by their
// external ids.
type SplitwiseCommitRequest struct {
	UserID            uuid.UUID
	DatedAfter        time.Time
	Selected          []int64
	CategoryOverrides map[int64]string
}

// CommitSplitwise imports the selected expenses under the fixed
// "splitwise" tag. Payments and duplicates stay excluded regardless of
// selection.
func (s *Service) CommitSplitwise(ctx context.Context, req SplitwiseCommitRequest) (*ImportRunReport, error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "import.splitwise.commit", trace.WithAttributes(
		attribute.Int("selected", len(req.Selected)),
	))
	defer span.End()
	defer metrics.ObserveRun(sourceSplitwise, false, started)

	rows, err := s.classifySplitwise(ctx, req.UserID, req.DatedAfter)
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
	tagID, _, err := resolver.ResolveFixed(ctx, splitwiseTagName, splitwiseTagColor, false)
	if err != nil {
		return nil, err
	}

	selected := make(map[int64]bool, len(req.Selected))
	for _, id := range req.Selected {
		selected[id] = true
	}

	report := newReport(splitwiseFileName, false, StrategySkip, "")
	for i, row := range rows {
		num := i + 1
		label := fmt.Sprintf("Splitwise expense %d", row.ExternalID)
		switch {
		case row.IsPayment:
			report.add(num, StatusSkipped, label+" is a payment, not importable")
		case row.IsDuplicate:
			report.add(num, StatusSkipped, label+" duplicates an existing expense")
		case !selected[row.ExternalID]:
			report.add(num, StatusSkipped, label+" not selected for import")
		default:
			categoryName := row.Category
			if override, ok := req.CategoryOverrides[row.ExternalID]; ok {
				categoryName = override
			}
			ref, ok := vc.lookupCategory(categoryName)
			if !ok {
				report.addError(num, "Unknown category %q for %s", categoryName, label)
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
			if err := s.stores.Expenses.Create(ctx, exp, []uuid.UUID{tagID}); err != nil {
				return nil, fmt.Errorf("insert %s: %w", label, err)
			}
			report.add(num, StatusInserted, label)
		}
	}

	s.observeRows(sourceSplitwise, report)
	return report, nil
}

// classifySplitwise fetches and classifies the user's expenses. Deleted
// expenses and expenses the user owes nothing on are dropped before
// classification.
func (s *Service) classifySplitwise(ctx context.Context, userID uuid.UUID, datedAfter time.Time) ([]SplitwiseRow, error) {
	if s.splitwise == nil {
		return nil, structuralf("Splitwise is not configured")
	}
	me, err := s.splitwise.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("splitwise current user: %w", err)
	}
	external, err := s.splitwise.Expenses(ctx, datedAfter, s.opts.MaxRows)
	if err != nil {
		return nil, fmt.Errorf("splitwise expenses: %w", err)
	}

	categories, err := s.stores.Categories.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if len(categories) == 0 {
		return nil, structuralf("no categories exist yet, create at least one before importing")
	}
	vc := newValidateContext(categories, nil)
	index, err := s.buildStatementIndex(ctx, userID)
	if err != nil {
		return nil, err
	}

	var rows []SplitwiseRow
	for _, e := range external {
		if e.DeletedAt != nil {
			continue
		}
		owed, ok := e.OwedShare(me.ID)
		if !ok || owed.IsZero() {
			continue
		}
		row := SplitwiseRow{
			ExternalID:  e.ID,
			Date:        e.Date.UTC(),
			Description: e.Description,
			Amount:      money.Round(owed),
			IsPayment:   e.Payment,
		}
		derived := s.mapper.Map(e.Description + " " + e.Category.Name)
		row.Category = categoryRefFor(derived, vc, categories).Name
		if !row.IsPayment {
			key := dedup.StatementKey(row.Date, row.Amount, row.Description)
			if index.Has(key) {
				row.IsDuplicate = true
			} else {
				index.Add(key, uuid.Nil)
			}
		}
		row.CanImport = !row.IsPayment && !row.IsDuplicate
		rows = append(rows, row)
	}
	return rows, nil
}
