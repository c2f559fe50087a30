// Package service drives the import pipelines: parse, validate, classify
// against the duplicate index, then apply the configured strategy under the
// dry-run/commit protocol.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/moneta-app/moneta-api/internal/domain/import/catmap"
	"github.com/moneta-app/moneta-api/internal/domain/import/dedup"
	"github.com/moneta-app/moneta-api/internal/domain/import/parser"
	"github.com/moneta-app/moneta-api/internal/domain/import/repository"
	"github.com/moneta-app/moneta-api/internal/domain/import/tags"
	"github.com/moneta-app/moneta-api/pkg/metrics"
	"github.com/moneta-app/moneta-api/pkg/money"
)

const (
	sourceExpenses   = "expenses"
	sourceBalances   = "balances"
	sourceCapitalOne = "capital_one"
	sourceSplitwise  = "splitwise"

	// reportCurrency is only used to render amounts in row messages;
	// stored amounts stay plain decimals.
	reportCurrency = "USD"
)

// Options bound the resource usage of a single run.
type Options struct {
	MaxFileBytes int64
	MaxRows      int
}

// DefaultOptions matches the documented upload limits.
var DefaultOptions = Options{
	MaxFileBytes: 10 << 20,
	MaxRows:      5000,
}

// Service orchestrates all four import pipelines over the shared stores.
type Service struct {
	stores    *repository.Stores
	mapper    *catmap.Mapper
	splitwise SplitwiseClient
	logger    *slog.Logger
	tracer    trace.Tracer
	opts      Options
}

// NewService wires an import service. splitwise may be nil when the
// Splitwise integration is not configured.
func NewService(stores *repository.Stores, splitwise SplitwiseClient, logger *slog.Logger, opts Options) *Service {
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = DefaultOptions.MaxFileBytes
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultOptions.MaxRows
	}
	return &Service{
		stores:    stores,
		mapper:    catmap.NewMapper(),
		splitwise: splitwise,
		logger:    logger,
		tracer:    otel.Tracer("moneta.import"),
		opts:      opts,
	}
}

// ExpenseImportRequest describes one generic expense file upload.
type ExpenseImportRequest struct {
	UserID   uuid.UUID
	FileName string
	Data     []byte
	Strategy DuplicateStrategy
	Timezone string
	DryRun   bool
}

// ImportExpenses runs the generic expense pipeline. Rows are processed
// strictly in order because duplicate classification of later rows depends
// on keys registered by earlier ones.
func (s *Service) ImportExpenses(ctx context.Context, req ExpenseImportRequest) (*ImportRunReport, error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "import.expenses", trace.WithAttributes(
		attribute.String("file", req.FileName),
		attribute.Bool("dry_run", req.DryRun),
	))
	defer span.End()
	defer metrics.ObserveRun(sourceExpenses, req.DryRun, started)

	src, err := s.openSource(req.FileName, req.Data)
	if err != nil {
		return nil, err
	}
	loc, err := resolveLocation(req.Timezone)
	if err != nil {
		return nil, err
	}

	categories, err := s.stores.Categories.ListForUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if len(categories) == 0 {
		return nil, structuralf("no categories exist yet, create at least one before importing")
	}
	vc := newValidateContext(categories, loc)

	index, err := s.buildExpenseIndex(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	resolver, err := tags.NewResolver(ctx, s.stores.Tags, req.UserID)
	if err != nil {
		return nil, err
	}
	eff := s.effectsFor(req.DryRun)

	report := newReport(req.FileName, req.DryRun, req.Strategy, req.Timezone)
	var runErr error
	err = src.Each(func(row parser.Row) bool {
		if s.limitReached(report, row.Number) {
			return false
		}
		runErr = s.applyExpenseRow(ctx, row, vc, index, resolver, eff, req, report)
		return runErr == nil
	})
	if err != nil {
		return nil, structuralf("could not read the file: %v", err)
	}
	if runErr != nil {
		return nil, runErr
	}

	eff.recordAudit(ctx, auditRecord(req.UserID, req.FileName, sourceExpenses, report))
	s.observeRows(sourceExpenses, report)
	return report, nil
}

func (s *Service) applyExpenseRow(
	ctx context.Context,
	row parser.Row,
	vc *validateContext,
	index *dedup.Index,
	resolver *tags.Resolver,
	eff effects,
	req ExpenseImportRequest,
	report *ImportRunReport,
) error {
	validated, msg := validateExpenseRow(row, vc)
	if msg != "" {
		report.add(row.Number, StatusError, msg)
		return nil
	}

	key := dedup.ExpenseKey(validated.date, validated.amount, validated.category.ID, validated.title)
	existingID, found := index.Lookup(key)
	if !found {
		tagIDs, err := resolver.Resolve(ctx, validated.tagNames, eff.preview())
		if err != nil {
			return err
		}
		exp := &repository.Expense{
			ID:         uuid.New(),
			UserID:     req.UserID,
			CategoryID: validated.category.ID,
			Title:      validated.title,
			Notes:      validated.notes,
			Amount:     validated.amount,
			SpentAt:    validated.date,
		}
		if err := eff.insertExpense(ctx, exp, tagIDs); err != nil {
			return fmt.Errorf("insert expense row %d: %w", row.Number, err)
		}
		index.Add(key, exp.ID)
		if eff.preview() {
			report.add(row.Number, StatusValid, readyMessage(validated))
		} else {
			report.add(row.Number, StatusInserted, "")
		}
		return nil
	}

	switch req.Strategy {
	case StrategyUpdate:
		tagIDs, err := resolver.Resolve(ctx, validated.tagNames, eff.preview())
		if err != nil {
			return err
		}
		exp := &repository.Expense{
			ID:         existingID,
			UserID:     req.UserID,
			CategoryID: validated.category.ID,
			Title:      validated.title,
			Notes:      validated.notes,
			Amount:     validated.amount,
			SpentAt:    validated.date,
		}
		if err := eff.updateExpense(ctx, exp, tagIDs); err != nil {
			return fmt.Errorf("update expense row %d: %w", row.Number, err)
		}
		report.add(row.Number, StatusUpdated, updateMessage(validated, eff.preview()))
	default:
		report.add(row.Number, StatusSkipped, "Duplicate of an existing expense")
	}
	return nil
}

// BalanceImportRequest describes one balance/snapshot file upload for a
// single asset.
type BalanceImportRequest struct {
	AssetID  uuid.UUID
	FileName string
	Data     []byte
	Strategy DuplicateStrategy
	Timezone string
	DryRun   bool
}

// ImportBalances runs the balance pipeline. One snapshot per asset per
// calendar day; a same-day row is a duplicate regardless of its balance.
func (s *Service) ImportBalances(ctx context.Context, req BalanceImportRequest) (*ImportRunReport, error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "import.balances", trace.WithAttributes(
		attribute.String("file", req.FileName),
		attribute.Bool("dry_run", req.DryRun),
	))
	defer span.End()
	defer metrics.ObserveRun(sourceBalances, req.DryRun, started)

	src, err := s.openSource(req.FileName, req.Data)
	if err != nil {
		return nil, err
	}
	loc, err := resolveLocation(req.Timezone)
	if err != nil {
		return nil, err
	}
	vc := &validateContext{location: loc}

	existing, err := s.stores.Snapshots.ListForAsset(ctx, req.AssetID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	index := dedup.NewIndex()
	for _, snap := range existing {
		index.Add(dedup.SnapshotKey(snap.AssetID, snap.TakenAt), snap.ID)
	}
	eff := s.effectsFor(req.DryRun)

	report := newReport(req.FileName, req.DryRun, req.Strategy, req.Timezone)
	var runErr error
	err = src.Each(func(row parser.Row) bool {
		if s.limitReached(report, row.Number) {
			return false
		}
		runErr = s.applySnapshotRow(ctx, row, vc, index, eff, req, report)
		return runErr == nil
	})
	if err != nil {
		return nil, structuralf("could not read the file: %v", err)
	}
	if runErr != nil {
		return nil, runErr
	}

	s.observeRows(sourceBalances, report)
	return report, nil
}

func (s *Service) applySnapshotRow(
	ctx context.Context,
	row parser.Row,
	vc *validateContext,
	index *dedup.Index,
	eff effects,
	req BalanceImportRequest,
	report *ImportRunReport,
) error {
	validated, msg := validateSnapshotRow(row, vc)
	if msg != "" {
		report.add(row.Number, StatusError, msg)
		return nil
	}

	key := dedup.SnapshotKey(req.AssetID, validated.date)
	existingID, found := index.Lookup(key)
	if !found {
		snap := &repository.Snapshot{
			ID:      uuid.New(),
			AssetID: req.AssetID,
			Balance: validated.balance,
			TakenAt: validated.date,
			Notes:   validated.notes,
		}
		if err := eff.insertSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("insert snapshot row %d: %w", row.Number, err)
		}
		index.Add(key, snap.ID)
		if eff.preview() {
			report.add(row.Number, StatusValid, "Ready to import")
		} else {
			report.add(row.Number, StatusInserted, "")
		}
		return nil
	}

	switch req.Strategy {
	case StrategyUpdate:
		snap := &repository.Snapshot{
			ID:      existingID,
			AssetID: req.AssetID,
			Balance: validated.balance,
			TakenAt: validated.date,
			Notes:   validated.notes,
		}
		if err := eff.updateSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("update snapshot row %d: %w", row.Number, err)
		}
		verb := "updated"
		if eff.preview() {
			verb = "will be updated"
		}
		report.add(row.Number, StatusUpdated, fmt.Sprintf("Balance for %s %s", validated.date.Format("2006-01-02"), verb))
	default:
		report.add(row.Number, StatusSkipped, "A balance for this day already exists")
	}
	return nil
}

// openSource picks the parser by file extension. The extension check runs
// here, before any bytes are parsed, as does the size cap.
func (s *Service) openSource(fileName string, data []byte) (parser.RowSource, error) {
	if int64(len(data)) > s.opts.MaxFileBytes {
		return nil, structuralf("file is larger than the %d MB limit", s.opts.MaxFileBytes>>20)
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return parser.NewCSVSource(data), nil
	case ".xlsx":
		src, err := parser.NewExcelSource(data)
		if err != nil {
			return nil, structuralf("could not read the spreadsheet: %v", err)
		}
		return src, nil
	default:
		return nil, structuralf("unsupported file type %q, expected .csv or .xlsx", filepath.Ext(fileName))
	}
}

// limitReached enforces the row ceiling. When the cap is hit it appends one
// synthetic error row and tells the caller to stop feeding input.
func (s *Service) limitReached(report *ImportRunReport, rowNumber int) bool {
	if len(report.Rows) < s.opts.MaxRows {
		return false
	}
	report.addError(rowNumber, "Row limit of %d reached, remaining rows were not processed", s.opts.MaxRows)
	return true
}

func (s *Service) effectsFor(dryRun bool) effects {
	if dryRun {
		return previewEffects{}
	}
	return &commitEffects{
		expenses:  s.stores.Expenses,
		snapshots: s.stores.Snapshots,
		audit:     s.stores.Audit,
		logger:    s.logger,
	}
}

// buildExpenseIndex bulk-fetches the user's expenses once and keys them the
// same way incoming rows are keyed.
func (s *Service) buildExpenseIndex(ctx context.Context, userID uuid.UUID) (*dedup.Index, error) {
	existing, err := s.stores.Expenses.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	index := dedup.NewIndex()
	for _, exp := range existing {
		index.Add(dedup.ExpenseKey(exp.SpentAt, exp.Amount, exp.CategoryID, exp.Title), exp.ID)
	}
	return index, nil
}

// buildStatementIndex keys the user's expenses without the category id, for
// sources whose categories are inferred rather than user-entered.
func (s *Service) buildStatementIndex(ctx context.Context, userID uuid.UUID) (*dedup.Index, error) {
	existing, err := s.stores.Expenses.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	index := dedup.NewIndex()
	for _, exp := range existing {
		index.Add(dedup.StatementKey(exp.SpentAt, exp.Amount, exp.Title), exp.ID)
	}
	return index, nil
}

// categoryRefFor resolves a derived category name against the user's set,
// falling back to the first category when even the fallback name is absent.
// Callers must have verified the set is non-empty.
func categoryRefFor(name string, vc *validateContext, categories []repository.CategoryRef) repository.CategoryRef {
	if ref, ok := vc.lookupCategory(name); ok {
		return ref
	}
	if ref, ok := vc.lookupCategory(catmap.FallbackCategory); ok {
		return ref
	}
	return categories[0]
}

func resolveLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return nil, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, structuralf("unknown timezone %q", tz)
	}
	return loc, nil
}

func auditRecord(userID uuid.UUID, fileName, source string, report *ImportRunReport) *repository.AuditRecord {
	rec := &repository.AuditRecord{
		UserID:    userID,
		FileName:  fileName,
		Source:    source,
		TotalRows: report.TotalRows,
		Inserted:  report.Inserted,
		Updated:   report.Updated,
		Skipped:   report.Skipped,
	}
	for _, row := range report.Rows {
		if row.Status == StatusError {
			rec.ErrorRows = append(rec.ErrorRows, repository.AuditErrorRow{
				RowNumber: row.RowNumber,
				Message:   row.Message,
			})
		}
	}
	return rec
}

func (s *Service) observeRows(source string, report *ImportRunReport) {
	for _, row := range report.Rows {
		metrics.ImportRows.WithLabelValues(source, string(row.Status)).Inc()
	}
}

func readyMessage(v *validatedExpense) string {
	msg := "Ready to import " + money.Display(v.amount, reportCurrency)
	if len(v.tagNames) > 0 {
		msg += ", tags: " + strings.Join(v.tagNames, ", ")
	}
	return msg
}

func updateMessage(v *validatedExpense, preview bool) string {
	msg := "Existing expense updated"
	if preview {
		msg = "Existing expense will be updated"
	}
	if len(v.tagNames) > 0 {
		msg += ", tags: " + strings.Join(v.tagNames, ", ")
	}
	return msg
}
