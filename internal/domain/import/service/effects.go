package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/moneta-app/moneta-api/internal/domain/import/repository"
)

// effects gates every side-effecting operation of a run. A dry run gets the
// preview implementation, whose write methods are all no-ops, so the
// zero-side-effect guarantee holds structurally instead of relying on
// scattered mode checks.
type effects interface {
	preview() bool
	insertExpense(ctx context.Context, exp *repository.Expense, tagIDs []uuid.UUID) error
	updateExpense(ctx context.Context, exp *repository.Expense, tagIDs []uuid.UUID) error
	insertSnapshot(ctx context.Context, snap *repository.Snapshot) error
	updateSnapshot(ctx context.Context, snap *repository.Snapshot) error
	recordAudit(ctx context.Context, rec *repository.AuditRecord)
}

type commitEffects struct {
	expenses  repository.ExpenseStore
	snapshots repository.SnapshotStore
	audit     repository.AuditLog
	logger    *slog.Logger
}

func (e *commitEffects) preview() bool { return false }

func (e *commitEffects) insertExpense(ctx context.Context, exp *repository.Expense, tagIDs []uuid.UUID) error {
	return e.expenses.Create(ctx, exp, tagIDs)
}

func (e *commitEffects) updateExpense(ctx context.Context, exp *repository.Expense, tagIDs []uuid.UUID) error {
	return e.expenses.Update(ctx, exp, tagIDs)
}

func (e *commitEffects) insertSnapshot(ctx context.Context, snap *repository.Snapshot) error {
	return e.snapshots.Create(ctx, snap)
}

func (e *commitEffects) updateSnapshot(ctx context.Context, snap *repository.Snapshot) error {
	return e.snapshots.Update(ctx, snap)
}

// recordAudit is best-effort. The import already succeeded, so a failed
// audit write is logged and swallowed.
func (e *commitEffects) recordAudit(ctx context.Context, rec *repository.AuditRecord) {
	if err := e.audit.Record(ctx, rec); err != nil {
		e.logger.Warn("audit record write failed",
			slog.String("file", rec.FileName),
			slog.String("source", rec.Source),
			slog.Any("error", err))
	}
}

type previewEffects struct{}

func (previewEffects) preview() bool { return true }

func (previewEffects) insertExpense(context.Context, *repository.Expense, []uuid.UUID) error {
	return nil
}

func (previewEffects) updateExpense(context.Context, *repository.Expense, []uuid.UUID) error {
	return nil
}

func (previewEffects) insertSnapshot(context.Context, *repository.Snapshot) error { return nil }

func (previewEffects) updateSnapshot(context.Context, *repository.Snapshot) error { return nil }

func (previewEffects) recordAudit(context.Context, *repository.AuditRecord) {}
