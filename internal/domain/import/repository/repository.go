// Package repository defines the persistence collaborators the import
// pipeline reads from and writes to, plus their PostgreSQL implementations.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CategoryRef is a category as the importer sees it. Global categories have
// a nil UserID.
type CategoryRef struct {
	ID     uuid.UUID
	Name   string
	UserID *uuid.UUID
}

// TagRef is a tag as the importer sees it.
type TagRef struct {
	ID     uuid.UUID
	Name   string
	Color  string
	UserID uuid.UUID
}

// Expense is a persisted expense row.
type Expense struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	CategoryID uuid.UUID
	Title      string
	Notes      *string
	Amount     decimal.Decimal
	SpentAt    time.Time
}

// Snapshot is a persisted asset balance snapshot.
type Snapshot struct {
	ID      uuid.UUID
	AssetID uuid.UUID
	Balance decimal.Decimal
	TakenAt time.Time
	Notes   *string
}

// AuditRecord summarizes one committed import run. Only error rows are
// serialized; per-row successes are never persisted.
type AuditRecord struct {
	UserID    uuid.UUID
	FileName  string
	Source    string
	TotalRows int
	Inserted  int
	Updated   int
	Skipped   int
	ErrorRows []AuditErrorRow
}

// AuditErrorRow is one failed row inside an audit record.
type AuditErrorRow struct {
	RowNumber int    `json:"rowNumber"`
	Message   string `json:"message"`
}

// CategoryStore is the read side for category resolution.
type CategoryStore interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]CategoryRef, error)
}

// TagStore resolves and creates tags. Create is only ever called on commit.
type TagStore interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]TagRef, error)
	Create(ctx context.Context, userID uuid.UUID, name, color string) (TagRef, error)
}

// ExpenseStore persists expenses with their tag associations.
type ExpenseStore interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]Expense, error)
	Create(ctx context.Context, exp *Expense, tagIDs []uuid.UUID) error
	Update(ctx context.Context, exp *Expense, tagIDs []uuid.UUID) error
}

// SnapshotStore persists asset balance snapshots.
type SnapshotStore interface {
	ListForAsset(ctx context.Context, assetID uuid.UUID) ([]Snapshot, error)
	Create(ctx context.Context, snap *Snapshot) error
	Update(ctx context.Context, snap *Snapshot) error
}

// AuditLog appends immutable import summaries. Writes are best-effort for
// callers; Prune enforces retention.
type AuditLog interface {
	Record(ctx context.Context, rec *AuditRecord) error
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}
