package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the stores use. pgxmock satisfies it,
// which keeps the store tests off a live database.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Stores bundles the postgres-backed collaborators behind one pool.
type Stores struct {
	Categories CategoryStore
	Tags       TagStore
	Expenses   ExpenseStore
	Snapshots  SnapshotStore
	Audit      AuditLog
}

// NewPostgresStores wires all store implementations onto a shared pool.
func NewPostgresStores(pool DB) *Stores {
	return &Stores{
		Categories: &postgresCategoryStore{db: pool},
		Tags:       &postgresTagStore{db: pool},
		Expenses:   &postgresExpenseStore{db: pool},
		Snapshots:  &postgresSnapshotStore{db: pool},
		Audit:      &postgresAuditLog{db: pool},
	}
}

type postgresCategoryStore struct {
	db DB
}

func (s *postgresCategoryStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]CategoryRef, error) {
	query := `
		SELECT id, name, user_id
		FROM categories
		WHERE user_id = $1 OR user_id IS NULL
		ORDER BY created_at, name
	`
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []CategoryRef
	for rows.Next() {
		var c CategoryRef
		if err := rows.Scan(&c.ID, &c.Name, &c.UserID); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type postgresTagStore struct {
	db DB
}

func (s *postgresTagStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]TagRef, error) {
	query := `
		SELECT id, name, color, user_id
		FROM tags
		WHERE user_id = $1
		ORDER BY name
	`
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var out []TagRef
	for rows.Next() {
		var t TagRef
		if err := rows.Scan(&t.ID, &t.Name, &t.Color, &t.UserID); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *postgresTagStore) Create(ctx context.Context, userID uuid.UUID, name, color string) (TagRef, error) {
	query := `
		INSERT INTO tags (user_id, name, color)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, color, user_id
	`
	var t TagRef
	err := s.db.QueryRow(ctx, query, userID, name, color).Scan(&t.ID, &t.Name, &t.Color, &t.UserID)
	if err != nil {
		return TagRef{}, fmt.Errorf("create tag %q: %w", name, err)
	}
	return t, nil
}

type postgresExpenseStore struct {
	db DB
}

func (s *postgresExpenseStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]Expense, error) {
	query := `
		SELECT id, user_id, category_id, title, notes, amount, spent_at
		FROM expenses
		WHERE user_id = $1
	`
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []Expense
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.UserID, &e.CategoryID, &e.Title, &e.Notes, &e.Amount, &e.SpentAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *postgresExpenseStore) Create(ctx context.Context, exp *Expense, tagIDs []uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if exp.ID == uuid.Nil {
		exp.ID = uuid.New()
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO expenses (id, user_id, category_id, title, notes, amount, spent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, exp.ID, exp.UserID, exp.CategoryID, exp.Title, exp.Notes, exp.Amount, exp.SpentAt)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}

	if err := replaceExpenseTags(ctx, tx, exp.ID, tagIDs); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *postgresExpenseStore) Update(ctx context.Context, exp *Expense, tagIDs []uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		UPDATE expenses
		SET category_id = $2, title = $3, notes = $4, amount = $5, spent_at = $6, updated_at = now()
		WHERE id = $1
	`, exp.ID, exp.CategoryID, exp.Title, exp.Notes, exp.Amount, exp.SpentAt)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}

	if err := replaceExpenseTags(ctx, tx, exp.ID, tagIDs); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func replaceExpenseTags(ctx context.Context, tx pgx.Tx, expenseID uuid.UUID, tagIDs []uuid.UUID) error {
	if _, err := tx.Exec(ctx, `DELETE FROM expense_tags WHERE expense_id = $1`, expenseID); err != nil {
		return fmt.Errorf("clear expense tags: %w", err)
	}
	for i, tagID := range tagIDs {
		_, err := tx.Exec(ctx, `
			INSERT INTO expense_tags (expense_id, tag_id, position) VALUES ($1, $2, $3)
		`, expenseID, tagID, i)
		if err != nil {
			return fmt.Errorf("attach tag: %w", err)
		}
	}
	return nil
}

type postgresSnapshotStore struct {
	db DB
}

func (s *postgresSnapshotStore) ListForAsset(ctx context.Context, assetID uuid.UUID) ([]Snapshot, error) {
	query := `
		SELECT id, asset_id, balance, taken_at, notes
		FROM asset_snapshots
		WHERE asset_id = $1
	`
	rows, err := s.db.Query(ctx, query, assetID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var sn Snapshot
		if err := rows.Scan(&sn.ID, &sn.AssetID, &sn.Balance, &sn.TakenAt, &sn.Notes); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

func (s *postgresSnapshotStore) Create(ctx context.Context, snap *Snapshot) error {
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO asset_snapshots (id, asset_id, balance, taken_at, notes)
		VALUES ($1, $2, $3, $4, $5)
	`, snap.ID, snap.AssetID, snap.Balance, snap.TakenAt, snap.Notes)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (s *postgresSnapshotStore) Update(ctx context.Context, snap *Snapshot) error {
	_, err := s.db.Exec(ctx, `
		UPDATE asset_snapshots
		SET balance = $2, taken_at = $3, notes = $4, updated_at = now()
		WHERE id = $1
	`, snap.ID, snap.Balance, snap.TakenAt, snap.Notes)
	if err != nil {
		return fmt.Errorf("update snapshot: %w", err)
	}
	return nil
}

type postgresAuditLog struct {
	db DB
}

func (l *postgresAuditLog) Record(ctx context.Context, rec *AuditRecord) error {
	errorRows, err := json.Marshal(rec.ErrorRows)
	if err != nil {
		return fmt.Errorf("marshal error rows: %w", err)
	}
	_, err = l.db.Exec(ctx, `
		INSERT INTO import_audit (user_id, file_name, source, total_rows, inserted, updated, skipped, error_rows)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.UserID, rec.FileName, rec.Source, rec.TotalRows, rec.Inserted, rec.Updated, rec.Skipped, errorRows)
	if err != nil {
		return fmt.Errorf("record import audit: %w", err)
	}
	return nil
}

func (l *postgresAuditLog) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := l.db.Exec(ctx, `DELETE FROM import_audit WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune import audit: %w", err)
	}
	return tag.RowsAffected(), nil
}
