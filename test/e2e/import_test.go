// Package e2etest drives the import HTTP surface end to end against
// in-memory stores: template download, dry run, commit, and re-import.
package e2etest

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moneta-app/moneta-api/internal/domain/categorization"
	"github.com/moneta-app/moneta-api/internal/domain/import/handler"
	"github.com/moneta-app/moneta-api/internal/domain/import/repository"
	"github.com/moneta-app/moneta-api/internal/domain/import/service"
)

// memStores keeps created rows so a second request sees the first
// request's writes, which is what exercises the duplicate handling.
type memStores struct {
	mu         sync.Mutex
	categories []repository.CategoryRef
	tags       map[string]repository.TagRef
	expenses   []repository.Expense
	snapshots  []repository.Snapshot
	audits     int
}

func (m *memStores) ListForUser(_ context.Context, _ uuid.UUID) ([]repository.CategoryRef, error) {
	return m.categories, nil
}

type memTags struct{ s *memStores }

func (t memTags) ListForUser(context.Context, uuid.UUID) ([]repository.TagRef, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	out := make([]repository.TagRef, 0, len(t.s.tags))
	for _, tag := range t.s.tags {
		out = append(out, tag)
	}
	return out, nil
}

func (t memTags) Create(_ context.Context, userID uuid.UUID, name, color string) (repository.TagRef, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	tag := repository.TagRef{ID: uuid.New(), Name: name, Color: color, UserID: userID}
	t.s.tags[strings.ToLower(name)] = tag
	return tag, nil
}

type memExpenses struct{ s *memStores }

func (e memExpenses) ListForUser(context.Context, uuid.UUID) ([]repository.Expense, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	out := make([]repository.Expense, len(e.s.expenses))
	copy(out, e.s.expenses)
	return out, nil
}

func (e memExpenses) Create(_ context.Context, exp *repository.Expense, _ []uuid.UUID) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	e.s.expenses = append(e.s.expenses, *exp)
	return nil
}

func (e memExpenses) Update(_ context.Context, exp *repository.Expense, _ []uuid.UUID) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	for i := range e.s.expenses {
		if e.s.expenses[i].ID == exp.ID {
			e.s.expenses[i] = *exp
		}
	}
	return nil
}

type memSnapshots struct{ s *memStores }

func (sn memSnapshots) ListForAsset(context.Context, uuid.UUID) ([]repository.Snapshot, error) {
	sn.s.mu.Lock()
	defer sn.s.mu.Unlock()
	out := make([]repository.Snapshot, len(sn.s.snapshots))
	copy(out, sn.s.snapshots)
	return out, nil
}

func (sn memSnapshots) Create(_ context.Context, snap *repository.Snapshot) error {
	sn.s.mu.Lock()
	defer sn.s.mu.Unlock()
	sn.s.snapshots = append(sn.s.snapshots, *snap)
	return nil
}

func (sn memSnapshots) Update(_ context.Context, snap *repository.Snapshot) error {
	sn.s.mu.Lock()
	defer sn.s.mu.Unlock()
	for i := range sn.s.snapshots {
		if sn.s.snapshots[i].ID == snap.ID {
			sn.s.snapshots[i] = *snap
		}
	}
	return nil
}

type memAudit struct{ s *memStores }

func (a memAudit) Record(context.Context, *repository.AuditRecord) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	a.s.audits++
	return nil
}

func (memAudit) Prune(context.Context, time.Time) (int64, error) { return 0, nil }

func newServer(t *testing.T) (*http.ServeMux, *memStores) {
	t.Helper()
	state := &memStores{
		categories: []repository.CategoryRef{
			{ID: uuid.New(), Name: "Food & Dining"},
			{ID: uuid.New(), Name: "Transportation"},
			{ID: uuid.New(), Name: "Other"},
		},
		tags: map[string]repository.TagRef{},
	}
	stores := &repository.Stores{
		Categories: state,
		Tags:       memTags{s: state},
		Expenses:   memExpenses{s: state},
		Snapshots:  memSnapshots{s: state},
		Audit:      memAudit{s: state},
	}
	svc := service.NewService(stores, nil, slog.Default(), service.DefaultOptions)

	search, err := categorization.NewIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = search.Close() })
	require.NoError(t, search.IndexCategories(state.categories))

	mux := http.NewServeMux()
	handler.New(svc, state, search, slog.Default()).Register(mux)
	return mux, state
}

func uploadCSV(t *testing.T, mux *http.ServeMux, path, fileName, content string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeReport(t *testing.T, rec *httptest.ResponseRecorder) service.ImportRunReport {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report service.ImportRunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	return report
}

// TestExpenseImportLifecycle walks the happy path a client would take:
// fetch the template, fill it in, dry run, commit, then upload the same
// file again and watch every row come back as a duplicate.
func TestExpenseImportLifecycle(t *testing.T) {
	mux, state := newServer(t)
	userID := uuid.NewString()

	var header string
	t.Run("DownloadTemplate", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/imports/expenses/template?format=csv", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
		header = strings.SplitN(rec.Body.String(), "\n", 2)[0]
		header = strings.TrimRight(header, "\r")
		assert.Equal(t, "Date,Amount,Category,Description,Notes,Tags", header)
	})

	content := header + "\n" +
		"2024-03-01,18.90,Food & Dining,Lunch with team,,work\n" +
		"2024-03-02,31.00,Transportation,Airport taxi,,\n"

	t.Run("DryRunLeavesNothingBehind", func(t *testing.T) {
		rec := uploadCSV(t, mux, "/v1/imports/expenses", "march.csv", content,
			map[string]string{"userId": userID})
		report := decodeReport(t, rec)

		assert.True(t, report.DryRun)
		assert.Equal(t, 2, report.TotalRows)
		assert.Empty(t, state.expenses)
		assert.Empty(t, state.tags)
	})

	t.Run("CommitPersists", func(t *testing.T) {
		rec := uploadCSV(t, mux, "/v1/imports/expenses", "march.csv", content,
			map[string]string{"userId": userID, "dryRun": "false"})
		report := decodeReport(t, rec)

		assert.False(t, report.DryRun)
		assert.Equal(t, 2, report.Inserted)
		require.Len(t, state.expenses, 2)
		assert.Contains(t, state.tags, "work")
		assert.Equal(t, 1, state.audits)
	})

	t.Run("ReuploadSkipsEverything", func(t *testing.T) {
		rec := uploadCSV(t, mux, "/v1/imports/expenses", "march.csv", content,
			map[string]string{"userId": userID, "dryRun": "false"})
		report := decodeReport(t, rec)

		assert.Equal(t, 2, report.Skipped)
		assert.Zero(t, report.Inserted)
		assert.Len(t, state.expenses, 2)
	})

	t.Run("ReuploadWithUpdateStrategyOverwrites", func(t *testing.T) {
		changed := header + "\n" +
			"2024-03-01,18.90,Food & Dining,Lunch with team,Expensed,work\n"
		rec := uploadCSV(t, mux, "/v1/imports/expenses", "march.csv", changed,
			map[string]string{"userId": userID, "dryRun": "false", "duplicateStrategy": "update"})
		report := decodeReport(t, rec)

		assert.Equal(t, 1, report.Updated)
		assert.Len(t, state.expenses, 2)
	})
}

func TestBalanceImportLifecycle(t *testing.T) {
	mux, state := newServer(t)
	assetID := uuid.NewString()

	content := "Date,Balance,Notes\n2024-03-31,12500.00,Quarter end\n"

	rec := uploadCSV(t, mux, "/v1/imports/balances", "balances.csv", content,
		map[string]string{"assetId": assetID, "dryRun": "false"})
	report := decodeReport(t, rec)
	require.Equal(t, 1, report.Inserted)
	require.Len(t, state.snapshots, 1)
	assert.Equal(t, "12500.00", state.snapshots[0].Balance.StringFixed(2))

	// Same day again, skip strategy: nothing changes.
	rec = uploadCSV(t, mux, "/v1/imports/balances", "balances.csv", content,
		map[string]string{"assetId": assetID, "dryRun": "false"})
	report = decodeReport(t, rec)
	assert.Equal(t, 1, report.Skipped)
	assert.Len(t, state.snapshots, 1)
}

func TestCapitalOnePreviewThenCommit(t *testing.T) {
	mux, state := newServer(t)
	userID := uuid.NewString()

	content := "Transaction Date,Posted Date,Card No.,Description,Category,Debit,Credit\n" +
		"2024-03-05,2024-03-06,1234,UBER EATS,Dining,25.40,\n" +
		"2024-03-06,2024-03-07,1234,CAPITAL ONE MOBILE PYMT,Payment/Credit,,200.00\n"

	t.Run("Preview", func(t *testing.T) {
		rec := uploadCSV(t, mux, "/v1/imports/capital-one", "statement.csv", content,
			map[string]string{"userId": userID})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var preview service.CapitalOnePreview
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &preview))
		require.Len(t, preview.Rows, 2)
		assert.Equal(t, 1, preview.ImportableCount)
		// Row numbers are physical file rows; the header is row 1.
		assert.Equal(t, 2, preview.Rows[0].RowNumber)
		assert.True(t, preview.Rows[1].IsCredit)
		assert.Empty(t, state.expenses)
	})

	t.Run("Commit", func(t *testing.T) {
		rec := uploadCSV(t, mux, "/v1/imports/capital-one", "statement.csv", content,
			map[string]string{
				"userId":       userID,
				"dryRun":       "false",
				"cardType":     "quicksilver",
				"selectedRows": "2",
			})
		report := decodeReport(t, rec)

		assert.Equal(t, 1, report.Inserted)
		require.Len(t, state.expenses, 1)
		assert.Equal(t, "Uber Eats", state.expenses[0].Title)
		assert.Contains(t, state.tags, "quicksilver")
	})
}

func TestCategorySearchEndToEnd(t *testing.T) {
	mux, _ := newServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/categories/search?q=dinning", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var payload struct {
		Matches []categorization.Match `json:"matches"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.NotEmpty(t, payload.Matches)
	assert.Equal(t, "Food & Dining", payload.Matches[0].Name)
}
