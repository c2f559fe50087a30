package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moneta-app/moneta-api/internal/domain/categorization"
	"github.com/moneta-app/moneta-api/internal/domain/import/repository"
	"github.com/moneta-app/moneta-api/internal/domain/import/service"
)

type stubCategories struct{ refs []repository.CategoryRef }

func (s stubCategories) ListForUser(context.Context, uuid.UUID) ([]repository.CategoryRef, error) {
	return s.refs, nil
}

type stubTags struct{ created []repository.TagRef }

func (s *stubTags) ListForUser(context.Context, uuid.UUID) ([]repository.TagRef, error) {
	return nil, nil
}

func (s *stubTags) Create(_ context.Context, userID uuid.UUID, name, color string) (repository.TagRef, error) {
	tag := repository.TagRef{ID: uuid.New(), Name: name, Color: color, UserID: userID}
	s.created = append(s.created, tag)
	return tag, nil
}

type stubExpenses struct{ created []*repository.Expense }

func (s *stubExpenses) ListForUser(context.Context, uuid.UUID) ([]repository.Expense, error) {
	return nil, nil
}

func (s *stubExpenses) Create(_ context.Context, exp *repository.Expense, _ []uuid.UUID) error {
	s.created = append(s.created, exp)
	return nil
}

func (s *stubExpenses) Update(context.Context, *repository.Expense, []uuid.UUID) error { return nil }

type stubSnapshots struct{}

func (stubSnapshots) ListForAsset(context.Context, uuid.UUID) ([]repository.Snapshot, error) {
	return nil, nil
}
func (stubSnapshots) Create(context.Context, *repository.Snapshot) error { return nil }
func (stubSnapshots) Update(context.Context, *repository.Snapshot) error { return nil }

type stubAudit struct{}

func (stubAudit) Record(context.Context, *repository.AuditRecord) error { return nil }
func (stubAudit) Prune(context.Context, time.Time) (int64, error)       { return 0, nil }

func newTestHandler(t *testing.T) (*Handler, *stubExpenses) {
	t.Helper()
	cats := stubCategories{refs: []repository.CategoryRef{
		{ID: uuid.New(), Name: "Food & Dining"},
		{ID: uuid.New(), Name: "Other"},
	}}
	expenses := &stubExpenses{}
	stores := &repository.Stores{
		Categories: cats,
		Tags:       &stubTags{},
		Expenses:   expenses,
		Snapshots:  stubSnapshots{},
		Audit:      stubAudit{},
	}
	svc := service.NewService(stores, nil, slog.Default(), service.DefaultOptions)

	search, err := categorization.NewIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = search.Close() })
	require.NoError(t, search.IndexCategories(cats.refs))

	return New(svc, cats, search, slog.Default()), expenses
}

func multipartBody(t *testing.T, fileName, content string, fields map[string]string) (*bytes.Buffer, string) {
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
	return &buf, w.FormDataContentType()
}

func serveMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func TestImportExpensesEndpoint(t *testing.T) {
	h, expenses := newTestHandler(t)
	mux := serveMux(h)

	body, contentType := multipartBody(t, "expenses.csv",
		"Date,Amount,Category,Description\n2024-01-15,42.50,Food & Dining,Lunch\n",
		map[string]string{"userId": uuid.NewString(), "dryRun": "false"})
	req := httptest.NewRequest(http.MethodPost, "/v1/imports/expenses", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report service.ImportRunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.TotalRows)
	assert.Equal(t, 1, report.Inserted)
	assert.False(t, report.DryRun)
	assert.Len(t, expenses.created, 1)
}

func TestImportExpensesDefaultsToDryRun(t *testing.T) {
	h, expenses := newTestHandler(t)
	mux := serveMux(h)

	body, contentType := multipartBody(t, "expenses.csv",
		"Date,Amount,Category,Description\n2024-01-15,42.50,Food & Dining,Lunch\n",
		map[string]string{"userId": uuid.NewString()})
	req := httptest.NewRequest(http.MethodPost, "/v1/imports/expenses", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var report service.ImportRunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.DryRun)
	assert.Empty(t, expenses.created)
}

func TestImportExpensesReportShape(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := serveMux(h)

	body, contentType := multipartBody(t, "expenses.csv",
		"Date,Amount,Category,Description\n2024-01-15,abc,Food & Dining,Lunch\n",
		map[string]string{"userId": uuid.NewString()})
	req := httptest.NewRequest(http.MethodPost, "/v1/imports/expenses", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	for _, field := range []string{"fileName", "dryRun", "duplicateStrategy", "timezone", "totalRows", "inserted", "updated", "skipped", "rows"} {
		assert.Contains(t, raw, field)
	}
	rows := raw["rows"].([]any)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Contains(t, row, "rowNumber")
	assert.Equal(t, "error", row["status"])
}

func TestStructuralErrorReturns400(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := serveMux(h)

	body, contentType := multipartBody(t, "expenses.pdf", "junk",
		map[string]string{"userId": uuid.NewString()})
	req := httptest.NewRequest(http.MethodPost, "/v1/imports/expenses", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported file type")
}

func TestBadStrategyReturns400(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := serveMux(h)

	body, contentType := multipartBody(t, "expenses.csv", "Date,Amount\n",
		map[string]string{"userId": uuid.NewString(), "duplicateStrategy": "merge"})
	req := httptest.NewRequest(http.MethodPost, "/v1/imports/expenses", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMissingFileReturns400(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := serveMux(h)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("userId", uuid.NewString()))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/imports/expenses", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "file field is required")
}

func TestCapitalOnePreviewEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := serveMux(h)

	csv := "Transaction Date,Posted Date,Card No.,Description,Category,Debit,Credit\n" +
		"2024-01-15,2024-01-16,1234,UBER EATS,Dining,23.50,\n" +
		"2024-01-17,2024-01-18,1234,PAYMENT,Payment,,100.00\n"
	body, contentType := multipartBody(t, "statement.csv", csv,
		map[string]string{"userId": uuid.NewString()})
	req := httptest.NewRequest(http.MethodPost, "/v1/imports/capital-one", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var preview service.CapitalOnePreview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &preview))
	require.Len(t, preview.Rows, 2)
	assert.Equal(t, 1, preview.ImportableCount)
	assert.True(t, preview.Rows[1].IsCredit)
}

func TestCapitalOneCommitEndpoint(t *testing.T) {
	h, expenses := newTestHandler(t)
	mux := serveMux(h)

	csv := "Transaction Date,Posted Date,Card No.,Description,Category,Debit,Credit\n" +
		"2024-01-15,2024-01-16,1234,UBER EATS,Dining,23.50,\n"
	body, contentType := multipartBody(t, "statement.csv", csv, map[string]string{
		"userId":       uuid.NewString(),
		"dryRun":       "false",
		"cardType":     "Quicksilver",
		"selectedRows": "2",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/imports/capital-one", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report service.ImportRunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Inserted)
	assert.Len(t, expenses.created, 1)
}

func TestSplitwiseUnconfiguredReturns400(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := serveMux(h)

	payload := fmt.Sprintf(`{"userId":%q}`, uuid.NewString())
	req := httptest.NewRequest(http.MethodPost, "/v1/imports/splitwise", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "not configured")
}

func TestTemplateDownloads(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := serveMux(h)

	req := httptest.NewRequest(http.MethodGet, "/v1/imports/expenses/template?format=csv", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "expense-import-template.csv")
	assert.Contains(t, rec.Body.String(), "Date,Amount,Category,Description,Notes,Tags")

	req = httptest.NewRequest(http.MethodGet, "/v1/imports/balances/template?format=xlsx", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.Bytes())

	req = httptest.NewRequest(http.MethodGet, "/v1/imports/expenses/template?format=doc", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCategorySearchEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := serveMux(h)

	req := httptest.NewRequest(http.MethodGet, "/v1/categories/search?q=dining", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Matches []categorization.Match `json:"matches"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Matches)
	assert.Equal(t, "Food & Dining", resp.Matches[0].Name)

	req = httptest.NewRequest(http.MethodGet, "/v1/categories/search", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
