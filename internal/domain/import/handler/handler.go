// Package handler exposes the import pipelines over multipart REST
// endpoints and serves the template downloads.
package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/moneta-app/moneta-api/internal/domain/categorization"
	"github.com/moneta-app/moneta-api/internal/domain/import/repository"
	"github.com/moneta-app/moneta-api/internal/domain/import/service"
	"github.com/moneta-app/moneta-api/internal/domain/import/template"
)

const maxMultipartMemory = 10 << 20

// Handler routes import requests to the service layer.
type Handler struct {
	svc        *service.Service
	categories repository.CategoryStore
	search     *categorization.Index
	logger     *slog.Logger
}

func New(svc *service.Service, categories repository.CategoryStore, search *categorization.Index, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, categories: categories, search: search, logger: logger}
}

// Register mounts all import routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/imports/expenses", h.importExpenses)
	mux.HandleFunc("POST /v1/imports/balances", h.importBalances)
	mux.HandleFunc("POST /v1/imports/capital-one", h.importCapitalOne)
	mux.HandleFunc("POST /v1/imports/splitwise", h.importSplitwise)
	mux.HandleFunc("GET /v1/imports/expenses/template", h.expenseTemplate)
	mux.HandleFunc("GET /v1/imports/balances/template", h.balanceTemplate)
	mux.HandleFunc("GET /v1/categories/search", h.searchCategories)
}

func (h *Handler) importExpenses(w http.ResponseWriter, r *http.Request) {
	upload, ok := h.readUpload(w, r, "userId")
	if !ok {
		return
	}
	report, err := h.svc.ImportExpenses(r.Context(), service.ExpenseImportRequest{
		UserID:   upload.scopeID,
		FileName: upload.fileName,
		Data:     upload.data,
		Strategy: upload.strategy,
		Timezone: upload.timezone,
		DryRun:   upload.dryRun,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) importBalances(w http.ResponseWriter, r *http.Request) {
	upload, ok := h.readUpload(w, r, "assetId")
	if !ok {
		return
	}
	report, err := h.svc.ImportBalances(r.Context(), service.BalanceImportRequest{
		AssetID:  upload.scopeID,
		FileName: upload.fileName,
		Data:     upload.data,
		Strategy: upload.strategy,
		Timezone: upload.timezone,
		DryRun:   upload.dryRun,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) importCapitalOne(w http.ResponseWriter, r *http.Request) {
	upload, ok := h.readUpload(w, r, "userId")
	if !ok {
		return
	}
	if upload.dryRun {
		preview, err := h.svc.PreviewCapitalOne(r.Context(), upload.scopeID, upload.fileName, upload.data)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, preview)
		return
	}

	selected, err := parseIntList(r.FormValue("selectedRows"))
	if err != nil {
		h.badRequest(w, "selectedRows must be a comma-separated list of row numbers")
		return
	}
	overrides, err := parseOverrides[int](r.FormValue("categoryOverrides"))
	if err != nil {
		h.badRequest(w, "categoryOverrides must be a JSON object of row number to category name")
		return
	}
	report, err := h.svc.CommitCapitalOne(r.Context(), service.CapitalOneCommitRequest{
		UserID:            upload.scopeID,
		FileName:          upload.fileName,
		Data:              upload.data,
		CardType:          r.FormValue("cardType"),
		Selected:          selected,
		CategoryOverrides: overrides,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// splitwiseRequest is the JSON body of the Splitwise endpoint; there is no
// file to upload.
type splitwiseRequest struct {
	UserID            uuid.UUID        `json:"userId"`
	DatedAfter        *time.Time       `json:"datedAfter"`
	DryRun            *bool            `json:"dryRun"`
	Selected          []int64          `json:"selected"`
	CategoryOverrides map[int64]string `json:"categoryOverrides"`
}

func (h *Handler) importSplitwise(w http.ResponseWriter, r *http.Request) {
	var req splitwiseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid JSON body")
		return
	}
	if req.UserID == uuid.Nil {
		h.badRequest(w, "userId is required")
		return
	}
	datedAfter := time.Time{}
	if req.DatedAfter != nil {
		datedAfter = *req.DatedAfter
	}
	dryRun := true
	if req.DryRun != nil {
		dryRun = *req.DryRun
	}

	if dryRun {
		preview, err := h.svc.PreviewSplitwise(r.Context(), req.UserID, datedAfter)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, preview)
		return
	}
	report, err := h.svc.CommitSplitwise(r.Context(), service.SplitwiseCommitRequest{
		UserID:            req.UserID,
		DatedAfter:        datedAfter,
		Selected:          req.Selected,
		CategoryOverrides: req.CategoryOverrides,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) expenseTemplate(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("format") {
	case "", "csv":
		out, err := template.ExpenseCSV()
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		serveDownload(w, "expense-import-template.csv", "text/csv", out)
	case "xlsx":
		names, err := h.categoryNames(r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		out, err := template.ExpenseXLSX(names)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		serveDownload(w, "expense-import-template.xlsx",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", out)
	default:
		h.badRequest(w, "format must be csv or xlsx")
	}
}

func (h *Handler) balanceTemplate(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("format") {
	case "", "csv":
		out, err := template.BalanceCSV()
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		serveDownload(w, "balance-import-template.csv", "text/csv", out)
	case "xlsx":
		out, err := template.BalanceXLSX()
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		serveDownload(w, "balance-import-template.xlsx",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", out)
	default:
		h.badRequest(w, "format must be csv or xlsx")
	}
}

func (h *Handler) searchCategories(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		h.badRequest(w, "q is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	matches, err := h.search.Search(q, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

// upload is the decoded common multipart payload.
type upload struct {
	scopeID  uuid.UUID
	fileName string
	data     []byte
	strategy service.DuplicateStrategy
	timezone string
	dryRun   bool
}

// readUpload decodes the shared multipart fields. dryRun defaults to true:
// a commit must be asked for explicitly.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request, scopeField string) (upload, bool) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		h.badRequest(w, "expected multipart/form-data with a file field")
		return upload{}, false
	}
	scopeID, err := uuid.Parse(r.FormValue(scopeField))
	if err != nil {
		h.badRequest(w, scopeField+" must be a valid id")
		return upload{}, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.badRequest(w, "file field is required")
		return upload{}, false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		h.badRequest(w, "could not read the uploaded file")
		return upload{}, false
	}

	strategy, err := service.ParseDuplicateStrategy(r.FormValue("duplicateStrategy"))
	if err != nil {
		h.writeError(w, r, err)
		return upload{}, false
	}
	dryRun := true
	if raw := r.FormValue("dryRun"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			h.badRequest(w, "dryRun must be a boolean")
			return upload{}, false
		}
		dryRun = parsed
	}

	return upload{
		scopeID:  scopeID,
		fileName: header.Filename,
		data:     data,
		strategy: strategy,
		timezone: r.FormValue("timezone"),
		dryRun:   dryRun,
	}, true
}

func (h *Handler) categoryNames(r *http.Request) ([]string, error) {
	userID, err := uuid.Parse(r.URL.Query().Get("userId"))
	if err != nil {
		return nil, nil
	}
	categories, err := h.categories.ListForUser(r.Context(), userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}
	return names, nil
}

// writeError maps the two error tiers: structural problems are the
// caller's, everything else gets a generic message and a log line.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if service.IsStructural(err) {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.logger.Error("import request failed",
		slog.String("path", r.URL.Path),
		slog.Any("error", err))
	h.writeJSON(w, http.StatusInternalServerError,
		map[string]string{"error": "Something went wrong, please try again"})
}

func (h *Handler) badRequest(w http.ResponseWriter, msg string) {
	h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("write response", slog.Any("error", err))
	}
}

func serveDownload(w http.ResponseWriter, name, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func parseIntList(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func parseOverrides[K int | int64](raw string) (map[K]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var asStrings map[string]string
	if err := json.Unmarshal([]byte(raw), &asStrings); err != nil {
		return nil, err
	}
	out := make(map[K]string, len(asStrings))
	for k, v := range asStrings {
		n, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, err
		}
		out[K(n)] = v
	}
	return out, nil
}
