package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/shopspring/decimal"

	"github.com/moneta-app/moneta-api/internal/domain/import/parser"
	"github.com/moneta-app/moneta-api/internal/domain/import/repository"
	"github.com/moneta-app/moneta-api/pkg/money"
)

// dateLayouts are tried in order. All are locale-invariant.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006",
	"01/02/2006 15:04:05",
	"2006/01/02",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// validateContext carries per-run lookup state for the row validator.
type validateContext struct {
	categories    map[string]repository.CategoryRef
	categoryNames []string
	location      *time.Location
}

func newValidateContext(categories []repository.CategoryRef, loc *time.Location) *validateContext {
	vc := &validateContext{
		categories: make(map[string]repository.CategoryRef, len(categories)),
		location:   loc,
	}
	for _, c := range categories {
		key := strings.ToLower(strings.TrimSpace(c.Name))
		if _, seen := vc.categories[key]; seen {
			continue
		}
		vc.categories[key] = c
		vc.categoryNames = append(vc.categoryNames, c.Name)
	}
	return vc
}

// lookupCategory resolves an exact case-insensitive name match.
func (vc *validateContext) lookupCategory(name string) (repository.CategoryRef, bool) {
	c, ok := vc.categories[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// suggestCategory returns the closest known category name, if any is close
// enough to plausibly be a typo of the input.
func (vc *validateContext) suggestCategory(name string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	best, bestDist := "", -1
	for _, candidate := range vc.categoryNames {
		d := fuzzy.LevenshteinDistance(needle, strings.ToLower(candidate))
		if bestDist == -1 || d < bestDist {
			best, bestDist = candidate, d
		}
	}
	if bestDist < 0 || bestDist > 3 {
		return "", false
	}
	return best, true
}

// validatedExpense is a fully normalized expense row: UTC date, amount
// rounded to two decimals, category resolved.
type validatedExpense struct {
	date     time.Time
	amount   decimal.Decimal
	category repository.CategoryRef
	title    string
	notes    *string
	tagNames []string
}

// validatedSnapshot is a normalized balance row for one asset.
type validatedSnapshot struct {
	date    time.Time
	balance decimal.Decimal
	notes   *string
}

// validateExpenseRow turns a parsed row into a validated one or a rejection
// message. Missing required fields are collected together so the message
// lists every absent column at once.
func validateExpenseRow(row parser.Row, vc *validateContext) (*validatedExpense, string) {
	rawDate := row.Get("date")
	rawAmount := row.GetAny("amount")
	rawCategory := row.Get("category")
	rawTitle := row.GetAny("description", "title")

	var missing []string
	if rawDate == "" {
		missing = append(missing, "Date")
	}
	if rawAmount == "" {
		missing = append(missing, "Amount")
	}
	if rawCategory == "" {
		missing = append(missing, "Category")
	}
	if rawTitle == "" {
		missing = append(missing, "Description")
	}
	if len(missing) > 0 {
		return nil, "Missing required fields: " + strings.Join(missing, ", ")
	}

	date, err := parseDate(rawDate, vc.location)
	if err != nil {
		return nil, "Invalid date format"
	}

	amount, err := money.ParseAmount(rawAmount)
	if err != nil {
		return nil, fmt.Sprintf("Amount %q is not a valid number", rawAmount)
	}
	if !amount.IsPositive() {
		return nil, "Amount must be a positive number"
	}

	category, ok := vc.lookupCategory(rawCategory)
	if !ok {
		msg := fmt.Sprintf("Unknown category %q", strings.TrimSpace(rawCategory))
		if suggestion, found := vc.suggestCategory(rawCategory); found {
			msg += fmt.Sprintf(", did you mean %q?", suggestion)
		}
		return nil, msg
	}

	return &validatedExpense{
		date:     date,
		amount:   amount,
		category: category,
		title:    strings.TrimSpace(rawTitle),
		notes:    optionalText(row.Get("notes")),
		tagNames: splitTags(row.Get("tags")),
	}, ""
}

// validateSnapshotRow validates a balance row. Balances may carry either
// sign; liabilities are recorded however the user's convention has them.
func validateSnapshotRow(row parser.Row, vc *validateContext) (*validatedSnapshot, string) {
	rawDate := row.Get("date")
	rawBalance := row.GetAny("balance", "amount")

	var missing []string
	if rawDate == "" {
		missing = append(missing, "Date")
	}
	if rawBalance == "" {
		missing = append(missing, "Balance")
	}
	if len(missing) > 0 {
		return nil, "Missing required fields: " + strings.Join(missing, ", ")
	}

	date, err := parseDate(rawDate, vc.location)
	if err != nil {
		return nil, "Invalid date format"
	}

	balance, err := money.ParseAmount(rawBalance)
	if err != nil {
		return nil, fmt.Sprintf("Balance %q is not a valid number", rawBalance)
	}

	return &validatedSnapshot{
		date:    date,
		balance: money.Round(balance),
		notes:   optionalText(row.Get("notes")),
	}, ""
}

// parseDate interprets the raw value as wall-clock time in loc (UTC when
// loc is nil) and returns the instant in UTC.
func parseDate(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

func optionalText(raw string) *string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// splitTags tokenizes the Tags cell on semicolons and commas, dropping
// empties and de-duplicating case-insensitively in first-seen order.
func splitTags(raw string) []string {
	tokens := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ';' || r == ','
	})
	var out []string
	seen := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		key := strings.ToLower(tok)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tok)
	}
	return out
}
