// Package splitwise is a minimal client for the Splitwise REST API,
// covering just the calls the import pipeline needs.
package splitwise

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// User is the authenticated Splitwise account.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// ExpenseUser is one participant's share of an expense. Shares arrive as
// decimal strings.
type ExpenseUser struct {
	UserID    int64  `json:"user_id"`
	PaidShare string `json:"paid_share"`
	OwedShare string `json:"owed_share"`
}

// Category is Splitwise's own category taxonomy, used only as a hint for
// heuristic mapping.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Expense is one Splitwise expense. Payment=true marks settle-up transfers.
type Expense struct {
	ID           int64         `json:"id"`
	Description  string        `json:"description"`
	Details      string        `json:"details"`
	Cost         string        `json:"cost"`
	CurrencyCode string        `json:"currency_code"`
	Date         time.Time     `json:"date"`
	Payment      bool          `json:"payment"`
	DeletedAt    *time.Time    `json:"deleted_at"`
	Category     Category      `json:"category"`
	Users        []ExpenseUser `json:"users"`
}

// OwedShare returns the given user's owed share, or false when the user is
// not a participant or the share does not parse.
func (e Expense) OwedShare(userID int64) (decimal.Decimal, bool) {
	for _, u := range e.Users {
		if u.UserID != userID {
			continue
		}
		d, err := decimal.NewFromString(u.OwedShare)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	}
	return decimal.Zero, false
}

// Client talks to the Splitwise API with a bearer token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

// CurrentUser fetches the authenticated user, needed to pick the right
// owed share out of each expense.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var payload struct {
		User User `json:"user"`
	}
	if err := c.get(ctx, "/get_current_user", nil, &payload); err != nil {
		return nil, err
	}
	return &payload.User, nil
}

// Expenses fetches expenses dated after the given instant, newest first,
// up to limit.
func (c *Client) Expenses(ctx context.Context, datedAfter time.Time, limit int) ([]Expense, error) {
	params := url.Values{}
	if !datedAfter.IsZero() {
		params.Set("dated_after", datedAfter.UTC().Format(time.RFC3339))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var payload struct {
		Expenses []Expense `json:"expenses"`
	}
	if err := c.get(ctx, "/get_expenses", params, &payload); err != nil {
		return nil, err
	}
	return payload.Expenses, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build splitwise request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("splitwise %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("splitwise %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode splitwise %s response: %w", path, err)
	}
	return nil
}
