package splitwise

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get_current_user", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user":{"id":7,"first_name":"Ada","email":"ada@example.com"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", 5*time.Second)
	user, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)
	assert.Equal(t, "Ada", user.FirstName)
}

func TestExpensesQueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get_expenses", r.URL.Path)
		assert.Equal(t, "2024-01-01T00:00:00Z", r.URL.Query().Get("dated_after"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"expenses":[{
			"id": 101,
			"description": "Dinner",
			"cost": "42.50",
			"currency_code": "USD",
			"date": "2024-02-01T19:30:00Z",
			"payment": false,
			"category": {"id": 13, "name": "Dining out"},
			"users": [{"user_id": 7, "paid_share": "42.50", "owed_share": "21.25"}]
		}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", 5*time.Second)
	expenses, err := c.Expenses(context.Background(), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 100)
	require.NoError(t, err)
	require.Len(t, expenses, 1)

	e := expenses[0]
	assert.Equal(t, int64(101), e.ID)
	assert.Equal(t, "Dining out", e.Category.Name)

	owed, ok := e.OwedShare(7)
	require.True(t, ok)
	assert.True(t, owed.Equal(decimal.RequireFromString("21.25")))

	_, ok = e.OwedShare(99)
	assert.False(t, ok)
}

func TestNonOKStatusIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad-key", time.Second)
	_, err := c.CurrentUser(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
