// Package dedup builds composite duplicate keys and the per-run index used
// to classify incoming rows against already-persisted records. Key
// construction is pure: the same inputs always yield the same key whether
// they come from the store or from a freshly parsed row.
package dedup

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/moneta-app/moneta-api/pkg/money"
)

// Key is a deterministic composite identity for one record. Two records are
// duplicates iff their keys are byte-equal.
type Key string

const dayLayout = "2006-01-02"

// ExpenseKey identifies a generic expense import row: day, rounded amount,
// resolved category, and case-folded title. Including the category id means
// re-importing the same transaction under a corrected category yields a new
// key; that matches how the rest of the system treats category as part of
// the record's identity.
func ExpenseKey(date time.Time, amount decimal.Decimal, categoryID uuid.UUID, title string) Key {
	return Key(fmt.Sprintf("%s|%s|%s|%s",
		date.UTC().Format(dayLayout),
		money.KeyString(amount),
		categoryID,
		normalizeTitle(title),
	))
}

// StatementKey identifies a card or Splitwise statement row: day, rounded
// amount, and case-folded title. External statements carry no category, so
// the key omits it.
func StatementKey(date time.Time, amount decimal.Decimal, title string) Key {
	return Key(fmt.Sprintf("%s|%s|%s",
		date.UTC().Format(dayLayout),
		money.KeyString(amount),
		normalizeTitle(title),
	))
}

// SnapshotKey identifies a balance snapshot: one balance per calendar day
// per asset.
func SnapshotKey(assetID uuid.UUID, date time.Time) Key {
	return Key(fmt.Sprintf("%s|%s", assetID, date.UTC().Format(dayLayout)))
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// Index is the per-run duplicate index. It maps each key to the id of the
// record that owns it so the "update" strategy can find its target. An
// Index is private to one run and never shared.
type Index struct {
	keys map[Key]uuid.UUID
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{keys: make(map[Key]uuid.UUID)}
}

// Add registers a key with the id of its owning record. Later rows in the
// same run that produce the same key classify as duplicates.
func (i *Index) Add(key Key, id uuid.UUID) {
	i.keys[key] = id
}

// Lookup returns the owning record id for a key, if present.
func (i *Index) Lookup(key Key) (uuid.UUID, bool) {
	id, ok := i.keys[key]
	return id, ok
}

// Has reports whether a key is already registered.
func (i *Index) Has(key Key) bool {
	_, ok := i.keys[key]
	return ok
}

// Len returns the number of registered keys.
func (i *Index) Len() int {
	return len(i.keys)
}
