// Package catmap maps free-text statement categories (Capital One category
// labels, Splitwise category names) onto internal category names. The rules
// live in one ordered keyword table; earlier groups take precedence when
// keywords overlap, and an unmatched input falls back to a fixed name.
package catmap

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// FallbackCategory is returned when no keyword group matches.
const FallbackCategory = "Other"

// Group pairs an internal category name with the keywords that select it.
type Group struct {
	Category string
	Keywords []string
}

// DefaultGroups is the ordered rule table. Order is load-bearing: "wine bar"
// must hit Alcohol before Food & Dining gets a chance.
var DefaultGroups = []Group{
	{Category: "Vacation", Keywords: []string{
		"travel", "lodging", "hotel", "airline", "airfare", "flight", "airbnb", "resort", "cruise",
	}},
	{Category: "Alcohol", Keywords: []string{
		"bar", "nightlife", "brewery", "liquor", "pub", "wine", "alcohol",
	}},
	{Category: "Food & Dining", Keywords: []string{
		"dining", "dinner", "restaurant", "grocery", "groceries", "food", "coffee", "cafe", "fast food",
	}},
	{Category: "Transportation", Keywords: []string{
		"transportation", "gas", "fuel", "uber", "lyft", "taxi", "transit", "parking", "toll", "automotive",
	}},
	{Category: "Bills & Utilities", Keywords: []string{
		"utility", "utilities", "internet", "phone", "cable", "subscription", "insurance", "electric", "bill",
	}},
	{Category: "Healthcare", Keywords: []string{
		"health", "medical", "pharmacy", "doctor", "dental", "vision", "fitness",
	}},
	{Category: "Entertainment", Keywords: []string{
		"entertainment", "movie", "music", "game", "theater", "streaming", "concert",
	}},
	{Category: "Shopping", Keywords: []string{
		"shopping", "merchandise", "department", "clothing", "retail",
	}},
}

// Mapper is a compiled keyword table. All keywords are matched in a single
// Aho-Corasick pass; precedence is resolved by group order, not match
// position.
type Mapper struct {
	matcher *ahocorasick.Matcher
	groupOf []int
	groups  []Group
}

// NewMapper compiles the default rule table.
func NewMapper() *Mapper {
	return NewMapperWithGroups(DefaultGroups)
}

// NewMapperWithGroups compiles a custom ordered table. A keyword listed in
// more than one group belongs to the earliest; the matcher deduplicates
// identical patterns, so each unique keyword is compiled exactly once with
// its first-seen group.
func NewMapperWithGroups(groups []Group) *Mapper {
	seen := make(map[string]bool)
	var patterns [][]byte
	var groupOf []int
	for gi, g := range groups {
		for _, kw := range g.Keywords {
			lowered := strings.ToLower(kw)
			if seen[lowered] {
				continue
			}
			seen[lowered] = true
			patterns = append(patterns, []byte(lowered))
			groupOf = append(groupOf, gi)
		}
	}
	return &Mapper{
		matcher: ahocorasick.NewMatcher(patterns),
		groupOf: groupOf,
		groups:  groups,
	}
}

// Map resolves a free-text label to an internal category name. Pure and
// case-insensitive; unmatched input returns FallbackCategory.
func (m *Mapper) Map(freeText string) string {
	hits := m.matcher.Match([]byte(strings.ToLower(freeText)))
	if len(hits) == 0 {
		return FallbackCategory
	}

	best := -1
	for _, patternIdx := range hits {
		if patternIdx < 0 || patternIdx >= len(m.groupOf) {
			continue
		}
		if gi := m.groupOf[patternIdx]; best == -1 || gi < best {
			best = gi
		}
	}
	if best == -1 {
		return FallbackCategory
	}
	return m.groups[best].Category
}
