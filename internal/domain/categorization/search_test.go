package categorization

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moneta-app/moneta-api/internal/domain/import/repository"
)

func seededIndex(t *testing.T) (*Index, map[string]uuid.UUID) {
	t.Helper()
	ix, err := NewIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })

	ids := map[string]uuid.UUID{
		"Vacation":      uuid.New(),
		"Food & Dining": uuid.New(),
		"Shopping":      uuid.New(),
	}
	var cats []repository.CategoryRef
	for name, id := range ids {
		cats = append(cats, repository.CategoryRef{ID: id, Name: name})
	}
	require.NoError(t, ix.IndexCategories(cats))
	return ix, ids
}

func TestSearchByName(t *testing.T) {
	ix, ids := seededIndex(t)

	matches, err := ix.Search("shopping", 5)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, ids["Shopping"], matches[0].CategoryID)
	assert.Equal(t, "Shopping", matches[0].Name)
}

func TestSearchByKeywordHint(t *testing.T) {
	ix, ids := seededIndex(t)

	// "flight" is a hint for Vacation, not part of its name.
	matches, err := ix.Search("flight", 5)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, ids["Vacation"], matches[0].CategoryID)
}

func TestSearchToleratesTypo(t *testing.T) {
	ix, ids := seededIndex(t)

	matches, err := ix.Search("dinning", 5)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, ids["Food & Dining"], matches[0].CategoryID)
}

func TestSearchNoMatch(t *testing.T) {
	ix, _ := seededIndex(t)

	matches, err := ix.Search("zzzzzz", 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestDocCount(t *testing.T) {
	ix, _ := seededIndex(t)
	n, err := ix.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
}
