// Package categorization backs the category picker used when reviewing
// statement imports. Categories are indexed together with their keyword
// hints so a search for "flight" surfaces "Vacation".
package categorization

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/google/uuid"

	"github.com/moneta-app/moneta-api/internal/domain/import/catmap"
	"github.com/moneta-app/moneta-api/internal/domain/import/repository"
)

// categoryDocument is what gets indexed per category.
type categoryDocument struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Keywords string `json:"keywords"`
	UserID   string `json:"user_id"`
}

// Match is one search hit.
type Match struct {
	CategoryID uuid.UUID `json:"categoryId"`
	Name       string    `json:"name"`
	Score      float64   `json:"score"`
}

// Index is an in-memory full-text index over one user's categories.
// Rebuilt per process from the category store; never persisted.
type Index struct {
	mu    sync.RWMutex
	index bleve.Index
}

func NewIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create category index: %w", err)
	}
	return &Index{index: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = simple.Name

	keywordField := bleve.NewTextFieldMapping()
	keywordField.Analyzer = keyword.Name

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("name", textField)
	docMapping.AddFieldMappingsAt("keywords", textField)
	docMapping.AddFieldMappingsAt("id", keywordField)
	docMapping.AddFieldMappingsAt("user_id", keywordField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = simple.Name
	return indexMapping
}

// IndexCategories replaces the index content with the given categories,
// attaching the heuristic keyword hints for any name present in the
// default rule table.
func (ix *Index) IndexCategories(categories []repository.CategoryRef) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	hints := keywordHints()
	batch := ix.index.NewBatch()
	for _, c := range categories {
		userID := ""
		if c.UserID != nil {
			userID = c.UserID.String()
		}
		doc := categoryDocument{
			ID:       c.ID.String(),
			Name:     c.Name,
			Keywords: hints[strings.ToLower(c.Name)],
			UserID:   userID,
		}
		if err := batch.Index(doc.ID, doc); err != nil {
			return fmt.Errorf("index category %s: %w", c.Name, err)
		}
	}
	if err := ix.index.Batch(batch); err != nil {
		return fmt.Errorf("batch index categories: %w", err)
	}
	return nil
}

// Search matches the query against names and keyword hints with one edit
// of typo tolerance.
func (ix *Index) Search(query string, limit int) ([]Match, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetFuzziness(1)

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = limit
	req.Fields = []string{"name"}

	res, err := ix.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("category search: %w", err)
	}

	matches := make([]Match, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := uuid.Parse(hit.ID)
		if err != nil {
			continue
		}
		m := Match{CategoryID: id, Score: hit.Score}
		if name, ok := hit.Fields["name"].(string); ok {
			m.Name = name
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// DocCount reports how many categories are indexed.
func (ix *Index) DocCount() (uint64, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.index.DocCount()
}

func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.index.Close()
}

// keywordHints flattens the heuristic rule table into one hint string per
// category name.
func keywordHints() map[string]string {
	hints := make(map[string]string, len(catmap.DefaultGroups))
	for _, g := range catmap.DefaultGroups {
		hints[strings.ToLower(g.Category)] = strings.Join(g.Keywords, " ")
	}
	return hints
}
