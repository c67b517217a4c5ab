package session

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// SearchResult is one session matched by a history search.
type SearchResult struct {
	SessionID string
	Title     string
	Score     float64
}

// Search runs a keyword search over titles and message content across all
// threads and returns the top k sessions by relevance. The index is built
// in memory from the current collection, so results always reflect the
// latest committed state.
func (s *Store) Search(query string, k int) ([]SearchResult, error) {
	index, err := bleve.NewMemOnly(buildSessionMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create search index: %w", err)
	}
	defer index.Close()

	batch := index.NewBatch()
	for _, sess := range s.Sessions() {
		var content string
		for _, m := range sess.Messages {
			content += m.Content + "\n"
		}
		doc := map[string]interface{}{
			"session_id": sess.ID,
			"title":      sess.Title,
			"content":    content,
		}
		if err := batch.Index(sess.ID, doc); err != nil {
			return nil, fmt.Errorf("failed to index session %s: %w", sess.ID, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		return nil, fmt.Errorf("failed to build search index: %w", err)
	}

	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = k
	req.Fields = []string{"session_id", "title"}

	res, err := index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("session search failed: %w", err)
	}

	results := make([]SearchResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		r := SearchResult{SessionID: hit.ID, Score: hit.Score}
		if title, ok := hit.Fields["title"].(string); ok {
			r.Title = title
		}
		results = append(results, r)
	}
	return results, nil
}

// buildSessionMapping indexes titles and content with the standard analyzer
// and keeps the id as an unanalyzed stored field.
func buildSessionMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	sessionMapping := bleve.NewDocumentMapping()

	idField := bleve.NewTextFieldMapping()
	idField.Analyzer = keyword.Name
	idField.Store = true
	idField.Index = true
	sessionMapping.AddFieldMappingsAt("session_id", idField)

	titleField := bleve.NewTextFieldMapping()
	titleField.Analyzer = standard.Name
	titleField.Store = true
	titleField.Index = true
	sessionMapping.AddFieldMappingsAt("title", titleField)

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name
	contentField.Store = false
	contentField.Index = true
	sessionMapping.AddFieldMappingsAt("content", contentField)

	indexMapping.DefaultMapping = sessionMapping
	return indexMapping
}
