package memory

import (
	"fmt"
	"log"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Hit is one recall match.
type Hit struct {
	EpisodeID string
	Score     float64
}

// Index is the keyword index over episode text. Recall is BM25 scoring
// only; there is no embedding similarity here.
type Index struct {
	index bleve.Index
	path  string
}

// NewIndex creates or opens the episode index. A corrupted index is
// deleted and rebuilt empty; the SQLite store stays authoritative.
func NewIndex(indexPath string) (*Index, error) {
	index, err := bleve.Open(indexPath)
	if err == bleve.ErrorIndexPathDoesNotExist {
		index, err = bleve.New(indexPath, buildEpisodeMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create episode index: %w", err)
		}
	} else if err != nil {
		log.Printf("⚠️  episode index appears corrupted (error: %v), recreating...", err)
		if index != nil {
			index.Close()
		}
		if err := os.RemoveAll(indexPath); err != nil {
			return nil, fmt.Errorf("failed to remove corrupted index: %w", err)
		}
		index, err = bleve.New(indexPath, buildEpisodeMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to recreate episode index: %w", err)
		}
	}

	return &Index{index: index, path: indexPath}, nil
}

func buildEpisodeMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	episodeMapping := bleve.NewDocumentMapping()

	kindField := bleve.NewTextFieldMapping()
	kindField.Analyzer = keyword.Name
	kindField.Store = true
	kindField.Index = true
	episodeMapping.AddFieldMappingsAt("kind", kindField)

	outcomeField := bleve.NewTextFieldMapping()
	outcomeField.Analyzer = keyword.Name
	outcomeField.Store = true
	outcomeField.Index = true
	episodeMapping.AddFieldMappingsAt("outcome", outcomeField)

	descriptionField := bleve.NewTextFieldMapping()
	descriptionField.Analyzer = standard.Name
	descriptionField.Store = false
	descriptionField.Index = true
	episodeMapping.AddFieldMappingsAt("description", descriptionField)

	summaryField := bleve.NewTextFieldMapping()
	summaryField.Analyzer = standard.Name
	summaryField.Store = false
	summaryField.Index = true
	episodeMapping.AddFieldMappingsAt("summary", summaryField)

	indexMapping.DefaultMapping = episodeMapping
	return indexMapping
}

// IndexEpisode adds an episode to the index, keyed by episode ID.
func (i *Index) IndexEpisode(e Episode) error {
	doc := map[string]interface{}{
		"kind":        e.Kind,
		"outcome":     e.Outcome,
		"description": e.Description,
		"summary":     e.Summary,
	}
	return i.index.Index(e.ID, doc)
}

// Search returns the top k episodes matching the query text, optionally
// restricted to a task kind.
func (i *Index) Search(query, kind string, k int) ([]Hit, error) {
	matchQuery := bleve.NewMatchQuery(query)

	var searchRequest *bleve.SearchRequest
	if kind != "" {
		kindQuery := bleve.NewTermQuery(kind)
		kindQuery.SetField("kind")
		searchRequest = bleve.NewSearchRequest(bleve.NewConjunctionQuery(matchQuery, kindQuery))
	} else {
		searchRequest = bleve.NewSearchRequest(matchQuery)
	}
	searchRequest.Size = k

	searchResult, err := i.index.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("episode search failed: %w", err)
	}

	hits := make([]Hit, 0, len(searchResult.Hits))
	for _, hit := range searchResult.Hits {
		hits = append(hits, Hit{EpisodeID: hit.ID, Score: hit.Score})
	}
	return hits, nil
}

func (i *Index) Close() error {
	return i.index.Close()
}
