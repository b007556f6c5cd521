package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/andrew/rag-vault/pkg/models"
	"github.com/andrew/rag-vault/pkg/vector"
)

// DefaultContextPrompt wraps retrieved excerpts for an LLM prompt. %s receives the excerpts.
const DefaultContextPrompt = "Answer using only the sources below. Cite the SOURCE of each fact.\n\n%s"

// Embedder encodes query text
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher runs similarity queries against a collection
type Searcher interface {
	Search(ctx context.Context, collection string, q vector.Query) ([]models.SearchResult, error)
}

// Config contains configuration for a retrieval service
type Config struct {
	// Collection is the collection searched
	Collection string

	// VectorName selects a named slot; empty for single-vector collections
	VectorName string

	// MaxResults is the maximum number of results to return
	MaxResults int

	// ScoreThreshold is the minimum similarity score for results, zero for none
	ScoreThreshold float32

	// Offset skips that many of the best results
	Offset uint64

	// ContextPrompt is the template for formatting retrieved context
	ContextPrompt string
}

// Service provides functionality for retrieving relevant documents
type Service struct {
	embedder Embedder
	searcher Searcher
	config   Config
}

// NewService creates a retrieval service
func NewService(embedder Embedder, searcher Searcher, config Config) *Service {
	if config.MaxResults <= 0 {
		config.MaxResults = 5
	}
	if config.ContextPrompt == "" {
		config.ContextPrompt = DefaultContextPrompt
	}
	return &Service{embedder: embedder, searcher: searcher, config: config}
}

// SearchByText retrieves documents similar to the provided text query
func (s *Service) SearchByText(ctx context.Context, query string, limit int, filter *qdrant.Filter) ([]models.SearchResult, error) {
	vecs, err := s.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	return s.SearchByVector(ctx, vecs[0], limit, filter)
}

// SearchByVector retrieves documents similar to the provided vector
func (s *Service) SearchByVector(ctx context.Context, vec []float32, limit int, filter *qdrant.Filter) ([]models.SearchResult, error) {
	if limit <= 0 {
		limit = s.config.MaxResults
	}
	q := vector.Query{
		Vector:      vec,
		VectorName:  s.config.VectorName,
		Limit:       uint64(limit),
		Filter:      filter,
		Offset:      s.config.Offset,
		WithPayload: true,
	}
	if s.config.ScoreThreshold > 0 {
		threshold := s.config.ScoreThreshold
		q.ScoreThreshold = &threshold
	}
	return s.searcher.Search(ctx, s.config.Collection, q)
}

// GetRetrievalContext generates a context string from search results for augmenting LLM prompts
func (s *Service) GetRetrievalContext(results []models.SearchResult) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	for _, r := range results {
		source := r.Source()
		if source == "" {
			source = r.ID
		}
		fmt.Fprintf(&b, "# SOURCE: %s (score %.3f)\n%s\n\n", source, r.Score, strings.TrimSpace(r.Text()))
	}
	return fmt.Sprintf(s.config.ContextPrompt, strings.TrimRight(b.String(), "\n"))
}
