package searcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/memsearch-mcp/internal/embedder"
	"github.com/dshills/memsearch-mcp/internal/storage"
	"github.com/dshills/memsearch-mcp/pkg/types"
)

// EnrichQuery appends the top expansion terms to the query before embedding
func EnrichQuery(query string, terms []string) string {
	if len(terms) > DefaultEnrichTerms {
		terms = terms[:DefaultEnrichTerms]
	}
	parts := append([]string{strings.TrimSpace(query)}, terms...)
	return strings.Join(parts, " ")
}

// SemanticSearch embeds the enriched query and ranks stored embeddings of the
// configured model by cosine similarity. Results below minSimilarity are dropped.
// An unreachable embedder yields an empty list and an error wrapping
// types.ErrServiceUnavailable.
func (s *Searcher) SemanticSearch(ctx context.Context, query string, terms []string, minSimilarity float64, limit int) ([]types.ScoredResult, error) {
	if limit <= 0 {
		limit = s.cfg.SemanticLimit
	}
	if strings.TrimSpace(query) == "" {
		return []types.ScoredResult{}, nil
	}

	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: EnrichQuery(query, terms)})
	if err != nil {
		return []types.ScoredResult{}, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	filter := &storage.EmbeddingFilter{
		RecordFilter: s.cfg.Scope,
		ModelName:    s.embedder.Model(),
		Limit:        s.cfg.SemanticScope,
	}
	similar, err := s.storage.SearchSimilar(ctx, emb.Vector, minSimilarity, limit, filter)
	if err != nil {
		return []types.ScoredResult{}, fmt.Errorf("%w: similarity search: %w", types.ErrStorageFailure, err)
	}

	results := make([]types.ScoredResult, 0, len(similar))
	for _, sr := range similar {
		results = append(results, types.NewScoredResult(sr.Record, sr.SimilarityScore, types.MatchSemantic, ""))
	}
	return results, nil
}
