package searcher

import (
	"context"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/memsearch-mcp/internal/storage"
)

// checkTimeout bounds each capability check
const checkTimeout = 5 * time.Second

// ExpansionChecker reports query expansion availability
type ExpansionChecker interface {
	Check(ctx context.Context) bool
	Available() bool
	Model() string
}

// Capabilities reports which phases can currently produce results
type Capabilities struct {
	KeywordSearch  bool `json:"keyword_search"`
	LLMExpansion   bool `json:"llm_expansion"`
	SemanticSearch bool `json:"semantic_search"`
	FileSearch     bool `json:"file_search"`
}

// Status is a point-in-time capability and coverage report
type Status struct {
	Capabilities      Capabilities
	Stats             *storage.Stats
	EmbeddingProvider string
	EmbeddingModel    string
	EmbedderReachable bool
	GenerationModel   string
	BasePath          string
	DatabaseError     error
}

// Status checks every dependency concurrently. With refresh set the expansion
// service is re-checked; otherwise its last known state is reported.
func (s *Searcher) Status(ctx context.Context, exp ExpansionChecker, refresh bool) (*Status, error) {
	status := &Status{
		EmbeddingProvider: s.embedder.Provider(),
		EmbeddingModel:    s.embedder.Model(),
		BasePath:          s.cfg.BasePath,
	}
	status.Capabilities.KeywordSearch = true

	var g errgroup.Group

	if exp != nil {
		status.GenerationModel = exp.Model()
		g.Go(func() error {
			if refresh {
				checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
				defer cancel()
				status.Capabilities.LLMExpansion = exp.Check(checkCtx)
			} else {
				status.Capabilities.LLMExpansion = exp.Available()
			}
			return nil
		})
	}

	g.Go(func() error {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		status.EmbedderReachable = s.embedder.Ping(checkCtx) == nil
		return nil
	})

	g.Go(func() error {
		scope := s.cfg.Scope
		stats, err := s.storage.Stats(ctx, s.embedder.Model(), &scope)
		if err != nil {
			s.logger.Warn("failed to read store stats", "error", err)
			status.DatabaseError = err
			return nil
		}
		status.Stats = stats
		return nil
	})

	g.Go(func() error {
		if s.cfg.BasePath == "" {
			return nil
		}
		info, err := os.Stat(s.cfg.BasePath)
		status.Capabilities.FileSearch = err == nil && info.IsDir()
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	status.Capabilities.SemanticSearch = status.EmbedderReachable &&
		status.Stats != nil && status.Stats.EmbeddedMemories > 0
	return status, nil
}
