package searcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/memsearch-mcp/pkg/types"
)

// KeywordSearch scans the most recent records for case-insensitive occurrences of query.
// Results keep recency order and score the number of occurrences.
func (s *Searcher) KeywordSearch(ctx context.Context, query string, limit int) ([]types.ScoredResult, error) {
	if limit <= 0 {
		limit = s.cfg.QuickLimit
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return []types.ScoredResult{}, nil
	}

	records, err := s.recentWindow(ctx)
	if err != nil {
		return []types.ScoredResult{}, err
	}

	results := make([]types.ScoredResult, 0, limit)
	for _, rec := range records {
		hits := countHits(rec, needle)
		if hits == 0 {
			continue
		}
		results = append(results, types.NewScoredResult(rec, float64(hits), types.MatchKeyword, ""))
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// ExpandedSearch runs the keyword scan once per term of ([query]+terms), capped at
// DefaultMaxQueryTerms terms. Each term contributes at most perTerm results; a
// record is reported under the first term that matched it.
func (s *Searcher) ExpandedSearch(ctx context.Context, query string, terms []string, perTerm int) ([]types.ScoredResult, error) {
	if perTerm <= 0 {
		perTerm = s.cfg.PerTermLimit
	}

	all := append([]string{query}, terms...)
	if len(all) > DefaultMaxQueryTerms {
		all = all[:DefaultMaxQueryTerms]
	}

	records, err := s.recentWindow(ctx)
	if err != nil {
		return []types.ScoredResult{}, err
	}

	seen := make(map[string]bool)
	results := make([]types.ScoredResult, 0)
	for _, term := range all {
		needle := strings.ToLower(strings.TrimSpace(term))
		if needle == "" {
			continue
		}
		found := 0
		for _, rec := range records {
			if found == perTerm {
				break
			}
			hits := countHits(rec, needle)
			if hits == 0 {
				continue
			}
			// The per-term budget counts every match, including ones already claimed
			found++
			if seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true
			results = append(results, types.NewScoredResult(rec, float64(hits), types.MatchExpanded, term))
		}
	}
	return results, nil
}

func (s *Searcher) recentWindow(ctx context.Context) ([]*types.MemoryRecord, error) {
	scope := s.cfg.Scope
	records, err := s.storage.FetchRecent(ctx, s.cfg.RecentWindow, &scope)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch recent records: %w", types.ErrStorageFailure, err)
	}
	return records, nil
}

// countHits counts non-overlapping occurrences of the lowercased needle
func countHits(rec *types.MemoryRecord, needle string) int {
	return strings.Count(strings.ToLower(rec.Content), needle)
}
