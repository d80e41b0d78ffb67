package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/dshills/memsearch-mcp/internal/expander"
	"github.com/dshills/memsearch-mcp/internal/session"
	"github.com/dshills/memsearch-mcp/pkg/types"
)

// QuickResult is the outcome of a keyword-only search
type QuickResult struct {
	SearchID string
	Query    string
	Results  []types.ScoredResult
	Duration time.Duration
}

// Quick runs the keyword phase in a new session
func (o *Orchestrator) Quick(ctx context.Context, query string, limit int) (*QuickResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	start := o.now()

	id := o.sessions.Create(query)
	results, err := o.keyword(ctx, id, query, limit)
	if err != nil {
		return nil, err
	}
	return &QuickResult{
		SearchID: id,
		Query:    query,
		Results:  results,
		Duration: o.now().Sub(start),
	}, nil
}

// DeepResult is the outcome of the expanded and semantic phases
type DeepResult struct {
	SearchID        string
	Query           string
	ExpandedTerms   []string
	ExpansionSource string
	Expanded        []types.ScoredResult
	Semantic        []types.ScoredResult
	Errors          map[string]string
	Duration        time.Duration
}

// TotalNew counts results added to the session by this call
func (r *DeepResult) TotalNew() int {
	return len(r.Expanded) + len(r.Semantic)
}

// Deep continues a session with the expanded and semantic phases. Without a
// searchID a new session is created and seeded with a keyword phase, so that
// results already reported by keyword search are not repeated.
func (o *Orchestrator) Deep(ctx context.Context, searchID, query string) (*DeepResult, error) {
	start := o.now()

	sess, created, err := o.resolve(searchID, query)
	if err != nil {
		return nil, err
	}
	query = sess.OriginalQuery

	res := &DeepResult{
		SearchID: sess.ID,
		Query:    query,
		Errors:   make(map[string]string),
	}
	if created || !sess.HasPhase(PhaseKeyword) {
		if _, err := o.keyword(ctx, sess.ID, query, 0); err != nil {
			if errors.Is(err, types.ErrSessionNotFound) {
				return nil, err
			}
			res.Errors[PhaseKeyword] = err.Error()
			o.logger.Warn("keyword seed failed", "search_id", sess.ID, "error", err)
		}
	}

	expCtx, cancel := context.WithTimeout(ctx, o.cfg.ExpandedTimeout)
	expansion := o.expand(expCtx, query)
	cancel()
	res.ExpandedTerms = expansion.Terms
	res.ExpansionSource = string(expansion.Source)
	if expansion.Source == expander.SourceFallback && expansion.Reason != "" {
		res.Errors["expansion"] = expansion.Reason
	}
	if err := o.sessions.SetExpandedTerms(sess.ID, expansion.Terms, res.ExpansionSource); err != nil {
		return nil, err
	}

	cfg := o.searcher.Config()

	expCtx, cancel = context.WithTimeout(ctx, o.cfg.ExpandedTimeout)
	expanded, err := o.searcher.ExpandedSearch(expCtx, query, expansion.Terms, cfg.PerTermLimit)
	cancel()
	if err != nil {
		res.Errors[PhaseExpanded] = err.Error()
		o.logger.Warn("expanded search failed", "search_id", sess.ID, "error", err)
	} else if res.Expanded, err = o.sessions.Merge(sess.ID, PhaseExpanded, expanded); err != nil {
		return nil, err
	}

	semCtx, cancel := context.WithTimeout(ctx, o.cfg.SemanticTimeout)
	semantic, err := o.searcher.SemanticSearch(semCtx, query, expansion.Terms, cfg.MinSimilarity, cfg.SemanticLimit)
	cancel()
	if err != nil {
		res.Errors[PhaseSemantic] = err.Error()
		o.logger.Warn("semantic search degraded", "search_id", sess.ID, "error", err)
	} else if res.Semantic, err = o.sessions.Merge(sess.ID, PhaseSemantic, semantic); err != nil {
		return nil, err
	}

	if res.Expanded == nil {
		res.Expanded = []types.ScoredResult{}
	}
	if res.Semantic == nil {
		res.Semantic = []types.ScoredResult{}
	}
	res.Duration = o.now().Sub(start)
	return res, nil
}

// FilesRequest parameterizes a file search
type FilesRequest struct {
	SearchID  string
	Query     string
	FileTypes []string
	BasePath  string
	Limit     int
}

// FilesResult is the outcome of the file phase
type FilesResult struct {
	SearchID      string
	Query         string
	Matches       []types.FileMatch
	FilesSearched int
	Extensions    []string
	BasePath      string
	Truncated     bool
	Errors        map[string]string // Reason the file phase degraded, keyed by phase
	Duration      time.Duration
}

// Files runs the file phase for an existing or new session. A base path that
// cannot be walked degrades to an empty result with the reason in Errors; only
// session resolution errors are returned.
func (o *Orchestrator) Files(ctx context.Context, req FilesRequest) (*FilesResult, error) {
	start := o.now()

	sess, _, err := o.resolve(req.SearchID, req.Query)
	if err != nil {
		return nil, err
	}

	fileCtx, cancel := context.WithTimeout(ctx, o.cfg.FileTimeout)
	found, err := o.searcher.FileSearch(fileCtx, sess.OriginalQuery, req.FileTypes, req.BasePath, req.Limit)
	cancel()

	res := &FilesResult{
		SearchID: sess.ID,
		Query:    sess.OriginalQuery,
		Matches:  []types.FileMatch{},
		Errors:   make(map[string]string),
	}
	if found != nil {
		res.Extensions = found.Extensions
		res.BasePath = found.BasePath
	}
	if err != nil {
		o.logger.Warn("file search degraded", "search_id", sess.ID, "error", err)
		res.Errors[PhaseFile] = err.Error()
		res.Duration = o.now().Sub(start)
		return res, nil
	}

	res.Matches, err = o.sessions.MergeFiles(sess.ID, found.Matches)
	if err != nil {
		return nil, err
	}
	res.FilesSearched = found.FilesSearched
	res.Truncated = found.Truncated
	res.Duration = o.now().Sub(start)
	return res, nil
}

// resolve loads the session for searchID or starts one for query. An unknown
// searchID falls back to a new session when a query is given.
func (o *Orchestrator) resolve(searchID, query string) (*session.Session, bool, error) {
	query = strings.TrimSpace(query)
	if searchID != "" {
		sess, err := o.sessions.Get(searchID)
		if err == nil {
			return sess, false, nil
		}
		if !errors.Is(err, types.ErrSessionNotFound) || query == "" {
			return nil, false, err
		}
		o.logger.Info("unknown search id, starting new session", "search_id", searchID)
	}
	if query == "" {
		return nil, false, ErrEmptyQuery
	}

	sess, err := o.sessions.Get(o.sessions.Create(query))
	if err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

// keyword runs the keyword phase and merges it into the session
func (o *Orchestrator) keyword(ctx context.Context, id, query string, limit int) ([]types.ScoredResult, error) {
	kwCtx, cancel := context.WithTimeout(ctx, o.cfg.KeywordTimeout)
	defer cancel()

	results, err := o.searcher.KeywordSearch(kwCtx, query, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "keyword search failed", goerr.V("search_id", id))
	}
	return o.sessions.Merge(id, PhaseKeyword, results)
}
