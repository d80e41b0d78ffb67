package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-mizutani/goerr/v2"

	"github.com/dshills/memsearch-mcp/internal/expander"
	"github.com/dshills/memsearch-mcp/internal/searcher"
	"github.com/dshills/memsearch-mcp/internal/session"
	"github.com/dshills/memsearch-mcp/pkg/types"
)

// ErrEmptyQuery is returned when a search has neither a query nor a session to continue
var ErrEmptyQuery = errors.New("query is empty")

// Defaults for the phase budget
const (
	DefaultMaxTime              = 8 * time.Second
	DefaultExpandedFraction     = 0.4
	DefaultSemanticFraction     = 0.4
	DefaultFileFraction         = 0.8
	DefaultKeywordTimeout       = 2 * time.Second
	DefaultExpandedTimeout      = 10 * time.Second
	DefaultSemanticTimeout      = 30 * time.Second
	DefaultFileTimeout          = 5 * time.Second
	MinFileFraction             = 0.7
	MaxFileFraction             = 0.9
	defaultComprehensiveResults = 20
)

// Expander produces search terms for a query
type Expander interface {
	Expand(ctx context.Context, query string) expander.Expansion
}

// Config tunes phase budgets
type Config struct {
	MaxTime          time.Duration
	ExpandedFraction float64
	SemanticFraction float64
	FileFraction     float64
	KeywordTimeout   time.Duration
	ExpandedTimeout  time.Duration
	SemanticTimeout  time.Duration
	FileTimeout      time.Duration
	MaxResults       int // Merged results returned by a comprehensive search
}

// DefaultConfig returns the standard budget settings
func DefaultConfig() Config {
	return Config{
		MaxTime:          DefaultMaxTime,
		ExpandedFraction: DefaultExpandedFraction,
		SemanticFraction: DefaultSemanticFraction,
		FileFraction:     DefaultFileFraction,
		KeywordTimeout:   DefaultKeywordTimeout,
		ExpandedTimeout:  DefaultExpandedTimeout,
		SemanticTimeout:  DefaultSemanticTimeout,
		FileTimeout:      DefaultFileTimeout,
		MaxResults:       defaultComprehensiveResults,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxTime <= 0 {
		c.MaxTime = d.MaxTime
	}
	if c.ExpandedFraction <= 0 {
		c.ExpandedFraction = d.ExpandedFraction
	}
	if c.SemanticFraction <= 0 {
		c.SemanticFraction = d.SemanticFraction
	}
	if c.FileFraction <= 0 {
		c.FileFraction = d.FileFraction
	}
	c.FileFraction = min(max(c.FileFraction, MinFileFraction), MaxFileFraction)
	if c.KeywordTimeout <= 0 {
		c.KeywordTimeout = d.KeywordTimeout
	}
	if c.ExpandedTimeout <= 0 {
		c.ExpandedTimeout = d.ExpandedTimeout
	}
	if c.SemanticTimeout <= 0 {
		c.SemanticTimeout = d.SemanticTimeout
	}
	if c.FileTimeout <= 0 {
		c.FileTimeout = d.FileTimeout
	}
	if c.MaxResults <= 0 {
		c.MaxResults = d.MaxResults
	}
	return c
}

// Orchestrator runs search phases against a session cache
type Orchestrator struct {
	searcher *searcher.Searcher
	expander Expander
	sessions *session.Cache
	logger   *log.Logger
	cfg      Config
	phases   []Phase
	now      func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithConfig overrides the budget settings
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) {
		o.cfg = cfg.withDefaults()
	}
}

// WithPhases replaces the phase list used by Comprehensive
func WithPhases(phases []Phase) Option {
	return func(o *Orchestrator) {
		o.phases = phases
	}
}

// New creates an orchestrator. The default phase list is keyword, expanded,
// semantic and file.
func New(s *searcher.Searcher, exp Expander, sessions *session.Cache, logger *log.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		searcher: s,
		expander: exp,
		sessions: sessions,
		logger:   logger,
		cfg:      DefaultConfig(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.phases == nil {
		o.phases = o.DefaultPhases()
	}
	return o
}

// Config returns the effective budget settings
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Sessions returns the session cache
func (o *Orchestrator) Sessions() *session.Cache {
	return o.sessions
}

// DefaultPhases builds the standard phase list
func (o *Orchestrator) DefaultPhases() []Phase {
	return []Phase{
		{
			Name:    PhaseKeyword,
			Timeout: o.cfg.KeywordTimeout,
			Run: func(ctx context.Context, sw *Sweep) (Output, error) {
				recs, err := o.searcher.KeywordSearch(ctx, sw.Request.Query, o.searcher.Config().QuickLimit)
				return Output{Records: recs}, err
			},
		},
		{
			Name:             PhaseExpanded,
			DeadlineFraction: o.cfg.ExpandedFraction,
			Timeout:          o.cfg.ExpandedTimeout,
			Run: func(ctx context.Context, sw *Sweep) (Output, error) {
				sw.Expansion = o.expand(ctx, sw.Request.Query)
				if err := o.sessions.SetExpandedTerms(sw.SessionID, sw.Expansion.Terms, string(sw.Expansion.Source)); err != nil {
					return Output{}, err
				}
				recs, err := o.searcher.ExpandedSearch(ctx, sw.Request.Query, sw.Expansion.Terms, o.searcher.Config().PerTermLimit)
				return Output{Records: recs}, err
			},
		},
		{
			Name:             PhaseSemantic,
			DeadlineFraction: o.cfg.SemanticFraction,
			Timeout:          o.cfg.SemanticTimeout,
			Run: func(ctx context.Context, sw *Sweep) (Output, error) {
				cfg := o.searcher.Config()
				recs, err := o.searcher.SemanticSearch(ctx, sw.Request.Query, sw.Expansion.Terms, cfg.MinSimilarity, cfg.SemanticLimit)
				return Output{Records: recs}, err
			},
		},
		{
			Name:             PhaseFile,
			DeadlineFraction: o.cfg.FileFraction,
			Timeout:          o.cfg.FileTimeout,
			Enabled:          func(req Request) bool { return req.IncludeFiles },
			Run: func(ctx context.Context, sw *Sweep) (Output, error) {
				res, err := o.searcher.FileSearch(ctx, sw.Request.Query, sw.Request.FileTypes, sw.Request.BasePath, 0)
				if res == nil {
					return Output{}, err
				}
				return Output{Files: res.Matches, FilesSearched: res.FilesSearched, Truncated: res.Truncated}, err
			},
		},
	}
}

// Report is the envelope of a comprehensive search
type Report struct {
	SearchID        string
	Query           string
	Phases          []PhaseResult
	Results         []types.ScoredResult // Merged session results ranked by hybrid score
	Files           []types.FileMatch
	FilesSearched   int
	TotalResults    int
	TotalTime       time.Duration
	PhasesCompleted []string
	ExpandedTerms   []string
	ExpansionSource string
}

// Phase returns the result for the named phase
func (r *Report) Phase(name string) (PhaseResult, bool) {
	for _, p := range r.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return PhaseResult{}, false
}

// Comprehensive runs every enabled phase in order within req.MaxTime. Before each
// phase with a deadline fraction the elapsed time is checked and the phase is
// skipped once its share of the budget is spent. A running phase is never
// interrupted by the budget beyond its own context deadline.
func (o *Orchestrator) Comprehensive(ctx context.Context, req Request) (*Report, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}
	if req.MaxTime <= 0 {
		req.MaxTime = o.cfg.MaxTime
	}

	start := o.now()
	sw := newSweep(req, o.sessions.Create(req.Query))
	report := &Report{SearchID: sw.SessionID, Query: req.Query}

	for _, p := range o.phases {
		pr := o.runPhase(ctx, p, sw, start)
		report.Phases = append(report.Phases, pr)
		if pr.Status == StatusCompleted {
			report.PhasesCompleted = append(report.PhasesCompleted, p.Name)
		}
		o.logger.Debug("phase finished", "search_id", sw.SessionID, "phase", p.Name,
			"status", pr.Status, "count", pr.Count, "duration", pr.Duration, "reason", pr.Reason)
	}

	sess, err := o.sessions.Get(sw.SessionID)
	if err != nil {
		return nil, goerr.Wrap(err, "load session after sweep", goerr.V("search_id", sw.SessionID))
	}

	ranked := sess.All()
	for i := range ranked {
		ranked[i].HybridScore = sw.hybrid(ranked[i].MemoryID)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].HybridScore > ranked[j].HybridScore
	})
	report.TotalResults = len(ranked) + len(sess.Files)
	if len(ranked) > o.cfg.MaxResults {
		ranked = ranked[:o.cfg.MaxResults]
	}
	report.Results = ranked
	report.Files = sess.Files
	report.ExpandedTerms = sw.Expansion.Terms
	report.ExpansionSource = string(sw.Expansion.Source)
	if pr, ok := report.Phase(PhaseFile); ok && pr.Status == StatusCompleted {
		report.FilesSearched = sw.filesSearched
	}
	report.TotalTime = o.now().Sub(start)
	return report, nil
}

func (o *Orchestrator) runPhase(ctx context.Context, p Phase, sw *Sweep, start time.Time) PhaseResult {
	pr := PhaseResult{Name: p.Name}

	if p.Enabled != nil && !p.Enabled(sw.Request) {
		pr.Status = StatusSkipped
		pr.Reason = "disabled"
		return pr
	}

	budget := sw.Request.MaxTime
	elapsed := o.now().Sub(start)
	timeout := p.Timeout
	if p.DeadlineFraction > 0 {
		limit := time.Duration(float64(budget) * p.DeadlineFraction)
		if elapsed > limit {
			pr.Status = StatusSkipped
			pr.Reason = fmt.Sprintf("time budget: %.2fs elapsed exceeds %.2fs", elapsed.Seconds(), limit.Seconds())
			return pr
		}
		if remaining := budget - elapsed; timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}

	phaseCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		phaseCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	phaseStart := o.now()
	out, err := p.Run(phaseCtx, sw)
	cancel()
	pr.Duration = o.now().Sub(phaseStart)

	if err != nil {
		pr.Status = StatusFailed
		pr.Reason = err.Error()
		o.logger.Warn("phase failed", "search_id", sw.SessionID, "phase", p.Name, "error", err)
		return pr
	}

	sw.record(out.Records)
	added, err := o.sessions.Merge(sw.SessionID, p.Name, out.Records)
	if err != nil {
		pr.Status = StatusFailed
		pr.Reason = err.Error()
		return pr
	}
	pr.Records = added
	pr.Count = len(added)

	if out.Files != nil || out.FilesSearched > 0 {
		files, err := o.sessions.MergeFiles(sw.SessionID, out.Files)
		if err != nil {
			pr.Status = StatusFailed
			pr.Reason = err.Error()
			return pr
		}
		pr.Files = files
		pr.Count += len(files)
		sw.filesSearched = out.FilesSearched
	}
	if out.Truncated {
		pr.Reason = "truncated by deadline"
	}
	pr.Status = StatusCompleted
	return pr
}

func (o *Orchestrator) expand(ctx context.Context, query string) expander.Expansion {
	if o.expander == nil {
		return expander.Expansion{
			Terms:  expander.FallbackTerms(query),
			Source: expander.SourceFallback,
			Reason: "query expansion disabled",
		}
	}
	return o.expander.Expand(ctx, query)
}
