package expander

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-mizutani/goerr/v2"

	"github.com/dshills/memsearch-mcp/pkg/types"
)

// Source identifies where expansion terms came from
type Source string

const (
	SourceLLM      Source = "llm"
	SourceFallback Source = "fallback"
)

// Expansion is the outcome of expanding one query. Terms are always usable;
// Err records why the fallback was used, if it was.
type Expansion struct {
	Terms  []string `json:"terms"`
	Source Source   `json:"source"`
	Reason string   `json:"reason,omitempty"`
	Err    error    `json:"-"`
}

// DefaultTimeout bounds a single generation request
const DefaultTimeout = 10 * time.Second

// Expander turns a query into related search terms using a text-generation service,
// falling back to deterministic variants whenever the service cannot help.
type Expander struct {
	gen       Generator
	logger    *log.Logger
	timeout   time.Duration
	available atomic.Bool
}

// Option configures an Expander
type Option func(*Expander)

// WithTimeout overrides the per-request generation timeout
func WithTimeout(d time.Duration) Option {
	return func(e *Expander) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// New creates an expander. It starts out unavailable until Check succeeds.
func New(gen Generator, logger *log.Logger, opts ...Option) *Expander {
	e := &Expander{
		gen:     gen,
		logger:  logger,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Check contacts the generation service once and records the result
func (e *Expander) Check(ctx context.Context) bool {
	err := e.gen.Ping(ctx)
	e.available.Store(err == nil)
	if err != nil {
		e.logger.Warn("query expansion unavailable, using fallback terms", "model", e.gen.Model(), "error", err)
	} else {
		e.logger.Debug("query expansion available", "model", e.gen.Model())
	}
	return err == nil
}

// Available reports the last known state of the generation service
func (e *Expander) Available() bool {
	return e.available.Load()
}

// Model returns the generation model name
func (e *Expander) Model() string {
	return e.gen.Model()
}

// Expand returns up to MaxTerms related terms for query. It never fails: when the
// service is unavailable or its response cannot be parsed the fallback terms are returned.
func (e *Expander) Expand(ctx context.Context, query string) Expansion {
	if !e.available.Load() {
		return e.fallback(query, "expansion service unavailable",
			goerr.Wrap(types.ErrServiceUnavailable, "expansion skipped", goerr.V("model", e.gen.Model())))
	}

	genCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	response, err := e.gen.Generate(genCtx, buildPrompt(query))
	if err != nil {
		// Timeouts mean a slow model, not a missing one
		if errors.Is(err, types.ErrServiceUnavailable) && genCtx.Err() == nil {
			e.available.Store(false)
		}
		e.logger.Warn("query expansion failed", "query", query, "error", err)
		return e.fallback(query, "expansion request failed",
			goerr.Wrap(err, "generate expansion", goerr.V("query", query)))
	}

	terms, err := ParseTerms(response, query)
	if err != nil {
		e.logger.Warn("expansion degraded", "reason", "parse failure", "query", query, "error", err)
		return e.fallback(query, "model response could not be parsed", err)
	}

	return Expansion{Terms: terms, Source: SourceLLM}
}

func (e *Expander) fallback(query, reason string, err error) Expansion {
	return Expansion{
		Terms:  FallbackTerms(query),
		Source: SourceFallback,
		Reason: reason,
		Err:    err,
	}
}
