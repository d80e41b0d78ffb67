package orchestrator

import (
	"context"
	"time"

	"github.com/dshills/memsearch-mcp/internal/expander"
	"github.com/dshills/memsearch-mcp/pkg/types"
)

// Phase names
const (
	PhaseKeyword  = "keyword"
	PhaseExpanded = "expanded"
	PhaseSemantic = "semantic"
	PhaseFile     = "file"
)

// Status tags the outcome of one phase
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Output is what a phase produced
type Output struct {
	Records       []types.ScoredResult
	Files         []types.FileMatch
	FilesSearched int
	Truncated     bool
}

// RunFunc executes one phase of a sweep
type RunFunc func(ctx context.Context, sw *Sweep) (Output, error)

// Phase describes one step of a comprehensive search. A phase with a non-zero
// DeadlineFraction is skipped when the sweep has used more than that fraction of
// its budget; otherwise it always runs.
type Phase struct {
	Name             string
	DeadlineFraction float64
	Timeout          time.Duration
	Enabled          func(req Request) bool
	Run              RunFunc
}

// PhaseResult is the tagged outcome of one phase
type PhaseResult struct {
	Name     string
	Status   Status
	Reason   string
	Duration time.Duration
	Records  []types.ScoredResult // Results accepted by the session after dedup
	Files    []types.FileMatch
	Count    int
}

// Request parameterizes a comprehensive search
type Request struct {
	Query        string
	MaxTime      time.Duration
	IncludeFiles bool
	FileTypes    []string
	BasePath     string
}

// Sweep is the state shared by the phases of one comprehensive search
type Sweep struct {
	Request   Request
	SessionID string
	Expansion expander.Expansion

	lexical       map[string]float64
	semantic      map[string]float64
	filesSearched int
}

func newSweep(req Request, sessionID string) *Sweep {
	return &Sweep{
		Request:   req,
		SessionID: sessionID,
		lexical:   make(map[string]float64),
		semantic:  make(map[string]float64),
	}
}

// record keeps the best lexical and semantic score seen for each record,
// including hits later dropped by session dedup
func (sw *Sweep) record(results []types.ScoredResult) {
	for _, r := range results {
		switch r.MatchType {
		case types.MatchSemantic:
			if r.RelevanceScore > sw.semantic[r.MemoryID] {
				sw.semantic[r.MemoryID] = r.RelevanceScore
			}
		default:
			if r.RelevanceScore > sw.lexical[r.MemoryID] {
				sw.lexical[r.MemoryID] = r.RelevanceScore
			}
		}
	}
}

func (sw *Sweep) hybrid(id string) float64 {
	return types.HybridScore(sw.lexical[id], sw.semantic[id])
}
