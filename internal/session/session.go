package session

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/patrickmn/go-cache"

	"github.com/dshills/memsearch-mcp/pkg/types"
)

// Defaults for the session cache
const (
	DefaultIdleTimeout     = 30 * time.Minute
	DefaultCleanupInterval = 5 * time.Minute
)

// PhaseFile is the phase name under which file hits are stored
const PhaseFile = "file"

// State is the lifecycle position of a session. Expired sessions are gone from
// the cache, so Get never returns one.
type State string

const (
	StateCreated  State = "created"
	StateExtended State = "extended"
)

// Session is a snapshot of a progressive search. Callers receive copies; the
// cache owns the live value.
type Session struct {
	ID              string
	OriginalQuery   string
	CreatedAt       time.Time
	LastAccess      time.Time
	ExpandedTerms   []string
	ExpansionSource string
	PhasesCompleted []string
	Results         map[string][]types.ScoredResult
	Files           []types.FileMatch
}

// State reports whether any phase has run yet
func (s *Session) State() State {
	if len(s.PhasesCompleted) == 0 {
		return StateCreated
	}
	return StateExtended
}

// HasPhase reports whether phase has been merged into the session
func (s *Session) HasPhase(phase string) bool {
	for _, p := range s.PhasesCompleted {
		if p == phase {
			return true
		}
	}
	return false
}

// All returns the scored results of every phase in completion order
func (s *Session) All() []types.ScoredResult {
	var out []types.ScoredResult
	for _, p := range s.PhasesCompleted {
		out = append(out, s.Results[p]...)
	}
	return out
}

func (s *Session) clone() *Session {
	c := *s
	c.ExpandedTerms = append([]string(nil), s.ExpandedTerms...)
	c.PhasesCompleted = append([]string(nil), s.PhasesCompleted...)
	c.Files = append([]types.FileMatch(nil), s.Files...)
	c.Results = make(map[string][]types.ScoredResult, len(s.Results))
	for k, v := range s.Results {
		c.Results[k] = append([]types.ScoredResult(nil), v...)
	}
	return &c
}

// Cache holds sessions in process memory and evicts them after an idle period.
// Every operation refreshes the idle timer of the session it touches.
type Cache struct {
	mu     sync.Mutex
	items  *cache.Cache
	logger *log.Logger
	now    func() time.Time
}

// New creates a session cache. Zero durations select the defaults.
func New(idle, cleanup time.Duration, logger *log.Logger) *Cache {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	if cleanup <= 0 {
		cleanup = DefaultCleanupInterval
	}
	items := cache.New(idle, cleanup)
	if logger != nil {
		items.OnEvicted(func(id string, _ interface{}) {
			logger.Debug("session evicted", "search_id", id)
		})
	}
	return &Cache{
		items:  items,
		logger: logger,
		now:    time.Now,
	}
}

// Create starts a new session for query and returns its id
func (c *Cache) Create(query string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UTC()
	s := &Session{
		ID:            uuid.NewString(),
		OriginalQuery: query,
		CreatedAt:     now,
		LastAccess:    now,
		Results:       make(map[string][]types.ScoredResult),
	}
	c.items.Set(s.ID, s, cache.DefaultExpiration)
	return s.ID
}

// Get returns a snapshot of the session
func (c *Cache) Get(id string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.touch(id)
	if err != nil {
		return nil, err
	}
	return s.clone(), nil
}

// Merge stores results as the list for phase and returns the results that were
// accepted. Records already present under another phase are dropped, so the
// first phase to report a record keeps it. Merging a phase that already exists
// replaces its list in place.
func (c *Cache) Merge(id, phase string, results []types.ScoredResult) ([]types.ScoredResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.touch(id)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, p := range s.PhasesCompleted {
		if p == phase {
			continue
		}
		for _, r := range s.Results[p] {
			seen[r.MemoryID] = true
		}
	}

	added := make([]types.ScoredResult, 0, len(results))
	for _, r := range results {
		if seen[r.MemoryID] {
			continue
		}
		seen[r.MemoryID] = true
		added = append(added, r)
	}

	s.Results[phase] = added
	s.markPhase(phase)
	return append([]types.ScoredResult(nil), added...), nil
}

// MergeFiles stores the file hits of the session, dropping repeated path and line pairs.
// A later file phase replaces the earlier hits.
func (c *Cache) MergeFiles(id string, matches []types.FileMatch) ([]types.FileMatch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.touch(id)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(matches))
	added := make([]types.FileMatch, 0, len(matches))
	for _, m := range matches {
		key := m.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		added = append(added, m)
	}

	s.Files = added
	s.markPhase(PhaseFile)
	return append([]types.FileMatch(nil), added...), nil
}

// SetExpandedTerms records the expansion used by the session
func (c *Cache) SetExpandedTerms(id string, terms []string, source string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.touch(id)
	if err != nil {
		return err
	}
	s.ExpandedTerms = append([]string(nil), terms...)
	s.ExpansionSource = source
	return nil
}

// Delete drops a session
func (c *Cache) Delete(id string) {
	c.items.Delete(id)
}

// Active returns the number of unexpired sessions
func (c *Cache) Active() int {
	// ItemCount would include expired sessions the janitor has not yet removed
	return len(c.items.Items())
}

// touch loads a live session and restarts its idle timer. Callers hold mu.
func (c *Cache) touch(id string) (*Session, error) {
	v, ok := c.items.Get(id)
	if !ok {
		return nil, goerr.Wrap(types.ErrSessionNotFound, "session lookup failed", goerr.V("search_id", id))
	}
	s := v.(*Session)
	s.LastAccess = c.now().UTC()
	c.items.Set(id, s, cache.DefaultExpiration)
	return s, nil
}

func (s *Session) markPhase(phase string) {
	if !s.HasPhase(phase) {
		s.PhasesCompleted = append(s.PhasesCompleted, phase)
	}
}
