package searcher

import (
	"github.com/charmbracelet/log"

	"github.com/dshills/memsearch-mcp/internal/embedder"
	"github.com/dshills/memsearch-mcp/internal/storage"
)

// Defaults for the search phases
const (
	DefaultRecentWindow   = 300
	DefaultQuickLimit     = 8
	DefaultPerTermLimit   = 4
	DefaultMaxQueryTerms  = 6
	DefaultSemanticLimit  = 5
	DefaultMinSimilarity  = 0.4
	DefaultEnrichTerms    = 3
	DefaultFileLimit      = 10
	DefaultMaxHitsPerFile = 3
	DefaultMaxFileSize    = 1 << 20 // 1 MiB
)

// DefaultFileExtensions lists the file types searched when none are given
var DefaultFileExtensions = []string{"md", "py", "txt", "json"}

// Config tunes the search phases
type Config struct {
	RecentWindow   int                 // Records scanned by the lexical phases
	QuickLimit     int                 // Keyword results returned by quick searches
	PerTermLimit   int                 // Expanded results per term
	SemanticLimit  int                 // Semantic results returned
	MinSimilarity  float64             // Semantic cut-off
	SemanticScope  int                 // Most recent embeddings compared; 0 means all
	FileLimit      int                 // Total file hits
	MaxHitsPerFile int                 // File hits taken from one file
	MaxFileSize    int64               // Larger files are skipped
	FileExtensions []string            // Extension allowlist, leading dots optional
	BasePath       string              // Root of the file phase
	Scope          storage.RecordFilter // Caller scope applied to every record query
}

// DefaultConfig returns the standard phase settings
func DefaultConfig() Config {
	return Config{
		RecentWindow:   DefaultRecentWindow,
		QuickLimit:     DefaultQuickLimit,
		PerTermLimit:   DefaultPerTermLimit,
		SemanticLimit:  DefaultSemanticLimit,
		MinSimilarity:  DefaultMinSimilarity,
		FileLimit:      DefaultFileLimit,
		MaxHitsPerFile: DefaultMaxHitsPerFile,
		MaxFileSize:    DefaultMaxFileSize,
		FileExtensions: DefaultFileExtensions,
	}
}

// withDefaults fills zero values so a partially populated Config is usable
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RecentWindow <= 0 {
		c.RecentWindow = d.RecentWindow
	}
	if c.QuickLimit <= 0 {
		c.QuickLimit = d.QuickLimit
	}
	if c.PerTermLimit <= 0 {
		c.PerTermLimit = d.PerTermLimit
	}
	if c.SemanticLimit <= 0 {
		c.SemanticLimit = d.SemanticLimit
	}
	if c.MinSimilarity == 0 {
		c.MinSimilarity = d.MinSimilarity
	}
	if c.FileLimit <= 0 {
		c.FileLimit = d.FileLimit
	}
	if c.MaxHitsPerFile <= 0 {
		c.MaxHitsPerFile = d.MaxHitsPerFile
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = d.MaxFileSize
	}
	if len(c.FileExtensions) == 0 {
		c.FileExtensions = d.FileExtensions
	}
	return c
}

// Searcher runs the individual search phases against the record store,
// the embedder and the file system. It holds no per-search state.
type Searcher struct {
	storage  storage.Storage
	embedder embedder.Embedder
	cfg      Config
	logger   *log.Logger
}

// NewSearcher creates a new Searcher instance
func NewSearcher(store storage.Storage, emb embedder.Embedder, cfg Config, logger *log.Logger) *Searcher {
	if emb == nil {
		emb = embedder.DisabledProvider{}
	}
	return &Searcher{
		storage:  store,
		embedder: emb,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// Config returns the effective phase settings
func (s *Searcher) Config() Config {
	return s.cfg
}
