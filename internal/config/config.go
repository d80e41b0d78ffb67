package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/memsearch-mcp/internal/embedder"
	"github.com/dshills/memsearch-mcp/internal/expander"
	"github.com/dshills/memsearch-mcp/internal/orchestrator"
	"github.com/dshills/memsearch-mcp/internal/searcher"
	"github.com/dshills/memsearch-mcp/internal/session"
	"github.com/dshills/memsearch-mcp/internal/storage"
)

// DefaultPath is the config file read when none is given
const DefaultPath = "~/.memsearch/config.yaml"

// Config contains runtime configuration for memsearch-mcp.
type Config struct {
	ServerName   string `yaml:"server_name"`
	DatabasePath string `yaml:"database_path"`
	BasePath     string `yaml:"base_path"`
	ActorID      string `yaml:"actor_id"`
	LogLevel     string `yaml:"log_level"`
	LogFile      string `yaml:"log_file"`

	Embedding EmbeddingConfig `yaml:"embedding"`
	Expansion ExpansionConfig `yaml:"expansion"`
	Search    SearchConfig    `yaml:"search"`
	Session   SessionConfig   `yaml:"session"`
}

// EmbeddingConfig selects the embedding provider
type EmbeddingConfig struct {
	Provider        string        `yaml:"provider"`
	BaseURL         string        `yaml:"base_url"`
	Model           string        `yaml:"model"`
	APIKey          string        `yaml:"api_key"`
	Dimension       int           `yaml:"dimension"`
	CacheSize       int           `yaml:"cache_size"`
	Timeout         time.Duration `yaml:"timeout"`
	Workers         int           `yaml:"workers"`
	BackfillOnStart bool          `yaml:"backfill_on_start"`
}

// ExpansionConfig selects the text-generation service used for query expansion
type ExpansionConfig struct {
	Provider string        `yaml:"provider"`
	BaseURL  string        `yaml:"base_url"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SearchConfig tunes the search phases and the comprehensive budget
type SearchConfig struct {
	RecentWindow     int           `yaml:"recent_window"`
	QuickLimit       int           `yaml:"quick_limit"`
	PerTermLimit     int           `yaml:"per_term_limit"`
	SemanticLimit    int           `yaml:"semantic_limit"`
	MinSimilarity    float64       `yaml:"min_similarity"`
	SemanticScope    int           `yaml:"semantic_scope"`
	FileLimit        int           `yaml:"file_limit"`
	MaxHitsPerFile   int           `yaml:"max_hits_per_file"`
	MaxFileSize      int64         `yaml:"max_file_size"`
	FileExtensions   []string      `yaml:"file_extensions"`
	MaxTime          time.Duration `yaml:"max_time"`
	ExpandedFraction float64       `yaml:"expanded_fraction"`
	SemanticFraction float64       `yaml:"semantic_fraction"`
	FileFraction     float64       `yaml:"file_fraction"`
}

// SessionConfig controls session eviction
type SessionConfig struct {
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// Default returns a Config populated with safe defaults.
func Default() Config {
	return Config{
		ServerName:   "memsearch-mcp",
		DatabasePath: filepath.Join(userHomeDir(), ".memsearch", "memories.db"),
		BasePath:     userHomeDir(),
		LogLevel:     "info",
		Embedding: EmbeddingConfig{
			Provider:  embedder.ProviderOllama,
			BaseURL:   embedder.DefaultOllamaURL,
			Model:     embedder.DefaultOllamaModel,
			Dimension: embedder.LocalDimension,
			CacheSize: 1000,
			Timeout:   embedder.DefaultTimeout,
		},
		Expansion: ExpansionConfig{
			Provider: expander.ProviderOllama,
			BaseURL:  expander.DefaultOllamaURL,
			Model:    expander.DefaultOllamaModel,
			Timeout:  expander.DefaultTimeout,
		},
		Search: SearchConfig{
			RecentWindow:     searcher.DefaultRecentWindow,
			QuickLimit:       searcher.DefaultQuickLimit,
			PerTermLimit:     searcher.DefaultPerTermLimit,
			SemanticLimit:    searcher.DefaultSemanticLimit,
			MinSimilarity:    searcher.DefaultMinSimilarity,
			FileLimit:        searcher.DefaultFileLimit,
			MaxHitsPerFile:   searcher.DefaultMaxHitsPerFile,
			MaxFileSize:      searcher.DefaultMaxFileSize,
			FileExtensions:   append([]string(nil), searcher.DefaultFileExtensions...),
			MaxTime:          orchestrator.DefaultMaxTime,
			ExpandedFraction: orchestrator.DefaultExpandedFraction,
			SemanticFraction: orchestrator.DefaultSemanticFraction,
			FileFraction:     orchestrator.DefaultFileFraction,
		},
		Session: SessionConfig{
			IdleTimeout:     session.DefaultIdleTimeout,
			CleanupInterval: session.DefaultCleanupInterval,
		},
	}
}

// Load loads config from disk; if path does not exist, default config is returned.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks configuration sanity.
func (c *Config) Validate() error {
	if c.ServerName == "" {
		return errors.New("server_name must not be empty")
	}
	if c.DatabasePath == "" {
		return errors.New("database_path must not be empty")
	}
	switch strings.ToLower(c.Embedding.Provider) {
	case embedder.ProviderOllama, embedder.ProviderOpenAI, embedder.ProviderLocal, embedder.ProviderNone, "":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	switch strings.ToLower(c.Expansion.Provider) {
	case expander.ProviderOllama, expander.ProviderOpenAI, expander.ProviderNone, "":
	default:
		return fmt.Errorf("unknown expansion provider %q", c.Expansion.Provider)
	}

	s := c.Search
	for name, v := range map[string]int{
		"recent_window":     s.RecentWindow,
		"quick_limit":       s.QuickLimit,
		"per_term_limit":    s.PerTermLimit,
		"semantic_limit":    s.SemanticLimit,
		"file_limit":        s.FileLimit,
		"max_hits_per_file": s.MaxHitsPerFile,
	} {
		if v <= 0 {
			return fmt.Errorf("search.%s must be > 0", name)
		}
	}
	if s.SemanticScope < 0 {
		return errors.New("search.semantic_scope must be >= 0")
	}
	if s.MaxFileSize <= 0 {
		return errors.New("search.max_file_size must be > 0")
	}
	if s.MinSimilarity < -1 || s.MinSimilarity > 1 {
		return errors.New("search.min_similarity must be within [-1, 1]")
	}
	if s.MaxTime <= 0 {
		return errors.New("search.max_time must be > 0")
	}
	for name, f := range map[string]float64{
		"expanded_fraction": s.ExpandedFraction,
		"semantic_fraction": s.SemanticFraction,
	} {
		if f <= 0 || f > 1 {
			return fmt.Errorf("search.%s must be within (0, 1]", name)
		}
	}
	if s.FileFraction < orchestrator.MinFileFraction || s.FileFraction > orchestrator.MaxFileFraction {
		return fmt.Errorf("search.file_fraction must be within [%.1f, %.1f]", orchestrator.MinFileFraction, orchestrator.MaxFileFraction)
	}
	if c.Session.IdleTimeout <= 0 {
		return errors.New("session.idle_timeout must be > 0")
	}
	return nil
}

// EnsurePaths expands "~" in config-managed paths and creates the database directory.
func (c *Config) EnsurePaths() error {
	c.DatabasePath = ExpandPath(c.DatabasePath)
	c.BasePath = ExpandPath(c.BasePath)
	c.LogFile = ExpandPath(c.LogFile)

	parent := filepath.Dir(c.DatabasePath)
	if parent == "." {
		return nil
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create database parent dir: %w", err)
	}
	return nil
}

// Scope returns the record filter applied to every search
func (c *Config) Scope() storage.RecordFilter {
	return storage.RecordFilter{AuthorID: c.ActorID}
}

// SearcherConfig converts the search settings for the searcher package
func (c *Config) SearcherConfig() searcher.Config {
	return searcher.Config{
		RecentWindow:   c.Search.RecentWindow,
		QuickLimit:     c.Search.QuickLimit,
		PerTermLimit:   c.Search.PerTermLimit,
		SemanticLimit:  c.Search.SemanticLimit,
		MinSimilarity:  c.Search.MinSimilarity,
		SemanticScope:  c.Search.SemanticScope,
		FileLimit:      c.Search.FileLimit,
		MaxHitsPerFile: c.Search.MaxHitsPerFile,
		MaxFileSize:    c.Search.MaxFileSize,
		FileExtensions: c.Search.FileExtensions,
		BasePath:       c.BasePath,
		Scope:          c.Scope(),
	}
}

// OrchestratorConfig converts the budget settings for the orchestrator package
func (c *Config) OrchestratorConfig() orchestrator.Config {
	cfg := orchestrator.DefaultConfig()
	cfg.MaxTime = c.Search.MaxTime
	cfg.ExpandedFraction = c.Search.ExpandedFraction
	cfg.SemanticFraction = c.Search.SemanticFraction
	cfg.FileFraction = c.Search.FileFraction
	if c.Expansion.Timeout > 0 {
		cfg.ExpandedTimeout = c.Expansion.Timeout
	}
	return cfg
}

// EmbedderConfig converts the embedding settings for the embedder factory
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:  c.Embedding.Provider,
		BaseURL:   c.Embedding.BaseURL,
		Model:     c.Embedding.Model,
		APIKey:    c.Embedding.APIKey,
		Dimension: c.Embedding.Dimension,
		CacheSize: c.Embedding.CacheSize,
		Timeout:   c.Embedding.Timeout,
	}
}

// GeneratorConfig converts the expansion settings for the generator factory
func (c *Config) GeneratorConfig() expander.GeneratorConfig {
	return expander.GeneratorConfig{
		Provider: c.Expansion.Provider,
		BaseURL:  c.Expansion.BaseURL,
		Model:    c.Expansion.Model,
		APIKey:   c.Expansion.APIKey,
		Timeout:  c.Expansion.Timeout,
	}
}

// ExpandPath expands "~/" to the current user's home directory.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p == "~" {
		return userHomeDir()
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(userHomeDir(), p[2:])
	}
	return p
}

func userHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
