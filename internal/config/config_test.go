package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	gt.NoError(t, cfg.Validate())
	gt.Equal(t, cfg.Search.RecentWindow, 300)
	gt.Equal(t, cfg.Search.MaxTime, 8*time.Second)
	gt.Equal(t, cfg.Session.IdleTimeout, 30*time.Minute)
	gt.Equal(t, cfg.Search.FileExtensions, []string{"md", "py", "txt", "json"})
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	gt.NoError(t, err)
	gt.Equal(t, cfg.ServerName, Default().ServerName)

	cfg, err = Load("")
	gt.NoError(t, err)
	gt.Equal(t, cfg.LogLevel, "info")
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
database_path: /tmp/memsearch/test.db
actor_id: agent-7
embedding:
  provider: local
  dimension: 64
expansion:
  provider: none
search:
  quick_limit: 3
  max_time: 4s
  file_fraction: 0.75
  file_extensions: [md]
session:
  idle_timeout: 10m
`
	gt.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	gt.NoError(t, err)
	gt.Equal(t, cfg.DatabasePath, "/tmp/memsearch/test.db")
	gt.Equal(t, cfg.Embedding.Provider, "local")
	gt.Equal(t, cfg.Embedding.Dimension, 64)
	gt.Equal(t, cfg.Search.QuickLimit, 3)
	gt.Equal(t, cfg.Search.MaxTime, 4*time.Second)
	gt.Equal(t, cfg.Session.IdleTimeout, 10*time.Minute)

	// Untouched fields keep their defaults
	gt.Equal(t, cfg.Search.RecentWindow, 300)
	gt.Equal(t, cfg.ServerName, "memsearch-mcp")

	sc := cfg.SearcherConfig()
	gt.Equal(t, sc.QuickLimit, 3)
	gt.Equal(t, sc.Scope.AuthorID, "agent-7")
	gt.Equal(t, sc.FileExtensions, []string{"md"})

	oc := cfg.OrchestratorConfig()
	gt.Equal(t, oc.MaxTime, 4*time.Second)
	gt.Equal(t, oc.FileFraction, 0.75)

	gt.Equal(t, cfg.EmbedderConfig().Provider, "local")
	gt.Equal(t, cfg.GeneratorConfig().Provider, "none")
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	gt.NoError(t, os.WriteFile(path, []byte("search: [unclosed"), 0o644))

	_, err := Load(path)
	gt.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"empty database path", func(c *Config) { c.DatabasePath = "" }, "database_path"},
		{"unknown embedding provider", func(c *Config) { c.Embedding.Provider = "gemini" }, "embedding provider"},
		{"unknown expansion provider", func(c *Config) { c.Expansion.Provider = "local" }, "expansion provider"},
		{"zero quick limit", func(c *Config) { c.Search.QuickLimit = 0 }, "quick_limit"},
		{"similarity above one", func(c *Config) { c.Search.MinSimilarity = 1.5 }, "min_similarity"},
		{"expanded fraction zero", func(c *Config) { c.Search.ExpandedFraction = 0 }, "expanded_fraction"},
		{"file fraction too low", func(c *Config) { c.Search.FileFraction = 0.5 }, "file_fraction"},
		{"no max time", func(c *Config) { c.Search.MaxTime = 0 }, "max_time"},
		{"no idle timeout", func(c *Config) { c.Session.IdleTimeout = 0 }, "idle_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			gt.Error(t, err)
			gt.S(t, err.Error()).Contains(tt.errMsg)
		})
	}
}

func TestExpandPath(t *testing.T) {
	got := ExpandPath("~/memory.db")
	gt.True(t, got != "~/memory.db")
	gt.True(t, strings.HasSuffix(got, "memory.db"))
	gt.Equal(t, ExpandPath("/abs/path"), "/abs/path")
	gt.Equal(t, ExpandPath(""), "")
}

func TestEnsurePaths(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.DatabasePath = filepath.Join(dir, "nested", "db", "memories.db")

	gt.NoError(t, cfg.EnsurePaths())
	info, err := os.Stat(filepath.Join(dir, "nested", "db"))
	gt.NoError(t, err)
	gt.True(t, info.IsDir())
}
