package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/dshills/memsearch-mcp/internal/config"
	"github.com/dshills/memsearch-mcp/internal/indexer"
	"github.com/dshills/memsearch-mcp/internal/logging"
	"github.com/dshills/memsearch-mcp/internal/mcp"
	"github.com/dshills/memsearch-mcp/internal/storage"
	"github.com/dshills/memsearch-mcp/pkg/types"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// defaultAuthor is recorded when neither --author nor actor-id is set
const defaultAuthor = "cli"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "memsearch:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "memsearch",
		Usage:   "Progressive memory search over MCP",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				Value:   config.DefaultPath,
				EnvVars: []string{"MEMORY_SEARCH_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Usage:   "Path to the SQLite memory database",
				EnvVars: []string{"MEMORY_SEARCH_DATABASE_PATH"},
			},
			&cli.StringFlag{
				Name:    "base-path",
				Usage:   "Root directory for file search",
				EnvVars: []string{"MEMORY_SEARCH_BASE_PATH"},
			},
			&cli.StringFlag{
				Name:    "actor-id",
				Usage:   "Only search memories authored by this actor",
				EnvVars: []string{"MEMORY_SEARCH_ACTOR_ID"},
			},
			&cli.StringFlag{
				Name:    "ollama-url",
				Usage:   "Ollama base URL for embeddings and query expansion",
				EnvVars: []string{"OLLAMA_URL"},
			},
			&cli.StringFlag{
				Name:    "model",
				Usage:   "Text generation model used for query expansion",
				EnvVars: []string{"MEMORY_SEARCH_MODEL"},
			},
			&cli.StringFlag{
				Name:    "embedding-model",
				Usage:   "Embedding model name",
				EnvVars: []string{"MEMORY_SEARCH_EMBEDDING_MODEL"},
			},
			&cli.StringFlag{
				Name:    "embedding-provider",
				Usage:   "Embedding provider (ollama, openai, local, none)",
				EnvVars: []string{"MEMORY_SEARCH_EMBEDDING_PROVIDER"},
			},
			&cli.StringFlag{
				Name:    "expansion-provider",
				Usage:   "Query expansion provider (ollama, openai, none)",
				EnvVars: []string{"MEMORY_SEARCH_EXPANSION_PROVIDER"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				EnvVars: []string{"MEMORY_SEARCH_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "Write logs to a rotating file instead of stderr",
				EnvVars: []string{"MEMORY_SEARCH_LOG_FILE"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the search tools over MCP stdio",
				Action: serveCommand,
			},
			{
				Name:   "embed",
				Usage:  "Backfill embeddings for memories that have none",
				Action: embedCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Re-embed memories that already have an embedding",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of memories to process (0 = all)",
					},
				},
			},
			{
				Name:      "add",
				Usage:     "Append a memory record",
				ArgsUsage: "[content...]",
				Action:    addCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "type",
						Usage: "Memory type",
						Value: "note",
					},
					&cli.StringFlag{
						Name:  "author",
						Usage: "Author id (defaults to actor-id)",
					},
					&cli.StringFlag{
						Name:  "subject",
						Usage: "Subject id",
					},
					&cli.StringFlag{
						Name:  "parent",
						Usage: "Parent memory id",
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Print capabilities and embedding coverage as JSON",
				Action: statusCommand,
			},
			{
				Name:   "version",
				Usage:  "Print version and build information",
				Action: versionCommand,
			},
		},
		DefaultCommand: "serve",
	}
}

// loadConfig reads the config file and applies flag and environment overrides
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, err
	}

	if c.IsSet("database") {
		cfg.DatabasePath = c.String("database")
	}
	if c.IsSet("base-path") {
		cfg.BasePath = c.String("base-path")
	}
	if c.IsSet("actor-id") {
		cfg.ActorID = c.String("actor-id")
	}
	if c.IsSet("ollama-url") {
		cfg.Embedding.BaseURL = c.String("ollama-url")
		cfg.Expansion.BaseURL = c.String("ollama-url")
	}
	if c.IsSet("model") {
		cfg.Expansion.Model = c.String("model")
	}
	if c.IsSet("embedding-model") {
		cfg.Embedding.Model = c.String("embedding-model")
	}
	if c.IsSet("embedding-provider") {
		cfg.Embedding.Provider = c.String("embedding-provider")
	}
	if c.IsSet("expansion-provider") {
		cfg.Expansion.Provider = c.String("expansion-provider")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-file") {
		cfg.LogFile = c.String("log-file")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setup(c *cli.Context) (config.Config, *log.Logger, io.Closer, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return cfg, nil, nil, err
	}
	logger, closer, err := logging.New(logging.Options{
		Prefix: "memsearch",
		Level:  cfg.LogLevel,
		File:   cfg.LogFile,
	})
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return cfg, logger, closer, nil
}

func serveCommand(c *cli.Context) error {
	cfg, logger, closer, err := setup(c)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting memsearch", "version", version,
		"build_mode", storage.BuildMode, "driver", storage.DriverName, "database", cfg.DatabasePath)

	server, err := mcp.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer func() {
		if err := server.Close(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}()

	if err := server.Serve(ctx, os.Stdin, os.Stdout); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func embedCommand(c *cli.Context) error {
	cfg, logger, closer, err := setup(c)
	if err != nil {
		return err
	}
	defer closer.Close()
	cfg.Embedding.BackfillOnStart = false

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := mcp.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer server.Close()

	stats, err := server.Indexer().Backfill(ctx, &indexer.Config{
		Force:   c.Bool("force"),
		Limit:   c.Int("limit"),
		Workers: cfg.Embedding.Workers,
	})
	if err != nil {
		return fmt.Errorf("embedding backfill failed: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "processed=%d stored=%d skipped=%d failed=%d duration=%s\n",
		stats.Processed, stats.Stored, stats.Skipped, stats.Failed, stats.Duration.Round(time.Millisecond))
	for _, msg := range stats.ErrorMessages {
		logger.Warn("embedding failed", "error", msg)
	}
	return nil
}

func addCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	content := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(content) == "" {
		b, err := io.ReadAll(c.App.Reader)
		if err != nil {
			return fmt.Errorf("read content: %w", err)
		}
		content = string(b)
	}
	content = strings.TrimSpace(content)

	author := c.String("author")
	if author == "" {
		author = cfg.ActorID
	}
	if author == "" {
		author = defaultAuthor
	}
	rec := &types.MemoryRecord{
		ID:        uuid.NewString(),
		ParentID:  c.String("parent"),
		AuthorID:  author,
		SubjectID: c.String("subject"),
		Content:   content,
		Type:      c.String("type"),
		CreatedAt: time.Now().UTC(),
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.AppendMemory(c.Context, rec); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, rec.ID)
	return nil
}

func statusCommand(c *cli.Context) error {
	cfg, logger, closer, err := setup(c)
	if err != nil {
		return err
	}
	defer closer.Close()
	cfg.Embedding.BackfillOnStart = false

	ctx := c.Context
	server, err := mcp.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer server.Close()

	status, err := server.Status(ctx)
	if err != nil {
		return err
	}

	report := map[string]interface{}{
		"capabilities":       status.Capabilities,
		"embedding_provider": status.EmbeddingProvider,
		"embedding_model":    status.EmbeddingModel,
		"embedder_reachable": status.EmbedderReachable,
		"generation_model":   status.GenerationModel,
		"base_path":          status.BasePath,
		"database_path":      cfg.DatabasePath,
	}
	if status.Stats != nil {
		report["total_memories"] = status.Stats.TotalMemories
		report["embedded_memories"] = status.Stats.EmbeddedMemories
		report["coverage_percent"] = status.Stats.CoveragePercent
		report["search_count"] = status.Stats.SearchCount
	}
	if status.DatabaseError != nil {
		report["database_error"] = status.DatabaseError.Error()
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func versionCommand(c *cli.Context) error {
	w := c.App.Writer
	fmt.Fprintf(w, "memsearch MCP Server\n")
	fmt.Fprintf(w, "Version: %s\n", version)
	fmt.Fprintf(w, "Build Time: %s\n", buildTime)
	fmt.Fprintf(w, "Build Mode: %s\n", storage.BuildMode)
	fmt.Fprintf(w, "SQLite Driver: %s\n", storage.DriverName)
	fmt.Fprintf(w, "Vector Extension: %v\n", storage.VectorExtensionAvailable)
	return nil
}
