package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/memsearch-mcp/internal/config"
	"github.com/dshills/memsearch-mcp/internal/embedder"
	"github.com/dshills/memsearch-mcp/internal/expander"
	"github.com/dshills/memsearch-mcp/internal/indexer"
	"github.com/dshills/memsearch-mcp/internal/orchestrator"
	"github.com/dshills/memsearch-mcp/internal/searcher"
	"github.com/dshills/memsearch-mcp/internal/session"
	"github.com/dshills/memsearch-mcp/internal/storage"
)

const (
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
	// checkTimeout bounds the startup liveness check of the expansion service
	checkTimeout = 5 * time.Second
)

// Deps are the components a Server exposes as tools
type Deps struct {
	Name         string
	Storage      storage.Storage
	Embedder     embedder.Embedder
	Searcher     *searcher.Searcher
	Expander     *expander.Expander // Optional; nil disables LLM expansion
	Orchestrator *orchestrator.Orchestrator
	Indexer      *indexer.Indexer
	Logger       *log.Logger
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp          *server.MCPServer
	storage      storage.Storage
	embedder     embedder.Embedder
	searcher     *searcher.Searcher
	expander     *expander.Expander
	orchestrator *orchestrator.Orchestrator
	indexer      *indexer.Indexer
	logger       *log.Logger
}

// New builds every component from cfg and returns a ready server. The expansion
// service is checked once; when BackfillOnStart is set an embedding backfill
// starts in the background.
func New(ctx context.Context, cfg config.Config, logger *log.Logger) (*Server, error) {
	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.New(cfg.EmbedderConfig())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	gen, err := expander.NewGenerator(cfg.GeneratorConfig())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize query expansion: %w", err)
	}
	exp := expander.New(gen, logger, expander.WithTimeout(cfg.Expansion.Timeout))
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	exp.Check(checkCtx)
	cancel()

	srch := searcher.NewSearcher(store, emb, cfg.SearcherConfig(), logger)
	sessions := session.New(cfg.Session.IdleTimeout, cfg.Session.CleanupInterval, logger)
	orch := orchestrator.New(srch, exp, sessions, logger, orchestrator.WithConfig(cfg.OrchestratorConfig()))
	idx := indexer.New(store, emb, cfg.Scope(), logger)

	s, err := NewServer(Deps{
		Name:         cfg.ServerName,
		Storage:      store,
		Embedder:     emb,
		Searcher:     srch,
		Expander:     exp,
		Orchestrator: orch,
		Indexer:      idx,
		Logger:       logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	if cfg.Embedding.BackfillOnStart && emb.Model() != "" {
		go func() {
			if _, err := idx.Backfill(ctx, &indexer.Config{Workers: cfg.Embedding.Workers}); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("startup embedding backfill failed", "error", err)
			}
		}()
	}
	return s, nil
}

// NewServer registers the tools for already built components
func NewServer(deps Deps) (*Server, error) {
	if deps.Storage == nil || deps.Searcher == nil || deps.Orchestrator == nil {
		return nil, errors.New("storage, searcher and orchestrator are required")
	}
	if deps.Logger == nil {
		deps.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if deps.Name == "" {
		deps.Name = "memsearch-mcp"
	}

	mcpServer := server.NewMCPServer(
		deps.Name,
		ServerVersion,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions),
	)

	s := &Server{
		mcp:          mcpServer,
		storage:      deps.Storage,
		embedder:     deps.Embedder,
		searcher:     deps.Searcher,
		expander:     deps.Expander,
		orchestrator: deps.Orchestrator,
		indexer:      deps.Indexer,
		logger:       deps.Logger,
	}

	s.registerTools()
	return s, nil
}

// MCPServer exposes the underlying protocol server
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Indexer returns the embedding backfill
func (s *Server) Indexer() *indexer.Indexer {
	return s.indexer
}

// Storage returns the record store
func (s *Server) Storage() storage.Storage {
	return s.storage
}

// Status reports capabilities without refreshing the expansion check
func (s *Server) Status(ctx context.Context) (*searcher.Status, error) {
	return s.searcher.Status(ctx, s.checker(), false)
}

// Serve runs the MCP protocol over in/out until ctx is cancelled or in closes
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(s.logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel}))

	s.logger.Info("serving MCP over stdio")
	err := stdio.Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases the store and the embedder
func (s *Server) Close() error {
	var errs []error
	if s.embedder != nil {
		errs = append(errs, s.embedder.Close())
	}
	errs = append(errs, s.storage.Close())
	return errors.Join(errs...)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(quickSearchTool(), s.handleQuickSearch)
	s.mcp.AddTool(deepSearchTool(), s.handleDeepSearch)
	s.mcp.AddTool(fileSearchTool(), s.handleFileSearch)
	s.mcp.AddTool(comprehensiveSearchTool(), s.handleComprehensiveSearch)
	s.mcp.AddTool(searchStatusTool(), s.handleSearchStatus)
	if s.indexer != nil {
		s.mcp.AddTool(embedMemoriesTool(), s.handleEmbedMemories)
	}
}

// checker returns the expansion checker, or nil when expansion is not configured
func (s *Server) checker() searcher.ExpansionChecker {
	if s.expander == nil {
		return nil
	}
	return s.expander
}

const serverInstructions = `Progressive search over a personal memory store.
Start with quick_search for instant keyword matches. Continue the same search_id with
deep_search for AI-expanded terms and semantic matches, and with file_search for matches
in local files. comprehensive_search runs every phase within a time budget.
search_status reports which capabilities are currently available.`
