package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/suite"

	"github.com/dshills/memsearch-mcp/internal/config"
	"github.com/dshills/memsearch-mcp/internal/embedder"
	"github.com/dshills/memsearch-mcp/internal/expander"
	"github.com/dshills/memsearch-mcp/internal/indexer"
	"github.com/dshills/memsearch-mcp/internal/logging"
	"github.com/dshills/memsearch-mcp/internal/orchestrator"
	"github.com/dshills/memsearch-mcp/internal/searcher"
	"github.com/dshills/memsearch-mcp/internal/session"
	"github.com/dshills/memsearch-mcp/internal/storage"
	"github.com/dshills/memsearch-mcp/pkg/types"
)

// fakeGenerator answers expansion prompts with a fixed response
type fakeGenerator struct {
	response string
	pingErr  error
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return f.response, nil
}
func (f *fakeGenerator) Ping(ctx context.Context) error { return f.pingErr }
func (f *fakeGenerator) Model() string                  { return "fake-llm" }

// ServerTestSuite exercises the tool handlers against an in-memory store
type ServerTestSuite struct {
	suite.Suite
	ctx     context.Context
	server  *Server
	store   *storage.SQLiteStorage
	baseDir string
	gen     *fakeGenerator
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

// SetupTest creates a fresh server for each test
func (s *ServerTestSuite) SetupTest() {
	s.ctx = context.Background()
	logger := logging.Discard()

	store, err := storage.NewSQLiteStorage(":memory:")
	s.Require().NoError(err)
	s.store = store

	s.baseDir = s.T().TempDir()
	cfg := searcher.DefaultConfig()
	cfg.BasePath = s.baseDir

	emb := embedder.NewLocalProvider(0, nil)
	s.gen = &fakeGenerator{response: `{"terms": ["context overflow", "resource exhaustion"]}`}
	exp := expander.New(s.gen, logger)
	exp.Check(s.ctx)

	srch := searcher.NewSearcher(store, emb, cfg, logger)
	orch := orchestrator.New(srch, exp, session.New(0, 0, logger), logger)

	server, err := NewServer(Deps{
		Storage:      store,
		Embedder:     emb,
		Searcher:     srch,
		Expander:     exp,
		Orchestrator: orch,
		Indexer:      indexer.New(store, emb, storage.RecordFilter{}, logger),
		Logger:       logger,
	})
	s.Require().NoError(err)
	s.server = server
}

// TearDownTest closes the store
func (s *ServerTestSuite) TearDownTest() {
	s.NoError(s.server.Close())
}

func (s *ServerTestSuite) seed(contents ...string) {
	base := time.Date(2025, 8, 31, 9, 0, 0, 0, time.UTC)
	for i, content := range contents {
		s.Require().NoError(s.store.AppendMemory(s.ctx, &types.MemoryRecord{
			ID:        fmt.Sprintf("m%02d", i),
			AuthorID:  "agent-1",
			Content:   content,
			Type:      "note",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
}

func (s *ServerTestSuite) call(handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), name string, args map[string]interface{}) (map[string]interface{}, error) {
	request := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
	result, err := handler(s.ctx, request)
	if err != nil {
		return nil, err
	}
	s.Require().NotNil(result)
	s.Require().NotEmpty(result.Content)

	text, ok := result.Content[0].(mcp.TextContent)
	s.Require().True(ok, "result should be text content")

	var response map[string]interface{}
	s.Require().NoError(json.Unmarshal([]byte(text.Text), &response))
	return response, nil
}

func (s *ServerTestSuite) requireCode(err error, code int) {
	var mcpErr *MCPError
	s.Require().True(errors.As(err, &mcpErr), "expected MCPError, got %v", err)
	s.Equal(code, mcpErr.Code)
}

func resultIDs(v interface{}) []string {
	list, _ := v.([]interface{})
	out := make([]string, 0, len(list))
	for _, item := range list {
		m := item.(map[string]interface{})
		out = append(out, m["memory_id"].(string))
	}
	return out
}

// Scenario: keyword search returns only the record containing the query
func (s *ServerTestSuite) TestQuickSearch() {
	s.seed("AI coordination patterns", "memory crisis handling", "cooking pasta recipe")

	resp, err := s.call(s.server.handleQuickSearch, "quick_search", map[string]interface{}{
		"query": "AI coordination",
	})
	s.Require().NoError(err)

	s.Equal([]string{"m00"}, resultIDs(resp["results"]))
	s.EqualValues(1, resp["result_count"])
	s.Equal("quick_complete", resp["status"])
	s.NotEmpty(resp["search_id"])
	s.Contains(resp, "enhancement_options")

	first := resp["results"].([]interface{})[0].(map[string]interface{})
	s.Equal("keyword", first["match_type"])
	s.Equal("AI coordination patterns", first["content"])
}

func (s *ServerTestSuite) TestQuickSearchValidation() {
	_, err := s.call(s.server.handleQuickSearch, "quick_search", map[string]interface{}{"query": "  "})
	s.requireCode(err, ErrorCodeEmptyQuery)

	_, err = s.call(s.server.handleQuickSearch, "quick_search", map[string]interface{}{"query": "x", "limit": float64(500)})
	s.requireCode(err, ErrorCodeInvalidParams)

	request := mcp.CallToolRequest{Params: mcp.CallToolParams{Name: "quick_search", Arguments: "not a map"}}
	_, err = s.server.handleQuickSearch(s.ctx, request)
	s.requireCode(err, ErrorCodeInvalidParams)
}

func (s *ServerTestSuite) TestQuickSearchPreview() {
	s.seed("needle " + strings.Repeat("x", 500))

	resp, err := s.call(s.server.handleQuickSearch, "quick_search", map[string]interface{}{"query": "needle"})
	s.Require().NoError(err)

	first := resp["results"].([]interface{})[0].(map[string]interface{})
	content := first["content"].(string)
	s.True(strings.HasSuffix(content, "..."))
	s.Len([]rune(strings.TrimSuffix(content, "...")), previewRunes)
}

// Scenario: deep search adds records found through expansion terms
func (s *ServerTestSuite) TestDeepSearchContinuesQuickSearch() {
	s.seed(
		"memory crisis handling",
		"context overflow in long sessions",
		"resource exhaustion under load",
		"cooking pasta recipe",
	)

	quick, err := s.call(s.server.handleQuickSearch, "quick_search", map[string]interface{}{"query": "memory crisis"})
	s.Require().NoError(err)
	searchID := quick["search_id"].(string)

	resp, err := s.call(s.server.handleDeepSearch, "deep_search", map[string]interface{}{"search_id": searchID})
	s.Require().NoError(err)

	s.Equal(searchID, resp["search_id"])
	s.Equal("llm", resp["expansion_source"])
	s.ElementsMatch([]interface{}{"context overflow", "resource exhaustion"}, resp["expanded_terms"])

	expanded := resultIDs(resp["expanded_results"])
	s.ElementsMatch([]string{"m01", "m02"}, expanded)
	s.NotContains(expanded, "m00", "keyword results are not repeated")
	s.NotContains(resultIDs(resp["semantic_results"]), "m00")

	for _, item := range resp["expanded_results"].([]interface{}) {
		m := item.(map[string]interface{})
		s.Equal("expanded", m["match_type"])
		s.Contains(strings.ToLower(m["content"].(string)), m["matched_term"].(string))
	}
	s.Equal("deep_complete", resp["status"])
}

func (s *ServerTestSuite) TestDeepSearchSessionErrors() {
	_, err := s.call(s.server.handleDeepSearch, "deep_search", map[string]interface{}{"search_id": "expired"})
	s.requireCode(err, ErrorCodeSessionNotFound)

	_, err = s.call(s.server.handleDeepSearch, "deep_search", nil)
	s.requireCode(err, ErrorCodeEmptyQuery)

	resp, err := s.call(s.server.handleDeepSearch, "deep_search", map[string]interface{}{
		"search_id": "expired",
		"query":     "memory crisis",
	})
	s.Require().NoError(err)
	s.NotEqual("expired", resp["search_id"])
}

func (s *ServerTestSuite) TestDeepSearchFallbackWhenExpansionUnavailable() {
	s.gen.pingErr = types.ErrServiceUnavailable
	s.server.expander.Check(s.ctx)
	s.seed("memory_crisis notes")

	resp, err := s.call(s.server.handleDeepSearch, "deep_search", map[string]interface{}{"query": "memory crisis"})
	s.Require().NoError(err)
	s.Equal("fallback", resp["expansion_source"])
	s.Contains(resp["expanded_terms"], "memory_crisis")
	s.Equal([]string{"m00"}, resultIDs(resp["expanded_results"]))
	s.Contains(resp["errors"], "expansion")
}

// Scenario: files over the size ceiling are not searched
func (s *ServerTestSuite) TestFileSearch() {
	big := strings.Repeat("padding\n", (2<<20)/8) + "memory crisis\n"
	s.Require().NoError(os.WriteFile(filepath.Join(s.baseDir, "big.md"), []byte(big), 0o644))
	small := strings.Repeat("notes\n", 1700) + "memory crisis\n"
	s.Require().NoError(os.WriteFile(filepath.Join(s.baseDir, "small.md"), []byte(small), 0o644))

	resp, err := s.call(s.server.handleFileSearch, "file_search", map[string]interface{}{
		"query":      "memory crisis",
		"file_types": ".md, txt",
	})
	s.Require().NoError(err)

	s.EqualValues(1, resp["files_searched"])
	s.Equal([]interface{}{"md", "txt"}, resp["file_types"])
	files := resp["file_results"].([]interface{})
	s.Require().Len(files, 1)
	s.Equal("small.md", files[0].(map[string]interface{})["file_path"])
	s.Equal("file_complete", resp["status"])
	s.Empty(resp["errors"])
}

func (s *ServerTestSuite) TestFileSearchMissingBasePath() {
	s.Require().NoError(os.RemoveAll(s.baseDir))

	resp, err := s.call(s.server.handleFileSearch, "file_search", map[string]interface{}{"query": "TODO"})
	s.Require().NoError(err)

	s.Empty(resp["file_results"])
	s.EqualValues(0, resp["files_searched"])
	s.Equal("file_complete", resp["status"])
	s.Contains(resp["errors"], "file")
	s.NotEmpty(resp["search_id"])
}

func (s *ServerTestSuite) TestComprehensiveSearch() {
	s.seed("memory crisis handling", "context overflow in long sessions")
	s.Require().NoError(os.WriteFile(filepath.Join(s.baseDir, "a.txt"), []byte("memory crisis\n"), 0o644))

	resp, err := s.call(s.server.handleComprehensiveSearch, "comprehensive_search", map[string]interface{}{
		"query":    "memory crisis",
		"max_time": float64(8),
	})
	s.Require().NoError(err)

	phases := resp["phases"].(map[string]interface{})
	for _, name := range []string{"keyword", "expanded", "semantic", "file"} {
		s.Require().Contains(phases, name)
		s.Equal("completed", phases[name].(map[string]interface{})["status"], name)
	}
	s.Len(resp["phases_completed"], 4)
	s.Contains(resp["phase_times"], "keyword")
	s.ElementsMatch([]string{"m00", "m01"}, resultIDs(resp["results"]))
	s.Len(resp["file_results"], 1)
	s.EqualValues(3, resp["total_results"])
	s.Equal("comprehensive_complete", resp["status"])
}

func (s *ServerTestSuite) TestComprehensiveSearchWithoutFiles() {
	resp, err := s.call(s.server.handleComprehensiveSearch, "comprehensive_search", map[string]interface{}{
		"query":         "anything",
		"include_files": false,
	})
	s.Require().NoError(err)

	file := resp["phases"].(map[string]interface{})["file"].(map[string]interface{})
	s.Equal("skipped", file["status"])
	s.NotContains(resp["phase_times"], "file")

	_, err = s.call(s.server.handleComprehensiveSearch, "comprehensive_search", map[string]interface{}{
		"query":    "anything",
		"max_time": float64(0),
	})
	s.requireCode(err, ErrorCodeInvalidParams)
}

func (s *ServerTestSuite) TestSearchStatus() {
	s.seed("one", "two")

	_, err := s.call(s.server.handleQuickSearch, "quick_search", map[string]interface{}{"query": "one"})
	s.Require().NoError(err)

	resp, err := s.call(s.server.handleSearchStatus, "search_status", map[string]interface{}{"refresh": true})
	s.Require().NoError(err)

	caps := resp["capabilities"].(map[string]interface{})
	s.Equal(true, caps["keyword_search"])
	s.Equal(true, caps["llm_expansion"])
	s.Equal(false, caps["semantic_search"], "no embeddings yet")
	s.Equal(true, caps["file_search"])

	db := resp["database"].(map[string]interface{})
	s.EqualValues(2, db["total_memories"])
	s.EqualValues(0, db["embedded_memories"])
	s.EqualValues(1, resp["sessions"].(map[string]interface{})["active"])

	recent := resp["recent_searches"].([]interface{})
	s.Require().Len(recent, 1)
	s.Equal("quick_search", recent[0].(map[string]interface{})["tool"])
}

func (s *ServerTestSuite) TestEmbedMemories() {
	s.seed("kubernetes deploy", "banana bread", "kubernetes rollout")

	resp, err := s.call(s.server.handleEmbedMemories, "embed_memories", map[string]interface{}{})
	s.Require().NoError(err)
	s.EqualValues(3, resp["processed"])
	s.EqualValues(3, resp["stored"])
	s.EqualValues(0, resp["failed"])

	resp, err = s.call(s.server.handleEmbedMemories, "embed_memories", map[string]interface{}{"force": true, "limit": float64(2)})
	s.Require().NoError(err)
	s.EqualValues(2, resp["processed"])

	status, err := s.call(s.server.handleSearchStatus, "search_status", nil)
	s.Require().NoError(err)
	s.Equal(true, status["capabilities"].(map[string]interface{})["semantic_search"])
	s.EqualValues(100, status["database"].(map[string]interface{})["coverage_percent"])

	_, err = s.call(s.server.handleEmbedMemories, "embed_memories", map[string]interface{}{"limit": float64(-1)})
	s.requireCode(err, ErrorCodeInvalidParams)
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "memories.db")
	cfg.BasePath = t.TempDir()
	cfg.Embedding.Provider = embedder.ProviderLocal
	cfg.Expansion.Provider = expander.ProviderNone

	server, err := New(context.Background(), cfg, log.NewWithOptions(os.Stderr, log.Options{Level: log.ErrorLevel}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = server.Close() }()

	if server.MCPServer() == nil {
		t.Fatal("MCPServer() returned nil")
	}
	status, err := server.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Capabilities.LLMExpansion {
		t.Error("expansion should be unavailable with provider none")
	}
	if !status.EmbedderReachable {
		t.Error("local embedder should always be reachable")
	}
}

func TestPreviewAndRounding(t *testing.T) {
	if got := preview("short"); got != "short" {
		t.Errorf("preview(short) = %q", got)
	}
	if got := seconds(1234567 * time.Microsecond); got != 1.235 {
		t.Errorf("seconds() = %v, want 1.235", got)
	}
	if got := splitCSV(" md, ,txt "); len(got) != 2 || got[0] != "md" || got[1] != "txt" {
		t.Errorf("splitCSV() = %v", got)
	}
}
