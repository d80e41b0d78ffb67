package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/memsearch-mcp/internal/indexer"
	"github.com/dshills/memsearch-mcp/internal/orchestrator"
	"github.com/dshills/memsearch-mcp/internal/storage"
	"github.com/dshills/memsearch-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another embedding backfill is already running
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
	ErrorCodeSessionNotFound    = -32005 // search_id is unknown or expired and no query was given
)

// previewRunes is the length of record content shown in results
const previewRunes = 200

// recentSearchesShown is the number of search log entries in search_status
const recentSearchesShown = 5

// handleQuickSearch handles the quick_search tool invocation
func (s *Server) handleQuickSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	query, err := requireQuery(args)
	if err != nil {
		return nil, err
	}

	limit := getIntDefault(args, "limit", s.searcher.Config().QuickLimit)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	res, err := s.orchestrator.Quick(ctx, query, limit)
	if err != nil {
		return nil, s.toMCPError("quick search failed", err)
	}
	s.logSearch(ctx, "quick_search", res.SearchID, query, len(res.Results), res.Duration)

	response := map[string]interface{}{
		"search_id":    res.SearchID,
		"query":        res.Query,
		"results":      formatResults(res.Results),
		"result_count": len(res.Results),
		"search_time":  seconds(res.Duration),
		"status":       "quick_complete",
		"enhancement_options": map[string]interface{}{
			"deep_search":          fmt.Sprintf("deep_search(search_id=%q) adds AI-expanded and semantic matches", res.SearchID),
			"file_search":          fmt.Sprintf("file_search(search_id=%q) searches local files", res.SearchID),
			"comprehensive_search": "comprehensive_search(query) runs every phase within a time budget",
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleDeepSearch handles the deep_search tool invocation
func (s *Server) handleDeepSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	searchID := strings.TrimSpace(getStringDefault(args, "search_id", ""))
	query := strings.TrimSpace(getStringDefault(args, "query", ""))
	if searchID == "" && query == "" {
		return nil, emptyQueryError()
	}

	res, err := s.orchestrator.Deep(ctx, searchID, query)
	if err != nil {
		return nil, s.toMCPError("deep search failed", err)
	}
	s.logSearch(ctx, "deep_search", res.SearchID, res.Query, res.TotalNew(), res.Duration)

	response := map[string]interface{}{
		"search_id":         res.SearchID,
		"query":             res.Query,
		"expanded_terms":    nonNil(res.ExpandedTerms),
		"expansion_source":  res.ExpansionSource,
		"expanded_results":  formatResults(res.Expanded),
		"semantic_results":  formatResults(res.Semantic),
		"total_new_results": res.TotalNew(),
		"search_time":       seconds(res.Duration),
		"status":            "deep_complete",
		"errors":            res.Errors,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleFileSearch handles the file_search tool invocation
func (s *Server) handleFileSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	searchID := strings.TrimSpace(getStringDefault(args, "search_id", ""))
	query := strings.TrimSpace(getStringDefault(args, "query", ""))
	if searchID == "" && query == "" {
		return nil, emptyQueryError()
	}

	limit := getIntDefault(args, "limit", s.searcher.Config().FileLimit)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	res, err := s.orchestrator.Files(ctx, orchestrator.FilesRequest{
		SearchID:  searchID,
		Query:     query,
		FileTypes: splitCSV(getStringDefault(args, "file_types", "")),
		Limit:     limit,
	})
	if err != nil {
		return nil, s.toMCPError("file search failed", err)
	}
	s.logSearch(ctx, "file_search", res.SearchID, res.Query, len(res.Matches), res.Duration)

	response := map[string]interface{}{
		"search_id":      res.SearchID,
		"query":          res.Query,
		"file_results":   formatFiles(res.Matches),
		"files_searched": res.FilesSearched,
		"file_types":     res.Extensions,
		"base_path":      res.BasePath,
		"search_time":    seconds(res.Duration),
		"status":         "file_complete",
		"errors":         res.Errors,
	}
	if res.Truncated {
		response["truncated"] = true
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleComprehensiveSearch handles the comprehensive_search tool invocation
func (s *Server) handleComprehensiveSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	query, err := requireQuery(args)
	if err != nil {
		return nil, err
	}

	maxTime := getFloatDefault(args, "max_time", s.orchestrator.Config().MaxTime.Seconds())
	if maxTime < 0.1 || maxTime > 60 {
		return nil, newMCPError(ErrorCodeInvalidParams, "max_time must be between 0.1 and 60 seconds", map[string]interface{}{
			"param": "max_time",
			"value": maxTime,
		})
	}

	report, err := s.orchestrator.Comprehensive(ctx, orchestrator.Request{
		Query:        query,
		MaxTime:      time.Duration(maxTime * float64(time.Second)),
		IncludeFiles: getBoolDefault(args, "include_files", true),
	})
	if err != nil {
		return nil, s.toMCPError("comprehensive search failed", err)
	}
	s.logSearch(ctx, "comprehensive_search", report.SearchID, report.Query, report.TotalResults, report.TotalTime)

	phases := make(map[string]interface{}, len(report.Phases))
	phaseTimes := make(map[string]interface{})
	for _, p := range report.Phases {
		entry := map[string]interface{}{
			"status": p.Status,
			"count":  p.Count,
		}
		if p.Reason != "" {
			entry["reason"] = p.Reason
		}
		if len(p.Records) > 0 {
			entry["results"] = formatResults(p.Records)
		}
		if len(p.Files) > 0 {
			entry["file_results"] = formatFiles(p.Files)
		}
		phases[p.Name] = entry
		if p.Status != orchestrator.StatusSkipped {
			phaseTimes[p.Name] = seconds(p.Duration)
		}
	}

	response := map[string]interface{}{
		"search_id":        report.SearchID,
		"query":            report.Query,
		"phases":           phases,
		"phase_times":      phaseTimes,
		"results":          formatResults(report.Results),
		"file_results":     formatFiles(report.Files),
		"total_results":    report.TotalResults,
		"total_time":       seconds(report.TotalTime),
		"phases_completed": nonNil(report.PhasesCompleted),
		"expanded_terms":   nonNil(report.ExpandedTerms),
		"status":           "comprehensive_complete",
	}
	if report.ExpansionSource != "" {
		response["expansion_source"] = report.ExpansionSource
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchStatus handles the search_status tool invocation
func (s *Server) handleSearchStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	status, err := s.searcher.Status(ctx, s.checker(), getBoolDefault(args, "refresh", false))
	if err != nil {
		return nil, s.toMCPError("failed to get status", err)
	}

	database := map[string]interface{}{
		"accessible":      status.DatabaseError == nil,
		"embedding_model": status.EmbeddingModel,
	}
	if status.Stats != nil {
		database["total_memories"] = status.Stats.TotalMemories
		database["embedded_memories"] = status.Stats.EmbeddedMemories
		database["coverage_percent"] = status.Stats.CoveragePercent
		database["search_count"] = status.Stats.SearchCount
		if !status.Stats.LastMemoryAt.IsZero() {
			database["last_memory_at"] = status.Stats.LastMemoryAt.Format(time.RFC3339)
		}
	}
	if status.DatabaseError != nil {
		database["error"] = status.DatabaseError.Error()
	}

	response := map[string]interface{}{
		"capabilities": status.Capabilities,
		"database":     database,
		"models": map[string]interface{}{
			"embedding_provider": status.EmbeddingProvider,
			"embedding_model":    status.EmbeddingModel,
			"embedder_reachable": status.EmbedderReachable,
			"generation_model":   status.GenerationModel,
		},
		"sessions": map[string]interface{}{
			"active": s.orchestrator.Sessions().Active(),
		},
		"file_search": map[string]interface{}{
			"base_path":  status.BasePath,
			"file_types": s.searcher.Config().FileExtensions,
		},
	}
	if s.indexer != nil {
		response["embedding_backfill_running"] = s.indexer.Running()
	}

	recent, err := s.storage.RecentSearches(ctx, recentSearchesShown)
	if err != nil {
		s.logger.Warn("failed to read search log", "error", err)
	} else {
		response["recent_searches"] = formatSearchLog(recent)
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleEmbedMemories handles the embed_memories tool invocation
func (s *Server) handleEmbedMemories(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	limit := getIntDefault(args, "limit", 0)
	if limit < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must not be negative", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	stats, err := s.indexer.Backfill(ctx, &indexer.Config{
		Force: getBoolDefault(args, "force", false),
		Limit: limit,
	})
	if errors.Is(err, indexer.ErrIndexingInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "an embedding backfill is already running", nil)
	}
	if err != nil {
		return nil, s.toMCPError("embedding backfill failed", err)
	}

	response := map[string]interface{}{
		"processed":   stats.Processed,
		"stored":      stats.Stored,
		"skipped":     stats.Skipped,
		"failed":      stats.Failed,
		"duration_ms": stats.Duration.Milliseconds(),
	}
	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// logSearch records a tool search in the search log. Failures are only logged.
func (s *Server) logSearch(ctx context.Context, tool, searchID, query string, count int, d time.Duration) {
	err := s.storage.LogSearch(ctx, &storage.SearchLogEntry{
		SessionID:   searchID,
		Tool:        tool,
		Query:       query,
		ResultCount: count,
		Duration:    d,
	})
	if err != nil {
		s.logger.Warn("failed to record search", "tool", tool, "error", err)
	}
	s.logger.Debug("search finished", "tool", tool, "search_id", searchID, "results", count, "duration", d)
}

// toMCPError maps domain errors to MCP error codes
func (s *Server) toMCPError(message string, err error) error {
	switch {
	case errors.Is(err, orchestrator.ErrEmptyQuery):
		return emptyQueryError()
	case errors.Is(err, types.ErrSessionNotFound):
		return newMCPError(ErrorCodeSessionNotFound, "session not found", map[string]interface{}{
			"reason": "search_id is unknown or expired; pass query to start a new search",
		})
	}
	s.logger.Error(message, "error", err)
	return newMCPError(ErrorCodeInternalError, message, map[string]interface{}{
		"error": err.Error(),
	})
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func emptyQueryError() error {
	return newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
		"param":  "query",
		"reason": "missing or empty",
	})
}

// arguments returns the tool arguments; a call without arguments yields an empty map
func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

func requireQuery(args map[string]interface{}) (string, error) {
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return "", emptyQueryError()
	}
	return query, nil
}

// formatResults converts scored results to response maps with content previews
func formatResults(results []types.ScoredResult) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		entry := map[string]interface{}{
			"memory_id":       r.MemoryID,
			"content":         preview(r.Content),
			"type":            r.Type,
			"author_id":       r.AuthorID,
			"relevance_score": round(r.RelevanceScore, 4),
			"match_type":      r.MatchType,
		}
		if !r.CreatedAt.IsZero() {
			entry["created_at"] = r.CreatedAt.Format(time.RFC3339)
		}
		if r.MatchedTerm != "" {
			entry["matched_term"] = r.MatchedTerm
		}
		if r.HybridScore != 0 {
			entry["hybrid_score"] = round(r.HybridScore, 4)
		}
		out = append(out, entry)
	}
	return out
}

// formatFiles converts file hits to response maps
func formatFiles(matches []types.FileMatch) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(matches))
	for _, m := range matches {
		out = append(out, map[string]interface{}{
			"file_path":  m.Path,
			"full_path":  m.FullPath,
			"line":       m.Line,
			"content":    m.Snippet,
			"file_type":  m.FileType,
			"file_size":  m.FileSize,
			"match_type": m.MatchType,
		})
	}
	return out
}

func formatSearchLog(entries []*storage.SearchLogEntry) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]interface{}{
			"tool":         e.Tool,
			"query":        e.Query,
			"result_count": e.ResultCount,
			"duration_ms":  e.Duration.Milliseconds(),
			"created_at":   e.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}

// preview truncates content to previewRunes runes
func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewRunes {
		return content
	}
	return string(runes[:previewRunes]) + "..."
}

// seconds rounds a duration to milliseconds, expressed in seconds
func seconds(d time.Duration) float64 {
	return round(d.Seconds(), 3)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a numeric parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	switch val := args[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
