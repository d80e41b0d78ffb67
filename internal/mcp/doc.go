// Package mcp implements the Model Context Protocol (MCP) server for memsearch.
//
// The server exposes progressive memory search to AI assistants:
//   - quick_search: instant keyword matches, returns a search_id
//   - deep_search: AI-expanded terms and semantic matches for a search_id
//   - file_search: matches in local text files for a search_id
//   - comprehensive_search: every phase in one call within a time budget
//   - search_status: capability and coverage report
//   - embed_memories: backfill missing embeddings
//
// # Progressive Flow
//
// A search starts with quick_search and is continued with the returned id.
// Results already reported for a search_id are never repeated by later phases:
//
//	Request:
//	{"name": "quick_search", "arguments": {"query": "memory crisis"}}
//
//	Response:
//	{
//	  "search_id": "5f0c...",
//	  "results": [{"memory_id": "m1", "match_type": "keyword", ...}],
//	  "status": "quick_complete",
//	  "enhancement_options": {...}
//	}
//
//	Request:
//	{"name": "deep_search", "arguments": {"search_id": "5f0c..."}}
//
//	Response:
//	{
//	  "expanded_terms": ["context overflow", "resource exhaustion"],
//	  "expansion_source": "llm",
//	  "expanded_results": [{"memory_id": "m7", "matched_term": "context overflow", ...}],
//	  "semantic_results": [...],
//	  "status": "deep_complete"
//	}
//
// When the language model is unreachable deep_search still answers, with
// expansion_source "fallback" and the reason under "errors".
//
// # Error Handling
//
// Errors are returned as *MCPError values carrying a JSON-RPC code:
//   - -32602: Invalid params
//   - -32603: Internal error
//   - -32002: Embedding backfill already running
//   - -32004: Empty query
//   - -32005: Unknown or expired search_id without a query
//
// # Logging
//
// stdout is reserved for the protocol; all logging goes to stderr or the
// configured log file.
package mcp
