package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// quickSearchTool returns the tool definition for quick_search
func quickSearchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "quick_search",
		Description: "Instant keyword search over recent memories. Returns a search_id that deep_search and file_search can continue.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Text to look for (case-insensitive substring match)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     8,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"query"},
		},
	}
}

// deepSearchTool returns the tool definition for deep_search
func deepSearchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "deep_search",
		Description: "Expand the query with related terms and search semantically. Continues an existing search_id or starts a new search from query.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"search_id": map[string]interface{}{
					"type":        "string",
					"description": "Search to continue, as returned by a previous search",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Query for a new search; also used when search_id has expired",
				},
			},
		},
	}
}

// fileSearchTool returns the tool definition for file_search
func fileSearchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "file_search",
		Description: "Search text files below the configured base path for the query of a search.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"search_id": map[string]interface{}{
					"type":        "string",
					"description": "Search to continue, as returned by a previous search",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Query for a new search; also used when search_id has expired",
				},
				"file_types": map[string]interface{}{
					"type":        "string",
					"description": "Comma separated extensions to search, e.g. \"md,txt\"",
					"default":     "md,py,txt,json",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of file hits (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
			},
		},
	}
}

// comprehensiveSearchTool returns the tool definition for comprehensive_search
func comprehensiveSearchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "comprehensive_search",
		Description: "Run keyword, expanded, semantic and file phases in order within a time budget and return ranked results.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query",
				},
				"max_time": map[string]interface{}{
					"type":        "number",
					"description": "Time budget in seconds (0.1-60)",
					"default":     8,
					"minimum":     0.1,
					"maximum":     60,
				},
				"include_files": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, run the file phase when budget remains",
					"default":     true,
				},
			},
			Required: []string{"query"},
		},
	}
}

// searchStatusTool returns the tool definition for search_status
func searchStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_status",
		Description: "Report available search capabilities, embedding coverage and recent searches",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"refresh": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, re-check the query expansion service",
					"default":     false,
				},
			},
		},
	}
}

// embedMemoriesTool returns the tool definition for embed_memories
func embedMemoriesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "embed_memories",
		Description: "Generate embeddings for memories that do not have one yet",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, regenerate embeddings for every memory",
					"default":     false,
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of memories to process (0 for all)",
					"default":     0,
					"minimum":     0,
				},
			},
		},
	}
}
