// Package types provides shared type definitions for the memory search server.
//
// # Core Types
//
// MemoryRecord is an append-only fact in the knowledge store. Records thread
// through ParentID, which equals ID for a root record:
//
//	rec := &types.MemoryRecord{
//	    AuthorID: "agent-1",
//	    Content:  "staging deploys run blue/green",
//	    Type:     "note",
//	}
//
// ScoredResult references a record found by a search phase. Its score depends
// on MatchType:
//   - keyword, expanded: non-negative substring hit count
//   - semantic: cosine similarity in [-1, 1]
//
// FileMatch is a line hit from the file phase, with one line of context on
// each side.
//
// # Errors
//
// The search error taxonomy is four sentinels: ErrServiceUnavailable,
// ErrParseFailure, ErrSessionNotFound and ErrStorageFailure. Every layer wraps
// them, so classify with errors.Is:
//
//	if errors.Is(err, types.ErrServiceUnavailable) {
//	    // degrade to an empty phase
//	}
package types
