package types

import "errors"

// Search error taxonomy. Layers wrap these so callers can classify with errors.Is.
var (
	// ErrServiceUnavailable means the expansion or embedding endpoint could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrParseFailure means a model response was not in the expected structured form
	ErrParseFailure = errors.New("parse failure")
	// ErrSessionNotFound means an unknown or expired search_id was supplied without a query
	ErrSessionNotFound = errors.New("session not found")
	// ErrStorageFailure means a record or embedding read/write failed
	ErrStorageFailure = errors.New("storage failure")
)

// Domain errors for type validation
var (
	ErrInvalidMemoryID       = errors.New("invalid memory ID")
	ErrInvalidRelevanceScore = errors.New("relevance score out of range for match type")
	ErrInvalidMatchType      = errors.New("unknown match type")
	ErrEmptyContent          = errors.New("content cannot be empty")
	ErrMissingAuthor         = errors.New("author ID is required")
)
