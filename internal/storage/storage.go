package storage

import (
	"context"
	"time"

	"github.com/dshills/memsearch-mcp/pkg/types"
)

// Storage defines the interface for reading memory records and persisting their embeddings
type Storage interface {
	// Record operations
	AppendMemory(ctx context.Context, record *types.MemoryRecord) error
	AppendMemories(ctx context.Context, records []*types.MemoryRecord) error
	GetMemory(ctx context.Context, id string) (*types.MemoryRecord, error)
	FetchRecent(ctx context.Context, limit int, filter *RecordFilter) ([]*types.MemoryRecord, error)

	// Embedding operations
	StoreEmbedding(ctx context.Context, embedding *EmbeddingRecord, force bool) (stored bool, err error)
	GetEmbedding(ctx context.Context, memoryID, modelName string) (*EmbeddingRecord, error)
	FetchEmbeddings(ctx context.Context, filter *EmbeddingFilter) ([]*EmbeddedMemory, error)
	ListMissingEmbeddings(ctx context.Context, modelName string, limit int, filter *RecordFilter) ([]*types.MemoryRecord, error)

	// Search operations
	SearchSimilar(ctx context.Context, vector []float32, minSimilarity float64, limit int, filter *EmbeddingFilter) ([]SimilarityResult, error)

	// Search log operations
	LogSearch(ctx context.Context, entry *SearchLogEntry) error
	RecentSearches(ctx context.Context, limit int) ([]*SearchLogEntry, error)

	// Status operations
	Stats(ctx context.Context, modelName string, filter *RecordFilter) (*Stats, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// RecordFilter narrows record queries to a caller scope
type RecordFilter struct {
	AuthorID  string // Empty matches all authors
	SubjectID string // Empty matches all subjects
	Type      string // Empty matches all types
}

// EmbeddingFilter narrows embedding queries
type EmbeddingFilter struct {
	RecordFilter
	ModelName string // Required for similarity search
	Limit     int    // Most recent N embeddings; 0 means all
}

// EmbeddingRecord is the optional 1:1 vector annotation of a memory record
type EmbeddingRecord struct {
	MemoryID    string
	Vector      []float32
	ModelName   string
	ContentHash string
	CreatedAt   time.Time
}

// EmbeddedMemory joins a stored vector to its record
type EmbeddedMemory struct {
	Record    *types.MemoryRecord
	Embedding *EmbeddingRecord
}

// SimilarityResult represents a result from vector similarity search
type SimilarityResult struct {
	Record          *types.MemoryRecord
	SimilarityScore float64
}

// SearchLogEntry records one tool search for the status report
type SearchLogEntry struct {
	ID          int64
	SessionID   string
	Tool        string
	Query       string
	ResultCount int
	Duration    time.Duration
	CreatedAt   time.Time
}

// Stats contains coverage statistics for the record store
type Stats struct {
	TotalMemories    int
	EmbeddedMemories int
	CoveragePercent  float64
	EmbeddingModel   string
	SearchCount      int
	LastMemoryAt     time.Time
}
