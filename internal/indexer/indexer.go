package indexer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/panjf2000/ants/v2"

	"github.com/dshills/memsearch-mcp/internal/embedder"
	"github.com/dshills/memsearch-mcp/internal/storage"
	"github.com/dshills/memsearch-mcp/pkg/types"
)

// MaxEmbedRunes is the longest prefix of a record embedded
const MaxEmbedRunes = 1000

// DefaultBatchSize is the number of records embedded per request
const DefaultBatchSize = 16

// ErrIndexingInProgress is returned when a backfill is already running
var ErrIndexingInProgress = errors.New("embedding backfill already in progress")

// Indexer backfills embeddings for memory records: fetch -> embed -> store
type Indexer struct {
	storage  storage.Storage
	embedder embedder.Embedder
	logger   *log.Logger
	scope    storage.RecordFilter
	lock     IndexLock

	// Worker pool configuration
	workers int
}

// Config contains configuration for a backfill run
type Config struct {
	Force     bool // Re-embed records that already have an embedding
	Limit     int  // Maximum records to process; 0 means all
	Workers   int  // Concurrent embedding workers (default: runtime.NumCPU()/2)
	BatchSize int  // Records per embedding request (default: 16)
}

// Statistics contains the outcome of a backfill run
type Statistics struct {
	Processed     int
	Stored        int
	Skipped       int
	Failed        int
	Duration      time.Duration
	ErrorMessages []string
}

// New creates a new Indexer instance. scope limits which records are embedded.
func New(store storage.Storage, emb embedder.Embedder, scope storage.RecordFilter, logger *log.Logger) *Indexer {
	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}
	return &Indexer{
		storage:  store,
		embedder: emb,
		logger:   logger,
		scope:    scope,
		workers:  workers,
	}
}

// Running reports whether a backfill is in progress
func (idx *Indexer) Running() bool {
	return idx.lock.Running()
}

// Backfill embeds records that have no embedding for the configured model, or
// every record in scope when Force is set. Only one run may be active at a time.
// Individual failures are counted and do not stop the run.
func (idx *Indexer) Backfill(ctx context.Context, config *Config) (*Statistics, error) {
	if config == nil {
		config = &Config{}
	}
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	model := idx.embedder.Model()
	if model == "" {
		return nil, fmt.Errorf("%w: no embedding provider configured", types.ErrServiceUnavailable)
	}

	workers := config.Workers
	if workers <= 0 {
		workers = idx.workers
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	startTime := time.Now()
	records, err := idx.candidates(ctx, model, config)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	stats := &Statistics{ErrorMessages: make([]string, 0)}
	if len(records) == 0 {
		stats.Duration = time.Since(startTime)
		return stats, nil
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		stored  atomic.Int32
		skipped atomic.Int32
		failed  atomic.Int32
		mu      sync.Mutex // Protect stats.ErrorMessages
		wg      sync.WaitGroup
	)
	fail := func(n int, err error) {
		failed.Add(int32(n))
		mu.Lock()
		stats.ErrorMessages = append(stats.ErrorMessages, err.Error())
		mu.Unlock()
	}

	for i := 0; i < len(records); i += batchSize {
		batch := records[i:min(i+batchSize, len(records))]

		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			s, k, err := idx.embedBatch(ctx, model, batch, config.Force)
			stored.Add(int32(s))
			skipped.Add(int32(k))
			if err != nil {
				fail(len(batch)-s-k, err)
			}
		})
		if submitErr != nil {
			wg.Done()
			fail(len(batch), fmt.Errorf("failed to submit batch: %w", submitErr))
		}
	}
	wg.Wait()

	stats.Processed = len(records)
	stats.Stored = int(stored.Load())
	stats.Skipped = int(skipped.Load())
	stats.Failed = int(failed.Load())
	stats.Duration = time.Since(startTime)

	idx.logger.Info("embedding backfill finished",
		"model", model, "processed", stats.Processed, "stored", stats.Stored,
		"skipped", stats.Skipped, "failed", stats.Failed, "duration", stats.Duration)
	return stats, nil
}

// candidates lists the records a run should embed
func (idx *Indexer) candidates(ctx context.Context, model string, config *Config) ([]*types.MemoryRecord, error) {
	scope := idx.scope
	if config.Force {
		return idx.storage.FetchRecent(ctx, config.Limit, &scope)
	}
	return idx.storage.ListMissingEmbeddings(ctx, model, config.Limit, &scope)
}

// embedBatch embeds a batch and stores the vectors in one transaction.
// It returns how many vectors were stored and how many already existed.
func (idx *Indexer) embedBatch(ctx context.Context, model string, batch []*types.MemoryRecord, force bool) (int, int, error) {
	texts := make([]string, len(batch))
	for i, rec := range batch {
		texts[i] = TruncateContent(rec.Content, MaxEmbedRunes)
	}

	resp, err := idx.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
	if err != nil {
		return 0, 0, fmt.Errorf("embed batch starting at %s: %w", batch[0].ID, err)
	}
	if len(resp.Embeddings) != len(batch) {
		return 0, 0, fmt.Errorf("embed batch starting at %s: got %d vectors for %d records", batch[0].ID, len(resp.Embeddings), len(batch))
	}

	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stored, skipped := 0, 0
	for i, rec := range batch {
		ok, err := tx.StoreEmbedding(ctx, &storage.EmbeddingRecord{
			MemoryID:    rec.ID,
			Vector:      resp.Embeddings[i].Vector,
			ModelName:   model,
			ContentHash: embedder.ComputeHash(texts[i]),
		}, force)
		if err != nil {
			return 0, 0, fmt.Errorf("store embedding for %s: %w", rec.ID, err)
		}
		if ok {
			stored++
		} else {
			skipped++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return stored, skipped, nil
}

// TruncateContent returns at most n runes of s
func TruncateContent(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
