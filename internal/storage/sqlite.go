package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/memsearch-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
	// ErrParentNotFound is returned when a record references a missing parent
	ErrParentNotFound = errors.New("parent record not found")
)

// timeLayout is fixed width so that TEXT ordering matches chronological ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by other tools may use RFC3339
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTx) querier() querier {
	return t.tx
}

func (s *SQLiteStorage) querier() querier {
	return s.db
}

// scanner abstracts *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

const memoryColumns = `m.id, m.parent_id, m.author_id, m.subject_id, m.content, m.type, m.created_at`

func scanMemory(sc scanner) (*types.MemoryRecord, error) {
	var rec types.MemoryRecord
	var createdAt string
	if err := sc.Scan(&rec.ID, &rec.ParentID, &rec.AuthorID, &rec.SubjectID,
		&rec.Content, &rec.Type, &createdAt); err != nil {
		return nil, err
	}
	rec.CreatedAt = parseTime(createdAt)
	return &rec, nil
}

// applyRecordFilter appends scope conditions for the memories table aliased as m
func applyRecordFilter(query string, args []interface{}, filter *RecordFilter) (string, []interface{}) {
	if filter == nil {
		return query, args
	}
	if filter.AuthorID != "" {
		query += " AND m.author_id = ?"
		args = append(args, filter.AuthorID)
	}
	if filter.SubjectID != "" {
		query += " AND m.subject_id = ?"
		args = append(args, filter.SubjectID)
	}
	if filter.Type != "" {
		query += " AND m.type = ?"
		args = append(args, filter.Type)
	}
	return query, args
}

// Record operations

// appendMemoryWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) appendMemoryWithQuerier(ctx context.Context, q querier, rec *types.MemoryRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ParentID == "" {
		rec.ParentID = rec.ID
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	if !rec.IsRoot() {
		var exists int
		err := q.QueryRowContext(ctx, "SELECT 1 FROM memories WHERE id = ?", rec.ParentID).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", ErrParentNotFound, rec.ParentID)
		}
		if err != nil {
			return fmt.Errorf("failed to check parent: %w", err)
		}
	}

	query := `
		INSERT INTO memories (id, parent_id, author_id, subject_id, content, type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`
	result, err := q.ExecContext(ctx, query,
		rec.ID, rec.ParentID, rec.AuthorID, rec.SubjectID, rec.Content, rec.Type, formatTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append memory: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: memory %s", ErrAlreadyExists, rec.ID)
	}
	return nil
}

func (s *SQLiteStorage) AppendMemory(ctx context.Context, rec *types.MemoryRecord) error {
	return s.appendMemoryWithQuerier(ctx, s.querier(), rec)
}

// AppendMemories appends records in a single transaction
func (s *SQLiteStorage) AppendMemories(ctx context.Context, records []*types.MemoryRecord) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := tx.AppendMemories(ctx, records); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) getMemoryWithQuerier(ctx context.Context, q querier, id string) (*types.MemoryRecord, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories m WHERE m.id = ?`
	rec, err := scanMemory(q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStorage) GetMemory(ctx context.Context, id string) (*types.MemoryRecord, error) {
	return s.getMemoryWithQuerier(ctx, s.querier(), id)
}

// fetchRecentWithQuerier returns records newest first; insertion order breaks timestamp ties
func (s *SQLiteStorage) fetchRecentWithQuerier(ctx context.Context, q querier, limit int, filter *RecordFilter) ([]*types.MemoryRecord, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories m WHERE 1=1`
	args := []interface{}{}
	query, args = applyRecordFilter(query, args, filter)
	query += " ORDER BY m.created_at DESC, m.seq DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]*types.MemoryRecord, 0)
	for rows.Next() {
		rec, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStorage) FetchRecent(ctx context.Context, limit int, filter *RecordFilter) ([]*types.MemoryRecord, error) {
	return s.fetchRecentWithQuerier(ctx, s.querier(), limit, filter)
}

// Embedding operations

// storeEmbeddingWithQuerier inserts, or replaces only when force is set
func (s *SQLiteStorage) storeEmbeddingWithQuerier(ctx context.Context, q querier, emb *EmbeddingRecord, force bool) (bool, error) {
	if emb.MemoryID == "" || emb.ModelName == "" {
		return false, fmt.Errorf("memory_id and model_name are required")
	}
	if len(emb.Vector) == 0 {
		return false, fmt.Errorf("empty vector for memory %s", emb.MemoryID)
	}
	if emb.CreatedAt.IsZero() {
		emb.CreatedAt = time.Now().UTC()
	}

	conflict := "DO NOTHING"
	if force {
		conflict = `DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			content_hash = excluded.content_hash,
			created_at = excluded.created_at`
	}
	query := `
		INSERT INTO memory_embeddings (memory_id, model_name, vector, dimension, content_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(memory_id, model_name) ` + conflict

	result, err := q.ExecContext(ctx, query,
		emb.MemoryID, emb.ModelName, serializeVector(emb.Vector), len(emb.Vector),
		emb.ContentHash, formatTime(emb.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("failed to store embedding: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStorage) StoreEmbedding(ctx context.Context, emb *EmbeddingRecord, force bool) (bool, error) {
	return s.storeEmbeddingWithQuerier(ctx, s.querier(), emb, force)
}

func (s *SQLiteStorage) getEmbeddingWithQuerier(ctx context.Context, q querier, memoryID, modelName string) (*EmbeddingRecord, error) {
	query := `
		SELECT memory_id, model_name, vector, content_hash, created_at
		FROM memory_embeddings
		WHERE memory_id = ? AND model_name = ?
	`
	var emb EmbeddingRecord
	var blob []byte
	var createdAt string
	err := q.QueryRowContext(ctx, query, memoryID, modelName).Scan(
		&emb.MemoryID, &emb.ModelName, &blob, &emb.ContentHash, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	emb.Vector = deserializeVector(blob)
	emb.CreatedAt = parseTime(createdAt)
	return &emb, nil
}

func (s *SQLiteStorage) GetEmbedding(ctx context.Context, memoryID, modelName string) (*EmbeddingRecord, error) {
	return s.getEmbeddingWithQuerier(ctx, s.querier(), memoryID, modelName)
}

// fetchEmbeddings joins stored vectors to their records, newest embeddings first
func fetchEmbeddings(ctx context.Context, q querier, filter *EmbeddingFilter) ([]*EmbeddedMemory, error) {
	query := `
		SELECT ` + memoryColumns + `, e.model_name, e.vector, e.content_hash, e.created_at
		FROM memory_embeddings e
		INNER JOIN memories m ON m.id = e.memory_id
		WHERE 1=1
	`
	args := []interface{}{}
	if filter != nil {
		if filter.ModelName != "" {
			query += " AND e.model_name = ?"
			args = append(args, filter.ModelName)
		}
		query, args = applyRecordFilter(query, args, &filter.RecordFilter)
	}
	query += " ORDER BY e.created_at DESC, m.seq DESC"
	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]*EmbeddedMemory, 0)
	for rows.Next() {
		var rec types.MemoryRecord
		var emb EmbeddingRecord
		var recCreated, embCreated string
		var blob []byte
		if err := rows.Scan(&rec.ID, &rec.ParentID, &rec.AuthorID, &rec.SubjectID,
			&rec.Content, &rec.Type, &recCreated,
			&emb.ModelName, &blob, &emb.ContentHash, &embCreated); err != nil {
			return nil, err
		}
		rec.CreatedAt = parseTime(recCreated)
		emb.MemoryID = rec.ID
		emb.Vector = deserializeVector(blob)
		emb.CreatedAt = parseTime(embCreated)
		results = append(results, &EmbeddedMemory{Record: &rec, Embedding: &emb})
	}
	return results, rows.Err()
}

func (s *SQLiteStorage) FetchEmbeddings(ctx context.Context, filter *EmbeddingFilter) ([]*EmbeddedMemory, error) {
	return fetchEmbeddings(ctx, s.querier(), filter)
}

// listMissingEmbeddingsWithQuerier returns records with no embedding for modelName, oldest first
func (s *SQLiteStorage) listMissingEmbeddingsWithQuerier(ctx context.Context, q querier, modelName string, limit int, filter *RecordFilter) ([]*types.MemoryRecord, error) {
	query := `
		SELECT ` + memoryColumns + `
		FROM memories m
		LEFT JOIN memory_embeddings e ON e.memory_id = m.id AND e.model_name = ?
		WHERE e.memory_id IS NULL
	`
	args := []interface{}{modelName}
	query, args = applyRecordFilter(query, args, filter)
	query += " ORDER BY m.created_at ASC, m.seq ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list missing embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]*types.MemoryRecord, 0)
	for rows.Next() {
		rec, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStorage) ListMissingEmbeddings(ctx context.Context, modelName string, limit int, filter *RecordFilter) ([]*types.MemoryRecord, error) {
	return s.listMissingEmbeddingsWithQuerier(ctx, s.querier(), modelName, limit, filter)
}

// Search operations

func (s *SQLiteStorage) SearchSimilar(ctx context.Context, vector []float32, minSimilarity float64, limit int, filter *EmbeddingFilter) ([]SimilarityResult, error) {
	return searchSimilar(ctx, s.querier(), vector, minSimilarity, limit, filter)
}

// Search log operations

func (s *SQLiteStorage) logSearchWithQuerier(ctx context.Context, q querier, entry *SearchLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO search_log (session_id, tool, query, result_count, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := q.ExecContext(ctx, query,
		entry.SessionID, entry.Tool, entry.Query, entry.ResultCount,
		entry.Duration.Milliseconds(), formatTime(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to log search: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = id
	return nil
}

func (s *SQLiteStorage) LogSearch(ctx context.Context, entry *SearchLogEntry) error {
	return s.logSearchWithQuerier(ctx, s.querier(), entry)
}

func (s *SQLiteStorage) recentSearchesWithQuerier(ctx context.Context, q querier, limit int) ([]*SearchLogEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT id, session_id, tool, query, result_count, duration_ms, created_at
		FROM search_log
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read search log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]*SearchLogEntry, 0)
	for rows.Next() {
		var e SearchLogEntry
		var durationMs int64
		var createdAt string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Tool, &e.Query, &e.ResultCount, &durationMs, &createdAt); err != nil {
			return nil, err
		}
		e.Duration = time.Duration(durationMs) * time.Millisecond
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStorage) RecentSearches(ctx context.Context, limit int) ([]*SearchLogEntry, error) {
	return s.recentSearchesWithQuerier(ctx, s.querier(), limit)
}

// Status operations

func (s *SQLiteStorage) statsWithQuerier(ctx context.Context, q querier, modelName string, filter *RecordFilter) (*Stats, error) {
	stats := &Stats{EmbeddingModel: modelName}

	query, args := applyRecordFilter(`SELECT COUNT(*), COALESCE(MAX(m.created_at), '') FROM memories m WHERE 1=1`, nil, filter)
	var lastCreated string
	if err := q.QueryRowContext(ctx, query, args...).Scan(&stats.TotalMemories, &lastCreated); err != nil {
		return nil, fmt.Errorf("failed to count memories: %w", err)
	}
	if lastCreated != "" {
		stats.LastMemoryAt = parseTime(lastCreated)
	}

	query = `
		SELECT COUNT(*) FROM memory_embeddings e
		INNER JOIN memories m ON m.id = e.memory_id
		WHERE e.model_name = ?
	`
	query, args = applyRecordFilter(query, []interface{}{modelName}, filter)
	if err := q.QueryRowContext(ctx, query, args...).Scan(&stats.EmbeddedMemories); err != nil {
		return nil, fmt.Errorf("failed to count embeddings: %w", err)
	}

	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM search_log").Scan(&stats.SearchCount); err != nil {
		return nil, fmt.Errorf("failed to count searches: %w", err)
	}

	if stats.TotalMemories > 0 {
		stats.CoveragePercent = roundTo(float64(stats.EmbeddedMemories)/float64(stats.TotalMemories)*100, 1)
	}
	return stats, nil
}

func (s *SQLiteStorage) Stats(ctx context.Context, modelName string, filter *RecordFilter) (*Stats, error) {
	return s.statsWithQuerier(ctx, s.querier(), modelName, filter)
}

func roundTo(v float64, places int) float64 {
	p := 1.0
	for i := 0; i < places; i++ {
		p *= 10
	}
	return float64(int64(v*p+0.5)) / p
}

// Transaction implementations. With a single pooled connection every call
// inside a transaction must go through the tx querier or it would block.

func (t *sqliteTx) AppendMemory(ctx context.Context, rec *types.MemoryRecord) error {
	return t.storage.appendMemoryWithQuerier(ctx, t.querier(), rec)
}

func (t *sqliteTx) AppendMemories(ctx context.Context, records []*types.MemoryRecord) error {
	for i, rec := range records {
		if err := t.storage.appendMemoryWithQuerier(ctx, t.querier(), rec); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

func (t *sqliteTx) GetMemory(ctx context.Context, id string) (*types.MemoryRecord, error) {
	return t.storage.getMemoryWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) FetchRecent(ctx context.Context, limit int, filter *RecordFilter) ([]*types.MemoryRecord, error) {
	return t.storage.fetchRecentWithQuerier(ctx, t.querier(), limit, filter)
}

func (t *sqliteTx) StoreEmbedding(ctx context.Context, emb *EmbeddingRecord, force bool) (bool, error) {
	return t.storage.storeEmbeddingWithQuerier(ctx, t.querier(), emb, force)
}

func (t *sqliteTx) GetEmbedding(ctx context.Context, memoryID, modelName string) (*EmbeddingRecord, error) {
	return t.storage.getEmbeddingWithQuerier(ctx, t.querier(), memoryID, modelName)
}

func (t *sqliteTx) FetchEmbeddings(ctx context.Context, filter *EmbeddingFilter) ([]*EmbeddedMemory, error) {
	return fetchEmbeddings(ctx, t.querier(), filter)
}

func (t *sqliteTx) ListMissingEmbeddings(ctx context.Context, modelName string, limit int, filter *RecordFilter) ([]*types.MemoryRecord, error) {
	return t.storage.listMissingEmbeddingsWithQuerier(ctx, t.querier(), modelName, limit, filter)
}

func (t *sqliteTx) SearchSimilar(ctx context.Context, vector []float32, minSimilarity float64, limit int, filter *EmbeddingFilter) ([]SimilarityResult, error) {
	return searchSimilar(ctx, t.querier(), vector, minSimilarity, limit, filter)
}

func (t *sqliteTx) LogSearch(ctx context.Context, entry *SearchLogEntry) error {
	return t.storage.logSearchWithQuerier(ctx, t.querier(), entry)
}

func (t *sqliteTx) RecentSearches(ctx context.Context, limit int) ([]*SearchLogEntry, error) {
	return t.storage.recentSearchesWithQuerier(ctx, t.querier(), limit)
}

func (t *sqliteTx) Stats(ctx context.Context, modelName string, filter *RecordFilter) (*Stats, error) {
	return t.storage.statsWithQuerier(ctx, t.querier(), modelName, filter)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
