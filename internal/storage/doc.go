// Package storage provides SQLite-based persistence for memory records and their embeddings.
//
// The storage layer manages:
//   - Append-only memory records with threading (parent_id)
//   - Optional per-model vector embeddings for records
//   - A search log used for status reporting
//
// # Database Schema
//
// Tables:
//   - schema_version: Applied migrations (semver)
//   - memories: Immutable records ordered by created_at, then insertion sequence
//   - memory_embeddings: One vector per (memory_id, model_name)
//   - search_log: Tool invocations with result counts and durations
//
// Timestamps are stored as fixed-width UTC text so that lexical ordering
// matches chronological ordering.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.memsearch/memories.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	err = db.AppendMemory(ctx, &types.MemoryRecord{
//	    AuthorID: "agent-1",
//	    Content:  "staging deploys run blue/green",
//	})
//
//	recent, err := db.FetchRecent(ctx, 300, &storage.RecordFilter{AuthorID: "agent-1"})
//
// # Vector Operations
//
// Embeddings are written once unless force is set:
//
//	stored, err := db.StoreEmbedding(ctx, &storage.EmbeddingRecord{
//	    MemoryID:  rec.ID,
//	    ModelName: "nomic-embed-text",
//	    Vector:    vector,
//	}, false)
//
//	results, err := db.SearchSimilar(ctx, queryVector, 0.4, 5, &storage.EmbeddingFilter{
//	    ModelName: "nomic-embed-text",
//	})
//
// Vectors whose dimension differs from the query are skipped. Similarity is
// cosine, clamped to [-1, 1], and zero when either vector has zero norm.
//
// # Build Tags
//
// CGO Build (sqlite_vec tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Computes similarity in SQL with vec_distance_cosine
//
//     CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (default):
//
//   - Uses modernc.org/sqlite driver
//
//   - Computes similarity in Go
//
//     CGO_ENABLED=0 go build -tags "purego"
package storage
