// Package indexer backfills embeddings for memory records.
//
// A backfill lists records that lack an embedding for the configured model (or
// every record in scope when forced), embeds their content in batches on an ants
// worker pool and stores each batch in one transaction. Content is truncated to
// MaxEmbedRunes runes before embedding and the stored content hash covers the
// truncated text.
//
//	idx := indexer.New(store, emb, storage.RecordFilter{}, logger)
//	stats, err := idx.Backfill(ctx, &indexer.Config{Limit: 500})
//
// Only one backfill runs at a time; a second call returns ErrIndexingInProgress.
package indexer
