// Package searcher implements the individual phases of a progressive memory search.
//
// Each phase is a stateless method on Searcher:
//   - KeywordSearch: case-insensitive substring scan of the most recent records
//   - ExpandedSearch: the keyword scan repeated for a query and its expansion terms
//   - SemanticSearch: cosine similarity between the enriched query and stored embeddings
//   - FileSearch: line matches in text files below a base path
//
// Phases never merge or deduplicate across each other; that is the job of the
// session and orchestrator packages.
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store, emb, searcher.DefaultConfig(), logger)
//
//	hits, err := s.KeywordSearch(ctx, "AI coordination", 0)
//	if err != nil {
//	    return err
//	}
//
//	files, err := s.FileSearch(ctx, "retry budget", []string{".md"}, "/docs", 0)
//
// # Degradation
//
// SemanticSearch returns an empty list together with an error wrapping
// types.ErrServiceUnavailable when the embedder cannot be reached. Lexical
// phases only fail when the record store fails (types.ErrStorageFailure).
//
// Status reports which phases can currently produce results.
package searcher
