package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/dshills/memsearch-mcp/pkg/types"
)

// searchSimilar performs vector similarity search using cosine similarity
func searchSimilar(ctx context.Context, q querier, queryVector []float32, minSimilarity float64, limit int, filter *EmbeddingFilter) ([]SimilarityResult, error) {
	if len(queryVector) == 0 || limit <= 0 {
		return []SimilarityResult{}, nil
	}
	// Use optimized SQL-based search when sqlite-vec is available
	if VectorExtensionAvailable {
		return searchSimilarOptimized(ctx, q, queryVector, minSimilarity, limit, filter)
	}
	// Fall back to Go-based computation for purego builds
	return searchSimilarFallback(ctx, q, queryVector, minSimilarity, limit, filter)
}

// searchSimilarOptimized uses sqlite-vec extension for SQL-based vector similarity search
func searchSimilarOptimized(ctx context.Context, q querier, queryVector []float32, minSimilarity float64, limit int, filter *EmbeddingFilter) ([]SimilarityResult, error) {
	queryVectorBlob := serializeVector(queryVector)

	// vec_distance_cosine returns distance (lower is better); convert to similarity
	scope, args := scopedEmbeddingsQuery(filter)
	query := `
		SELECT ` + memoryColumns + `, 1.0 - vec_distance_cosine(s.vector, ?) AS similarity
		FROM (` + scope + `) s
		INNER JOIN memories m ON m.id = s.memory_id
		WHERE s.dimension = ?
		AND (1.0 - vec_distance_cosine(s.vector, ?)) >= ?
		ORDER BY similarity DESC, m.seq DESC
		LIMIT ?
	`
	args = append([]interface{}{queryVectorBlob}, args...)
	args = append(args, len(queryVector), queryVectorBlob, minSimilarity, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]SimilarityResult, 0, limit)
	for rows.Next() {
		var similarity float64
		rec, err := scanMemoryWithScore(rows, &similarity)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, SimilarityResult{Record: rec, SimilarityScore: clampSimilarity(similarity)})
	}
	return results, rows.Err()
}

// searchSimilarFallback performs vector search using Go-based cosine similarity computation.
// This is used when sqlite-vec extension is not available (purego builds)
func searchSimilarFallback(ctx context.Context, q querier, queryVector []float32, minSimilarity float64, limit int, filter *EmbeddingFilter) ([]SimilarityResult, error) {
	embedded, err := fetchEmbeddings(ctx, q, filter)
	if err != nil {
		return nil, err
	}

	candidates := make([]candidate, 0, len(embedded))
	for i, em := range embedded {
		if len(em.Embedding.Vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}
		similarity := cosineSimilarity(queryVector, em.Embedding.Vector)
		if similarity < minSimilarity {
			continue
		}
		candidates = append(candidates, candidate{index: i, score: similarity})
	}

	sortCandidates(candidates)

	if limit > len(candidates) {
		limit = len(candidates)
	}
	results := make([]SimilarityResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = SimilarityResult{
			Record:          embedded[candidates[i].index].Record,
			SimilarityScore: candidates[i].score,
		}
	}
	return results, nil
}

// scopedEmbeddingsQuery builds the subquery selecting the embeddings in scope
func scopedEmbeddingsQuery(filter *EmbeddingFilter) (string, []interface{}) {
	query := `
		SELECT e.memory_id, e.vector, e.dimension
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
	return query, args
}

func scanMemoryWithScore(sc scanner, score *float64) (*types.MemoryRecord, error) {
	var rec types.MemoryRecord
	var createdAt string
	if err := sc.Scan(&rec.ID, &rec.ParentID, &rec.AuthorID, &rec.SubjectID,
		&rec.Content, &rec.Type, &createdAt, score); err != nil {
		return nil, err
	}
	rec.CreatedAt = parseTime(createdAt)
	return &rec, nil
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors.
// Zero-norm or mismatched vectors score 0; the result is clamped to [-1, 1].
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return clampSimilarity(dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)))
}

func clampSimilarity(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}

// candidate represents an embedded record with its similarity score
type candidate struct {
	index int
	score float64
}

// sortCandidates sorts candidates by score in descending order, keeping recency order on ties
func sortCandidates(candidates []candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
}
