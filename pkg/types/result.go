package types

import (
	"math"
	"strconv"
	"time"
)

// Hybrid score weights
const (
	LexicalWeight  = 0.4
	SemanticWeight = 0.6
)

// HybridScore combines a lexical hit count with a cosine similarity.
// The hit count is squashed into [0,1) and negative similarity counts as none.
func HybridScore(lexical, semantic float64) float64 {
	lex := 0.0
	if lexical > 0 {
		lex = lexical / (1 + lexical)
	}
	return LexicalWeight*lex + SemanticWeight*math.Max(semantic, 0)
}

// MatchType identifies the phase that produced a result
type MatchType string

const (
	MatchKeyword  MatchType = "keyword"
	MatchExpanded MatchType = "expanded"
	MatchSemantic MatchType = "semantic"
	MatchFile     MatchType = "file"
)

// ScoredResult is a transient reference to a memory record with relevance information
type ScoredResult struct {
	// Identification
	MemoryID  string `json:"memory_id"`
	ParentID  string `json:"parent_id,omitempty"`
	AuthorID  string `json:"author_id,omitempty"`
	SubjectID string `json:"subject_id,omitempty"`

	// Record payload
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`

	// Scoring
	RelevanceScore float64   `json:"relevance_score"` // Hit count for lexical phases, cosine for semantic
	MatchType      MatchType `json:"match_type"`
	MatchedTerm    string    `json:"matched_term,omitempty"`
	HybridScore    float64   `json:"hybrid_score,omitempty"` // Set when ranking merged result sets
}

// NewScoredResult builds a result that references rec
func NewScoredResult(rec *MemoryRecord, score float64, matchType MatchType, term string) ScoredResult {
	return ScoredResult{
		MemoryID:       rec.ID,
		ParentID:       rec.ParentID,
		AuthorID:       rec.AuthorID,
		SubjectID:      rec.SubjectID,
		Content:        rec.Content,
		Type:           rec.Type,
		CreatedAt:      rec.CreatedAt,
		RelevanceScore: score,
		MatchType:      matchType,
		MatchedTerm:    term,
	}
}

// Validate checks if the scored result is well formed
func (sr *ScoredResult) Validate() error {
	if sr.MemoryID == "" {
		return ErrInvalidMemoryID
	}

	switch sr.MatchType {
	case MatchKeyword, MatchExpanded:
		if sr.RelevanceScore < 0 {
			return ErrInvalidRelevanceScore
		}
	case MatchSemantic:
		if sr.RelevanceScore < -1 || sr.RelevanceScore > 1 {
			return ErrInvalidRelevanceScore
		}
	default:
		return ErrInvalidMatchType
	}

	return nil
}

// FileMatch is a single hit produced by the file phase
type FileMatch struct {
	Path      string    `json:"file_path"` // Relative to the search base path
	FullPath  string    `json:"full_path"`
	Line      int       `json:"line"` // 1-based line of the match
	Snippet   string    `json:"content"`
	FileType  string    `json:"file_type"`
	FileSize  int64     `json:"file_size"`
	MatchType MatchType `json:"match_type"`
}

// Key identifies a file hit for deduplication
func (f *FileMatch) Key() string {
	return f.FullPath + ":" + strconv.Itoa(f.Line)
}
