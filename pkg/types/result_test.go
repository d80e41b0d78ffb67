package types

import (
	"errors"
	"testing"
	"time"
)

func TestScoredResultValidate(t *testing.T) {
	tests := []struct {
		name    string
		result  ScoredResult
		wantErr error
	}{
		{name: "keyword", result: ScoredResult{MemoryID: "m", MatchType: MatchKeyword, RelevanceScore: 3}},
		{name: "expanded zero", result: ScoredResult{MemoryID: "m", MatchType: MatchExpanded}},
		{name: "negative hits", result: ScoredResult{MemoryID: "m", MatchType: MatchKeyword, RelevanceScore: -1}, wantErr: ErrInvalidRelevanceScore},
		{name: "semantic bounds", result: ScoredResult{MemoryID: "m", MatchType: MatchSemantic, RelevanceScore: -1}},
		{name: "semantic too high", result: ScoredResult{MemoryID: "m", MatchType: MatchSemantic, RelevanceScore: 1.01}, wantErr: ErrInvalidRelevanceScore},
		{name: "missing id", result: ScoredResult{MatchType: MatchKeyword}, wantErr: ErrInvalidMemoryID},
		{name: "unknown type", result: ScoredResult{MemoryID: "m", MatchType: "web"}, wantErr: ErrInvalidMatchType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewScoredResult(t *testing.T) {
	rec := &MemoryRecord{ID: "m1", ParentID: "m0", AuthorID: "a", Content: "text", CreatedAt: time.Unix(10, 0)}
	r := NewScoredResult(rec, 2, MatchExpanded, "term")

	if r.MemoryID != "m1" || r.ParentID != "m0" || r.Content != "text" {
		t.Errorf("record fields not copied: %+v", r)
	}
	if r.MatchType != MatchExpanded || r.MatchedTerm != "term" || r.RelevanceScore != 2 {
		t.Errorf("scoring fields not set: %+v", r)
	}
}

func TestHybridScore(t *testing.T) {
	tests := []struct {
		name           string
		lex, sem, want float64
	}{
		{name: "nothing", want: 0},
		{name: "one hit", lex: 1, want: 0.2},
		{name: "perfect semantic", sem: 1, want: 0.6},
		{name: "negative semantic ignored", lex: 1, sem: -0.5, want: 0.2},
		{name: "both", lex: 3, sem: 0.5, want: 0.4*0.75 + 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HybridScore(tt.lex, tt.sem)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("HybridScore(%v, %v) = %v, want %v", tt.lex, tt.sem, got, tt.want)
			}
		})
	}
	if HybridScore(1000, 1) >= 1 {
		t.Error("hybrid score must stay below 1")
	}
}

func TestMemoryRecord(t *testing.T) {
	if err := (&MemoryRecord{AuthorID: "a", Content: " "}).Validate(); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("Validate() = %v, want ErrEmptyContent", err)
	}
	if err := (&MemoryRecord{Content: "x"}).Validate(); !errors.Is(err, ErrMissingAuthor) {
		t.Errorf("Validate() = %v, want ErrMissingAuthor", err)
	}
	if !(&MemoryRecord{ID: "a", ParentID: "a"}).IsRoot() {
		t.Error("self-parented record should be root")
	}
	if (&MemoryRecord{ID: "b", ParentID: "a"}).IsRoot() {
		t.Error("reply should not be root")
	}
}

func TestFileMatchKey(t *testing.T) {
	f := FileMatch{FullPath: "/tmp/notes.md", Line: 12}
	if got := f.Key(); got != "/tmp/notes.md:12" {
		t.Errorf("Key() = %s", got)
	}
}
