package types

import (
	"strings"
	"time"
)

// MemoryRecord is an immutable, append-only fact in the knowledge store
type MemoryRecord struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id"` // Threading reference; equals ID for root records
	AuthorID  string    `json:"author_id"`
	SubjectID string    `json:"subject_id"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// IsRoot reports whether the record starts its own thread
func (m *MemoryRecord) IsRoot() bool {
	return m.ParentID == "" || m.ParentID == m.ID
}

// Validate checks the record before it is appended
func (m *MemoryRecord) Validate() error {
	if strings.TrimSpace(m.Content) == "" {
		return ErrEmptyContent
	}
	if m.AuthorID == "" {
		return ErrMissingAuthor
	}
	return nil
}
