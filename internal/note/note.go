// Package note provides per-channel user notes with soft deletion and
// best-effort semantic search.
//
// Each note may carry a vector embedding of its title and content. The
// embedding is advisory: when the embed call fails the note is stored with
// a NULL embedding and simply does not participate in semantic search until
// a later update succeeds.
package note

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a note does not exist, is trashed, or
// belongs to a different channel than the caller named.
var ErrNotFound = errors.New("note not found")

// Source references a grounding source a note was derived from.
type Source struct {
	Source  string `json:"source"`
	Page    *int   `json:"page,omitempty"`
	Content string `json:"content,omitempty"`
}

// Note is a user-authored note scoped to a channel.
type Note struct {
	ID        int64      `json:"id"`
	ChannelID int64      `json:"channel_id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Sources   []Source   `json:"sources"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Trashed reports whether the note is soft-deleted.
func (n *Note) Trashed() bool {
	return n.DeletedAt != nil
}

// SearchResult pairs a note with its cosine distance to the query
// embedding. Lower distance means a closer match.
type SearchResult struct {
	Note     *Note   `json:"note"`
	Distance float64 `json:"distance"`
}
