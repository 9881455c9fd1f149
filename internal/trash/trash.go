// Package trash implements soft deletion with retention for channels and
// notes.
//
// Items move ACTIVE → TRASHED on delete, back to ACTIVE on restore, and
// TRASHED → PURGED when retention expires or the user empties the trash.
// Purging is irreversible.
//
// The one invariant everything here bends around: a channel row is never
// purged unless the remote store deletion came back confirmed — either
// deleted or already absent. A failed remote delete keeps the local row so
// a later run can retry; the alternative is an orphaned remote store that
// nothing references and nothing will ever clean up. EmptyAll is the
// explicit, user-confirmed exception and logs every orphan risk it takes.
package trash

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the named item is not in the trash.
	ErrNotFound = errors.New("item not found in trash")

	// ErrConfirmationRequired is returned by EmptyAll without confirm.
	ErrConfirmationRequired = errors.New("emptying trash requires explicit confirmation")
)

// ItemType discriminates entries in the merged trash listing.
type ItemType string

const (
	TypeChannel ItemType = "channel"
	TypeNote    ItemType = "note"
)

// previewLen is how much note content the trash listing shows.
const previewLen = 100

// TrashedItem is one row in the merged trash listing. FileCount is set
// for channels only, ChannelID and Preview for notes only.
type TrashedItem struct {
	Type          ItemType  `json:"type"`
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Preview       string    `json:"preview,omitempty"`
	FileCount     *int64    `json:"file_count,omitempty"`
	ChannelID     *int64    `json:"channel_id,omitempty"`
	DeletedAt     time.Time `json:"deleted_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	DaysRemaining int       `json:"days_remaining"`
}

// Stats summarizes trash contents for the stats endpoint.
type Stats struct {
	TrashedChannels int `json:"trashed_channels"`
	TrashedNotes    int `json:"trashed_notes"`
	Total           int `json:"total"`
}

// EmptyResult reports what EmptyAll did.
type EmptyResult struct {
	DeletedChannels int `json:"deleted_channels"`
	DeletedNotes    int `json:"deleted_notes"`
	GeminiDeleted   int `json:"gemini_deleted"`
	GeminiFailed    int `json:"gemini_failed"`
}

// preview truncates note content for the listing.
func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLen {
		return content
	}
	return string(runes[:previewLen]) + "…"
}

// expiry computes when a trashed item will be purged and how many days
// remain, counting elapsed whole days and clamping at zero for overdue
// items.
func expiry(deletedAt time.Time, retentionDays int, now time.Time) (time.Time, int) {
	expiresAt := deletedAt.AddDate(0, 0, retentionDays)
	elapsed := int(now.Sub(deletedAt).Hours() / 24)
	remaining := retentionDays - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return expiresAt, remaining
}
