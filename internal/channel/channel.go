// Package channel manages local metadata for document collections.
//
// A channel is the local counterpart of a remote Gemini File Search store:
// identity, display name, access tracking, and cached usage counters. The
// counters (file count, total size) are advisory caches of remote state,
// reconciled periodically by the stats sync job — capacity checks may
// under- or over-admit uploads by a small margin between syncs.
package channel

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the channel does not exist (or is in trash).
	ErrNotFound = errors.New("channel not found")

	// ErrDuplicateStore indicates the external store ID is already bound
	// to another channel.
	ErrDuplicateStore = errors.New("external store ID already in use")
)

// Channel is the persisted metadata record for one document collection.
type Channel struct {
	ID              int64
	ExternalStoreID string
	Name            string
	Description     string
	CreatedAt       time.Time
	LastAccessedAt  time.Time
	FileCount       int
	TotalSizeBytes  int64
	DeletedAt       *time.Time
}

// Trashed reports whether the channel is soft-deleted.
func (c *Channel) Trashed() bool {
	return c.DeletedAt != nil
}
