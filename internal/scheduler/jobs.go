package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chalssak/chalssak/internal/channel"
	"github.com/chalssak/chalssak/internal/gemini"
)

// channelStore is the slice of the channel store the jobs need.
type channelStore interface {
	ListActive(ctx context.Context, limit, offset int) ([]*channel.Channel, error)
	UpdateStats(ctx context.Context, externalStoreID string, fileCount *int, totalSizeBytes *int64) error
}

// documentLister is the slice of the gemini gateway the stats sync needs.
type documentLister interface {
	ListDocuments(ctx context.Context, storeName string) ([]gemini.Document, error)
}

// storeDeleter is the slice of the gemini gateway the cleanup needs.
type storeDeleter interface {
	DeleteStore(ctx context.Context, name string, force bool) gemini.DeleteOutcome
}

// trashStore is the slice of the trash manager the cleanup needs.
type trashStore interface {
	ListExpiredChannelIDs(ctx context.Context) ([]string, error)
	CleanupExpiredChannels(ctx context.Context, externalStoreIDs []string) (int, error)
	CleanupExpiredNotes(ctx context.Context) (int, error)
}

// ScanResult tallies the lifecycle scan.
type ScanResult struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Idle     int `json:"idle"`
	Inactive int `json:"inactive"`
}

// StatsSyncResult reports how many channels the sync refreshed.
type StatsSyncResult struct {
	Updated int `json:"updated"`
	Total   int `json:"total"`
}

// CleanupResult reports the expired-trash purge.
type CleanupResult struct {
	DeletedChannels int `json:"deleted_channels"`
	DeletedNotes    int `json:"deleted_notes"`
	GeminiDeleted   int `json:"gemini_deleted"`
	GeminiFailed    int `json:"gemini_failed"`
}

// NewScanJob builds the inactive-channel scan: classify every active
// channel, tally the states, log the idle and inactive ones. Observes
// only, mutates nothing.
func NewScanJob(store channelStore, policy channel.LifecyclePolicy, interval time.Duration, logger *slog.Logger) Job {
	return Job{
		Name:     "lifecycle-scan",
		Interval: interval,
		Run: func(ctx context.Context) (any, error) {
			channels, err := store.ListActive(ctx, 0, 0)
			if err != nil {
				return nil, fmt.Errorf("listing channels: %w", err)
			}

			now := time.Now()
			result := ScanResult{Total: len(channels)}
			for _, ch := range channels {
				status := policy.Classify(ch.LastAccessedAt, now)
				switch status.State {
				case channel.StateActive:
					result.Active++
				case channel.StateIdle:
					result.Idle++
					logger.Info("channel is idle",
						"channel", ch.ExternalStoreID, "name", ch.Name,
						"days_since_access", status.DaysSinceAccess)
				case channel.StateInactive:
					result.Inactive++
					logger.Warn("channel is inactive and eligible for cleanup",
						"channel", ch.ExternalStoreID, "name", ch.Name,
						"days_since_access", status.DaysSinceAccess)
				}
			}
			return result, nil
		},
	}
}

// NewStatsSyncJob builds the stats sync: pull ground truth document
// counts and sizes from the remote gateway and write them over the local
// advisory counters. Per-channel failures are logged and skipped so one
// bad store does not starve the rest.
func NewStatsSyncJob(store channelStore, gateway documentLister, interval time.Duration, logger *slog.Logger) Job {
	return Job{
		Name:     "stats-sync",
		Interval: interval,
		Run: func(ctx context.Context) (any, error) {
			channels, err := store.ListActive(ctx, 0, 0)
			if err != nil {
				return nil, fmt.Errorf("listing channels: %w", err)
			}

			result := StatsSyncResult{Total: len(channels)}
			for _, ch := range channels {
				docs, err := gateway.ListDocuments(ctx, ch.ExternalStoreID)
				if err != nil {
					logger.Warn("skipping stats sync for channel",
						"channel", ch.ExternalStoreID, "error", err)
					continue
				}

				fileCount := len(docs)
				var totalSize int64
				for _, doc := range docs {
					totalSize += doc.SizeBytes
				}

				if err := store.UpdateStats(ctx, ch.ExternalStoreID, &fileCount, &totalSize); err != nil {
					logger.Warn("writing synced stats failed",
						"channel", ch.ExternalStoreID, "error", err)
					continue
				}
				result.Updated++
			}
			return result, nil
		},
	}
}

// NewTrashCleanupJob builds the expired-trash purge.
//
// The purge set is exactly the channels whose remote store deletion came
// back confirmed (deleted or already absent) — never a superset. A
// failed remote delete leaves the local row for the next run. Note
// cleanup runs regardless: notes have no remote counterpart.
func NewTrashCleanupJob(trash trashStore, gateway storeDeleter, interval time.Duration, logger *slog.Logger) Job {
	return Job{
		Name:     "trash-cleanup",
		Interval: interval,
		Run: func(ctx context.Context) (any, error) {
			expired, err := trash.ListExpiredChannelIDs(ctx)
			if err != nil {
				return nil, fmt.Errorf("listing expired channels: %w", err)
			}

			result := CleanupResult{}
			confirmed := make([]string, 0, len(expired))
			for _, id := range expired {
				outcome := gateway.DeleteStore(ctx, id, true)
				if outcome.Confirmed() {
					result.GeminiDeleted++
					confirmed = append(confirmed, id)
					continue
				}
				result.GeminiFailed++
				logger.Warn("remote store delete failed, retaining channel for next run",
					"channel", id, "error", outcome.Err)
			}

			deleted, err := trash.CleanupExpiredChannels(ctx, confirmed)
			if err != nil {
				return result, fmt.Errorf("purging channels: %w", err)
			}
			result.DeletedChannels = deleted

			notes, err := trash.CleanupExpiredNotes(ctx)
			if err != nil {
				return result, fmt.Errorf("purging notes: %w", err)
			}
			result.DeletedNotes = notes

			return result, nil
		},
	}
}
