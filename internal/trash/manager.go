package trash

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chalssak/chalssak/internal/gemini"
)

// StoreDeleter is the slice of the gemini gateway the trash manager needs.
type StoreDeleter interface {
	DeleteStore(ctx context.Context, name string, force bool) gemini.DeleteOutcome
}

// Manager owns the trash lifecycle for channels and notes.
//
// Manager is safe for concurrent use by multiple goroutines.
type Manager struct {
	pool          *pgxpool.Pool
	gateway       StoreDeleter
	retentionDays int
	logger        *slog.Logger
}

// NewManager creates a trash Manager.
func NewManager(pool *pgxpool.Pool, gateway StoreDeleter, retentionDays int, logger *slog.Logger) (*Manager, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if retentionDays < 1 {
		return nil, fmt.Errorf("retention days must be at least 1, got %d", retentionDays)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{pool: pool, gateway: gateway, retentionDays: retentionDays, logger: logger}, nil
}

// RetentionDays returns the configured retention window.
func (m *Manager) RetentionDays() int {
	return m.retentionDays
}

// SoftDeleteChannel moves an active channel to the trash. The remote
// store is untouched so restore costs nothing.
func (m *Manager) SoftDeleteChannel(ctx context.Context, externalStoreID string) error {
	tag, err := m.pool.Exec(ctx,
		`UPDATE channels SET deleted_at = now()
		 WHERE external_store_id = $1 AND deleted_at IS NULL`,
		externalStoreID,
	)
	if err != nil {
		return fmt.Errorf("trashing channel %s: %w", externalStoreID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	m.logger.Info("channel moved to trash", "channel", externalStoreID)
	return nil
}

// SoftDeleteNote moves an active note to the trash.
func (m *Manager) SoftDeleteNote(ctx context.Context, noteID int64) error {
	tag, err := m.pool.Exec(ctx,
		`UPDATE notes SET deleted_at = now()
		 WHERE id = $1 AND deleted_at IS NULL`,
		noteID,
	)
	if err != nil {
		return fmt.Errorf("trashing note %d: %w", noteID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RestoreChannel moves a trashed channel back to active and touches
// last_accessed_at so restoring does not land it straight in the
// inactive bucket.
func (m *Manager) RestoreChannel(ctx context.Context, externalStoreID string) error {
	tag, err := m.pool.Exec(ctx,
		`UPDATE channels SET deleted_at = NULL, last_accessed_at = now()
		 WHERE external_store_id = $1 AND deleted_at IS NOT NULL`,
		externalStoreID,
	)
	if err != nil {
		return fmt.Errorf("restoring channel %s: %w", externalStoreID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	m.logger.Info("channel restored from trash", "channel", externalStoreID)
	return nil
}

// RestoreNote moves a trashed note back to active.
func (m *Manager) RestoreNote(ctx context.Context, noteID int64) error {
	tag, err := m.pool.Exec(ctx,
		`UPDATE notes SET deleted_at = NULL, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NOT NULL`,
		noteID,
	)
	if err != nil {
		return fmt.Errorf("restoring note %d: %w", noteID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTrashed returns the merged channel and note trash listing, most
// recently deleted first.
func (m *Manager) ListTrashed(ctx context.Context) ([]TrashedItem, error) {
	now := time.Now()
	items := []TrashedItem{}

	rows, err := m.pool.Query(ctx,
		`SELECT external_store_id, name, description, file_count, deleted_at
		 FROM channels WHERE deleted_at IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("listing trashed channels: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, name, description string
		var fileCount int64
		var deletedAt time.Time
		if err := rows.Scan(&id, &name, &description, &fileCount, &deletedAt); err != nil {
			return nil, fmt.Errorf("scanning trashed channel: %w", err)
		}
		expiresAt, remaining := expiry(deletedAt, m.retentionDays, now)
		items = append(items, TrashedItem{
			Type: TypeChannel, ID: id, Name: name,
			Description: description, FileCount: &fileCount,
			DeletedAt: deletedAt, ExpiresAt: expiresAt, DaysRemaining: remaining,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trashed channels: %w", err)
	}

	noteRows, err := m.pool.Query(ctx,
		`SELECT id, channel_id, title, content, deleted_at
		 FROM notes WHERE deleted_at IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("listing trashed notes: %w", err)
	}
	defer noteRows.Close()
	for noteRows.Next() {
		var id, channelID int64
		var title, content string
		var deletedAt time.Time
		if err := noteRows.Scan(&id, &channelID, &title, &content, &deletedAt); err != nil {
			return nil, fmt.Errorf("scanning trashed note: %w", err)
		}
		expiresAt, remaining := expiry(deletedAt, m.retentionDays, now)
		items = append(items, TrashedItem{
			Type: TypeNote, ID: strconv.FormatInt(id, 10), Name: title,
			Preview: preview(content), ChannelID: &channelID,
			DeletedAt: deletedAt, ExpiresAt: expiresAt, DaysRemaining: remaining,
		})
	}
	if err := noteRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trashed notes: %w", err)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].DeletedAt.After(items[j].DeletedAt)
	})
	return items, nil
}

// PermanentDeleteChannel purges a single trashed channel. The remote
// store must be confirmed gone first; a failed remote delete keeps the
// local row and returns the failure.
func (m *Manager) PermanentDeleteChannel(ctx context.Context, externalStoreID string) error {
	var trashed bool
	err := m.pool.QueryRow(ctx,
		`SELECT deleted_at IS NOT NULL FROM channels WHERE external_store_id = $1`,
		externalStoreID,
	).Scan(&trashed)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("looking up channel %s: %w", externalStoreID, err)
	}
	if !trashed {
		return ErrNotFound
	}

	outcome := m.gateway.DeleteStore(ctx, externalStoreID, true)
	if !outcome.Confirmed() {
		return fmt.Errorf("remote store deletion unconfirmed, keeping local record: %w", outcome.Err)
	}

	if _, err := m.pool.Exec(ctx,
		`DELETE FROM channels WHERE external_store_id = $1 AND deleted_at IS NOT NULL`,
		externalStoreID,
	); err != nil {
		return fmt.Errorf("purging channel %s: %w", externalStoreID, err)
	}
	m.logger.Info("channel purged from trash",
		"channel", externalStoreID, "remote", string(outcome.Status))
	return nil
}

// PermanentDeleteNote purges a single trashed note. Notes have no remote
// counterpart, so this is purely local.
func (m *Manager) PermanentDeleteNote(ctx context.Context, noteID int64) error {
	tag, err := m.pool.Exec(ctx,
		`DELETE FROM notes WHERE id = $1 AND deleted_at IS NOT NULL`,
		noteID,
	)
	if err != nil {
		return fmt.Errorf("purging note %d: %w", noteID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// EmptyAll purges everything in the trash at once. Remote store deletes
// are best-effort: a failure is logged as an orphan risk but does not
// keep the local row. This is the one deliberate exception to the
// confirmed-deletion rule, gated on the caller's explicit confirm.
func (m *Manager) EmptyAll(ctx context.Context, confirm bool) (*EmptyResult, error) {
	if !confirm {
		return nil, ErrConfirmationRequired
	}

	rows, err := m.pool.Query(ctx,
		`SELECT external_store_id FROM channels WHERE deleted_at IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("listing trashed channels: %w", err)
	}
	var storeIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning trashed channel: %w", err)
		}
		storeIDs = append(storeIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trashed channels: %w", err)
	}

	result := &EmptyResult{}
	for _, id := range storeIDs {
		outcome := m.gateway.DeleteStore(ctx, id, true)
		if outcome.Confirmed() {
			result.GeminiDeleted++
			continue
		}
		result.GeminiFailed++
		m.logger.Warn("remote store delete failed during empty-all, remote store may be orphaned",
			"channel", id, "error", outcome.Err)
	}

	tag, err := m.pool.Exec(ctx, `DELETE FROM channels WHERE deleted_at IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("purging trashed channels: %w", err)
	}
	result.DeletedChannels = int(tag.RowsAffected())

	tag, err = m.pool.Exec(ctx, `DELETE FROM notes WHERE deleted_at IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("purging trashed notes: %w", err)
	}
	result.DeletedNotes = int(tag.RowsAffected())

	m.logger.Info("trash emptied",
		"channels", result.DeletedChannels, "notes", result.DeletedNotes,
		"gemini_deleted", result.GeminiDeleted, "gemini_failed", result.GeminiFailed)
	return result, nil
}

// ListExpiredChannelIDs returns the external store IDs of trashed
// channels whose retention has lapsed.
func (m *Manager) ListExpiredChannelIDs(ctx context.Context) ([]string, error) {
	rows, err := m.pool.Query(ctx,
		`SELECT external_store_id FROM channels
		 WHERE deleted_at IS NOT NULL
		   AND deleted_at < now() - make_interval(days => $1)`,
		m.retentionDays,
	)
	if err != nil {
		return nil, fmt.Errorf("listing expired channels: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning expired channel: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating expired channels: %w", err)
	}
	return ids, nil
}

// CleanupExpiredChannels purges exactly the given channels, and only
// those still in the trash. Callers pass the ids whose remote deletion
// was confirmed; ids restored since listing are skipped by the trash
// predicate.
func (m *Manager) CleanupExpiredChannels(ctx context.Context, externalStoreIDs []string) (int, error) {
	if len(externalStoreIDs) == 0 {
		return 0, nil
	}
	tag, err := m.pool.Exec(ctx,
		`DELETE FROM channels
		 WHERE external_store_id = ANY($1) AND deleted_at IS NOT NULL`,
		externalStoreIDs,
	)
	if err != nil {
		return 0, fmt.Errorf("purging expired channels: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CleanupExpiredNotes purges trashed notes whose retention has lapsed.
// Purely time-based; notes never depend on remote state.
func (m *Manager) CleanupExpiredNotes(ctx context.Context) (int, error) {
	tag, err := m.pool.Exec(ctx,
		`DELETE FROM notes
		 WHERE deleted_at IS NOT NULL
		   AND deleted_at < now() - make_interval(days => $1)`,
		m.retentionDays,
	)
	if err != nil {
		return 0, fmt.Errorf("purging expired notes: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Stats counts what is currently in the trash.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := m.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM channels WHERE deleted_at IS NOT NULL),
		   (SELECT COUNT(*) FROM notes WHERE deleted_at IS NOT NULL)`,
	).Scan(&stats.TrashedChannels, &stats.TrashedNotes)
	if err != nil {
		return nil, fmt.Errorf("counting trash: %w", err)
	}
	stats.Total = stats.TrashedChannels + stats.TrashedNotes
	return stats, nil
}
