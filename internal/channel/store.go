package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// channelCols is the standard SELECT column list for scanChannels.
const channelCols = `id, external_store_id, name, description,
	created_at, last_accessed_at, file_count, total_size_bytes, deleted_at`

// Store provides durable CRUD for channel metadata backed by PostgreSQL.
//
// All read and mutate methods here operate on active (non-trashed) channels
// only — the soft-delete exclusion is structural, not a filter callers must
// remember. Trashed rows surface exclusively through the trash package.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a channel Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Create inserts a new channel record for a freshly created remote store.
// Returns ErrDuplicateStore when the external store ID is already bound.
func (s *Store) Create(ctx context.Context, externalStoreID, name, description string) (*Channel, error) {
	if externalStoreID == "" {
		return nil, fmt.Errorf("external store ID is required")
	}
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO channels (external_store_id, name, description)
		 VALUES ($1, $2, $3)
		 RETURNING `+channelCols,
		externalStoreID, name, description,
	)

	ch, err := scanChannel(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrDuplicateStore
		}
		return nil, fmt.Errorf("creating channel: %w", err)
	}
	return ch, nil
}

// GetByExternalID returns the active channel bound to the external store ID.
func (s *Store) GetByExternalID(ctx context.Context, externalStoreID string) (*Channel, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+channelCols+`
		 FROM channels
		 WHERE external_store_id = $1 AND deleted_at IS NULL`,
		externalStoreID,
	)
	ch, err := scanChannel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting channel %s: %w", externalStoreID, err)
	}
	return ch, nil
}

// Get returns the active channel with the given local ID.
func (s *Store) Get(ctx context.Context, id int64) (*Channel, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+channelCols+`
		 FROM channels
		 WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	ch, err := scanChannel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting channel %d: %w", id, err)
	}
	return ch, nil
}

// ListActive returns active channels ordered by most recent access.
// limit <= 0 means no limit.
func (s *Store) ListActive(ctx context.Context, limit, offset int) ([]*Channel, error) {
	q := `SELECT ` + channelCols + `
		 FROM channels
		 WHERE deleted_at IS NULL
		 ORDER BY last_accessed_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing channels: %w", err)
	}
	defer rows.Close()

	return scanChannels(rows)
}

// Touch sets last_accessed_at to now. Returns ErrNotFound when the channel
// does not exist or is trashed. Concurrent touches are last-write-wins —
// the field is advisory.
func (s *Store) Touch(ctx context.Context, externalStoreID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE channels SET last_accessed_at = now()
		 WHERE external_store_id = $1 AND deleted_at IS NULL`,
		externalStoreID,
	)
	if err != nil {
		return fmt.Errorf("touching channel %s: %w", externalStoreID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStats writes synced counter values. Nil fields are left unchanged.
// Called by the stats sync job with ground truth from the remote gateway.
func (s *Store) UpdateStats(ctx context.Context, externalStoreID string, fileCount *int, totalSizeBytes *int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE channels
		 SET file_count = COALESCE($2, file_count),
		     total_size_bytes = COALESCE($3, total_size_bytes)
		 WHERE external_store_id = $1 AND deleted_at IS NULL`,
		externalStoreID, fileCount, totalSizeBytes,
	)
	if err != nil {
		return fmt.Errorf("updating stats for %s: %w", externalStoreID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Update applies a partial rename/description change and touches
// last_accessed_at. Nil fields are left unchanged.
func (s *Store) Update(ctx context.Context, externalStoreID string, name, description *string) (*Channel, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE channels
		 SET name = COALESCE($2, name),
		     description = COALESCE($3, description),
		     last_accessed_at = now()
		 WHERE external_store_id = $1 AND deleted_at IS NULL
		 RETURNING `+channelCols,
		externalStoreID, name, description,
	)
	ch, err := scanChannel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating channel %s: %w", externalStoreID, err)
	}
	return ch, nil
}

// RecordUpload optimistically increments the cached counters after a
// successful document upload. No remote call — drift is reconciled by the
// next stats sync.
func (s *Store) RecordUpload(ctx context.Context, externalStoreID string, sizeBytes int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE channels
		 SET file_count = file_count + 1,
		     total_size_bytes = total_size_bytes + $2,
		     last_accessed_at = now()
		 WHERE external_store_id = $1 AND deleted_at IS NULL`,
		externalStoreID, sizeBytes,
	)
	if err != nil {
		return fmt.Errorf("recording upload for %s: %w", externalStoreID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete hard-deletes a channel row. Used only by trash purge decisions,
// never by ordinary API flows. Returns whether a row went away.
func (s *Store) Delete(ctx context.Context, externalStoreID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM channels WHERE external_store_id = $1`,
		externalStoreID,
	)
	if err != nil {
		return false, fmt.Errorf("deleting channel %s: %w", externalStoreID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListInactive returns active channels whose last access precedes
// now - inactiveDays. Cheaper than full classification when only the
// inactive set is needed.
func (s *Store) ListInactive(ctx context.Context, inactiveDays int) ([]*Channel, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+channelCols+`
		 FROM channels
		 WHERE deleted_at IS NULL
		   AND last_accessed_at < now() - make_interval(days => $1)
		 ORDER BY last_accessed_at ASC`,
		inactiveDays,
	)
	if err != nil {
		return nil, fmt.Errorf("listing inactive channels: %w", err)
	}
	defer rows.Close()

	return scanChannels(rows)
}

// CountActive returns the number of active channels (admin stats).
func (s *Store) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM channels WHERE deleted_at IS NULL`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting channels: %w", err)
	}
	return n, nil
}

// scanChannel reads one Channel from a pgx.Row (standard column set).
func scanChannel(row pgx.Row) (*Channel, error) {
	ch := &Channel{}
	err := row.Scan(
		&ch.ID, &ch.ExternalStoreID, &ch.Name, &ch.Description,
		&ch.CreatedAt, &ch.LastAccessedAt, &ch.FileCount, &ch.TotalSizeBytes,
		&ch.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// scanChannels reads Channel structs from pgx.Rows (standard column set).
func scanChannels(rows pgx.Rows) ([]*Channel, error) {
	var channels []*Channel
	for rows.Next() {
		ch := &Channel{}
		if err := rows.Scan(
			&ch.ID, &ch.ExternalStoreID, &ch.Name, &ch.Description,
			&ch.CreatedAt, &ch.LastAccessedAt, &ch.FileCount, &ch.TotalSizeBytes,
			&ch.DeletedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning channel: %w", err)
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating channels: %w", err)
	}
	return channels, nil
}
