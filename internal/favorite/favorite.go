// Package favorite manages user favorites for channels, documents and
// notes.
package favorite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when removing a favorite that does not exist.
var ErrNotFound = errors.New("favorite not found")

// TargetType identifies what kind of item a favorite points at.
type TargetType string

const (
	TargetChannel  TargetType = "channel"
	TargetDocument TargetType = "document"
	TargetNote     TargetType = "note"
)

func (t TargetType) valid() bool {
	switch t {
	case TargetChannel, TargetDocument, TargetNote:
		return true
	}
	return false
}

// Favorite is one starred item.
type Favorite struct {
	ID           int64      `json:"id"`
	TargetType   TargetType `json:"target_type"`
	TargetID     string     `json:"target_id"`
	DisplayOrder int        `json:"display_order"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Store provides durable CRUD for favorites. Safe for concurrent use.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a favorite Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Add stars an item, appending it to the display order. Adding an
// existing favorite is idempotent and returns the current row.
func (s *Store) Add(ctx context.Context, targetType TargetType, targetID string) (*Favorite, error) {
	if !targetType.valid() {
		return nil, fmt.Errorf("invalid target type %q", targetType)
	}
	if targetID == "" {
		return nil, fmt.Errorf("target ID is required")
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO favorites (target_type, target_id, display_order)
		 VALUES ($1, $2, (SELECT COALESCE(MAX(display_order), 0) + 1 FROM favorites))
		 ON CONFLICT (target_type, target_id) DO UPDATE SET target_id = EXCLUDED.target_id
		 RETURNING id, target_type, target_id, display_order, created_at`,
		targetType, targetID,
	)
	fav, err := scanFavorite(row)
	if err != nil {
		return nil, fmt.Errorf("adding favorite: %w", err)
	}
	return fav, nil
}

// Remove unstars an item.
func (s *Store) Remove(ctx context.Context, targetType TargetType, targetID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM favorites WHERE target_type = $1 AND target_id = $2`,
		targetType, targetID,
	)
	if err != nil {
		return fmt.Errorf("removing favorite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns favorites in display order. targetType "" means all types.
func (s *Store) List(ctx context.Context, targetType TargetType) ([]*Favorite, error) {
	q := `SELECT id, target_type, target_id, display_order, created_at
		 FROM favorites`
	args := []any{}
	if targetType != "" {
		if !targetType.valid() {
			return nil, fmt.Errorf("invalid target type %q", targetType)
		}
		q += ` WHERE target_type = $1`
		args = append(args, targetType)
	}
	q += ` ORDER BY display_order ASC, id ASC`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing favorites: %w", err)
	}
	defer rows.Close()

	var favorites []*Favorite
	for rows.Next() {
		fav, err := scanFavorite(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning favorite: %w", err)
		}
		favorites = append(favorites, fav)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating favorites: %w", err)
	}
	return favorites, nil
}

// IsFavorite reports whether an item is starred. Used to decorate
// channel listings.
func (s *Store) IsFavorite(ctx context.Context, targetType TargetType, targetID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM favorites WHERE target_type = $1 AND target_id = $2)`,
		targetType, targetID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking favorite: %w", err)
	}
	return exists, nil
}

func scanFavorite(row pgx.Row) (*Favorite, error) {
	fav := &Favorite{}
	err := row.Scan(&fav.ID, &fav.TargetType, &fav.TargetID, &fav.DisplayOrder, &fav.CreatedAt)
	if err != nil {
		return nil, err
	}
	return fav, nil
}
