package note

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// noteCols is the standard SELECT column list for scanNote.
const noteCols = `id, channel_id, title, content, sources,
	created_at, updated_at, deleted_at`

// Embedder turns text into a fixed-dimension embedding vector.
// The gemini gateway satisfies this; tests substitute a fake.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Store provides durable CRUD and semantic search for notes.
//
// Reads and mutations operate on non-trashed notes only. Trashed notes
// surface through the trash package. Store is safe for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder Embedder
	logger   *slog.Logger
}

// NewStore creates a note Store. embedder may be nil, in which case notes
// are stored without embeddings and Search returns an error.
func NewStore(pool *pgxpool.Pool, embedder Embedder, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, embedder: embedder, logger: logger}, nil
}

// Create inserts a note under the given channel. The embedding is computed
// best-effort from title and content; on failure the note is stored with a
// NULL embedding and the error is logged, not returned.
func (s *Store) Create(ctx context.Context, channelID int64, title, content string, sources []Source) (*Note, error) {
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}

	sourcesJSON, err := marshalSources(sources)
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO notes (channel_id, title, content, sources, embedding)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+noteCols,
		channelID, title, content, sourcesJSON, s.embed(ctx, title, content),
	)

	n, err := scanNote(row)
	if err != nil {
		return nil, fmt.Errorf("creating note: %w", err)
	}
	return n, nil
}

// Get returns the non-trashed note, guarding that it belongs to channelID.
func (s *Store) Get(ctx context.Context, channelID, noteID int64) (*Note, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+noteCols+`
		 FROM notes
		 WHERE id = $1 AND channel_id = $2 AND deleted_at IS NULL`,
		noteID, channelID,
	)
	n, err := scanNote(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting note %d: %w", noteID, err)
	}
	return n, nil
}

// ListByChannel returns the channel's non-trashed notes, newest update
// first. limit <= 0 means no limit.
func (s *Store) ListByChannel(ctx context.Context, channelID int64, limit, offset int) ([]*Note, error) {
	q := `SELECT ` + noteCols + `
		 FROM notes
		 WHERE channel_id = $1 AND deleted_at IS NULL
		 ORDER BY updated_at DESC, id DESC`
	args := []any{channelID}
	if limit > 0 {
		q += ` LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notes for channel %d: %w", channelID, err)
	}
	defer rows.Close()

	return scanNotes(rows)
}

// Update applies a partial title/content/sources change, refreshes
// updated_at, and recomputes the embedding from the resulting text
// (best-effort). Nil fields are left unchanged.
func (s *Store) Update(ctx context.Context, channelID, noteID int64, title, content *string, sources []Source) (*Note, error) {
	current, err := s.Get(ctx, channelID, noteID)
	if err != nil {
		return nil, err
	}

	newTitle := current.Title
	if title != nil {
		newTitle = *title
	}
	newContent := current.Content
	if content != nil {
		newContent = *content
	}
	if newTitle == "" {
		return nil, fmt.Errorf("title is required")
	}

	newSources := current.Sources
	if sources != nil {
		newSources = sources
	}
	sourcesJSON, err := marshalSources(newSources)
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE notes
		 SET title = $3, content = $4, sources = $5, embedding = $6,
		     updated_at = now()
		 WHERE id = $1 AND channel_id = $2 AND deleted_at IS NULL
		 RETURNING `+noteCols,
		noteID, channelID, newTitle, newContent, sourcesJSON,
		s.embed(ctx, newTitle, newContent),
	)
	n, err := scanNote(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating note %d: %w", noteID, err)
	}
	return n, nil
}

// Delete soft-deletes a note. Already-trashed notes report ErrNotFound.
func (s *Store) Delete(ctx context.Context, channelID, noteID int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notes SET deleted_at = now()
		 WHERE id = $1 AND channel_id = $2 AND deleted_at IS NULL`,
		noteID, channelID,
	)
	if err != nil {
		return fmt.Errorf("deleting note %d: %w", noteID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Search embeds the query and returns the channel's closest notes by
// cosine distance. Notes without an embedding never match.
func (s *Store) Search(ctx context.Context, channelID int64, query string, limit int) ([]SearchResult, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("semantic search requires an embedder")
	}
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 {
		limit = 10
	}

	vec, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	queryVec := pgvector.NewVector(vec)

	rows, err := s.pool.Query(ctx,
		`SELECT `+noteCols+`, embedding <=> $2 AS distance
		 FROM notes
		 WHERE channel_id = $1 AND deleted_at IS NULL AND embedding IS NOT NULL
		 ORDER BY distance ASC
		 LIMIT $3`,
		channelID, queryVec, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching notes for channel %d: %w", channelID, err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		n := &Note{}
		var sourcesJSON []byte
		var distance float64
		if err := rows.Scan(
			&n.ID, &n.ChannelID, &n.Title, &n.Content, &sourcesJSON,
			&n.CreatedAt, &n.UpdatedAt, &n.DeletedAt, &distance,
		); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		if err := unmarshalSources(sourcesJSON, n); err != nil {
			return nil, err
		}
		results = append(results, SearchResult{Note: n, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}
	return results, nil
}

// embed computes the note embedding, returning nil (stored as SQL NULL)
// when no embedder is configured or the call fails.
func (s *Store) embed(ctx context.Context, title, content string) *pgvector.Vector {
	if s.embedder == nil {
		return nil
	}
	vec, err := s.embedder.EmbedText(ctx, title+"\n\n"+content)
	if err != nil {
		s.logger.Warn("embedding note failed, storing without embedding", "error", err)
		return nil
	}
	v := pgvector.NewVector(vec)
	return &v
}

func marshalSources(sources []Source) ([]byte, error) {
	if sources == nil {
		sources = []Source{}
	}
	b, err := json.Marshal(sources)
	if err != nil {
		return nil, fmt.Errorf("marshaling sources: %w", err)
	}
	return b, nil
}

func unmarshalSources(b []byte, n *Note) error {
	if len(b) == 0 {
		n.Sources = []Source{}
		return nil
	}
	if err := json.Unmarshal(b, &n.Sources); err != nil {
		return fmt.Errorf("parsing sources for note %d: %w", n.ID, err)
	}
	return nil
}

// scanNote reads one Note from a pgx.Row (standard column set).
func scanNote(row pgx.Row) (*Note, error) {
	n := &Note{}
	var sourcesJSON []byte
	err := row.Scan(
		&n.ID, &n.ChannelID, &n.Title, &n.Content, &sourcesJSON,
		&n.CreatedAt, &n.UpdatedAt, &n.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalSources(sourcesJSON, n); err != nil {
		return nil, err
	}
	return n, nil
}

// scanNotes reads Note structs from pgx.Rows (standard column set).
func scanNotes(rows pgx.Rows) ([]*Note, error) {
	var notes []*Note
	for rows.Next() {
		n := &Note{}
		var sourcesJSON []byte
		if err := rows.Scan(
			&n.ID, &n.ChannelID, &n.Title, &n.Content, &sourcesJSON,
			&n.CreatedAt, &n.UpdatedAt, &n.DeletedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning note: %w", err)
		}
		if err := unmarshalSources(sourcesJSON, n); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notes: %w", err)
	}
	return notes, nil
}
