// Package chat provides grounded question answering over channels and
// the per-channel conversation history backing it.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chalssak/chalssak/internal/gemini"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// defaultHistoryLimit bounds how many past messages feed into a new turn.
const defaultHistoryLimit = 10

// Message is one turn of a channel conversation.
type Message struct {
	ID        int64                    `json:"id"`
	ChannelID int64                    `json:"channel_id"`
	Role      Role                     `json:"role"`
	Content   string                   `json:"content"`
	Sources   []gemini.GroundingSource `json:"sources,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
}

// MessageStore persists conversation history. Safe for concurrent use.
type MessageStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewMessageStore creates a MessageStore.
func NewMessageStore(pool *pgxpool.Pool, logger *slog.Logger) (*MessageStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageStore{pool: pool, logger: logger}, nil
}

// Add appends a message to a channel's history.
func (s *MessageStore) Add(ctx context.Context, channelID int64, role Role, content string, sources []gemini.GroundingSource) (*Message, error) {
	if role != RoleUser && role != RoleAssistant {
		return nil, fmt.Errorf("invalid role %q", role)
	}

	raw, err := marshalSources(sources)
	if err != nil {
		return nil, fmt.Errorf("encoding sources: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO channel_messages (channel_id, role, content, sources)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, channel_id, role, content, sources, created_at`,
		channelID, role, content, raw,
	)
	msg, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("adding message: %w", err)
	}
	return msg, nil
}

// List returns the most recent messages for a channel in chronological
// order. limit <= 0 applies the default.
func (s *MessageStore) List(ctx context.Context, channelID int64, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, channel_id, role, content, sources, created_at
		 FROM channel_messages
		 WHERE channel_id = $1
		 ORDER BY id DESC
		 LIMIT $2`,
		channelID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	// Query returns newest first; callers want oldest first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Clear removes all history for a channel. Returns the number of
// messages removed.
func (s *MessageStore) Clear(ctx context.Context, channelID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM channel_messages WHERE channel_id = $1`, channelID)
	if err != nil {
		return 0, fmt.Errorf("clearing messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

func marshalSources(sources []gemini.GroundingSource) ([]byte, error) {
	if sources == nil {
		sources = []gemini.GroundingSource{}
	}
	return json.Marshal(sources)
}

func scanMessage(row pgx.Row) (*Message, error) {
	msg := &Message{}
	var raw []byte
	err := row.Scan(&msg.ID, &msg.ChannelID, &msg.Role, &msg.Content, &raw, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &msg.Sources); err != nil {
			return nil, fmt.Errorf("decoding sources: %w", err)
		}
	}
	if len(msg.Sources) == 0 {
		msg.Sources = nil
	}
	return msg, nil
}
