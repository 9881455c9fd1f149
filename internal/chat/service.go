package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/chalssak/chalssak/internal/channel"
	"github.com/chalssak/chalssak/internal/gemini"
)

// generator is the grounded-generation surface the service needs.
type generator interface {
	Ask(ctx context.Context, storeNames []string, query string, history []gemini.Turn) (*gemini.GenerateResult, error)
	AskStream(ctx context.Context, storeNames []string, query string, history []gemini.Turn) iter.Seq[gemini.StreamEvent]
	SearchStores(ctx context.Context, storeNames []string, query string) (*gemini.GenerateResult, error)
	SearchStream(ctx context.Context, storeNames []string, query string) iter.Seq[gemini.StreamEvent]
}

// channelToucher marks channels as recently used.
type channelToucher interface {
	Touch(ctx context.Context, externalStoreID string) error
}

// historyStore persists conversation turns. *MessageStore satisfies it.
type historyStore interface {
	Add(ctx context.Context, channelID int64, role Role, content string, sources []gemini.GroundingSource) (*Message, error)
	List(ctx context.Context, channelID int64, limit int) ([]*Message, error)
	Clear(ctx context.Context, channelID int64) (int64, error)
}

// Answer is a completed chat turn.
type Answer struct {
	Text    string                   `json:"text"`
	Sources []gemini.GroundingSource `json:"sources,omitempty"`
}

// SearchSource is a grounding source annotated with the channel it was
// found in.
type SearchSource struct {
	Source  string `json:"source"`
	Content string `json:"content,omitempty"`
	Channel string `json:"channel,omitempty"`
}

// SearchAnswer is the result of a cross-channel search.
type SearchAnswer struct {
	Text    string         `json:"text"`
	Sources []SearchSource `json:"sources,omitempty"`
}

// Service runs grounded conversations over channels and records their
// history. Safe for concurrent use.
type Service struct {
	messages     historyStore
	channels     channelToucher
	gateway      generator
	historyLimit int
	logger       *slog.Logger
}

// NewService creates a chat Service. historyLimit <= 0 applies the
// default.
func NewService(messages historyStore, channels channelToucher, gateway generator, historyLimit int, logger *slog.Logger) (*Service, error) {
	if messages == nil {
		return nil, errors.New("message store is required")
	}
	if channels == nil {
		return nil, errors.New("channel store is required")
	}
	if gateway == nil {
		return nil, errors.New("gateway is required")
	}
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		messages:     messages,
		channels:     channels,
		gateway:      gateway,
		historyLimit: historyLimit,
		logger:       logger,
	}, nil
}

// Ask answers a question grounded in one channel's documents and
// records the turn in the channel's history.
func (s *Service) Ask(ctx context.Context, ch *channel.Channel, query string) (*Answer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is required")
	}

	s.touch(ctx, ch)

	history, err := s.history(ctx, ch.ID)
	if err != nil {
		return nil, err
	}

	result, err := s.gateway.Ask(ctx, []string{ch.ExternalStoreID}, query, history)
	if err != nil {
		return nil, fmt.Errorf("asking channel %q: %w", ch.Name, err)
	}

	s.persistTurn(ctx, ch.ID, query, result.Text, result.Sources)

	return &Answer{Text: result.Text, Sources: result.Sources}, nil
}

// AskStream is the streaming form of Ask. The turn is persisted once
// the done event is reached; a stream that terminates with an error
// event leaves history untouched.
func (s *Service) AskStream(ctx context.Context, ch *channel.Channel, query string) iter.Seq[gemini.StreamEvent] {
	return func(yield func(gemini.StreamEvent) bool) {
		if strings.TrimSpace(query) == "" {
			yield(gemini.StreamEvent{Type: gemini.StreamError, Message: "query is required"})
			return
		}

		s.touch(ctx, ch)

		history, err := s.history(ctx, ch.ID)
		if err != nil {
			yield(gemini.StreamEvent{Type: gemini.StreamError, Message: err.Error()})
			return
		}

		var answer strings.Builder
		var sources []gemini.GroundingSource

		for ev := range s.gateway.AskStream(ctx, []string{ch.ExternalStoreID}, query, history) {
			switch ev.Type {
			case gemini.StreamContent:
				answer.WriteString(ev.Content)
			case gemini.StreamSources:
				sources = ev.Sources
			case gemini.StreamDone:
				s.persistTurn(ctx, ch.ID, query, answer.String(), sources)
			}
			if !yield(ev) {
				return
			}
		}
	}
}

// History returns a channel's recent messages, oldest first.
func (s *Service) History(ctx context.Context, channelID int64, limit int) ([]*Message, error) {
	return s.messages.List(ctx, channelID, limit)
}

// ClearHistory removes a channel's conversation history.
func (s *Service) ClearHistory(ctx context.Context, channelID int64) (int64, error) {
	return s.messages.Clear(ctx, channelID)
}

// Search answers a question grounded in several channels at once.
// Sources are annotated with the name of the channel they came from.
// Search does not touch channels or record history.
func (s *Service) Search(ctx context.Context, channels []*channel.Channel, query string) (*SearchAnswer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is required")
	}
	if len(channels) == 0 {
		return nil, errors.New("at least one channel is required")
	}

	stores, names := storeIndex(channels)
	result, err := s.gateway.SearchStores(ctx, stores, query)
	if err != nil {
		return nil, fmt.Errorf("searching channels: %w", err)
	}

	return &SearchAnswer{
		Text:    result.Text,
		Sources: annotateSources(result.Sources, names),
	}, nil
}

// SearchStream is the streaming form of Search.
func (s *Service) SearchStream(ctx context.Context, channels []*channel.Channel, query string) iter.Seq[gemini.StreamEvent] {
	return func(yield func(gemini.StreamEvent) bool) {
		if strings.TrimSpace(query) == "" {
			yield(gemini.StreamEvent{Type: gemini.StreamError, Message: "query is required"})
			return
		}
		if len(channels) == 0 {
			yield(gemini.StreamEvent{Type: gemini.StreamError, Message: "at least one channel is required"})
			return
		}

		stores, names := storeIndex(channels)
		for ev := range s.gateway.SearchStream(ctx, stores, query) {
			if ev.Type == gemini.StreamSources {
				for i := range ev.Sources {
					if name, ok := names[ev.Sources[i].StoreID]; ok {
						ev.Sources[i].StoreID = name
					}
				}
			}
			if !yield(ev) {
				return
			}
		}
	}
}

func (s *Service) touch(ctx context.Context, ch *channel.Channel) {
	if err := s.channels.Touch(ctx, ch.ExternalStoreID); err != nil {
		s.logger.Warn("touching channel", "channel", ch.Name, "error", err)
	}
}

func (s *Service) history(ctx context.Context, channelID int64) ([]gemini.Turn, error) {
	messages, err := s.messages.List(ctx, channelID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	turns := make([]gemini.Turn, 0, len(messages))
	for _, msg := range messages {
		turns = append(turns, gemini.Turn{Role: string(msg.Role), Content: msg.Content})
	}
	return turns, nil
}

// persistTurn records both sides of a completed turn. Best-effort: the
// answer already exists, so a storage failure is logged, not returned.
func (s *Service) persistTurn(ctx context.Context, channelID int64, query, answer string, sources []gemini.GroundingSource) {
	if _, err := s.messages.Add(ctx, channelID, RoleUser, query, nil); err != nil {
		s.logger.Warn("persisting user message", "channel_id", channelID, "error", err)
		return
	}
	if _, err := s.messages.Add(ctx, channelID, RoleAssistant, answer, sources); err != nil {
		s.logger.Warn("persisting assistant message", "channel_id", channelID, "error", err)
	}
}

// storeIndex returns the store names to search and a lookup from store
// name back to channel name.
func storeIndex(channels []*channel.Channel) ([]string, map[string]string) {
	stores := make([]string, 0, len(channels))
	names := make(map[string]string, len(channels))
	for _, ch := range channels {
		stores = append(stores, ch.ExternalStoreID)
		names[ch.ExternalStoreID] = ch.Name
	}
	return stores, names
}

func annotateSources(sources []gemini.GroundingSource, names map[string]string) []SearchSource {
	out := make([]SearchSource, 0, len(sources))
	for _, src := range sources {
		out = append(out, SearchSource{
			Source:  src.Source,
			Content: src.Content,
			Channel: names[src.StoreID],
		})
	}
	return out
}
