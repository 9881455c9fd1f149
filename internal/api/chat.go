package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/chalssak/chalssak/internal/channel"
	"github.com/chalssak/chalssak/internal/chat"
	"github.com/chalssak/chalssak/internal/gemini"
)

// chatHandler serves grounded chat, conversation history, and the
// cross-channel search routes.
type chatHandler struct {
	channels ChannelStore
	chat     ChatService
	logger   *slog.Logger
}

func (h *chatHandler) ask(w http.ResponseWriter, r *http.Request) {
	ch, ok := fetchChannel(w, r, h.channels, h.logger)
	if !ok {
		return
	}

	var req struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "query is required")
		return
	}

	answer, err := h.chat.Ask(r.Context(), ch, req.Query)
	if err != nil {
		writeGatewayError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// stream answers over SSE. The query travels as a query parameter so
// EventSource clients can connect directly.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	ch, ok := fetchChannel(w, r, h.channels, h.logger)
	if !ok {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_query", "query parameter is required")
		return
	}

	sseHeaders(w)
	h.relay(w, h.chat.AskStream(r.Context(), ch, query))
}

func (h *chatHandler) history(w http.ResponseWriter, r *http.Request) {
	ch, ok := fetchChannel(w, r, h.channels, h.logger)
	if !ok {
		return
	}

	limit, _ := pagination(r, 50)
	messages, err := h.chat.History(r.Context(), ch.ID, limit)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	if messages == nil {
		messages = []*chat.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (h *chatHandler) clearHistory(w http.ResponseWriter, r *http.Request) {
	ch, ok := fetchChannel(w, r, h.channels, h.logger)
	if !ok {
		return
	}

	removed, err := h.chat.ClearHistory(r.Context(), ch.ID)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

// searchRequest names the channels to search and the question.
type searchRequest struct {
	ChannelIDs []int64 `json:"channel_ids"`
	Query      string  `json:"query"`
}

func (h *chatHandler) search(w http.ResponseWriter, r *http.Request) {
	channels, query, ok := h.searchInput(w, r)
	if !ok {
		return
	}

	answer, err := h.chat.Search(r.Context(), channels, query)
	if err != nil {
		writeGatewayError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (h *chatHandler) searchStream(w http.ResponseWriter, r *http.Request) {
	channels, query, ok := h.searchInput(w, r)
	if !ok {
		return
	}

	sseHeaders(w)
	h.relay(w, h.chat.SearchStream(r.Context(), channels, query))
}

// searchInput validates a search request and resolves its channels.
func (h *chatHandler) searchInput(w http.ResponseWriter, r *http.Request) ([]*channel.Channel, string, bool) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return nil, "", false
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "invalid_query", "query is required")
		return nil, "", false
	}
	if len(req.ChannelIDs) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_channels", "channel_ids is required")
		return nil, "", false
	}
	if len(req.ChannelIDs) > gemini.MaxSearchStores {
		writeError(w, http.StatusBadRequest, "too_many_channels",
			"search supports at most 5 channels")
		return nil, "", false
	}

	channels := make([]*channel.Channel, 0, len(req.ChannelIDs))
	for _, id := range req.ChannelIDs {
		ch, err := h.channels.Get(r.Context(), id)
		if err != nil {
			writeStoreError(w, err, h.logger)
			return nil, "", false
		}
		channels = append(channels, ch)
	}
	return channels, req.Query, true
}

// relay forwards stream events as SSE until the stream ends or the
// client disconnects.
func (h *chatHandler) relay(w http.ResponseWriter, events func(func(gemini.StreamEvent) bool)) {
	for ev := range events {
		if !writeEvent(w, string(ev.Type), ev) {
			return
		}
	}
}
