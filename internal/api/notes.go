package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chalssak/chalssak/internal/note"
)

// noteHandler serves note CRUD and semantic search under a channel.
type noteHandler struct {
	channels ChannelStore
	notes    NoteStore
	logger   *slog.Logger
}

// noteResponse is the JSON projection of a note.
type noteResponse struct {
	ID        int64         `json:"id"`
	ChannelID int64         `json:"channel_id"`
	Title     string        `json:"title"`
	Content   string        `json:"content"`
	Sources   []note.Source `json:"sources,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func toNoteResponse(n *note.Note) noteResponse {
	return noteResponse{
		ID:        n.ID,
		ChannelID: n.ChannelID,
		Title:     n.Title,
		Content:   n.Content,
		Sources:   n.Sources,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func (h *noteHandler) create(w http.ResponseWriter, r *http.Request) {
	ch, ok := fetchChannel(w, r, h.channels, h.logger)
	if !ok {
		return
	}

	var req struct {
		Title   string        `json:"title"`
		Content string        `json:"content"`
		Sources []note.Source `json:"sources"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "invalid_title", "title is required")
		return
	}

	created, err := h.notes.Create(r.Context(), ch.ID, req.Title, req.Content, req.Sources)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, toNoteResponse(created))
}

func (h *noteHandler) list(w http.ResponseWriter, r *http.Request) {
	ch, ok := fetchChannel(w, r, h.channels, h.logger)
	if !ok {
		return
	}

	limit, offset := pagination(r, 50)
	notes, err := h.notes.ListByChannel(r.Context(), ch.ID, limit, offset)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	out := make([]noteResponse, 0, len(notes))
	for _, n := range notes {
		out = append(out, toNoteResponse(n))
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": out})
}

func (h *noteHandler) get(w http.ResponseWriter, r *http.Request) {
	ch, ok := fetchChannel(w, r, h.channels, h.logger)
	if !ok {
		return
	}
	noteID, err := pathID(r, "noteID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "note ID must be an integer")
		return
	}

	n, err := h.notes.Get(r.Context(), ch.ID, noteID)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toNoteResponse(n))
}

func (h *noteHandler) update(w http.ResponseWriter, r *http.Request) {
	ch, ok := fetchChannel(w, r, h.channels, h.logger)
	if !ok {
		return
	}
	noteID, err := pathID(r, "noteID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "note ID must be an integer")
		return
	}

	var req struct {
		Title   *string       `json:"title"`
		Content *string       `json:"content"`
		Sources []note.Source `json:"sources"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		writeError(w, http.StatusBadRequest, "invalid_title", "title must not be blank")
		return
	}

	updated, err := h.notes.Update(r.Context(), ch.ID, noteID, req.Title, req.Content, req.Sources)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toNoteResponse(updated))
}

func (h *noteHandler) trashNote(w http.ResponseWriter, r *http.Request) {
	ch, ok := fetchChannel(w, r, h.channels, h.logger)
	if !ok {
		return
	}
	noteID, err := pathID(r, "noteID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "note ID must be an integer")
		return
	}

	if err := h.notes.Delete(r.Context(), ch.ID, noteID); err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "trashed"})
}

// search runs semantic search over the channel's notes.
func (h *noteHandler) search(w http.ResponseWriter, r *http.Request) {
	ch, ok := fetchChannel(w, r, h.channels, h.logger)
	if !ok {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_query", "q parameter is required")
		return
	}
	limit, _ := pagination(r, 10)

	results, err := h.notes.Search(r.Context(), ch.ID, query, limit)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	type hit struct {
		Note     noteResponse `json:"note"`
		Distance float64      `json:"distance"`
	}
	out := make([]hit, 0, len(results))
	for _, res := range results {
		out = append(out, hit{Note: toNoteResponse(res.Note), Distance: res.Distance})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}
