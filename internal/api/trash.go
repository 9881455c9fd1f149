package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/chalssak/chalssak/internal/trash"
)

// trashHandler serves the trash listing, restore, purge, and empty
// routes.
type trashHandler struct {
	trash  TrashManager
	logger *slog.Logger
}

func (h *trashHandler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.trash.ListTrashed(r.Context())
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":          items,
		"retention_days": h.trash.RetentionDays(),
	})
}

func (h *trashHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.trash.Stats(r.Context())
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *trashHandler) restore(w http.ResponseWriter, r *http.Request) {
	itemType, id, ok := trashTarget(w, r)
	if !ok {
		return
	}

	var err error
	switch itemType {
	case trash.TypeChannel:
		err = h.trash.RestoreChannel(r.Context(), channelStoreID(id))
	case trash.TypeNote:
		noteID, parseErr := strconv.ParseInt(id, 10, 64)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "invalid_id", "note ID must be an integer")
			return
		}
		err = h.trash.RestoreNote(r.Context(), noteID)
	}
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

func (h *trashHandler) purge(w http.ResponseWriter, r *http.Request) {
	itemType, id, ok := trashTarget(w, r)
	if !ok {
		return
	}

	var err error
	switch itemType {
	case trash.TypeChannel:
		err = h.trash.PermanentDeleteChannel(r.Context(), channelStoreID(id))
	case trash.TypeNote:
		noteID, parseErr := strconv.ParseInt(id, 10, 64)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "invalid_id", "note ID must be an integer")
			return
		}
		err = h.trash.PermanentDeleteNote(r.Context(), noteID)
	}
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// empty purges everything in the trash. Destructive, so it demands an
// explicit confirm=true in the body.
func (h *trashHandler) empty(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirm bool `json:"confirm"`
	}
	if err := decodeJSON(r, &req); err != nil && r.ContentLength > 0 {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	result, err := h.trash.EmptyAll(r.Context(), req.Confirm)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// trashTarget parses the {type} and {id} path segments.
func trashTarget(w http.ResponseWriter, r *http.Request) (trash.ItemType, string, bool) {
	itemType := trash.ItemType(r.PathValue("type"))
	if itemType != trash.TypeChannel && itemType != trash.TypeNote {
		writeError(w, http.StatusBadRequest, "invalid_type", "type must be channel or note")
		return "", "", false
	}
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_id", "id is required")
		return "", "", false
	}
	return itemType, id, true
}

// channelStoreID normalizes a channel trash ID to the full remote store
// name. Clients may send either the full name (URL-encoded) or just its
// final segment.
func channelStoreID(id string) string {
	if strings.Contains(id, "/") {
		return id
	}
	return "fileSearchStores/" + id
}
