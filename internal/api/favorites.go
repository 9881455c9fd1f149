package api

import (
	"log/slog"
	"net/http"

	"github.com/chalssak/chalssak/internal/favorite"
)

// favoriteHandler serves the starred-items routes.
type favoriteHandler struct {
	favorites FavoriteStore
	logger    *slog.Logger
}

func (h *favoriteHandler) add(w http.ResponseWriter, r *http.Request) {
	targetType, ok := favoriteTarget(w, r)
	if !ok {
		return
	}

	fav, err := h.favorites.Add(r.Context(), targetType, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, fav)
}

func (h *favoriteHandler) remove(w http.ResponseWriter, r *http.Request) {
	targetType, ok := favoriteTarget(w, r)
	if !ok {
		return
	}

	if err := h.favorites.Remove(r.Context(), targetType, r.PathValue("id")); err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// favoriteTarget parses and validates the {type} path segment.
func favoriteTarget(w http.ResponseWriter, r *http.Request) (favorite.TargetType, bool) {
	targetType := favorite.TargetType(r.PathValue("type"))
	switch targetType {
	case favorite.TargetChannel, favorite.TargetDocument, favorite.TargetNote:
		return targetType, true
	}
	writeError(w, http.StatusBadRequest, "invalid_type", "type must be channel, document or note")
	return "", false
}

func (h *favoriteHandler) list(w http.ResponseWriter, r *http.Request) {
	targetType := favorite.TargetType(r.URL.Query().Get("type"))

	favorites, err := h.favorites.List(r.Context(), targetType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_type", err.Error())
		return
	}
	if favorites == nil {
		favorites = []*favorite.Favorite{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"favorites": favorites})
}
