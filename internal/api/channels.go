package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chalssak/chalssak/internal/channel"
	"github.com/chalssak/chalssak/internal/favorite"
)

// channelHandler serves channel CRUD, capacity and lifecycle routes.
type channelHandler struct {
	channels  ChannelStore
	gateway   Gateway
	favorites FavoriteStore
	trash     TrashManager
	lifecycle channel.LifecyclePolicy
	limits    UploadLimits
	logger    *slog.Logger
}

// channelResponse is the JSON projection of a channel.
type channelResponse struct {
	ID              int64              `json:"id"`
	ExternalStoreID string             `json:"external_store_id"`
	Name            string             `json:"name"`
	Description     string             `json:"description,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	LastAccessedAt  time.Time          `json:"last_accessed_at"`
	FileCount       int                `json:"file_count"`
	TotalSizeBytes  int64              `json:"total_size_bytes"`
	Capacity        *capacityResponse  `json:"capacity,omitempty"`
	Lifecycle       *lifecycleResponse `json:"lifecycle,omitempty"`
	Favorite        *bool              `json:"favorite,omitempty"`
}

type capacityResponse struct {
	FileCount        int     `json:"file_count"`
	MaxFiles         int     `json:"max_files"`
	FileUsagePercent float64 `json:"file_usage_percent"`
	SizeBytes        int64   `json:"size_bytes"`
	MaxSizeBytes     int64   `json:"max_size_bytes"`
	SizeUsagePercent float64 `json:"size_usage_percent"`
	CanUpload        bool    `json:"can_upload"`
	RemainingFiles   int     `json:"remaining_files"`
	RemainingBytes   int64   `json:"remaining_bytes"`
}

type lifecycleResponse struct {
	State           string `json:"state"`
	DaysSinceAccess int    `json:"days_since_access"`
	Recommended     string `json:"recommended_action"`
}

func toChannelResponse(ch *channel.Channel) channelResponse {
	return channelResponse{
		ID:              ch.ID,
		ExternalStoreID: ch.ExternalStoreID,
		Name:            ch.Name,
		Description:     ch.Description,
		CreatedAt:       ch.CreatedAt,
		LastAccessedAt:  ch.LastAccessedAt,
		FileCount:       ch.FileCount,
		TotalSizeBytes:  ch.TotalSizeBytes,
	}
}

func toCapacityResponse(u channel.Capacity) *capacityResponse {
	return &capacityResponse{
		FileCount:        u.FileCount,
		MaxFiles:         u.MaxFiles,
		FileUsagePercent: u.FileUsagePercent,
		SizeBytes:        u.SizeBytes,
		MaxSizeBytes:     u.MaxSizeBytes,
		SizeUsagePercent: u.SizeUsagePercent,
		CanUpload:        u.CanUpload,
		RemainingFiles:   u.RemainingFiles,
		RemainingBytes:   u.RemainingBytes,
	}
}

func toLifecycleResponse(st channel.LifecycleStatus) *lifecycleResponse {
	return &lifecycleResponse{
		State:           string(st.State),
		DaysSinceAccess: st.DaysSinceAccess,
		Recommended:     string(st.Recommended),
	}
}

// usage computes the channel's capacity snapshot under configured limits.
func (h *channelHandler) usage(ch *channel.Channel) channel.Capacity {
	return channel.ComputeUsage(ch.FileCount, ch.TotalSizeBytes, h.limits.MaxFiles, h.limits.MaxChannelBytes)
}

// create provisions the remote store first, then the local record. A
// local failure rolls the remote store back so no unowned store is left
// behind.
func (h *channelHandler) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_name", "name is required")
		return
	}

	store, err := h.gateway.CreateStore(r.Context(), req.Name)
	if err != nil {
		writeGatewayError(w, err, h.logger)
		return
	}

	ch, err := h.channels.Create(r.Context(), store.Name, req.Name, req.Description)
	if err != nil {
		// Best-effort rollback of the remote store.
		if outcome := h.gateway.DeleteStore(r.Context(), store.Name, true); !outcome.Confirmed() {
			h.logger.Warn("orphaned remote store after failed channel create",
				"store", store.Name, "error", outcome.Err)
		}
		writeStoreError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, toChannelResponse(ch))
}

// list returns active channels decorated with capacity, lifecycle and
// favorite status.
func (h *channelHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 50)

	channels, err := h.channels.ListActive(r.Context(), limit, offset)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	now := time.Now()
	out := make([]channelResponse, 0, len(channels))
	for _, ch := range channels {
		resp := toChannelResponse(ch)
		resp.Capacity = toCapacityResponse(h.usage(ch))
		resp.Lifecycle = toLifecycleResponse(h.lifecycle.Classify(ch.LastAccessedAt, now))

		starred, err := h.favorites.IsFavorite(r.Context(), favorite.TargetChannel, ch.ExternalStoreID)
		if err != nil {
			h.logger.Warn("checking favorite", "channel", ch.Name, "error", err)
		} else {
			resp.Favorite = &starred
		}
		out = append(out, resp)
	}

	writeJSON(w, http.StatusOK, map[string]any{"channels": out})
}

func (h *channelHandler) get(w http.ResponseWriter, r *http.Request) {
	ch, ok := fetchChannel(w, r, h.channels, h.logger)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toChannelResponse(ch))
}

func (h *channelHandler) update(w http.ResponseWriter, r *http.Request) {
	ch, ok := fetchChannel(w, r, h.channels, h.logger)
	if !ok {
		return
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	if req.Name == nil && req.Description == nil {
		writeError(w, http.StatusBadRequest, "empty_update", "nothing to update")
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		writeError(w, http.StatusBadRequest, "invalid_name", "name must not be blank")
		return
	}

	updated, err := h.channels.Update(r.Context(), ch.ExternalStoreID, req.Name, req.Description)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toChannelResponse(updated))
}

// trashChannel soft-deletes the channel. The remote store stays; the
// trash manager deletes it only on confirmed permanent deletion.
func (h *channelHandler) trashChannel(w http.ResponseWriter, r *http.Request) {
	ch, ok := fetchChannel(w, r, h.channels, h.logger)
	if !ok {
		return
	}
	if err := h.trash.SoftDeleteChannel(r.Context(), ch.ExternalStoreID); err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "trashed",
		"retention_days": h.trash.RetentionDays(),
	})
}

func (h *channelHandler) capacity(w http.ResponseWriter, r *http.Request) {
	ch, ok := fetchChannel(w, r, h.channels, h.logger)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toCapacityResponse(h.usage(ch)))
}

func (h *channelHandler) lifecycleStatus(w http.ResponseWriter, r *http.Request) {
	ch, ok := fetchChannel(w, r, h.channels, h.logger)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toLifecycleResponse(h.lifecycle.Classify(ch.LastAccessedAt, time.Now())))
}

// pagination reads limit/offset query parameters with a default limit.
func pagination(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
