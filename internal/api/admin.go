package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/chalssak/chalssak/internal/metrics"
	"github.com/chalssak/chalssak/internal/scheduler"
)

// adminHandler serves system stats and scheduler control.
type adminHandler struct {
	channels  ChannelStore
	trash     TrashManager
	scheduler SchedulerControl
	metrics   *metrics.Recorder
	logger    *slog.Logger
}

func (h *adminHandler) stats(w http.ResponseWriter, r *http.Request) {
	activeChannels, err := h.channels.CountActive(r.Context())
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	trashStats, err := h.trash.Stats(r.Context())
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	out := map[string]any{
		"active_channels": activeChannels,
		"trash":           trashStats,
	}
	if h.metrics != nil {
		out["api"] = h.metrics.Snapshot()
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *adminHandler) schedulerStatus(w http.ResponseWriter, _ *http.Request) {
	if h.scheduler == nil {
		writeError(w, http.StatusNotImplemented, "not_supported", "scheduler is not enabled")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": h.scheduler.Status()})
}

func (h *adminHandler) schedulerHistory(w http.ResponseWriter, _ *http.Request) {
	if h.scheduler == nil {
		writeError(w, http.StatusNotImplemented, "not_supported", "scheduler is not enabled")
		return
	}
	history := h.scheduler.History()
	if history == nil {
		history = []scheduler.RunRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (h *adminHandler) runJob(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		writeError(w, http.StatusNotImplemented, "not_supported", "scheduler is not enabled")
		return
	}

	record, err := h.scheduler.RunNow(r.Context(), r.PathValue("name"))
	if err != nil {
		if errors.Is(err, scheduler.ErrUnknownJob) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeStoreError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, record)
}
