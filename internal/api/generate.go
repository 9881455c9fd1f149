package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/chalssak/chalssak/internal/gemini"
)

// generateHandler serves the content-generation routes (summary, FAQ,
// study guide, quiz, podcast script, citations).
type generateHandler struct {
	channels ChannelStore
	gateway  Gateway
	logger   *slog.Logger
}

func (h *generateHandler) summarize(w http.ResponseWriter, r *http.Request) {
	ch, ok := fetchChannel(w, r, h.channels, h.logger)
	if !ok {
		return
	}

	var req struct {
		Style    string `json:"style"`
		Document string `json:"document"`
	}
	if err := decodeJSON(r, &req); err != nil && r.ContentLength > 0 {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	style := gemini.SummaryShort
	switch strings.ToLower(req.Style) {
	case "", "short":
	case "detailed":
		style = gemini.SummaryDetailed
	default:
		writeError(w, http.StatusBadRequest, "invalid_style", "style must be short or detailed")
		return
	}

	result, err := h.gateway.Summarize(r.Context(), ch.ExternalStoreID, style, req.Document)
	if err != nil {
		writeGatewayError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *generateHandler) faq(w http.ResponseWriter, r *http.Request) {
	ch, ok := fetchChannel(w, r, h.channels, h.logger)
	if !ok {
		return
	}

	var req struct {
		Count int `json:"count"`
	}
	if err := decodeJSON(r, &req); err != nil && r.ContentLength > 0 {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	result, err := h.gateway.FAQ(r.Context(), ch.ExternalStoreID, req.Count)
	if err != nil {
		writeGatewayError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *generateHandler) studyGuide(w http.ResponseWriter, r *http.Request) {
	ch, ok := fetchChannel(w, r, h.channels, h.logger)
	if !ok {
		return
	}

	var req struct {
		Difficulty      string `json:"difficulty"`
		MaxSections     int    `json:"max_sections"`
		IncludeConcepts bool   `json:"include_concepts"`
	}
	if err := decodeJSON(r, &req); err != nil && r.ContentLength > 0 {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	result, err := h.gateway.StudyGuide(r.Context(), ch.ExternalStoreID, req.Difficulty, req.MaxSections, req.IncludeConcepts)
	if err != nil {
		writeGatewayError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *generateHandler) quiz(w http.ResponseWriter, r *http.Request) {
	ch, ok := fetchChannel(w, r, h.channels, h.logger)
	if !ok {
		return
	}

	var req struct {
		Count int `json:"count"`
	}
	if err := decodeJSON(r, &req); err != nil && r.ContentLength > 0 {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	result, err := h.gateway.Quiz(r.Context(), ch.ExternalStoreID, req.Count)
	if err != nil {
		writeGatewayError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *generateHandler) podcast(w http.ResponseWriter, r *http.Request) {
	ch, ok := fetchChannel(w, r, h.channels, h.logger)
	if !ok {
		return
	}

	result, err := h.gateway.PodcastScript(r.Context(), ch.ExternalStoreID)
	if err != nil {
		writeGatewayError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *generateHandler) citations(w http.ResponseWriter, r *http.Request) {
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

	text, citations, err := h.gateway.Citations(r.Context(), ch.ExternalStoreID, req.Query)
	if err != nil {
		writeGatewayError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"text":      text,
		"citations": citations,
	})
}
