package api

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/chalssak/chalssak/internal/channel"
)

// documentHandler serves document listing, multipart upload, and URL
// ingestion.
type documentHandler struct {
	channels ChannelStore
	gateway  Gateway
	fetcher  Fetcher
	limits   UploadLimits
	logger   *slog.Logger
}

// documentResponse is the JSON projection of a remote document.
type documentResponse struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	SizeBytes   int64  `json:"size_bytes"`
	State       string `json:"state"`
}

func (h *documentHandler) list(w http.ResponseWriter, r *http.Request) {
	ch, ok := fetchChannel(w, r, h.channels, h.logger)
	if !ok {
		return
	}

	docs, err := h.gateway.ListDocuments(r.Context(), ch.ExternalStoreID)
	if err != nil {
		writeGatewayError(w, err, h.logger)
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentResponse{
			Name:        d.Name,
			DisplayName: d.DisplayName,
			SizeBytes:   d.SizeBytes,
			State:       d.State,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

// upload admits one multipart file: extension whitelist, per-file size
// cap, then channel capacity, then the remote upload, then the local
// counter bump.
func (h *documentHandler) upload(w http.ResponseWriter, r *http.Request) {
	ch, ok := fetchChannel(w, r, h.channels, h.logger)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxFileBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_upload", "multipart form must carry a 'file' part")
		return
	}
	defer file.Close()

	if !h.allowedExtension(header.Filename) {
		writeError(w, http.StatusBadRequest, "unsupported_type",
			"allowed extensions: "+strings.Join(h.limits.AllowedExtensions, ", "))
		return
	}
	if header.Size > h.limits.MaxFileBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file_too_large",
			"file exceeds the per-file size limit")
		return
	}

	usage := channel.ComputeUsage(ch.FileCount, ch.TotalSizeBytes, h.limits.MaxFiles, h.limits.MaxChannelBytes)
	if err := channel.ValidateUpload(usage, header.Size); err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	result, err := h.gateway.UploadDocument(r.Context(), ch.ExternalStoreID, header.Filename, file)
	if err != nil {
		writeGatewayError(w, err, h.logger)
		return
	}

	if err := h.channels.RecordUpload(r.Context(), ch.ExternalStoreID, header.Size); err != nil {
		// The remote upload already succeeded; counters reconcile on the
		// next stats sync.
		h.logger.Warn("recording upload", "channel", ch.Name, "error", err)
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"operation":  result.OperationName,
		"done":       result.Done,
		"file_name":  header.Filename,
		"size_bytes": header.Size,
	})
}

// uploadURL fetches a web page, converts it to markdown, and ingests it
// as a document.
func (h *documentHandler) uploadURL(w http.ResponseWriter, r *http.Request) {
	if h.fetcher == nil {
		writeError(w, http.StatusNotImplemented, "not_supported", "URL ingestion is not enabled")
		return
	}

	ch, ok := fetchChannel(w, r, h.channels, h.logger)
	if !ok {
		return
	}

	var req struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "url is required")
		return
	}

	page, err := h.fetcher.FetchURL(r.Context(), req.URL)
	if err != nil {
		writeError(w, http.StatusBadGateway, "fetch_failed", "fetching the page failed")
		return
	}

	content := page.AsMarkdown()
	size := int64(len(content))

	usage := channel.ComputeUsage(ch.FileCount, ch.TotalSizeBytes, h.limits.MaxFiles, h.limits.MaxChannelBytes)
	if err := channel.ValidateUpload(usage, size); err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	filename := page.Filename()
	result, err := h.gateway.UploadDocument(r.Context(), ch.ExternalStoreID, filename, strings.NewReader(content))
	if err != nil {
		writeGatewayError(w, err, h.logger)
		return
	}

	if err := h.channels.RecordUpload(r.Context(), ch.ExternalStoreID, size); err != nil {
		h.logger.Warn("recording upload", "channel", ch.Name, "error", err)
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"operation":  result.OperationName,
		"done":       result.Done,
		"file_name":  filename,
		"title":      page.Title,
		"size_bytes": size,
	})
}

func (h *documentHandler) allowedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range h.limits.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}
