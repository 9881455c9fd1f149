package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/chalssak/chalssak/internal/channel"
	"github.com/chalssak/chalssak/internal/favorite"
	"github.com/chalssak/chalssak/internal/note"
	"github.com/chalssak/chalssak/internal/trash"
)

// errorBody is the payload inside the error envelope.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorEnvelope is the JSON shape of every error response.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
// Buffer-first so headers are only sent after successful encoding,
// allowing a proper 500 if encoding fails.
func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		slog.Error("encoding JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		slog.Debug("writing response body", "error", err)
	}
}

// writeError writes an error envelope with the given status and code.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

// writeStoreError maps store sentinels onto HTTP statuses. Unknown
// errors become an opaque 500; the caller logs the detail.
func writeStoreError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var capErr *channel.CapacityError
	switch {
	case errors.Is(err, channel.ErrNotFound),
		errors.Is(err, note.ErrNotFound),
		errors.Is(err, trash.ErrNotFound),
		errors.Is(err, favorite.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, channel.ErrDuplicateStore):
		writeError(w, http.StatusConflict, "duplicate", err.Error())
	case errors.Is(err, trash.ErrConfirmationRequired):
		writeError(w, http.StatusBadRequest, "confirmation_required", err.Error())
	case errors.As(err, &capErr):
		writeError(w, http.StatusRequestEntityTooLarge, "capacity_exceeded", capErr.Error())
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// writeGatewayError reports a remote generation or store failure.
func writeGatewayError(w http.ResponseWriter, err error, logger *slog.Logger) {
	logger.Error("gateway request failed", "error", err)
	writeError(w, http.StatusBadGateway, "gateway_error", "upstream request failed")
}

// decodeJSON reads a JSON request body into dst with a size cap.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
