package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// sseHeaders prepares a response for Server-Sent Events. The
// X-Accel-Buffering header tells nginx not to buffer the stream.
func sseHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// writeEvent sends one SSE event with a JSON payload and flushes it.
// Returns false when the client is gone or the writer cannot flush.
func writeEvent(w http.ResponseWriter, event string, data any) bool {
	payload, err := json.Marshal(data)
	if err != nil {
		slog.Error("encoding SSE event", "event", event, "error", err)
		return false
	}
	if _, err := w.Write([]byte("event: " + event + "\ndata: " + string(payload) + "\n\n")); err != nil {
		return false
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return true
}
