package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/groundbot/groundbot/internal/log"
)

// WriteJSON writes a JSON response with the given status code. The body is
// encoded into a buffer first so headers are only sent after successful
// encoding; an encoding failure can still become a proper 500.
func WriteJSON(w http.ResponseWriter, status int, data any, logger log.Logger) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// client disconnects are common and expected
		logger.Debug("failed to write response body", "error", err)
	}
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteError writes a JSON error response with a stable machine-readable
// code and a human-readable message.
func WriteError(w http.ResponseWriter, status int, code, message string, logger log.Logger) {
	WriteJSON(w, status, ErrorResponse{Error: code, Message: message}, logger)
}
