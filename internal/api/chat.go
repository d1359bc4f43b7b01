package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/firebase/genkit/go/genkit"

	"github.com/groundbot/groundbot/internal/answer"
	"github.com/groundbot/groundbot/internal/log"
)

const maxChatBodyBytes = 1 << 20

// Chat exposes the question-answering flow over HTTP.
//
// Endpoints:
//   - POST /api/v1/chat        - synchronous turn (JSON request/response)
//   - POST /api/v1/chat/stream - streaming turn (Server-Sent Events)
//
// Both go through the same Genkit flow, so tracing and behaviour match.
type Chat struct {
	flow   *answer.Flow
	logger log.Logger
}

// NewChat creates a chat handler around the flow.
func NewChat(flow *answer.Flow, logger log.Logger) *Chat {
	return &Chat{flow: flow, logger: logger}
}

// RegisterRoutes registers chat routes on the mux. With a nil flow the
// routes stay unregistered and return 404.
func (h *Chat) RegisterRoutes(mux *http.ServeMux) {
	if h.flow == nil {
		h.logger.Warn("chat flow not configured, skipping route registration")
		return
	}

	mux.Handle("POST /api/v1/chat", genkit.Handler(h.flow))
	mux.HandleFunc("POST /api/v1/chat/stream", h.Stream)
}

// SSE event types for chat streaming.
const (
	EventChunk = "chunk" // partial answer text
	EventDone  = "done"  // turn finished, carries mode and citations
	EventError = "error" // turn failed
)

// ChunkPayload is the SSE data payload for streaming text chunks.
type ChunkPayload struct {
	Text string `json:"text"`
}

// ErrorPayload is the SSE data payload when an error occurs.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Stream handles SSE streaming chat requests. Partial answer text is
// forwarded as chunk events; the done event carries the final output
// including mode, pack key, and citations.
func (h *Chat) Stream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var input answer.Input
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		_ = writeEvent(w, flusher, EventError, ErrorPayload{
			Code:    "invalid_request",
			Message: "invalid request body",
		})
		return
	}
	if input.UserMessage() == "" {
		_ = writeEvent(w, flusher, EventError, ErrorPayload{
			Code:    "missing_message",
			Message: "message is required",
		})
		return
	}

	ctx := r.Context()
	h.logger.Debug("SSE stream started")

	var (
		finalOutput answer.Output
		streamErr   error
	)

	for streamValue, err := range h.flow.Stream(ctx, input) {
		select {
		case <-ctx.Done():
			h.logger.Info("client disconnected during stream")
			return
		default:
		}

		if err != nil {
			streamErr = err
			break
		}

		if streamValue.Done {
			finalOutput = streamValue.Output
			break
		}

		if streamValue.Stream.Text != "" {
			if err := writeEvent(w, flusher, EventChunk, ChunkPayload{
				Text: streamValue.Stream.Text,
			}); err != nil {
				// write failure usually means the connection closed
				h.logger.Error("failed to write chunk", "error", err)
				return
			}
		}
	}

	if streamErr != nil {
		h.handleStreamError(w, flusher, streamErr)
		return
	}

	_ = writeEvent(w, flusher, EventDone, finalOutput)

	h.logger.Info("SSE stream completed", "mode", finalOutput.Mode, "pack_key", finalOutput.PackKey)
}

func (h *Chat) handleStreamError(w io.Writer, f http.Flusher, err error) {
	code := "stream_error"
	if errors.Is(err, answer.ErrEmptyMessage) {
		code = "missing_message"
	}

	_ = writeEvent(w, f, EventError, ErrorPayload{
		Code:    code,
		Message: err.Error(),
	})
}

// writeEvent writes one SSE event with JSON-encoded data in the form
// "event: <type>\ndata: <json>\n\n".
func writeEvent[T any](w io.Writer, flusher http.Flusher, event string, data T) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	flusher.Flush()
	return nil
}
