package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/groundbot/groundbot/internal/log"
	"github.com/groundbot/groundbot/internal/pack"
)

// PackService is the slice of the pack manager the packs API needs.
type PackService interface {
	Summaries(ctx context.Context) ([]pack.Summary, error)
	Get(ctx context.Context, key string) (pack.Manifest, error)
	Delete(ctx context.Context, key string) error
}

type packsHandler struct {
	packs  PackService
	logger log.Logger
}

// listPacks returns all pack summaries, most recently updated first.
func (h *packsHandler) listPacks(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.packs.Summaries(r.Context())
	if err != nil {
		h.logger.Error("failed to list packs", "error", err)
		WriteError(w, http.StatusInternalServerError, "list_failed", "failed to list packs", h.logger)
		return
	}
	if summaries == nil {
		summaries = []pack.Summary{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"packs": summaries}, h.logger)
}

// getPack returns one pack manifest including its ingest log.
func (h *packsHandler) getPack(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	m, err := h.packs.Get(r.Context(), key)
	if errors.Is(err, pack.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "not_found", "pack not found", h.logger)
		return
	}
	if err != nil {
		h.logger.Error("failed to get pack", "key", key, "error", err)
		WriteError(w, http.StatusInternalServerError, "get_failed", "failed to get pack", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, m, h.logger)
}

// deletePack drops a pack and its indexed chunks.
func (h *packsHandler) deletePack(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	if err := h.packs.Delete(r.Context(), key); err != nil {
		h.logger.Error("failed to delete pack", "key", key, "error", err)
		WriteError(w, http.StatusInternalServerError, "delete_failed", "failed to delete pack", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
