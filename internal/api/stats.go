package api

import (
	"context"
	"net/http"

	"github.com/groundbot/groundbot/internal/log"
)

// ChunkCounter reports indexed chunk counts for the stats API.
type ChunkCounter interface {
	CountByPack(ctx context.Context) (map[string]int, error)
}

type statsHandler struct {
	counter ChunkCounter
	logger  log.Logger
}

// StatsResponse summarizes the index contents.
type StatsResponse struct {
	Packs       int            `json:"packs"`
	Chunks      int            `json:"chunks"`
	ChunksByKey map[string]int `json:"chunksByPack"`
}

func (h *statsHandler) getStats(w http.ResponseWriter, r *http.Request) {
	byPack, err := h.counter.CountByPack(r.Context())
	if err != nil {
		h.logger.Error("failed to count chunks", "error", err)
		WriteError(w, http.StatusInternalServerError, "stats_failed", "failed to compute stats", h.logger)
		return
	}

	total := 0
	for _, n := range byPack {
		total += n
	}
	if byPack == nil {
		byPack = map[string]int{}
	}

	WriteJSON(w, http.StatusOK, StatsResponse{
		Packs:       len(byPack),
		Chunks:      total,
		ChunksByKey: byPack,
	}, h.logger)
}
