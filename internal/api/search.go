package api

import (
	"context"
	"encoding/json"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/groundbot/groundbot/internal/index"
	"github.com/groundbot/groundbot/internal/log"
	"github.com/groundbot/groundbot/internal/rerank"
)

const (
	defaultSearchLimit = 8
	maxSearchLimit     = 50
	maxSearchQueryLen  = 1000
)

// Searcher runs the retrieval legs the search API exposes.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...index.SearchOption) ([]index.Result, error)
	Lexical(ctx context.Context, query string, opts ...index.SearchOption) ([]index.Result, error)
}

type searchHandler struct {
	searcher Searcher
	logger   log.Logger
}

// SearchRequest is the POST /api/v1/search body.
type SearchRequest struct {
	Query   string `json:"query"`
	PackKey string `json:"packKey,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// SearchResult is one fused hit.
type SearchResult struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// search runs both retrieval legs and returns the rank-fused hits. It
// exists mainly for debugging what the answer pipeline would retrieve.
func (h *searchHandler) search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	if req.Query == "" {
		WriteError(w, http.StatusBadRequest, "missing_query", "query is required", h.logger)
		return
	}
	if len(req.Query) > maxSearchQueryLen {
		WriteError(w, http.StatusBadRequest, "query_too_long", "query must be 1000 characters or fewer", h.logger)
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	opts := []index.SearchOption{index.WithLimit(limit)}
	if req.PackKey != "" {
		opts = append(opts, index.WithPackKey(req.PackKey))
	}

	var semantic, lexical []index.Result
	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		semantic, err = h.searcher.Search(gctx, req.Query, opts...)
		return err
	})
	g.Go(func() error {
		var err error
		lexical, err = h.searcher.Lexical(gctx, req.Query, opts...)
		return err
	})
	if err := g.Wait(); err != nil {
		h.logger.Error("search failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "search_failed", "search failed", h.logger)
		return
	}

	fused := rerank.Fuse(semantic, lexical, limit)
	results := make([]SearchResult, 0, len(fused))
	for _, res := range fused {
		results = append(results, SearchResult{
			URL:     res.URL,
			Title:   res.Title,
			Content: res.Content,
			Score:   res.Score,
		})
	}

	WriteJSON(w, http.StatusOK, map[string]any{"results": results}, h.logger)
}
