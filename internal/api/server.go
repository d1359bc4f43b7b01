// Package api is the JSON HTTP surface of the service: the chat flow
// over SSE, pack management, retrieval debugging, and health probes.
package api

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/groundbot/groundbot/internal/answer"
	"github.com/groundbot/groundbot/internal/log"
)

// ServerConfig contains everything needed to build the API server.
type ServerConfig struct {
	Logger      log.Logger
	ChatFlow    *answer.Flow // Optional: nil disables chat endpoints
	Packs       PackService  // Required
	Searcher    Searcher     // Required
	Counter     ChunkCounter // Required
	Pool        *pgxpool.Pool
	CORSOrigins []string
	TrustProxy  bool // trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst   int  // per-IP burst size (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates an API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Packs == nil {
		return nil, errors.New("pack service is required")
	}
	if cfg.Searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if cfg.Counter == nil {
		return nil, errors.New("chunk counter is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	mux := http.NewServeMux()

	ch := NewChat(cfg.ChatFlow, logger)
	ch.RegisterRoutes(mux)

	ph := &packsHandler{packs: cfg.Packs, logger: logger}
	mux.HandleFunc("GET /api/v1/packs", ph.listPacks)
	mux.HandleFunc("GET /api/v1/packs/{key}", ph.getPack)
	mux.HandleFunc("DELETE /api/v1/packs/{key}", ph.deletePack)

	sh := &searchHandler{searcher: cfg.Searcher, logger: logger}
	mux.HandleFunc("POST /api/v1/search", sh.search)

	st := &statsHandler{counter: cfg.Counter, logger: logger}
	mux.HandleFunc("GET /api/v1/stats", st.getStats)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack, outermost first:
	//   Recovery -> RequestID -> Logging -> CORS -> RateLimit -> Routes
	// RequestID precedes Logging so request_id is available in log
	// attributes; CORS precedes RateLimit so preflight OPTIONS gets its
	// headers even when throttled.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w)
		handler.ServeHTTP(w, r)
	})

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
