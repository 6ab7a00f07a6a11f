// Package server exposes the scanner over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/xlabhq/triarb/internal/domain"
	"github.com/xlabhq/triarb/internal/server/handler"
	"github.com/xlabhq/triarb/internal/server/middleware"
	"github.com/xlabhq/triarb/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// RateLimit caps requests per client per RateWindow. Zero disables the
	// limiter middleware.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Symbols *handler.SymbolsHandler
	Cycles  *handler.CyclesHandler
	Tickers *handler.TickersHandler
}

// Server is the HTTP + WebSocket surface of the scanner.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer registers all routes and wires the middleware chain. limiter may
// be nil; rate limiting is skipped in that case.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/symbols", handlers.Symbols.ListSymbols)

	// Search endpoints.
	mux.HandleFunc("GET /api/search/{base}", handlers.Cycles.SearchCycles)
	mux.HandleFunc("GET /api/search/{base}/stream", handlers.Cycles.StreamCycles)
	mux.HandleFunc("GET /api/cycles/{id}/curve", handlers.Cycles.CycleCurve)

	// Ticker ingestion.
	mux.HandleFunc("POST /api/tickers", handlers.Tickers.IngestTicker)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // streaming endpoints hold connections open
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening. It blocks until the server errors or shuts down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
