package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/xlabhq/triarb/internal/graph"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	graph  *graph.Graph
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler reporting on the given graph.
func NewHealthHandler(g *graph.Graph, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{graph: g, logger: logger}
}

// HealthCheck responds with the server status and graph size.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"assets":    h.graph.VertexCount(),
		"edges":     h.graph.EdgeCount(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
