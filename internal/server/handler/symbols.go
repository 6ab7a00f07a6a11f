package handler

import (
	"log/slog"
	"net/http"

	"github.com/xlabhq/triarb/internal/graph"
)

// SymbolsHandler lists the assets currently known to the graph.
type SymbolsHandler struct {
	graph  *graph.Graph
	logger *slog.Logger
}

// NewSymbolsHandler creates a SymbolsHandler.
func NewSymbolsHandler(g *graph.Graph, logger *slog.Logger) *SymbolsHandler {
	return &SymbolsHandler{graph: g, logger: logger}
}

// ListSymbols returns every asset symbol with at least one quoted pair,
// sorted alphabetically.
// GET /api/symbols
func (h *SymbolsHandler) ListSymbols(w http.ResponseWriter, r *http.Request) {
	symbols := h.graph.Symbols()
	writeJSON(w, http.StatusOK, map[string]any{
		"symbols": symbols,
		"count":   len(symbols),
	})
}
