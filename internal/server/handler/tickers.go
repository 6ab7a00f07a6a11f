package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/xlabhq/triarb/internal/domain"
	"github.com/xlabhq/triarb/internal/feed"
	"github.com/xlabhq/triarb/internal/graph"
)

// TickersHandler ingests ticker observations from collector processes. Each
// accepted ticker updates the local graph, is persisted to history, and is
// republished on the signal bus for other instances.
type TickersHandler struct {
	graph  *graph.Graph
	store  domain.TickerStore
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewTickersHandler creates a TickersHandler. store and bus may be nil when
// running without persistence or cross-instance fan-out.
func NewTickersHandler(g *graph.Graph, store domain.TickerStore, bus domain.SignalBus, logger *slog.Logger) *TickersHandler {
	return &TickersHandler{graph: g, store: store, bus: bus, logger: logger}
}

// IngestTicker accepts one ticker observation.
// POST /api/tickers
func (h *TickersHandler) IngestTicker(w http.ResponseWriter, r *http.Request) {
	var t domain.MarketTicker
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "malformed ticker")
		return
	}
	if t.Exchange == "" || t.BaseSymbol == "" || t.MarketSymbol == "" || t.LastPrice <= 0 {
		writeError(w, http.StatusBadRequest, "ticker missing exchange, pair, or price")
		return
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}

	h.graph.UpsertQuote(t)

	log := logHandler(h.logger, "tickers")
	if h.store != nil {
		if err := h.store.InsertTicker(r.Context(), t); err != nil {
			log.Warn("ticker persist failed", slog.String("error", err.Error()))
		}
	}
	if h.bus != nil {
		payload, err := json.Marshal(t)
		if err == nil {
			if err := h.bus.Publish(r.Context(), feed.BusChannel, payload); err != nil {
				log.Warn("ticker publish failed", slog.String("error", err.Error()))
			}
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
