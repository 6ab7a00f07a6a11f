package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xlabhq/triarb/internal/depth"
	"github.com/xlabhq/triarb/internal/domain"
	"github.com/xlabhq/triarb/internal/search"
	"github.com/xlabhq/triarb/internal/stream"
)

// CyclesHandler serves cycle search, streaming, and re-validation endpoints.
type CyclesHandler struct {
	orch     *stream.Orchestrator
	engine   *search.Engine
	books    stream.BookFetcher
	defaults stream.Options
	logger   *slog.Logger
}

// NewCyclesHandler creates a CyclesHandler. defaults supplies the search
// parameters used when a request does not override them.
func NewCyclesHandler(orch *stream.Orchestrator, engine *search.Engine, books stream.BookFetcher, defaults stream.Options, logger *slog.Logger) *CyclesHandler {
	return &CyclesHandler{
		orch:     orch,
		engine:   engine,
		books:    books,
		defaults: defaults,
		logger:   logger,
	}
}

// parseOptions merges query-string overrides into the configured defaults.
func (h *CyclesHandler) parseOptions(r *http.Request) stream.Options {
	opts := h.defaults
	q := r.URL.Query()

	if v := q.Get("exchanges"); v != "" {
		opts.Search.Exchanges = strings.Split(v, ",")
	}
	if v := q.Get("startingExchange"); v != "" {
		opts.Search.StartingExchange = v
	}
	opts.Search.MinVolume = queryFloat(r, "minVolume", opts.Search.MinVolume)
	opts.Search.ProfitThreshold = queryFloat(r, "threshold", opts.Search.ProfitThreshold)
	opts.Search.FeeRate = queryFloat(r, "feeRate", opts.Search.FeeRate)
	opts.Search.MaxResults = queryInt(r, "maxResults", opts.Search.MaxResults)
	opts.Endowment = queryFloat(r, "endowment", opts.Endowment)
	return opts
}

// SearchCycles runs a search pass and returns one JSON document with the
// cycles, the elapsed time in milliseconds, and whether enumeration hit its
// budget. By default each candidate is confirmed against live depth;
// ?confirm=false skips confirmation and reports the ticker-estimated cycles
// directly.
// GET /api/search/{base}
func (h *CyclesHandler) SearchCycles(w http.ResponseWriter, r *http.Request) {
	base := r.PathValue("base")
	opts := h.parseOptions(r)

	var (
		cycles        []domain.Cycle
		took          time.Duration
		timeExhausted bool
		err           error
	)
	if r.URL.Query().Get("confirm") == "false" {
		var res search.Result
		res, err = h.engine.FindCycles(base, opts.Search)
		if err == nil {
			for _, cand := range res.Candidates {
				cycles = append(cycles, cand.Cycle)
			}
			took = res.Took
			timeExhausted = res.TimeExhausted
		}
	} else {
		var res stream.SearchResult
		res, err = h.orch.Search(r.Context(), base, opts)
		if err == nil {
			cycles = res.Cycles
			took = res.Took
			timeExhausted = res.TimeExhausted
		}
	}
	if err != nil {
		if errors.Is(err, domain.ErrUnknownAsset) {
			writeError(w, http.StatusNotFound, "unknown asset: "+base)
			return
		}
		logHandler(h.logger, "search").Error("search failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if cycles == nil {
		cycles = []domain.Cycle{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"base":          base,
		"took":          took.Milliseconds(),
		"timeExhausted": timeExhausted,
		"cycles":        cycles,
		"count":         len(cycles),
	})
}

// StreamCycles runs the same pass but streams NDJSON events as confirmations
// land. The stream always ends with a done event.
// GET /api/search/{base}/stream
func (h *CyclesHandler) StreamCycles(w http.ResponseWriter, r *http.Request) {
	base := r.PathValue("base")
	opts := h.parseOptions(r)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	started := false
	emit := func(ev stream.Event) error {
		if !started {
			w.Header().Set("Content-Type", "application/x-ndjson; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if err := json.NewEncoder(w).Encode(ev); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := h.orch.Run(r.Context(), base, opts, emit); err != nil {
		if started {
			// Headers are gone; nothing more to tell the client.
			return
		}
		if errors.Is(err, domain.ErrUnknownAsset) {
			writeError(w, http.StatusNotFound, "unknown asset: "+base)
			return
		}
		logHandler(h.logger, "stream").Error("stream failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "stream failed")
	}
}

// CycleCurve re-validates a previously issued cycle id against live depth and
// returns its size-vs-revenue curve.
// GET /api/cycles/{id}/curve
func (h *CyclesHandler) CycleCurve(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	legs, err := h.engine.ResolveCycle(id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrMalformedCycleID):
			writeError(w, http.StatusBadRequest, "malformed cycle id")
		case errors.Is(err, domain.ErrUnknownAsset):
			writeError(w, http.StatusNotFound, "cycle references an unknown asset")
		case errors.Is(err, domain.ErrStaleCycle):
			writeError(w, http.StatusGone, "cycle no longer resolvable")
		default:
			writeError(w, http.StatusInternalServerError, "resolve failed")
		}
		return
	}

	levels := make([][]domain.PriceLevel, len(legs))
	grp, gctx := errgroup.WithContext(r.Context())
	for i, leg := range legs {
		grp.Go(func() error {
			book, side, err := h.books.ForTrade(gctx, leg.Sell, leg.Buy, leg.Exchange)
			if err != nil {
				return err
			}
			levels[i] = depth.SellLevels(book, side)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		logHandler(h.logger, "curve").Warn("book fetch failed",
			slog.String("cycle", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "orderbook fetch failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":        id,
		"curve":     depth.RevenueCurve(levels),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
