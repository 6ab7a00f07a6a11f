// Package stream drives end-to-end searches: enumerate candidate cycles from
// the graph, confirm each against live orderbook depth, and push events to the
// caller as confirmations land.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xlabhq/triarb/internal/depth"
	"github.com/xlabhq/triarb/internal/domain"
	"github.com/xlabhq/triarb/internal/graph"
	"github.com/xlabhq/triarb/internal/search"
)

const (
	// DefaultEndowment is the notional amount of the base asset a cycle is
	// confirmed with when the caller does not choose one.
	DefaultEndowment = 1.0

	// confirmConcurrency bounds simultaneous candidate confirmations. Each
	// confirmation fetches three books, so upstream pressure is 3x this.
	confirmConcurrency = 8
)

// Event types pushed to stream consumers.
const (
	EventCycle    = "cycle"
	EventProgress = "progress"
	EventDone     = "done"
)

// Event is one NDJSON record of a streaming search. Cycle events carry the
// confirmed cycle with MaxRate replaced by the depth-realized margin. The
// done event is always the last record of a stream and reports the total
// elapsed time in milliseconds.
type Event struct {
	Type      string        `json:"type"`
	SearchID  string        `json:"searchId"`
	Cycle     *domain.Cycle `json:"cycle,omitempty"`
	Checked   int           `json:"checked"`
	Total     int           `json:"total"`
	Confirmed int           `json:"confirmed"`
	Exhausted bool          `json:"timeExhausted,omitempty"`
	Took      int64         `json:"took,omitempty"`
}

// Options tunes one streaming run.
type Options struct {
	// Search narrows candidate enumeration.
	Search search.Options
	// Endowment is the base-asset notional fed through each cycle's books.
	Endowment float64
	// Heartbeat is the progress-event interval. Zero disables heartbeats.
	Heartbeat time.Duration
}

// BookFetcher resolves a trade leg to the orderbook and side it executes
// against.
type BookFetcher interface {
	ForTrade(ctx context.Context, sell, buy, exchange string) (domain.OrderBook, domain.BookSide, error)
}

// CyclesChannel is the signal bus channel confirmed cycles are published on.
const CyclesChannel = "cycles"

// Orchestrator runs searches against one engine and one book source.
type Orchestrator struct {
	engine *search.Engine
	books  BookFetcher
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewOrchestrator wires an engine to a book source.
func NewOrchestrator(engine *search.Engine, books BookFetcher, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		engine: engine,
		books:  books,
		logger: logger.With(slog.String("component", "stream")),
	}
}

// WithBus makes the orchestrator publish every confirmed cycle to the signal
// bus in addition to emitting it, so other instances and notification workers
// see confirmations from any entry point.
func (o *Orchestrator) WithBus(bus domain.SignalBus) *Orchestrator {
	o.bus = bus
	return o
}

type outcome struct {
	cycle     domain.Cycle
	confirmed bool
}

// Run enumerates candidates from the base asset and confirms them against
// live depth, invoking emit from a single goroutine for every event. Once
// enumeration succeeds the done event is always emitted, even when the
// context is cancelled mid-stream. A non-nil error from emit aborts the run.
func (o *Orchestrator) Run(ctx context.Context, base string, opts Options, emit func(Event) error) error {
	if opts.Endowment <= 0 {
		opts.Endowment = DefaultEndowment
	}
	threshold := opts.Search.ProfitThreshold
	if threshold == 0 {
		threshold = search.DefaultProfitThreshold
	}

	searchID := uuid.NewString()
	started := time.Now()
	logger := o.logger.With(slog.String("search_id", searchID), slog.String("base", base))

	res, err := o.engine.FindCycles(base, opts.Search)
	if err != nil {
		return err
	}
	total := len(res.Candidates)
	logger.Info("confirmation started",
		slog.Int("candidates", total),
		slog.Bool("time_exhausted", res.TimeExhausted),
	)

	results := make(chan outcome)
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(confirmConcurrency)
	go func() {
		defer close(results)
		for _, cand := range res.Candidates {
			grp.Go(func() error {
				out, err := o.confirm(gctx, cand, opts.Endowment, threshold)
				if err != nil {
					logger.Warn("confirmation failed",
						slog.String("cycle", cand.Cycle.ID),
						slog.Any("error", err),
					)
					out = outcome{cycle: cand.Cycle}
				}
				select {
				case results <- out:
				case <-gctx.Done():
				}
				return nil
			})
		}
		_ = grp.Wait() // workers never return errors
	}()

	var heartbeat <-chan time.Time
	if opts.Heartbeat > 0 {
		ticker := time.NewTicker(opts.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	checked, confirmed := 0, 0
	event := func(typ string) Event {
		return Event{
			Type:      typ,
			SearchID:  searchID,
			Checked:   checked,
			Total:     total,
			Confirmed: confirmed,
		}
	}

consume:
	for {
		select {
		case <-ctx.Done():
			break consume
		case <-heartbeat:
			if err := emit(event(EventProgress)); err != nil {
				return fmt.Errorf("stream: emit progress: %w", err)
			}
		case out, ok := <-results:
			if !ok {
				break consume
			}
			checked++
			if out.confirmed {
				confirmed++
				ev := event(EventCycle)
				ev.Cycle = &out.cycle
				if err := emit(ev); err != nil {
					return fmt.Errorf("stream: emit cycle: %w", err)
				}
				o.publish(ctx, out.cycle, logger)
			}
		}
	}

	done := event(EventDone)
	done.Exhausted = res.TimeExhausted
	done.Took = time.Since(started).Milliseconds()
	if err := emit(done); err != nil {
		return fmt.Errorf("stream: emit done: %w", err)
	}
	logger.Info("stream finished",
		slog.Int("checked", checked),
		slog.Int("confirmed", confirmed),
	)
	return ctx.Err()
}

// publish pushes a confirmed cycle onto the signal bus when one is attached.
func (o *Orchestrator) publish(ctx context.Context, c domain.Cycle, logger *slog.Logger) {
	if o.bus == nil {
		return
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := o.bus.Publish(ctx, CyclesChannel, payload); err != nil {
		logger.Warn("cycle publish failed", slog.Any("error", err))
	}
}

// confirm replays the candidate's three legs through live depth and reports
// whether the realized margin clears the threshold.
func (o *Orchestrator) confirm(ctx context.Context, cand search.Candidate, endowment, threshold float64) (outcome, error) {
	legs, err := o.fetchLegs(ctx, cand.Legs)
	if err != nil {
		return outcome{}, err
	}

	r := depth.ChainedRevenue(endowment, legs)
	if r.Insufficient {
		return outcome{cycle: cand.Cycle}, nil
	}
	margin := r.Amount / endowment
	if margin <= threshold {
		return outcome{cycle: cand.Cycle}, nil
	}

	cycle := cand.Cycle
	cycle.MaxRate = margin
	return outcome{cycle: cycle, confirmed: true}, nil
}

// fetchLegs pulls the three legs' books concurrently and normalizes each into
// sell-currency levels.
func (o *Orchestrator) fetchLegs(ctx context.Context, legs [3]graph.Transition) ([][]domain.PriceLevel, error) {
	out := make([][]domain.PriceLevel, len(legs))
	grp, gctx := errgroup.WithContext(ctx)
	for i, leg := range legs {
		grp.Go(func() error {
			book, side, err := o.books.ForTrade(gctx, leg.Sell, leg.Buy, leg.Exchange)
			if err != nil {
				return fmt.Errorf("leg %s→%s on %s: %w", leg.Sell, leg.Buy, leg.Exchange, err)
			}
			levels := depth.SellLevels(book, side)
			if len(levels) == 0 {
				return fmt.Errorf("leg %s→%s on %s: empty book: %w", leg.Sell, leg.Buy, leg.Exchange, domain.ErrNotFound)
			}
			out[i] = levels
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchResult is the outcome of a batch search-and-confirm pass.
type SearchResult struct {
	Cycles        []domain.Cycle
	Took          time.Duration
	TimeExhausted bool
}

// Search runs a non-streaming confirmation pass: the same pipeline as Run but
// collecting confirmed cycles into a slice, along with the elapsed time and
// whether enumeration hit its budget.
func (o *Orchestrator) Search(ctx context.Context, base string, opts Options) (SearchResult, error) {
	var res SearchResult
	err := o.Run(ctx, base, opts, func(ev Event) error {
		switch {
		case ev.Type == EventCycle && ev.Cycle != nil:
			res.Cycles = append(res.Cycles, *ev.Cycle)
		case ev.Type == EventDone:
			res.Took = time.Duration(ev.Took) * time.Millisecond
			res.TimeExhausted = ev.Exhausted
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return SearchResult{}, err
	}
	return res, nil
}
