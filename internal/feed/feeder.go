// Package feed keeps the in-memory asset graph current. On startup it warm
// loads recent ticker history from the store, then follows two live sources:
// the store's insert notifications and the cross-instance signal bus.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xlabhq/triarb/internal/domain"
	"github.com/xlabhq/triarb/internal/graph"
)

// BusChannel is the signal bus channel tickers are exchanged on.
const BusChannel = "tickers"

// Config tunes the warm load.
type Config struct {
	// WarmLookback is how far back the warm load reaches. Defaults to 24h.
	WarmLookback time.Duration
	// WarmLimit caps warm-loaded rows. Defaults to 10000.
	WarmLimit int
}

func (c Config) withDefaults() Config {
	if c.WarmLookback <= 0 {
		c.WarmLookback = 24 * time.Hour
	}
	if c.WarmLimit <= 0 {
		c.WarmLimit = 10000
	}
	return c
}

// Feeder applies ticker observations to the graph.
type Feeder struct {
	graph  *graph.Graph
	store  domain.TickerStore
	bus    domain.SignalBus
	cfg    Config
	logger *slog.Logger
}

// NewFeeder creates a Feeder. The bus may be nil when running single-instance;
// the store may be nil when running without persistence.
func NewFeeder(g *graph.Graph, store domain.TickerStore, bus domain.SignalBus, cfg Config, logger *slog.Logger) *Feeder {
	return &Feeder{
		graph:  g,
		store:  store,
		bus:    bus,
		cfg:    cfg.withDefaults(),
		logger: logger.With(slog.String("component", "feed")),
	}
}

// WarmLoad seeds the graph from recent ticker history.
func (f *Feeder) WarmLoad(ctx context.Context) error {
	if f.store == nil {
		return nil
	}

	tickers, err := f.store.LatestTickers(ctx, f.cfg.WarmLookback, f.cfg.WarmLimit)
	if err != nil {
		return fmt.Errorf("feed: warm load: %w", err)
	}
	for _, t := range tickers {
		f.graph.UpsertQuote(t)
	}
	f.logger.Info("graph warm loaded",
		slog.Int("tickers", len(tickers)),
		slog.Int("vertices", f.graph.VertexCount()),
	)
	return nil
}

// Run follows the live sources until the context is cancelled or a source
// channel closes.
func (f *Feeder) Run(ctx context.Context) error {
	grp, gctx := errgroup.WithContext(ctx)
	if f.store != nil {
		grp.Go(func() error { return f.followStore(gctx) })
	}
	if f.bus != nil {
		grp.Go(func() error { return f.followBus(gctx) })
	}
	f.logger.Info("feeder started")
	defer f.logger.Info("feeder stopped")
	return grp.Wait()
}

func (f *Feeder) followStore(ctx context.Context) error {
	ch, err := f.store.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("feed: store subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-ch:
			if !ok {
				return fmt.Errorf("feed: store subscription closed")
			}
			f.graph.UpsertQuote(t)
		}
	}
}

func (f *Feeder) followBus(ctx context.Context) error {
	ch, err := f.bus.Subscribe(ctx, BusChannel)
	if err != nil {
		return fmt.Errorf("feed: bus subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return fmt.Errorf("feed: bus subscription closed")
			}
			var t domain.MarketTicker
			if err := json.Unmarshal(data, &t); err != nil {
				f.logger.Debug("malformed bus ticker",
					slog.String("error", err.Error()),
					slog.Int("payload_len", len(data)),
				)
				continue
			}
			if t.Exchange == "" || t.BaseSymbol == "" || t.MarketSymbol == "" {
				continue
			}
			f.graph.UpsertQuote(t)
		}
	}
}
