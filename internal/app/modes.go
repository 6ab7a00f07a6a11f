package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xlabhq/triarb/internal/domain"
	"github.com/xlabhq/triarb/internal/notify"
	"github.com/xlabhq/triarb/internal/search"
	"github.com/xlabhq/triarb/internal/server"
	"github.com/xlabhq/triarb/internal/server/handler"
	"github.com/xlabhq/triarb/internal/server/ws"
	"github.com/xlabhq/triarb/internal/stream"
)

// shutdownTimeout bounds graceful HTTP shutdown once the context is cancelled.
const shutdownTimeout = 10 * time.Second

// ServerMode runs the HTTP API and WebSocket hub on top of a live graph.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	if err := a.startFeeder(ctx, g, deps); err != nil {
		return err
	}
	a.startCycleWatcher(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// ScanMode sweeps the configured base assets on a fixed interval and reports
// confirmed cycles through the signal bus and notification channels.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode",
		slog.Any("bases", a.cfg.Search.Bases),
		slog.Duration("interval", a.cfg.Search.Interval.Duration),
	)

	g, ctx := errgroup.WithContext(ctx)

	if err := a.startFeeder(ctx, g, deps); err != nil {
		return err
	}
	a.startCycleWatcher(ctx, g, deps)
	g.Go(func() error {
		return a.runScanner(ctx, deps)
	})

	return g.Wait()
}

// FullMode runs the HTTP surface and the periodic scanner together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	if err := a.startFeeder(ctx, g, deps); err != nil {
		return err
	}
	a.startCycleWatcher(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	g.Go(func() error {
		return a.runScanner(ctx, deps)
	})

	return g.Wait()
}

// streamOptions builds the confirmation pipeline defaults from configuration.
func (a *App) streamOptions() stream.Options {
	return stream.Options{
		Search: search.Options{
			MinVolume:       a.cfg.Search.MinVolume,
			ProfitThreshold: a.cfg.Search.ProfitThreshold,
			FeeRate:         a.cfg.Search.FeeRate,
			MaxResults:      a.cfg.Search.MaxResults,
			TimeBudget:      a.cfg.Search.TimeBudget.Duration,
		},
		Endowment: a.cfg.Search.Endowment,
		Heartbeat: a.cfg.Search.Heartbeat.Duration,
	}
}

// startFeeder warm loads the graph and follows the live ticker sources.
func (a *App) startFeeder(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if err := deps.Feeder.WarmLoad(ctx); err != nil {
		return fmt.Errorf("app: warm load: %w", err)
	}
	g.Go(func() error {
		return deps.Feeder.Run(ctx)
	})
	return nil
}

// startCycleWatcher forwards bus-published confirmations to the notifier. It
// is a no-op unless both the signal bus and a notification channel exist.
func (a *App) startCycleWatcher(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.SignalBus == nil || deps.Notifier == nil {
		return
	}
	watcher := notify.NewCycleWatcher(deps.SignalBus, deps.Notifier, a.logger)
	g.Go(func() error {
		return watcher.Run(ctx)
	})
}

// startHTTPServer registers routes, starts the listener, and arranges graceful
// shutdown on context cancellation.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.Graph, a.logger),
		Symbols: handler.NewSymbolsHandler(deps.Graph, a.logger),
		Cycles:  handler.NewCyclesHandler(deps.Orchestrator, deps.Engine, deps.Books, a.streamOptions(), a.logger),
		Tickers: handler.NewTickersHandler(deps.Graph, deps.TickerStore, deps.SignalBus, a.logger),
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("server shutdown failed", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})
}

// runScanner sweeps every configured base once per interval until cancelled.
// The first sweep starts immediately.
func (a *App) runScanner(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Search.Interval.Duration
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		a.sweep(ctx, deps)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// sweep runs one confirmation pass over every configured base asset.
func (a *App) sweep(ctx context.Context, deps *Dependencies) {
	opts := a.streamOptions()
	for _, base := range a.cfg.Search.Bases {
		if ctx.Err() != nil {
			return
		}
		res, err := deps.Orchestrator.Search(ctx, base, opts)
		if err != nil {
			a.logger.WarnContext(ctx, "sweep failed",
				slog.String("base", base),
				slog.String("error", err.Error()),
			)
			// An unknown base usually means the graph has not seen a
			// ticker for it yet; alerting on every sweep would be noise.
			if !errors.Is(err, domain.ErrUnknownAsset) {
				a.notifyError(ctx, deps, base, err)
			}
			continue
		}

		a.logger.InfoContext(ctx, "sweep finished",
			slog.String("base", base),
			slog.Int("confirmed", len(res.Cycles)),
			slog.Bool("time_exhausted", res.TimeExhausted),
			slog.Duration("took", res.Took),
		)

		// Without a bus there is no cycle watcher, so notify directly.
		if deps.SignalBus == nil && deps.Notifier != nil {
			for _, c := range res.Cycles {
				if err := deps.Notifier.CycleConfirmed(ctx, c); err != nil {
					a.logger.Warn("cycle notification failed", slog.String("error", err.Error()))
				}
			}
		}
	}
}

func (a *App) notifyError(ctx context.Context, deps *Dependencies, base string, err error) {
	if deps.Notifier == nil {
		return
	}
	if nerr := deps.Notifier.ScanError(ctx, base, err); nerr != nil {
		a.logger.Warn("error notification failed", slog.String("error", nerr.Error()))
	}
}
