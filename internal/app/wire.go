package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xlabhq/triarb/internal/books"
	"github.com/xlabhq/triarb/internal/cache/redis"
	"github.com/xlabhq/triarb/internal/config"
	"github.com/xlabhq/triarb/internal/domain"
	"github.com/xlabhq/triarb/internal/feed"
	"github.com/xlabhq/triarb/internal/graph"
	"github.com/xlabhq/triarb/internal/notify"
	"github.com/xlabhq/triarb/internal/search"
	"github.com/xlabhq/triarb/internal/store/postgres"
	"github.com/xlabhq/triarb/internal/stream"
	"github.com/xlabhq/triarb/internal/venue"
)

// Dependencies bundles everything the application modes need to operate. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Core pipeline
	Graph        *graph.Graph
	Engine       *search.Engine
	Books        *books.Service
	Orchestrator *stream.Orchestrator
	Feeder       *feed.Feeder

	// Optional infrastructure; nil when the backing service is disabled.
	TickerStore domain.TickerStore
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter

	// Notifier is nil when no notification channel is configured.
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ticker history ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.TickerStore = postgres.NewTickerStore(pgClient, logger)
	}

	// --- Redis signal bus + rate limiter ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	// --- Graph and search engine ---
	deps.Graph = graph.New(logger)
	deps.Engine = search.NewEngine(deps.Graph, logger)

	// --- Venue gateways and orderbook access ---
	deps.Books = books.NewService(logger)
	for name, vcfg := range cfg.Venues {
		client := venue.NewRESTClient(venue.Config{
			Exchange:      name,
			BaseURL:       vcfg.BaseURL,
			MarketsPath:   vcfg.MarketsPath,
			OrderbookPath: vcfg.OrderbookPath,
			Depth:         vcfg.Depth,
			Timeout:       vcfg.Timeout.Duration,
		})
		accessor := books.NewAccessor(name, client, books.AccessorConfig{
			TTL:           vcfg.CacheTTL.Duration,
			MinInterval:   vcfg.MinInterval.Duration,
			MaxConcurrent: int64(vcfg.MaxConcurrent),
		}, logger)
		deps.Books.Register(name, accessor)
	}

	// --- Orchestrator ---
	deps.Orchestrator = stream.NewOrchestrator(deps.Engine, deps.Books, logger)
	if deps.SignalBus != nil {
		deps.Orchestrator.WithBus(deps.SignalBus)
	}

	// --- Feeder ---
	deps.Feeder = feed.NewFeeder(deps.Graph, deps.TickerStore, deps.SignalBus, feed.Config{
		WarmLookback: cfg.Feed.WarmLookback.Duration,
		WarmLimit:    cfg.Feed.WarmLimit,
	}, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	return deps, cleanup, nil
}
