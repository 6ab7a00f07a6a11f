// Package books serves live orderbook snapshots for cycle confirmation. Each
// exchange gets one Accessor that caches snapshots for a short TTL, coalesces
// concurrent requests for the same symbol into a single upstream call, bounds
// in-flight fetches, and spaces calls out to stay inside venue rate limits.
package books

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/xlabhq/triarb/internal/domain"
)

const marketsFlightKey = "\x00markets"

// sharedFetchTimeout bounds a coalesced upstream call. The call runs detached
// from the initiating caller's context so that one caller cancelling does not
// fail every waiter sharing the flight.
const sharedFetchTimeout = 30 * time.Second

// AccessorConfig tunes one exchange's fetch behavior.
type AccessorConfig struct {
	// TTL is how long a fetched snapshot stays servable from cache.
	TTL time.Duration
	// MinInterval is the minimum spacing between upstream calls.
	MinInterval time.Duration
	// MaxConcurrent bounds in-flight upstream calls.
	MaxConcurrent int64
}

func (c AccessorConfig) withDefaults() AccessorConfig {
	if c.TTL <= 0 {
		c.TTL = 2 * time.Second
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	return c
}

type cachedBook struct {
	book      domain.OrderBook
	fetchedAt time.Time
}

// Accessor fronts one exchange's venue client. Failed fetches are never
// cached; only successful snapshots enter the TTL window.
type Accessor struct {
	exchange string
	client   domain.VenueClient
	cfg      AccessorConfig
	logger   *slog.Logger

	flight singleflight.Group
	sem    *semaphore.Weighted

	mu      sync.Mutex
	cache   map[string]cachedBook
	markets map[string]struct{}

	paceMu   sync.Mutex
	nextCall time.Time
}

// NewAccessor wraps a venue client for one exchange.
func NewAccessor(exchange string, client domain.VenueClient, cfg AccessorConfig, logger *slog.Logger) *Accessor {
	cfg = cfg.withDefaults()
	return &Accessor{
		exchange: exchange,
		client:   client,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "books"), slog.String("exchange", exchange)),
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		cache:    make(map[string]cachedBook),
	}
}

// OrderBook returns a snapshot for the symbol, from cache when fresh. Cache
// misses for the same symbol share one upstream call.
func (a *Accessor) OrderBook(ctx context.Context, symbol string) (domain.OrderBook, error) {
	a.mu.Lock()
	if entry, ok := a.cache[symbol]; ok && time.Since(entry.fetchedAt) < a.cfg.TTL {
		a.mu.Unlock()
		return entry.book, nil
	}
	a.mu.Unlock()

	ch := a.flight.DoChan(symbol, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()
		return a.fetch(fctx, symbol)
	})

	select {
	case <-ctx.Done():
		return domain.OrderBook{}, fmt.Errorf("books: %s %s: %w", a.exchange, symbol, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return domain.OrderBook{}, res.Err
		}
		return res.Val.(domain.OrderBook), nil
	}
}

func (a *Accessor) fetch(ctx context.Context, symbol string) (domain.OrderBook, error) {
	if err := a.pace(ctx); err != nil {
		return domain.OrderBook{}, fmt.Errorf("books: %s %s: %w", a.exchange, symbol, err)
	}
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return domain.OrderBook{}, fmt.Errorf("books: %s %s: %w", a.exchange, symbol, err)
	}
	defer a.sem.Release(1)

	book, err := a.client.FetchOrderBook(ctx, symbol)
	if err != nil {
		a.logger.Warn("orderbook fetch failed", slog.String("symbol", symbol), slog.Any("error", err))
		return domain.OrderBook{}, fmt.Errorf("books: %s %s: %w", a.exchange, symbol, err)
	}

	a.mu.Lock()
	a.cache[symbol] = cachedBook{book: book, fetchedAt: time.Now()}
	a.mu.Unlock()
	return book, nil
}

// pace reserves the next upstream call slot and sleeps until it opens.
func (a *Accessor) pace(ctx context.Context) error {
	if a.cfg.MinInterval <= 0 {
		return nil
	}

	a.paceMu.Lock()
	slot := a.nextCall
	now := time.Now()
	if slot.Before(now) {
		slot = now
	}
	a.nextCall = slot.Add(a.cfg.MinInterval)
	a.paceMu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// HasMarket reports whether the exchange lists the symbol, loading the market
// list on first use. Concurrent first uses share one upstream call.
func (a *Accessor) HasMarket(ctx context.Context, symbol string) (bool, error) {
	a.mu.Lock()
	markets := a.markets
	a.mu.Unlock()

	if markets == nil {
		ch := a.flight.DoChan(marketsFlightKey, func() (any, error) {
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
			defer cancel()
			return a.loadMarkets(fctx)
		})
		select {
		case <-ctx.Done():
			return false, fmt.Errorf("books: %s markets: %w", a.exchange, ctx.Err())
		case res := <-ch:
			if res.Err != nil {
				return false, res.Err
			}
			markets = res.Val.(map[string]struct{})
		}
	}

	_, ok := markets[symbol]
	return ok, nil
}

func (a *Accessor) loadMarkets(ctx context.Context) (map[string]struct{}, error) {
	symbols, err := a.client.LoadMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("books: %s markets: %w", a.exchange, err)
	}

	markets := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		markets[s] = struct{}{}
	}

	a.mu.Lock()
	a.markets = markets
	a.mu.Unlock()

	a.logger.Debug("markets loaded", slog.Int("count", len(markets)))
	return markets, nil
}
