package domain

import (
	"context"
	"time"
)

// TickerStore is the persistent ticker history collaborator. The scanner
// warm-loads the graph from it on startup and then follows live inserts.
type TickerStore interface {
	// InsertTicker appends one observation to the history. Re-inserting an
	// observation with an identical identity and timestamp is a no-op.
	InsertTicker(ctx context.Context, t MarketTicker) error

	// LatestTickers returns the most recent ticker per (base, market, exchange)
	// triple observed within the lookback window, ordered by base volume
	// descending, at most limit rows.
	LatestTickers(ctx context.Context, lookback time.Duration, limit int) ([]MarketTicker, error)

	// Subscribe delivers tickers as they are inserted. The channel is closed
	// when ctx is cancelled or the connection is lost.
	Subscribe(ctx context.Context) (<-chan MarketTicker, error)
}
