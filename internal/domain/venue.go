package domain

import "context"

// VenueClient is the per-exchange market-data client surface the orderbook
// access layer wraps. Implementations talk to one venue's public API.
type VenueClient interface {
	// LoadMarkets returns the venue's tradeable market symbols in "BASE/QUOTE"
	// form, e.g. "BTC/USDT".
	LoadMarkets(ctx context.Context) ([]string, error)

	// FetchOrderBook returns a depth-limited live orderbook for the given
	// trading symbol.
	FetchOrderBook(ctx context.Context, symbol string) (OrderBook, error)
}
