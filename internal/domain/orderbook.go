package domain

import "time"

// PriceLevel is a single price+amount tier in an orderbook, in the venue's
// native quoting convention.
type PriceLevel struct {
	Price  float64
	Amount float64
}

// OrderBook is a depth-limited live orderbook for one trading symbol on one
// exchange. Asks are sorted ascending by price, bids descending.
type OrderBook struct {
	Exchange  string
	Symbol    string
	Asks      []PriceLevel
	Bids      []PriceLevel
	Timestamp time.Time
}

// BookSide identifies which side of an orderbook a trade executes against.
type BookSide string

const (
	// BookSideAsk means we buy the pair's base currency against the asks.
	BookSideAsk BookSide = "ask"
	// BookSideBid means we sell the pair's base currency into the bids.
	BookSideBid BookSide = "bid"
)
