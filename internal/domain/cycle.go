package domain

import "time"

// CycleTrade is one leg of a triangular cycle as reported to API clients.
// RelativeVolume is the leg's available liquidity expressed in units of the
// cycle's base asset.
type CycleTrade struct {
	Sell              string    `json:"sell"`
	Buy               string    `json:"buy"`
	Exchange          string    `json:"exchange"`
	UnitLastPrice     float64   `json:"unitLastPrice"`
	UnitLastPriceDate time.Time `json:"unitLastPriceDate"`
	RelativeVolume    float64   `json:"relativeVolume"`
}

// Cycle is a three-leg trade sequence returning to its starting asset.
//
// ID is built as "sell0,exchange0,sell1,exchange1,sell2,exchange2". MaxRate is
// the product of the three per-leg unit costs for ticker-confirmed cycles, or
// the realized depth-based margin for live-confirmed ones.
type Cycle struct {
	ID      string       `json:"id"`
	MaxRate float64      `json:"maxRate"`
	Trades  []CycleTrade `json:"trades"`
}
