package domain

import "time"

// MarketTicker is a single price/volume observation for one trading pair on
// one exchange, as delivered by the ticker ingestion pipeline.
//
// BaseSymbol/MarketSymbol follow the ticker source's convention: the base is
// the unit being priced, the market is the quote unit. BestAsk and BestBid are
// zero when the feed did not carry top-of-book quotes.
type MarketTicker struct {
	Exchange     string    `json:"exchange"`
	BaseSymbol   string    `json:"base"`
	MarketSymbol string    `json:"market"`
	LastPrice    float64   `json:"last"`
	BestAsk      float64   `json:"ask,omitempty"`
	BestBid      float64   `json:"bid,omitempty"`
	BaseVolume   float64   `json:"baseVolume"`
	Timestamp    time.Time `json:"timestamp"`
}
