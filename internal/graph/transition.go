package graph

import "time"

// PositionType says which side of the quoted pair a transition sells.
type PositionType string

const (
	// PositionShort sells the pair's market currency (consults the bids).
	PositionShort PositionType = "short"
	// PositionLong sells the pair's base currency (consults the asks).
	PositionLong PositionType = "long"
)

// Transition is a read-only view of "sell asset X for asset Y on exchange E",
// derived from an edge and one of its market pairs at evaluation time. It is
// never cached: the underlying pair keeps mutating under ticker ingestion, so
// every search materializes transitions fresh.
type Transition struct {
	Sell     string
	Buy      string
	Exchange string
	Position PositionType

	// UnitCost is the price of one unit of the buy asset in sell-asset terms.
	UnitCost float64
	// VolumeInSellCurrency is the leg's available liquidity in sell-asset units.
	VolumeInSellCurrency float64

	LastPrice float64
	Date      time.Time
}

// makeTransition derives a Transition from a directed edge and a quote.
// Short legs price off the best bid, long legs off the reciprocal best ask;
// both fall back to the last trade price when top-of-book is unknown.
func makeTransition(sell, buy string, p *MarketPair) Transition {
	t := Transition{
		Sell:      sell,
		Buy:       buy,
		Exchange:  p.Exchange,
		LastPrice: p.LastPrice,
		Date:      p.Date,
	}

	if sell == p.Market {
		t.Position = PositionShort
		t.UnitCost = p.BestBid
		if t.UnitCost == 0 {
			t.UnitCost = p.LastPrice
		}
		if t.UnitCost > 0 {
			t.VolumeInSellCurrency = p.BaseVolume / t.UnitCost
		}
	} else {
		t.Position = PositionLong
		ask := p.BestAsk
		if ask == 0 {
			ask = p.LastPrice
		}
		if ask > 0 {
			t.UnitCost = 1 / ask
		}
		t.VolumeInSellCurrency = p.BaseVolume
	}
	return t
}

// Transitions materializes one transition per exchange quoting the start→end
// edge, in sorted exchange order. The result is empty when no such edge
// exists.
func (g *Graph) Transitions(start, end string) []Transition {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.edges[edgeKey(start, end)]
	if !ok {
		return nil
	}
	out := make([]Transition, 0, len(e.pairs))
	for _, name := range e.Exchanges() {
		out = append(out, makeTransition(start, end, e.pairs[name]))
	}
	return out
}

// TransitionByExchange materializes the start→end transition quoted by one
// exchange, if present.
func (g *Graph) TransitionByExchange(start, end, exchange string) (Transition, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.edges[edgeKey(start, end)]
	if !ok {
		return Transition{}, false
	}
	p, ok := e.pairs[exchange]
	if !ok {
		return Transition{}, false
	}
	return makeTransition(start, end, p), true
}
