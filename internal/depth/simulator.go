// Package depth converts notional trade amounts through chains of orderbook
// price levels, accounting for depth exhaustion. It is purely numeric and
// does no I/O.
package depth

import "github.com/xlabhq/triarb/internal/domain"

// Revenue is the outcome of executing an endowment against a book. When the
// book cannot absorb the full endowment, Insufficient is set and Amount is
// meaningless; a partial figure is never reported.
type Revenue struct {
	Amount       float64
	Insufficient bool
}

// insufficient is the sentinel result for an exhausted book.
func insufficient() Revenue { return Revenue{Insufficient: true} }

// TransitionRevenue walks price levels most-favorable-first, consuming
// min(remaining endowment, level amount) at each level's price, and returns
// the accumulated revenue. Levels must be pre-sorted for the direction being
// executed: lowest cost first, with ask-side levels already inverted by the
// caller so that amounts are in the sell currency and prices convert to the
// buy currency.
func TransitionRevenue(endowment float64, levels []domain.PriceLevel) Revenue {
	remaining := endowment
	revenue := 0.0

	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		consumed := lvl.Amount
		if remaining < consumed {
			consumed = remaining
		}
		revenue += consumed * lvl.Price
		remaining -= consumed
	}

	if remaining > 0 {
		return insufficient()
	}
	return Revenue{Amount: revenue}
}

// ChainedRevenue applies TransitionRevenue across the legs of a cycle,
// feeding each leg's revenue into the next as its endowment. Once a leg
// reports insufficient liquidity the chain stops and the sentinel propagates.
func ChainedRevenue(endowment float64, legs [][]domain.PriceLevel) Revenue {
	amount := endowment
	for _, levels := range legs {
		r := TransitionRevenue(amount, levels)
		if r.Insufficient {
			return insufficient()
		}
		amount = r.Amount
	}
	return Revenue{Amount: amount}
}

// CurveNotionals are the representative endowment sizes evaluated by
// RevenueCurve.
var CurveNotionals = []float64{0.01, 0.1, 1, 10, 100, 1000}

// CurvePoint is one size-vs-realized-revenue sample.
type CurvePoint struct {
	Notional     float64 `json:"notional"`
	Revenue      float64 `json:"revenue"`
	Insufficient bool    `json:"insufficientLiquidity"`
}

// RevenueCurve evaluates ChainedRevenue at each curve notional. Points are
// independent of one another.
func RevenueCurve(legs [][]domain.PriceLevel) []CurvePoint {
	curve := make([]CurvePoint, 0, len(CurveNotionals))
	for _, notional := range CurveNotionals {
		r := ChainedRevenue(notional, legs)
		curve = append(curve, CurvePoint{
			Notional:     notional,
			Revenue:      r.Amount,
			Insufficient: r.Insufficient,
		})
	}
	return curve
}

// SellLevels converts an orderbook into the level list TransitionRevenue
// expects for a trade executing against the given side. Bid-side levels pass
// through unchanged (amounts already in the sell currency, highest price
// first). Ask-side levels are inverted so the amount is denominated in the
// sell (quote) currency and the price converts into the buy (base) currency;
// the venue's ascending-price ask ordering is already most-favorable-first.
func SellLevels(book domain.OrderBook, side domain.BookSide) []domain.PriceLevel {
	if side == domain.BookSideBid {
		return book.Bids
	}
	out := make([]domain.PriceLevel, 0, len(book.Asks))
	for _, lvl := range book.Asks {
		if lvl.Price <= 0 {
			continue
		}
		out = append(out, domain.PriceLevel{
			Price:  1 / lvl.Price,
			Amount: lvl.Amount * lvl.Price,
		})
	}
	return out
}
