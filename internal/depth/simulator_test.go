package depth

import (
	"math"
	"testing"

	"github.com/xlabhq/triarb/internal/domain"
)

func levels(pairs ...[2]float64) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, domain.PriceLevel{Price: p[0], Amount: p[1]})
	}
	return out
}

func TestTransitionRevenue_SingleLevel(t *testing.T) {
	// Selling 1 BTC into a 5400 USD bid with 2 BTC of depth.
	book := levels([2]float64{5400, 2})

	r := TransitionRevenue(1, book)
	if r.Insufficient {
		t.Fatal("expected sufficient liquidity")
	}
	if r.Amount != 5400 {
		t.Errorf("revenue = %v, want 5400", r.Amount)
	}
}

func TestTransitionRevenue_ExactExhaustion(t *testing.T) {
	// Endowment equal to total depth must succeed and pay out every level.
	book := levels([2]float64{5400, 2}, [2]float64{5300, 3})

	r := TransitionRevenue(5, book)
	if r.Insufficient {
		t.Fatal("exact exhaustion should not be insufficient")
	}
	want := 5400*2.0 + 5300*3.0
	if r.Amount != want {
		t.Errorf("revenue = %v, want %v", r.Amount, want)
	}
}

func TestTransitionRevenue_InsufficientDepth(t *testing.T) {
	book := levels([2]float64{5400, 2})

	r := TransitionRevenue(3, book)
	if !r.Insufficient {
		t.Fatalf("expected insufficient liquidity, got revenue %v", r.Amount)
	}
}

func TestTransitionRevenue_InvertedAskLevels(t *testing.T) {
	// Selling 5400 USD for BTC against an ask of 5400 USD with 2 BTC depth,
	// expressed in inverted form: price 1/5400 BTC per USD, amount 2*5400 USD.
	book := levels([2]float64{1.0 / 5400, 2 * 5400})

	r := TransitionRevenue(5400, book)
	if r.Insufficient {
		t.Fatal("expected sufficient liquidity")
	}
	if math.Abs(r.Amount-1) > 1e-9 {
		t.Errorf("revenue = %v, want 1", r.Amount)
	}
}

func TestTransitionRevenue_MultiLevelWalk(t *testing.T) {
	book := levels([2]float64{100, 1}, [2]float64{90, 1}, [2]float64{80, 10})

	r := TransitionRevenue(2.5, book)
	if r.Insufficient {
		t.Fatal("expected sufficient liquidity")
	}
	want := 100.0 + 90.0 + 0.5*80.0
	if r.Amount != want {
		t.Errorf("revenue = %v, want %v", r.Amount, want)
	}
}

func TestTransitionRevenue_Monotonic(t *testing.T) {
	book := levels([2]float64{100, 1}, [2]float64{90, 2}, [2]float64{80, 5})

	prev := 0.0
	for endowment := 0.5; endowment <= 8; endowment += 0.5 {
		r := TransitionRevenue(endowment, book)
		if r.Insufficient {
			t.Fatalf("endowment %v within depth reported insufficient", endowment)
		}
		if r.Amount < prev {
			t.Fatalf("revenue decreased: %v at endowment %v (prev %v)", r.Amount, endowment, prev)
		}
		prev = r.Amount
	}
}

func TestChainedRevenue_FeedsLegs(t *testing.T) {
	// 1 EUR → 2 LTL → 4 USD through two generous books.
	legs := [][]domain.PriceLevel{
		levels([2]float64{2, 100}),
		levels([2]float64{2, 100}),
	}

	r := ChainedRevenue(1, legs)
	if r.Insufficient {
		t.Fatal("expected sufficient liquidity")
	}
	if r.Amount != 4 {
		t.Errorf("chained revenue = %v, want 4", r.Amount)
	}
}

func TestChainedRevenue_PropagatesInsufficiency(t *testing.T) {
	legs := [][]domain.PriceLevel{
		levels([2]float64{2, 100}),
		levels([2]float64{2, 0.5}), // leg 2 cannot absorb 2 units
		levels([2]float64{2, 100}),
	}

	r := ChainedRevenue(1, legs)
	if !r.Insufficient {
		t.Fatalf("expected insufficiency to propagate, got %v", r.Amount)
	}
}

func TestRevenueCurve_PointIndependence(t *testing.T) {
	legs := [][]domain.PriceLevel{
		levels([2]float64{1.5, 50}),
	}

	curve := RevenueCurve(legs)
	if len(curve) != len(CurveNotionals) {
		t.Fatalf("curve has %d points, want %d", len(curve), len(CurveNotionals))
	}
	for i, pt := range curve {
		if pt.Notional != CurveNotionals[i] {
			t.Errorf("point %d notional = %v, want %v", i, pt.Notional, CurveNotionals[i])
		}
		if pt.Notional <= 50 {
			if pt.Insufficient {
				t.Errorf("point %v unexpectedly insufficient", pt.Notional)
			}
			if pt.Revenue != pt.Notional*1.5 {
				t.Errorf("point %v revenue = %v, want %v", pt.Notional, pt.Revenue, pt.Notional*1.5)
			}
		} else if !pt.Insufficient {
			t.Errorf("point %v should exceed available depth", pt.Notional)
		}
	}
}

func TestSellLevels_BidPassthrough(t *testing.T) {
	book := domain.OrderBook{
		Bids: levels([2]float64{0.87, 10000}),
		Asks: levels([2]float64{0.89, 10000}),
	}

	out := SellLevels(book, domain.BookSideBid)
	if len(out) != 1 || out[0].Price != 0.87 || out[0].Amount != 10000 {
		t.Errorf("bid levels not passed through: %+v", out)
	}
}

func TestSellLevels_AskInversion(t *testing.T) {
	book := domain.OrderBook{
		Asks: levels([2]float64{5400, 2}),
	}

	out := SellLevels(book, domain.BookSideAsk)
	if len(out) != 1 {
		t.Fatalf("got %d levels, want 1", len(out))
	}
	if math.Abs(out[0].Price-1.0/5400) > 1e-12 {
		t.Errorf("inverted price = %v, want %v", out[0].Price, 1.0/5400)
	}
	if out[0].Amount != 2*5400 {
		t.Errorf("inverted amount = %v, want %v", out[0].Amount, 2*5400)
	}
}
