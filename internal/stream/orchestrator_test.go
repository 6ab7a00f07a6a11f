package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/xlabhq/triarb/internal/domain"
	"github.com/xlabhq/triarb/internal/graph"
	"github.com/xlabhq/triarb/internal/search"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixtureEngine builds a graph holding one profitable EUR→LTL→USD→EUR triangle.
func fixtureEngine() *search.Engine {
	g := graph.New(testLogger())
	now := time.Now()
	g.UpsertQuote(domain.MarketTicker{
		Exchange: "Exchange 1", BaseSymbol: "EUR", MarketSymbol: "LTL",
		LastPrice: 0.3, BestAsk: 0.3, BestBid: 0.29, BaseVolume: 1000, Timestamp: now,
	})
	g.UpsertQuote(domain.MarketTicker{
		Exchange: "Exchange 2", BaseSymbol: "USD", MarketSymbol: "LTL",
		LastPrice: 0.33, BestAsk: 0.34, BestBid: 0.33, BaseVolume: 330, Timestamp: now,
	})
	g.UpsertQuote(domain.MarketTicker{
		Exchange: "Exchange 3", BaseSymbol: "USD", MarketSymbol: "EUR",
		LastPrice: 0.88, BestAsk: 0.88, BestBid: 0.87, BaseVolume: 1100, Timestamp: now,
	})
	return search.NewEngine(g, testLogger())
}

// fakeBooks serves scripted single-level bid books keyed by leg.
type fakeBooks struct {
	books map[string][2]float64 // sell→buy@exchange: {conversion rate, sell-currency depth}
	errOn string
	delay time.Duration
}

func legKey(sell, buy, exchange string) string { return sell + "→" + buy + "@" + exchange }

func (f *fakeBooks) ForTrade(ctx context.Context, sell, buy, exchange string) (domain.OrderBook, domain.BookSide, error) {
	key := legKey(sell, buy, exchange)
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return domain.OrderBook{}, domain.BookSideBid, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if key == f.errOn {
		return domain.OrderBook{}, domain.BookSideBid, errors.New("venue unreachable")
	}
	rd, ok := f.books[key]
	if !ok {
		return domain.OrderBook{}, domain.BookSideBid, domain.ErrNoMarketSymbol
	}
	return domain.OrderBook{
		Bids: []domain.PriceLevel{{Price: rd[0], Amount: rd[1]}},
	}, domain.BookSideBid, nil
}

// deepBooks quotes each leg at its ticker rate with ample depth, so the
// fixture cycle realizes its 1.25 rate.
func deepBooks() *fakeBooks {
	return &fakeBooks{books: map[string][2]float64{
		legKey("EUR", "LTL", "Exchange 1"): {1.0 / 0.3, 1e6},
		legKey("LTL", "USD", "Exchange 2"): {0.33, 1e6},
		legKey("USD", "EUR", "Exchange 3"): {1.0 / 0.88, 1e6},
	}}
}

func collect(t *testing.T, o *Orchestrator, ctx context.Context, opts Options) []Event {
	t.Helper()
	var events []Event
	err := o.Run(ctx, "EUR", opts, func(ev Event) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return events
}

func TestRun_ConfirmsCycle(t *testing.T) {
	o := NewOrchestrator(fixtureEngine(), deepBooks(), testLogger())

	events := collect(t, o, context.Background(), Options{})
	if len(events) != 2 {
		t.Fatalf("got %d events, want cycle + done: %+v", len(events), events)
	}

	cyc := events[0]
	if cyc.Type != EventCycle || cyc.Cycle == nil {
		t.Fatalf("first event = %+v, want a cycle", cyc)
	}
	if want := "EUR,Exchange 1,LTL,Exchange 2,USD,Exchange 3"; cyc.Cycle.ID != want {
		t.Errorf("cycle id = %q, want %q", cyc.Cycle.ID, want)
	}
	if math.Abs(cyc.Cycle.MaxRate-1.25) > 1e-9 {
		t.Errorf("realized rate = %v, want 1.25", cyc.Cycle.MaxRate)
	}
	if cyc.SearchID == "" {
		t.Error("cycle event missing search id")
	}

	done := events[1]
	if done.Type != EventDone {
		t.Fatalf("last event type = %q, want done", done.Type)
	}
	if done.Checked != 1 || done.Total != 1 || done.Confirmed != 1 {
		t.Errorf("done counters = %+v", done)
	}
	if done.SearchID != cyc.SearchID {
		t.Error("search id differs across events")
	}
}

func TestRun_InsufficientDepthRejects(t *testing.T) {
	books := deepBooks()
	// 1 EUR becomes ~3.33 LTL; the LTL leg only absorbs 1.
	books.books[legKey("LTL", "USD", "Exchange 2")] = [2]float64{0.33, 1}
	o := NewOrchestrator(fixtureEngine(), books, testLogger())

	events := collect(t, o, context.Background(), Options{})
	if len(events) != 1 || events[0].Type != EventDone {
		t.Fatalf("events = %+v, want only done", events)
	}
	if events[0].Checked != 1 || events[0].Confirmed != 0 {
		t.Errorf("done counters = %+v", events[0])
	}
}

func TestRun_ThinMarginRejects(t *testing.T) {
	books := deepBooks()
	// Drag the closing leg down so the realized product is ~1.005.
	books.books[legKey("USD", "EUR", "Exchange 3")] = [2]float64{1.005 / (0.33 / 0.3), 1e6}
	o := NewOrchestrator(fixtureEngine(), books, testLogger())

	events := collect(t, o, context.Background(), Options{})
	if len(events) != 1 || events[0].Type != EventDone {
		t.Fatalf("events = %+v, want only done", events)
	}
}

func TestRun_FetchFailureDropsCandidate(t *testing.T) {
	books := deepBooks()
	books.errOn = legKey("LTL", "USD", "Exchange 2")
	o := NewOrchestrator(fixtureEngine(), books, testLogger())

	events := collect(t, o, context.Background(), Options{})
	if len(events) != 1 || events[0].Type != EventDone {
		t.Fatalf("events = %+v, want only done", events)
	}
	if events[0].Checked != 1 || events[0].Confirmed != 0 {
		t.Errorf("done counters = %+v", events[0])
	}
}

func TestRun_UnknownBase(t *testing.T) {
	o := NewOrchestrator(fixtureEngine(), deepBooks(), testLogger())

	err := o.Run(context.Background(), "XRP", Options{}, func(Event) error {
		t.Error("no events expected before enumeration succeeds")
		return nil
	})
	if !errors.Is(err, domain.ErrUnknownAsset) {
		t.Fatalf("err = %v, want ErrUnknownAsset", err)
	}
}

func TestRun_EmitErrorAborts(t *testing.T) {
	o := NewOrchestrator(fixtureEngine(), deepBooks(), testLogger())

	sentinel := errors.New("client gone")
	err := o.Run(context.Background(), "EUR", Options{}, func(ev Event) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want the emit error", err)
	}
}

func TestRun_HeartbeatWhileConfirming(t *testing.T) {
	books := deepBooks()
	books.delay = 60 * time.Millisecond
	o := NewOrchestrator(fixtureEngine(), books, testLogger())

	events := collect(t, o, context.Background(), Options{Heartbeat: 10 * time.Millisecond})

	progress := 0
	for _, ev := range events {
		if ev.Type == EventProgress {
			progress++
		}
	}
	if progress == 0 {
		t.Error("expected at least one progress event during slow confirmation")
	}
	if events[len(events)-1].Type != EventDone {
		t.Error("stream must end with done")
	}
}

func TestSearch_CollectsConfirmedCycles(t *testing.T) {
	o := NewOrchestrator(fixtureEngine(), deepBooks(), testLogger())

	res, err := o.Search(context.Background(), "EUR", Options{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Cycles) != 1 {
		t.Fatalf("got %d cycles, want 1", len(res.Cycles))
	}
	if math.Abs(res.Cycles[0].MaxRate-1.25) > 1e-9 {
		t.Errorf("rate = %v, want 1.25", res.Cycles[0].MaxRate)
	}
	if res.Took < 0 {
		t.Errorf("took = %v, want non-negative elapsed time", res.Took)
	}
	if res.TimeExhausted {
		t.Error("tiny fixture search should not exhaust its budget")
	}
}

func TestRun_DoneCarriesElapsedTime(t *testing.T) {
	books := deepBooks()
	books.delay = 20 * time.Millisecond
	o := NewOrchestrator(fixtureEngine(), books, testLogger())

	events := collect(t, o, context.Background(), Options{})
	done := events[len(events)-1]
	if done.Type != EventDone {
		t.Fatalf("last event type = %q, want done", done.Type)
	}
	if done.Took < 20 {
		t.Errorf("done took = %dms, want at least the confirmation delay", done.Took)
	}
}
