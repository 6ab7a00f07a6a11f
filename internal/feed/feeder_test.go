package feed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xlabhq/triarb/internal/domain"
	"github.com/xlabhq/triarb/internal/graph"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	history []domain.MarketTicker
	live    chan domain.MarketTicker
}

func (f *fakeStore) InsertTicker(ctx context.Context, t domain.MarketTicker) error { return nil }

func (f *fakeStore) LatestTickers(ctx context.Context, lookback time.Duration, limit int) ([]domain.MarketTicker, error) {
	return f.history, nil
}

func (f *fakeStore) Subscribe(ctx context.Context) (<-chan domain.MarketTicker, error) {
	return f.live, nil
}

var _ domain.TickerStore = (*fakeStore)(nil)

type fakeBus struct {
	live chan []byte
}

func (f *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error { return nil }

func (f *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return f.live, nil
}

var _ domain.SignalBus = (*fakeBus)(nil)

func tk(exchange, base, market string, last float64) domain.MarketTicker {
	return domain.MarketTicker{
		Exchange:     exchange,
		BaseSymbol:   base,
		MarketSymbol: market,
		LastPrice:    last,
		BaseVolume:   100,
		Timestamp:    time.Now(),
	}
}

func TestWarmLoad(t *testing.T) {
	g := graph.New(testLogger())
	store := &fakeStore{history: []domain.MarketTicker{
		tk("binance", "USDT", "BTC", 6728),
		tk("kraken", "USDT", "ETH", 155),
	}}

	f := NewFeeder(g, store, nil, Config{}, testLogger())
	if err := f.WarmLoad(context.Background()); err != nil {
		t.Fatalf("WarmLoad: %v", err)
	}
	if g.VertexCount() != 3 {
		t.Errorf("vertices = %d, want 3", g.VertexCount())
	}
	if _, ok := g.FindEdge("USDT", "BTC"); !ok {
		t.Error("USDT-BTC edge missing after warm load")
	}
}

func TestRun_AppliesLiveSources(t *testing.T) {
	g := graph.New(testLogger())
	store := &fakeStore{live: make(chan domain.MarketTicker, 1)}
	bus := &fakeBus{live: make(chan []byte, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := NewFeeder(g, store, bus, Config{}, testLogger())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	store.live <- tk("binance", "USDT", "BTC", 6728)

	payload, _ := json.Marshal(tk("kraken", "USDT", "ETH", 155))
	bus.live <- payload
	bus.live <- []byte("not json") // ignored, must not stop the feeder

	deadline := time.After(2 * time.Second)
	for g.VertexCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("graph not updated, vertices = %d", g.VertexCount())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}
