package books

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xlabhq/triarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeVenue is a scriptable domain.VenueClient that counts upstream calls and
// tracks how many are in flight at once.
type fakeVenue struct {
	markets    []string
	book       domain.OrderBook
	err        error
	bookCalls  atomic.Int64
	marketHits atomic.Int64

	inFlight    atomic.Int64
	maxInFlight atomic.Int64

	// hold keeps each call in flight long enough for overlap to be observable.
	hold time.Duration

	// when set, FetchOrderBook signals entered and blocks until release closes.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeVenue) LoadMarkets(ctx context.Context) ([]string, error) {
	f.marketHits.Add(1)
	return f.markets, nil
}

func (f *fakeVenue) FetchOrderBook(ctx context.Context, symbol string) (domain.OrderBook, error) {
	f.bookCalls.Add(1)
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxInFlight.Load()
		if cur <= max || f.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}

	if f.hold > 0 {
		time.Sleep(f.hold)
	}
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	if f.err != nil {
		return domain.OrderBook{}, f.err
	}
	book := f.book
	book.Symbol = symbol
	return book, nil
}

var _ domain.VenueClient = (*fakeVenue)(nil)

func TestAccessor_ServesFromCacheWithinTTL(t *testing.T) {
	fake := &fakeVenue{book: domain.OrderBook{Bids: []domain.PriceLevel{{Price: 1, Amount: 1}}}}
	a := NewAccessor("binance", fake, AccessorConfig{TTL: time.Minute}, testLogger())

	for i := 0; i < 3; i++ {
		if _, err := a.OrderBook(context.Background(), "BTC/USDT"); err != nil {
			t.Fatalf("OrderBook: %v", err)
		}
	}
	if got := fake.bookCalls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
}

func TestAccessor_RefetchesAfterTTL(t *testing.T) {
	fake := &fakeVenue{}
	a := NewAccessor("binance", fake, AccessorConfig{TTL: time.Nanosecond}, testLogger())

	if _, err := a.OrderBook(context.Background(), "BTC/USDT"); err != nil {
		t.Fatalf("OrderBook: %v", err)
	}
	time.Sleep(time.Millisecond)
	if _, err := a.OrderBook(context.Background(), "BTC/USDT"); err != nil {
		t.Fatalf("OrderBook: %v", err)
	}
	if got := fake.bookCalls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2 after expiry", got)
	}
}

func TestAccessor_CoalescesConcurrentFetches(t *testing.T) {
	fake := &fakeVenue{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	a := NewAccessor("binance", fake, AccessorConfig{TTL: time.Minute}, testLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := a.OrderBook(context.Background(), "BTC/USDT"); err != nil {
			t.Errorf("first OrderBook: %v", err)
		}
	}()
	<-fake.entered // upstream call in flight

	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := a.OrderBook(context.Background(), "BTC/USDT"); err != nil {
			t.Errorf("second OrderBook: %v", err)
		}
	}()
	// Give the second caller time to join the in-flight call.
	time.Sleep(20 * time.Millisecond)
	close(fake.release)
	wg.Wait()

	if got := fake.bookCalls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1 for coalesced fetch", got)
	}
}

func TestAccessor_BoundsConcurrentUpstreamCalls(t *testing.T) {
	fake := &fakeVenue{hold: 20 * time.Millisecond}
	a := NewAccessor("binance", fake, AccessorConfig{TTL: time.Minute, MaxConcurrent: 2}, testLogger())

	symbols := []string{"BTC/USDT", "ETH/USDT", "XRP/USDT", "LTC/USDT", "ADA/USDT", "SOL/USDT"}
	var wg sync.WaitGroup
	for _, symbol := range symbols {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.OrderBook(context.Background(), symbol); err != nil {
				t.Errorf("OrderBook %s: %v", symbol, err)
			}
		}()
	}
	wg.Wait()

	if got := fake.bookCalls.Load(); got != int64(len(symbols)) {
		t.Errorf("upstream calls = %d, want %d", got, len(symbols))
	}
	if got := fake.maxInFlight.Load(); got > 2 {
		t.Errorf("max in-flight upstream calls = %d, want at most 2", got)
	}
}

func TestAccessor_SharedFetchSurvivesCallerCancel(t *testing.T) {
	fake := &fakeVenue{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	a := NewAccessor("binance", fake, AccessorConfig{TTL: time.Minute}, testLogger())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := a.OrderBook(firstCtx, "BTC/USDT")
		firstErr <- err
	}()
	<-fake.entered // upstream call in flight, initiated by the first caller

	secondErr := make(chan error, 1)
	go func() {
		_, err := a.OrderBook(context.Background(), "BTC/USDT")
		secondErr <- err
	}()
	// Give the second caller time to join the in-flight call, then abandon
	// the first caller mid-flight.
	time.Sleep(20 * time.Millisecond)
	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("first caller err = %v, want context.Canceled", err)
	}

	close(fake.release)
	if err := <-secondErr; err != nil {
		t.Errorf("second caller err = %v, want shared fetch to complete", err)
	}
	if got := fake.bookCalls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
}

func TestAccessor_DoesNotCacheFailures(t *testing.T) {
	fake := &fakeVenue{err: errors.New("venue down")}
	a := NewAccessor("binance", fake, AccessorConfig{TTL: time.Minute}, testLogger())

	if _, err := a.OrderBook(context.Background(), "BTC/USDT"); err == nil {
		t.Fatal("expected error from failing venue")
	}

	fake.err = nil
	if _, err := a.OrderBook(context.Background(), "BTC/USDT"); err != nil {
		t.Fatalf("OrderBook after recovery: %v", err)
	}
	if got := fake.bookCalls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2 (failure must not be cached)", got)
	}
}

func TestAccessor_PacesUpstreamCalls(t *testing.T) {
	fake := &fakeVenue{}
	gap := 30 * time.Millisecond
	a := NewAccessor("binance", fake, AccessorConfig{TTL: time.Nanosecond, MinInterval: gap}, testLogger())

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := a.OrderBook(context.Background(), "BTC/USDT"); err != nil {
			t.Fatalf("OrderBook %d: %v", i, err)
		}
		time.Sleep(time.Millisecond) // let the cache entry expire
	}
	if elapsed := time.Since(start); elapsed < 2*gap {
		t.Errorf("three calls took %v, want at least %v of pacing", elapsed, 2*gap)
	}
}

func TestAccessor_PaceHonorsContext(t *testing.T) {
	fake := &fakeVenue{}
	a := NewAccessor("binance", fake, AccessorConfig{TTL: time.Nanosecond, MinInterval: time.Hour}, testLogger())

	if _, err := a.OrderBook(context.Background(), "BTC/USDT"); err != nil {
		t.Fatalf("first OrderBook: %v", err)
	}
	time.Sleep(time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := a.OrderBook(ctx, "BTC/USDT")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded while pacing", err)
	}
}

func TestAccessor_MarketsLoadedOnce(t *testing.T) {
	fake := &fakeVenue{markets: []string{"BTC/USDT", "ETH/USDT"}}
	a := NewAccessor("binance", fake, AccessorConfig{}, testLogger())

	for i := 0; i < 3; i++ {
		ok, err := a.HasMarket(context.Background(), "BTC/USDT")
		if err != nil {
			t.Fatalf("HasMarket: %v", err)
		}
		if !ok {
			t.Error("expected BTC/USDT listed")
		}
	}
	ok, err := a.HasMarket(context.Background(), "DOGE/USDT")
	if err != nil {
		t.Fatalf("HasMarket: %v", err)
	}
	if ok {
		t.Error("DOGE/USDT should not be listed")
	}
	if got := fake.marketHits.Load(); got != 1 {
		t.Errorf("LoadMarkets calls = %d, want 1", got)
	}
}
