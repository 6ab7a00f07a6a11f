package books

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xlabhq/triarb/internal/domain"
)

func serviceWith(t *testing.T, exchange string, fake *fakeVenue) *Service {
	t.Helper()
	s := NewService(testLogger())
	s.Register(exchange, NewAccessor(CanonicalExchange(exchange), fake, AccessorConfig{TTL: time.Minute}, testLogger()))
	return s
}

func TestForTrade_BidSideWhenSellingBase(t *testing.T) {
	fake := &fakeVenue{markets: []string{"BTC/USDT"}}
	s := serviceWith(t, "binance", fake)

	// Selling BTC for USDT executes against BTC/USDT bids.
	book, side, err := s.ForTrade(context.Background(), "BTC", "USDT", "binance")
	if err != nil {
		t.Fatalf("ForTrade: %v", err)
	}
	if side != domain.BookSideBid {
		t.Errorf("side = %v, want bid", side)
	}
	if book.Symbol != "BTC/USDT" {
		t.Errorf("symbol = %q, want BTC/USDT", book.Symbol)
	}
}

func TestForTrade_AskSideWhenBuyingBase(t *testing.T) {
	fake := &fakeVenue{markets: []string{"BTC/USDT"}}
	s := serviceWith(t, "binance", fake)

	// Selling USDT for BTC executes against BTC/USDT asks.
	_, side, err := s.ForTrade(context.Background(), "USDT", "BTC", "binance")
	if err != nil {
		t.Fatalf("ForTrade: %v", err)
	}
	if side != domain.BookSideAsk {
		t.Errorf("side = %v, want ask", side)
	}
}

func TestForTrade_ExchangeAlias(t *testing.T) {
	fake := &fakeVenue{markets: []string{"BTC/USDT"}}
	s := serviceWith(t, "huobipro", fake)

	// Callers may use the short name; it resolves to the registered venue.
	if _, _, err := s.ForTrade(context.Background(), "BTC", "USDT", "huobi"); err != nil {
		t.Fatalf("ForTrade via alias: %v", err)
	}
}

func TestForTrade_BitfinexDollarAlias(t *testing.T) {
	fake := &fakeVenue{markets: []string{"BTC/USDT"}}
	s := serviceWith(t, "bitfinex", fake)

	// The graph quotes the pair in USD; Bitfinex lists it as USDT.
	book, side, err := s.ForTrade(context.Background(), "BTC", "USD", "bitfinex")
	if err != nil {
		t.Fatalf("ForTrade: %v", err)
	}
	if side != domain.BookSideBid {
		t.Errorf("side = %v, want bid", side)
	}
	if book.Symbol != "BTC/USDT" {
		t.Errorf("symbol = %q, want the venue's USDT listing", book.Symbol)
	}
}

func TestForTrade_UnknownExchange(t *testing.T) {
	s := NewService(testLogger())

	_, _, err := s.ForTrade(context.Background(), "BTC", "USDT", "kraken")
	if !errors.Is(err, domain.ErrUnknownExchange) {
		t.Errorf("err = %v, want ErrUnknownExchange", err)
	}
}

func TestForTrade_NoMarketSymbol(t *testing.T) {
	fake := &fakeVenue{markets: []string{"ETH/USDT"}}
	s := serviceWith(t, "binance", fake)

	_, _, err := s.ForTrade(context.Background(), "BTC", "USDT", "binance")
	if !errors.Is(err, domain.ErrNoMarketSymbol) {
		t.Errorf("err = %v, want ErrNoMarketSymbol", err)
	}
}
