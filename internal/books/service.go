package books

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xlabhq/triarb/internal/domain"
)

// Service routes trade legs to the right exchange Accessor and venue symbol.
type Service struct {
	logger *slog.Logger

	mu        sync.RWMutex
	accessors map[string]*Accessor
}

// NewService creates an empty Service; exchanges are attached with Register.
func NewService(logger *slog.Logger) *Service {
	return &Service{
		logger:    logger.With(slog.String("component", "books")),
		accessors: make(map[string]*Accessor),
	}
}

// Register attaches an exchange accessor under its canonical name.
func (s *Service) Register(exchange string, a *Accessor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessors[CanonicalExchange(exchange)] = a
}

// Exchanges returns the canonical names of all registered exchanges.
func (s *Service) Exchanges() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.accessors))
	for name := range s.accessors {
		out = append(out, name)
	}
	return out
}

func (s *Service) accessor(exchange string) (*Accessor, error) {
	s.mu.RLock()
	a, ok := s.accessors[CanonicalExchange(exchange)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("books: exchange %q: %w", exchange, domain.ErrUnknownExchange)
	}
	return a, nil
}

// ForTrade fetches the orderbook a sell→buy trade on the exchange executes
// against, along with the side of the book the trade consumes. When the venue
// lists buy/sell the trade buys the base asset and consumes asks; when it
// lists sell/buy the trade sells the base asset and consumes bids.
func (s *Service) ForTrade(ctx context.Context, sell, buy, exchange string) (domain.OrderBook, domain.BookSide, error) {
	a, err := s.accessor(exchange)
	if err != nil {
		return domain.OrderBook{}, domain.BookSideBid, err
	}
	canon := CanonicalExchange(exchange)

	askSymbol := venueSymbol(canon, buy, sell)
	ok, err := a.HasMarket(ctx, askSymbol)
	if err != nil {
		return domain.OrderBook{}, domain.BookSideBid, err
	}
	if ok {
		book, err := a.OrderBook(ctx, askSymbol)
		return book, domain.BookSideAsk, err
	}

	bidSymbol := venueSymbol(canon, sell, buy)
	ok, err = a.HasMarket(ctx, bidSymbol)
	if err != nil {
		return domain.OrderBook{}, domain.BookSideBid, err
	}
	if ok {
		book, err := a.OrderBook(ctx, bidSymbol)
		return book, domain.BookSideBid, err
	}

	return domain.OrderBook{}, domain.BookSideBid,
		fmt.Errorf("books: %s has no market for %s→%s: %w", canon, sell, buy, domain.ErrNoMarketSymbol)
}
