package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xlabhq/triarb/internal/domain"
)

// tickerChannel is the pg_notify channel the insert trigger publishes on.
const tickerChannel = "tickers"

// TickerStore implements domain.TickerStore on PostgreSQL. Live delivery uses
// LISTEN/NOTIFY: an insert trigger publishes each new row as JSON on the
// tickers channel, so every scanner instance sees writes from every other.
type TickerStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewTickerStore creates a TickerStore backed by the given Client.
func NewTickerStore(c *Client, logger *slog.Logger) *TickerStore {
	return &TickerStore{
		pool:   c.Pool(),
		logger: logger.With(slog.String("component", "ticker_store")),
	}
}

var _ domain.TickerStore = (*TickerStore)(nil)

// InsertTicker appends one observation. Conflicts on the full identity
// (exchange, pair, timestamp) are ignored.
func (s *TickerStore) InsertTicker(ctx context.Context, t domain.MarketTicker) error {
	const q = `
		INSERT INTO tickers (exchange, base_symbol, market_symbol, last_price, best_ask, best_bid, base_volume, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING`

	_, err := s.pool.Exec(ctx, q,
		t.Exchange, t.BaseSymbol, t.MarketSymbol,
		t.LastPrice, t.BestAsk, t.BestBid, t.BaseVolume, t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert ticker %s %s-%s: %w", t.Exchange, t.BaseSymbol, t.MarketSymbol, err)
	}
	return nil
}

// LatestTickers returns the freshest observation per (exchange, pair) within
// the lookback window, most liquid pairs first.
func (s *TickerStore) LatestTickers(ctx context.Context, lookback time.Duration, limit int) ([]domain.MarketTicker, error) {
	const q = `
		SELECT exchange, base_symbol, market_symbol, last_price, best_ask, best_bid, base_volume, ts
		FROM (
			SELECT DISTINCT ON (exchange, base_symbol, market_symbol)
				exchange, base_symbol, market_symbol, last_price, best_ask, best_bid, base_volume, ts
			FROM tickers
			WHERE ts >= $1
			ORDER BY exchange, base_symbol, market_symbol, ts DESC
		) latest
		ORDER BY base_volume DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, q, time.Now().Add(-lookback), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: latest tickers: %w", err)
	}
	defer rows.Close()

	var out []domain.MarketTicker
	for rows.Next() {
		var t domain.MarketTicker
		if err := rows.Scan(
			&t.Exchange, &t.BaseSymbol, &t.MarketSymbol,
			&t.LastPrice, &t.BestAsk, &t.BestBid, &t.BaseVolume, &t.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan ticker: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: latest tickers: %w", err)
	}
	return out, nil
}

// tickerRow mirrors the trigger's row_to_json payload.
type tickerRow struct {
	Exchange     string  `json:"exchange"`
	BaseSymbol   string  `json:"base_symbol"`
	MarketSymbol string  `json:"market_symbol"`
	LastPrice    float64 `json:"last_price"`
	BestAsk      float64 `json:"best_ask"`
	BestBid      float64 `json:"best_bid"`
	BaseVolume   float64 `json:"base_volume"`
	TS           string  `json:"ts"`
}

// Subscribe follows ticker inserts via LISTEN on a dedicated connection. The
// returned channel is closed when ctx is cancelled or the connection drops.
func (s *TickerStore) Subscribe(ctx context.Context) (<-chan domain.MarketTicker, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+tickerChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("postgres: listen %s: %w", tickerChannel, err)
	}

	out := make(chan domain.MarketTicker, 128)
	go func() {
		defer close(out)
		defer conn.Release()

		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("listen connection lost", slog.Any("error", err))
				}
				return
			}

			var row tickerRow
			if err := json.Unmarshal([]byte(notification.Payload), &row); err != nil {
				s.logger.Warn("malformed ticker notification", slog.Any("error", err))
				continue
			}
			ts, err := time.Parse(time.RFC3339, row.TS)
			if err != nil {
				s.logger.Warn("malformed ticker timestamp", slog.String("ts", row.TS))
				continue
			}

			t := domain.MarketTicker{
				Exchange:     row.Exchange,
				BaseSymbol:   row.BaseSymbol,
				MarketSymbol: row.MarketSymbol,
				LastPrice:    row.LastPrice,
				BestAsk:      row.BestAsk,
				BestBid:      row.BestBid,
				BaseVolume:   row.BaseVolume,
				Timestamp:    ts,
			}
			select {
			case out <- t:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
