// Package venue talks to exchange gateway services over REST. A gateway
// exposes a uniform markets/orderbook surface per exchange, so one client
// implementation covers every venue; only the base URL and paths differ.
package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xlabhq/triarb/internal/domain"
)

// Config describes one exchange gateway endpoint.
type Config struct {
	// Exchange is the canonical exchange name reported on fetched books.
	Exchange string
	// BaseURL is the gateway root, e.g. "http://bridge:3000/binance".
	BaseURL string
	// MarketsPath is the symbol-list route. Defaults to "/markets".
	MarketsPath string
	// OrderbookPath is the snapshot route; "{symbol}" is replaced with the
	// URL-escaped market symbol. Defaults to "/orderbook/{symbol}".
	OrderbookPath string
	// Depth caps the number of levels requested per side. Zero means the
	// gateway default.
	Depth int
	// Timeout bounds each HTTP request. Defaults to 10s.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MarketsPath == "" {
		c.MarketsPath = "/markets"
	}
	if c.OrderbookPath == "" {
		c.OrderbookPath = "/orderbook/{symbol}"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

// RESTClient fetches market lists and orderbook snapshots from a gateway.
type RESTClient struct {
	cfg        Config
	httpClient *http.Client
}

var _ domain.VenueClient = (*RESTClient)(nil)

// NewRESTClient creates a client for one exchange gateway.
func NewRESTClient(cfg Config) *RESTClient {
	cfg = cfg.withDefaults()
	return &RESTClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// LoadMarkets returns the market symbols the exchange lists.
func (c *RESTClient) LoadMarkets(ctx context.Context) ([]string, error) {
	body, err := c.doRequest(ctx, c.cfg.MarketsPath)
	if err != nil {
		return nil, fmt.Errorf("venue: %s markets: %w", c.cfg.Exchange, err)
	}

	var resp struct {
		Symbols []string `json:"symbols"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("venue: %s decode markets: %w", c.cfg.Exchange, err)
	}
	return resp.Symbols, nil
}

// FetchOrderBook returns a snapshot for the symbol. The gateway reports asks
// ascending and bids descending; levels come through as [price, amount] pairs.
func (c *RESTClient) FetchOrderBook(ctx context.Context, symbol string) (domain.OrderBook, error) {
	path := strings.ReplaceAll(c.cfg.OrderbookPath, "{symbol}", url.PathEscape(symbol))
	if c.cfg.Depth > 0 {
		path += "?limit=" + strconv.Itoa(c.cfg.Depth)
	}

	body, err := c.doRequest(ctx, path)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("venue: %s orderbook %s: %w", c.cfg.Exchange, symbol, err)
	}

	var resp struct {
		Bids      [][2]float64 `json:"bids"`
		Asks      [][2]float64 `json:"asks"`
		Timestamp int64        `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderBook{}, fmt.Errorf("venue: %s decode orderbook %s: %w", c.cfg.Exchange, symbol, err)
	}

	book := domain.OrderBook{
		Exchange:  c.cfg.Exchange,
		Symbol:    symbol,
		Bids:      toLevels(resp.Bids),
		Asks:      toLevels(resp.Asks),
		Timestamp: time.Now(),
	}
	if resp.Timestamp > 0 {
		book.Timestamp = time.UnixMilli(resp.Timestamp)
	}
	return book, nil
}

func toLevels(raw [][2]float64) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		out = append(out, domain.PriceLevel{Price: pair[0], Amount: pair[1]})
	}
	return out
}

func (c *RESTClient) doRequest(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkStatus maps non-2xx status codes to errors.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("not found: %s: %w", apiErr.Message, domain.ErrNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited: %s", apiErr.Message)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, apiErr.Message)
	}
}
