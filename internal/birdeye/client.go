// Package birdeye talks to Birdeye Data Services: the token REST endpoints and
// the price and trade WebSocket.
package birdeye

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

	"github.com/rustyeddy/bdschart/market"
)

const (
	DefaultBaseURL   = "https://public-api.birdeye.so"
	DefaultWSURL     = "wss://public-api.birdeye.so/socket/solana"
	DefaultWSOrigin  = "ws://public-api.birdeye.so"
	DefaultChain     = "solana"
	DefaultPageCount = 200

	// SOLAddress is the wrapped SOL mint, the default token.
	SOLAddress = "So11111111111111111111111111111111111111112"
)

type Client struct {
	BaseURL string // e.g. https://public-api.birdeye.so
	APIKey  string
	Chain   string // x-chain header, defaults to solana
	HTTP    *http.Client
}

type OHLCVOptions struct {
	Address    string
	Type       market.Timeframe
	TimeTo     time.Time // defaults to now
	CountLimit int       // defaults to DefaultPageCount
}

// OHLCVItem is one record of the /defi/v3/ohlcv response.
type OHLCVItem struct {
	UnixTime market.Number `json:"unix_time"`
	O        market.Number `json:"o"`
	H        market.Number `json:"h"`
	L        market.Number `json:"l"`
	C        market.Number `json:"c"`
	V        market.Number `json:"v"`
}

// Candle converts the record into chart series values.
func (it OHLCVItem) Candle() (market.Candle, market.VolumeBar) {
	c := market.Candle{
		Time:  it.UnixTime.Int64(),
		Open:  it.O.Float64(),
		High:  it.H.Float64(),
		Low:   it.L.Float64(),
		Close: it.C.Float64(),
	}
	return c, market.NewVolumeBar(c, it.V.Float64())
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// APIError is a response the provider marked unsuccessful.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "Unknown error"
	}
	return msg
}

type itemsPage[T any] struct {
	Items []T `json:"items"`
}

// OHLCV fetches one page of candles ending at opts.TimeTo. It makes exactly
// one request and never retries.
func (c *Client) OHLCV(ctx context.Context, opts OHLCVOptions) ([]OHLCVItem, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if opts.Address == "" {
		return nil, fmt.Errorf("birdeye: missing address")
	}
	if opts.Type == "" {
		return nil, fmt.Errorf("birdeye: missing type")
	}

	to := opts.TimeTo
	if to.IsZero() {
		to = time.Now()
	}
	count := opts.CountLimit
	if count <= 0 {
		count = DefaultPageCount
	}

	q := url.Values{}
	q.Set("address", opts.Address)
	q.Set("type", opts.Type.String())
	q.Set("time_to", strconv.FormatInt(to.Unix(), 10))
	q.Set("mode", "count")
	q.Set("count_limit", strconv.Itoa(count))

	return getItems[OHLCVItem](ctx, c, "ohlcv", "/defi/v3/ohlcv", q)
}

func (c *Client) check() error {
	if c.APIKey == "" {
		return fmt.Errorf("birdeye: missing api key")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("birdeye: missing base url")
	}
	return nil
}

// getItems fetches an endpoint whose data is {"items": [...]}. A successful
// response without items is reported as an APIError.
func getItems[T any](ctx context.Context, c *Client, name, path string, q url.Values) ([]T, error) {
	var page itemsPage[T]
	status, msg, err := c.get(ctx, name, path, q, &page)
	if err != nil {
		return nil, err
	}
	if page.Items == nil {
		return nil, &APIError{StatusCode: status, Message: msg}
	}
	return page.Items, nil
}

// get makes one GET request and decodes the envelope's data into out. It
// returns the response status and message for callers that need to report
// an empty payload.
func (c *Client) get(ctx context.Context, name, path string, q url.Values, out any) (int, string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return 0, "", err
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, "", err
	}
	chain := c.Chain
	if chain == "" {
		chain = DefaultChain
	}
	req.Header.Set("X-API-KEY", c.APIKey)
	req.Header.Set("x-chain", chain)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	// Error responses usually still carry the JSON envelope; only fall back to
	// the raw body when they don't.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return resp.StatusCode, "", err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return resp.StatusCode, "", fmt.Errorf("birdeye %s http %d: %s", name, resp.StatusCode, trimForErr(strings.TrimSpace(string(body))))
		}
		return resp.StatusCode, "", fmt.Errorf("birdeye: bad %s response: %w", name, err)
	}

	if !env.Success {
		return resp.StatusCode, env.Message, &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return resp.StatusCode, env.Message, &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return resp.StatusCode, env.Message, fmt.Errorf("birdeye: bad %s response: %w", name, err)
	}
	return resp.StatusCode, env.Message, nil
}

func trimForErr(s string) string {
	const n = 200
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
