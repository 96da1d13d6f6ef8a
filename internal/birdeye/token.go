package birdeye

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rustyeddy/bdschart/market"
)

const (
	DefaultTxsLimit     = 20
	DefaultListingLimit = 50
)

// TokenPrice is the /defi/price payload.
type TokenPrice struct {
	Value          market.Number `json:"value"`
	UpdateUnixTime market.Number `json:"updateUnixTime"`
	PriceChange24h market.Number `json:"priceChange24h"`
	Liquidity      market.Number `json:"liquidity"`
}

// Updated is the time the provider last priced the token.
func (p TokenPrice) Updated() time.Time {
	return time.Unix(p.UpdateUnixTime.Int64(), 0)
}

// Price returns the current usd price of a token.
func (c *Client) Price(ctx context.Context, address string) (TokenPrice, error) {
	var p TokenPrice
	if err := c.check(); err != nil {
		return p, err
	}
	if address == "" {
		return p, fmt.Errorf("birdeye: missing address")
	}
	q := url.Values{}
	q.Set("address", address)
	_, _, err := c.get(ctx, "price", "/defi/price", q, &p)
	return p, err
}

// TokenOverview is the subset of /defi/token_overview shown to users.
type TokenOverview struct {
	Address               string        `json:"address"`
	Name                  string        `json:"name"`
	Symbol                string        `json:"symbol"`
	Decimals              int           `json:"decimals"`
	Price                 market.Number `json:"price"`
	MarketCap             market.Number `json:"mc"`
	Liquidity             market.Number `json:"liquidity"`
	Volume24hUSD          market.Number `json:"v24hUSD"`
	PriceChange24hPercent market.Number `json:"priceChange24hPercent"`
	Holders               market.Number `json:"holder"`
}

// TokenOverview returns token metadata and trading data.
func (c *Client) TokenOverview(ctx context.Context, address string) (TokenOverview, error) {
	var o TokenOverview
	if err := c.check(); err != nil {
		return o, err
	}
	if address == "" {
		return o, fmt.Errorf("birdeye: missing address")
	}
	q := url.Values{}
	q.Set("address", address)
	_, _, err := c.get(ctx, "token overview", "/defi/token_overview", q, &o)
	return o, err
}

type HistoryPriceOptions struct {
	Address  string
	Type     market.Timeframe
	TimeFrom time.Time // defaults to DefaultPageCount intervals before TimeTo
	TimeTo   time.Time // defaults to now
}

// PricePoint is one record of /defi/history_price.
type PricePoint struct {
	UnixTime market.Number `json:"unixTime"`
	Value    market.Number `json:"value"`
}

// HistoryPrice fetches the price line of a token between two times.
func (c *Client) HistoryPrice(ctx context.Context, opts HistoryPriceOptions) ([]PricePoint, error) {
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
	from := opts.TimeFrom
	if from.IsZero() {
		from = to.Add(-DefaultPageCount * opts.Type.Duration())
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("birdeye: time_from must be before time_to")
	}

	q := url.Values{}
	q.Set("address", opts.Address)
	q.Set("address_type", "token")
	q.Set("type", opts.Type.String())
	q.Set("time_from", strconv.FormatInt(from.Unix(), 10))
	q.Set("time_to", strconv.FormatInt(to.Unix(), 10))

	return getItems[PricePoint](ctx, c, "history price", "/defi/history_price", q)
}

// TokenTx is one swap from /defi/v3/token/txs.
type TokenTx struct {
	TxHash        string        `json:"tx_hash"`
	TxType        string        `json:"tx_type"`
	Side          string        `json:"side"`
	Owner         string        `json:"owner"`
	Source        string        `json:"source"`
	BlockUnixTime market.Number `json:"block_unix_time"`
	VolumeUSD     market.Number `json:"volume_usd"`
	Volume        market.Number `json:"volume"`
	PricePair     market.Number `json:"price_pair"`
}

// Time is the block time of the swap.
func (tx TokenTx) Time() time.Time {
	return time.Unix(tx.BlockUnixTime.Int64(), 0)
}

// TokenTxs returns the most recent swaps of a token, newest first.
func (c *Client) TokenTxs(ctx context.Context, address string, limit int) ([]TokenTx, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if address == "" {
		return nil, fmt.Errorf("birdeye: missing address")
	}
	if limit <= 0 {
		limit = DefaultTxsLimit
	}

	q := url.Values{}
	q.Set("address", address)
	q.Set("offset", "0")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("sort_by", "block_unix_time")
	q.Set("sort_type", "desc")
	q.Set("tx_type", "swap")

	return getItems[TokenTx](ctx, c, "token txs", "/defi/v3/token/txs", q)
}

// Listing is one newly listed token from /defi/v2/tokens/new_listing.
type Listing struct {
	Address          string        `json:"address"`
	Symbol           string        `json:"symbol"`
	Name             string        `json:"name"`
	Decimals         int           `json:"decimals"`
	Source           string        `json:"source"`
	LiquidityAddedAt string        `json:"liquidityAddedAt"`
	Liquidity        market.Number `json:"liquidity"`
}

// NewListings returns recently listed tokens.
func (c *Client) NewListings(ctx context.Context, limit int) ([]Listing, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListingLimit
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("meme_platform_enabled", "false")

	return getItems[Listing](ctx, c, "new listings", "/defi/v2/tokens/new_listing", q)
}
