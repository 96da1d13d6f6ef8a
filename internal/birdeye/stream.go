package birdeye

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rustyeddy/bdschart/market"
)

// Event types on the price socket.
const (
	TypeSubscribePrice = "SUBSCRIBE_PRICE"
	TypePriceData      = "PRICE_DATA"
	TypeSubscribeTxs   = "SUBSCRIBE_TXS"
	TypeTxsData        = "TXS_DATA"
)

// Subprotocol is required by the BDS socket.
const Subprotocol = "echo-protocol"

type StreamOptions struct {
	URL    string // e.g. wss://public-api.birdeye.so/socket/solana
	APIKey string
	Origin string // sent as Origin, defaults to DefaultWSOrigin

	Dialer *websocket.Dialer // defaults to websocket.DefaultDialer
}

// Message is one tagged event read from the socket.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// PriceData is the payload of a PRICE_DATA event. OHLCV events carry O..V;
// price-only ticks carry Price (or Value) and UnixTime.
type PriceData struct {
	O         *market.Number `json:"o"`
	H         *market.Number `json:"h"`
	L         *market.Number `json:"l"`
	C         *market.Number `json:"c"`
	V         *market.Number `json:"v"`
	Price     *market.Number `json:"price"`
	Value     *market.Number `json:"value"`
	UnixTime  market.Number  `json:"unixTime"`
	EventType string         `json:"eventType"`
	Type      string         `json:"type"`
	Symbol    string         `json:"symbol"`
	Address   string         `json:"address"`
}

// IsOHLCV reports whether the payload is pre-aggregated by the provider.
func (p PriceData) IsOHLCV() bool {
	return p.O != nil && p.H != nil && p.L != nil && p.C != nil
}

// Candle returns the provider supplied candle.
func (p PriceData) Candle() market.Candle {
	return market.Candle{
		Time:  p.UnixTime.Int64(),
		Open:  num(p.O),
		High:  num(p.H),
		Low:   num(p.L),
		Close: num(p.C),
	}
}

// Tick returns the single price of a price-only payload.
func (p PriceData) Tick() (market.Tick, bool) {
	price := p.Price
	if price == nil {
		price = p.Value
	}
	if price == nil {
		return market.Tick{}, false
	}
	return market.Tick{Price: price.Float64(), Time: p.UnixTime.Int64()}, true
}

func num(n *market.Number) float64 {
	if n == nil {
		return 0
	}
	return n.Float64()
}

// ErrNoData is returned by Message.PriceData for an event with no payload.
var ErrNoData = errors.New("birdeye: message without data")

// PriceData decodes the payload of a PRICE_DATA message.
func (m Message) PriceData() (PriceData, error) {
	var p PriceData
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return p, ErrNoData
	}
	if err := json.Unmarshal(m.Data, &p); err != nil {
		return p, &DecodeError{Raw: m.Data, Err: err}
	}
	return p, nil
}

// TxToken is one side of a swap in a TXS_DATA event.
type TxToken struct {
	Symbol   string        `json:"symbol"`
	Address  string        `json:"address"`
	UIAmount market.Number `json:"uiAmount"`
	Price    market.Number `json:"price"`
}

// TxsData is the payload of a TXS_DATA event.
type TxsData struct {
	TxHash        string        `json:"txHash"`
	Side          string        `json:"side"`
	Owner         string        `json:"owner"`
	Source        string        `json:"source"`
	TokenAddress  string        `json:"tokenAddress"`
	BlockUnixTime market.Number `json:"blockUnixTime"`
	VolumeUSD     market.Number `json:"volumeUSD"`
	From          TxToken       `json:"from"`
	To            TxToken       `json:"to"`
}

// TxsData decodes the payload of a TXS_DATA message.
func (m Message) TxsData() (TxsData, error) {
	var tx TxsData
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return tx, ErrNoData
	}
	if err := json.Unmarshal(m.Data, &tx); err != nil {
		return tx, &DecodeError{Raw: m.Data, Err: err}
	}
	return tx, nil
}

// SubscribeTxs is the data of a SUBSCRIBE_TXS request.
type SubscribeTxs struct {
	QueryType string `json:"queryType"`
	Address   string `json:"address"`
}

// SubscribePrice is the data of a SUBSCRIBE_PRICE request.
type SubscribePrice struct {
	QueryType string           `json:"queryType"`
	Address   string           `json:"address"`
	Currency  string           `json:"currency"`
	ChartType market.Timeframe `json:"chartType"`
}

// NewSubscribePrice builds a simple usd subscription for one token.
func NewSubscribePrice(address string, tf market.Timeframe) SubscribePrice {
	return SubscribePrice{
		QueryType: "simple",
		Address:   address,
		Currency:  "usd",
		ChartType: tf,
	}
}

// DecodeError is a message that was read but could not be parsed. The
// connection is still usable after one.
type DecodeError struct {
	Raw []byte
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("birdeye: bad message: %v (raw=%q)", e.Err, trimForErr(string(e.Raw)))
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Stream is an open price socket. Reads must come from a single goroutine;
// writes and Close may come from any.
type Stream struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closed    bool // guarded by writeMu
	closeOnce sync.Once
	closeErr  error
}

// ErrStreamClosed is returned by Subscribe and SubscribeTxs after Close.
var ErrStreamClosed = errors.New("birdeye: stream closed")

// StreamURL appends the api key query parameter to the socket url.
func StreamURL(raw, apiKey string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("x-api-key", apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// DialStream opens the socket. It does not subscribe.
func DialStream(ctx context.Context, opts StreamOptions) (*Stream, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("birdeye: missing api key")
	}
	if opts.URL == "" {
		return nil, fmt.Errorf("birdeye: missing stream url")
	}

	u, err := StreamURL(opts.URL, opts.APIKey)
	if err != nil {
		return nil, err
	}

	d := websocket.DefaultDialer
	if opts.Dialer != nil {
		d = opts.Dialer
	}
	dialer := *d
	dialer.Subprotocols = []string{Subprotocol}

	origin := opts.Origin
	if origin == "" {
		origin = DefaultWSOrigin
	}
	h := http.Header{}
	h.Set("Origin", origin)

	conn, resp, err := dialer.DialContext(ctx, u, h)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial birdeye ws: http %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial birdeye ws: %w", err)
	}
	return &Stream{conn: conn}, nil
}

// Subscribe sends one SUBSCRIBE_PRICE request.
func (s *Stream) Subscribe(req SubscribePrice) error {
	return s.send(TypeSubscribePrice, req)
}

// SubscribeTxs asks for the swaps of one token.
func (s *Stream) SubscribeTxs(address string) error {
	return s.send(TypeSubscribeTxs, SubscribeTxs{QueryType: "simple", Address: address})
}

func (s *Stream) send(typ string, data any) error {
	msg := struct {
		Type string `json:"type"`
		Data any    `json:"data"`
	}{typ, data}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	return s.conn.WriteJSON(msg)
}

// Read blocks for the next message. A *DecodeError means the frame was
// malformed and reading may continue; any other error ends the stream.
func (s *Stream) Read() (Message, error) {
	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return Message{}, err
	}
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, &DecodeError{Raw: raw, Err: err}
	}
	return m, nil
}

// Close sends a normal close frame and closes the connection. Safe to call
// more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.closed = true
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// IsNormalClose reports whether err is an orderly end of the stream.
func IsNormalClose(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	return errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection")
}
