package chart

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/bdschart/internal/birdeye"
	"github.com/rustyeddy/bdschart/internal/metrics"
	"github.com/rustyeddy/bdschart/market"
)

var upgrader = websocket.Upgrader{
	Subprotocols: []string{birdeye.Subprotocol},
	CheckOrigin:  func(r *http.Request) bool { return true },
}

// fakeSocket upgrades every request and hands the connection to fn.
func fakeSocket(t *testing.T, fn func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		fn(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newSubscriber(url string) (*Subscriber, *Chart, *Log) {
	c := New()
	log := NewLog(nil, 0)
	return &Subscriber{
		URL:            url,
		APIKey:         "key",
		SubscribeDelay: 10 * time.Millisecond,
		Surface:        c,
		Status:         c,
		Log:            log,
		Metrics:        metrics.New(),
	}, c, log
}

func countMessages(log *Log, prefix string) int {
	n := 0
	for _, e := range log.Entries() {
		if strings.HasPrefix(e.Message, prefix) {
			n++
		}
	}
	return n
}

func TestSubscriberSession(t *testing.T) {
	gotSub := make(chan map[string]any, 1)
	release := make(chan struct{})

	url := fakeSocket(t, func(conn *websocket.Conn) {
		var sub map[string]any
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		gotSub <- sub

		for _, m := range []string{
			`{"type":"WELCOME","data":{}}`,
			`{"type":"PRICE_DATA"`,
			`{"type":"PRICE_DATA","data":{"o":"1.0","h":"1.6","l":"0.9","c":"1.5","v":"42","unixTime":120,"type":"1m"}}`,
			`{"type":"PRICE_DATA","data":{"o":1,"h":1,"l":1,"c":1}}`,
			`{"type":"TXS_DATA","data":{"price":100,"unixTime":180}}`,
			`{"type":"PRICE_DATA","data":{"price":5,"unixTime":185}}`,
			`{"type":"PRICE_DATA","data":{"value":"7","unixTime":200}}`,
			`{"type":"PRICE_DATA","data":{"price":6,"unixTime":239}}`,
		} {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}

		<-release
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_, _, _ = conn.ReadMessage()
	})

	s, c, log := newSubscriber(url)
	sess, err := s.Connect(context.Background(), birdeye.SOLAddress, market.M1)
	require.NoError(t, err)
	assert.Equal(t, market.Connected, s.State())
	assert.Same(t, sess, s.Session())
	assert.True(t, strings.HasPrefix(sess.ID(), "ses_"))

	again, err := s.Connect(context.Background(), birdeye.SOLAddress, market.M1)
	require.ErrorIs(t, err, ErrAlreadyConnected)
	assert.Same(t, sess, again)
	assert.Equal(t, 1, countMessages(log, "⚠️ WebSocket already connected"))

	select {
	case sub := <-gotSub:
		assert.Equal(t, "SUBSCRIBE_PRICE", sub["type"])
		assert.Equal(t, map[string]any{
			"queryType": "simple",
			"address":   birdeye.SOLAddress,
			"currency":  "usd",
			"chartType": "1m",
		}, sub["data"])
	case <-time.After(5 * time.Second):
		t.Fatal("no subscription received")
	}

	want := []market.Candle{
		{Time: 120, Open: 1, High: 1.6, Low: 0.9, Close: 1.5},
		{Time: 180, Open: 5, High: 7, Low: 5, Close: 6},
	}
	require.Eventually(t, func() bool {
		got := c.Candles()
		return len(got) == 2 && got[1] == want[1]
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, want, c.Candles())
	assert.Equal(t, []market.VolumeBar{{Time: 120, Value: 42, Color: market.UpColor}}, c.Volumes())

	cur, ok := sess.Current()
	require.True(t, ok)
	assert.Equal(t, want[1], cur)

	close(release)
	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end")
	}
	require.NoError(t, sess.Err())

	assert.Equal(t, market.Disconnected, s.State())
	assert.Nil(t, s.Session())
	state, msg := c.Status()
	assert.Equal(t, market.Disconnected, state)
	assert.Equal(t, "WebSocket Disconnected", msg)

	assert.Equal(t, 1, countMessages(log, "❌ Error parsing WebSocket message"))
	assert.Equal(t, 1, countMessages(log, "📊 OHLCV update: O=$1.000000 H=$1.600000 L=$0.900000 C=$1.500000 V=42"))
	assert.Equal(t, 1, countMessages(log, "📡 Subscribed to Birdeye price updates for So111111..."))
	assert.Equal(t, 1, countMessages(log, "🔌 WebSocket disconnected from Birdeye"))

	rec := httptest.NewRecorder()
	s.Metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `bdschart_stream_messages_total{type="PRICE_DATA"} 5`)
	assert.Contains(t, body, `bdschart_stream_messages_total{type="WELCOME"} 1`)
	assert.Contains(t, body, `bdschart_stream_parse_errors_total 1`)
	assert.Contains(t, body, `bdschart_bar_events_total{event="new"} 2`)
	assert.Contains(t, body, `bdschart_bar_events_total{event="update"} 2`)
	assert.Contains(t, body, `bdschart_connection_state{state="disconnected"} 1`)
}

func TestSubscriberDisconnect(t *testing.T) {
	url := fakeSocket(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	s, c, log := newSubscriber(url)
	s.SubscribeDelay = time.Hour
	s.Disconnect() // nothing open yet

	first, err := s.Connect(context.Background(), "TOKEN", market.D1)
	require.NoError(t, err)

	s.Disconnect()
	require.NoError(t, first.Err())
	assert.Equal(t, market.Disconnected, s.State())
	assert.Nil(t, s.Session())
	state, _ := c.Status()
	assert.Equal(t, market.Disconnected, state)
	assert.Equal(t, 0, log.Count(LevelError))

	second, err := s.Connect(context.Background(), "TOKEN", market.D1)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())
	s.Disconnect()
}

func TestSubscriberContextCancelEndsSession(t *testing.T) {
	url := fakeSocket(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	s, _, _ := newSubscriber(url)
	ctx, cancel := context.WithCancel(context.Background())
	sess, err := s.Connect(ctx, "TOKEN", market.D1)
	require.NoError(t, err)

	cancel()
	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end")
	}
	assert.Equal(t, market.Disconnected, s.State())
}

func TestSubscriberAbnormalClose(t *testing.T) {
	url := fakeSocket(t, func(conn *websocket.Conn) {
		// drop the tcp connection without a close frame
		_ = conn.NetConn().Close()
	})

	s, c, log := newSubscriber(url)
	sess, err := s.Connect(context.Background(), "TOKEN", market.D1)
	require.NoError(t, err)

	<-sess.Done()
	require.Error(t, sess.Err())
	_, msg := c.Status()
	assert.Equal(t, "WebSocket Error", msg)
	assert.Equal(t, 1, countMessages(log, "❌ WebSocket error"))
	assert.Equal(t, market.Disconnected, s.State())
}

func TestSubscriberDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	s, c, log := newSubscriber(url)
	sess, err := s.Connect(context.Background(), "TOKEN", market.D1)
	require.Error(t, err)
	assert.Nil(t, sess)
	assert.Equal(t, market.Disconnected, s.State())
	_, msg := c.Status()
	assert.Equal(t, "WebSocket Error", msg)
	assert.Equal(t, 1, log.Count(LevelError))
}

func TestSubscriberMissingToken(t *testing.T) {
	s, _, log := newSubscriber("ws://unused")
	_, err := s.Connect(context.Background(), "", market.D1)
	require.Error(t, err)
	assert.Equal(t, 1, log.Count(LevelError))
	assert.Equal(t, market.Disconnected, s.State())
}

func TestSessionApplyTick(t *testing.T) {
	url := fakeSocket(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	s, c, _ := newSubscriber(url)
	s.SubscribeDelay = time.Hour
	sess, err := s.Connect(context.Background(), "TOKEN", market.D1)
	require.NoError(t, err)
	defer s.Disconnect()

	first, ev := sess.ApplyTick(market.Tick{Price: 10, Time: 1000})
	assert.Equal(t, market.NewBar, ev)
	first, ev = sess.ApplyTick(market.Tick{Price: 12, Time: 43000})
	assert.Equal(t, market.UpdateBar, ev)
	assert.Equal(t, market.Candle{Time: 0, Open: 10, High: 12, Low: 10, Close: 12}, first)

	next, ev := sess.ApplyTick(market.Tick{Price: 8, Time: 90000})
	assert.Equal(t, market.NewBar, ev)
	assert.Equal(t, market.Candle{Time: 86400, Open: 8, High: 8, Low: 8, Close: 8}, next)

	assert.Equal(t, []market.Candle{first, next}, c.Candles())
}

func TestSessionCallbacksMayReadCurrent(t *testing.T) {
	url := fakeSocket(t, func(conn *websocket.Conn) {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		for _, m := range []string{
			`{"type":"PRICE_DATA","data":{"price":5,"unixTime":185}}`,
			`{"type":"PRICE_DATA","data":{"o":1,"h":2,"l":1,"c":2,"v":3,"unixTime":240}}`,
			`{"type":"PRICE_DATA","data":{"price":6,"unixTime":200}}`,
		} {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		_, _, _ = conn.ReadMessage()
	})

	s, c, log := newSubscriber(url)
	seen := make(chan market.Candle, 16)
	c.OnCandle(func(market.Candle) {
		if sess := s.Session(); sess != nil {
			cur, _ := sess.Current()
			seen <- cur
		}
	})
	log.OnEntry(func(Entry) {
		if sess := s.Session(); sess != nil {
			_, _ = sess.Current()
		}
	})

	_, err := s.Connect(context.Background(), "TOKEN", market.M1)
	require.NoError(t, err)
	defer s.Disconnect()

	require.Eventually(t, func() bool { return len(seen) == 3 }, 5*time.Second, 5*time.Millisecond)
	assert.Len(t, c.Candles(), 2)
	assert.Equal(t, 1, countMessages(log, "📊 OHLCV update"))
}

func TestSubscriberTrades(t *testing.T) {
	subs := make(chan string, 2)
	url := fakeSocket(t, func(conn *websocket.Conn) {
		for i := 0; i < 2; i++ {
			var sub struct {
				Type string `json:"type"`
			}
			if err := conn.ReadJSON(&sub); err != nil {
				return
			}
			subs <- sub.Type
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"TXS_DATA","data":{
			"txHash":"5abc","side":"buy","blockUnixTime":0,"volumeUSD":152.5,
			"from":{"symbol":"USDC","uiAmount":152.5},"to":{"symbol":"SOL","uiAmount":1.5}}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"TXS_DATA","data":{"volumeUSD":"lots"}}`))
		_, _, _ = conn.ReadMessage()
	})

	s, c, log := newSubscriber(url)
	s.Trades = true
	_, err := s.Connect(context.Background(), "TOKEN", market.M1)
	require.NoError(t, err)
	defer s.Disconnect()

	assert.Equal(t, birdeye.TypeSubscribePrice, <-subs)
	assert.Equal(t, birdeye.TypeSubscribeTxs, <-subs)

	require.Eventually(t, func() bool {
		return countMessages(log, "❌ Error parsing WebSocket message") == 1
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, countMessages(log, "📡 Subscribed to Birdeye trades for TOKEN..."))
	assert.Equal(t, 1, countMessages(log, "💱 Trade: buy 152.5 USDC for 1.5 SOL ($152.50)"))
	assert.Empty(t, c.Candles())
}

func TestSubscriberResetCandle(t *testing.T) {
	var none *Subscriber
	none.ResetCandle()

	url := fakeSocket(t, func(conn *websocket.Conn) {
		_, _, _ = conn.ReadMessage()
	})
	s, _, _ := newSubscriber(url)
	s.SubscribeDelay = time.Hour
	s.ResetCandle() // no session

	sess, err := s.Connect(context.Background(), "TOKEN", market.M1)
	require.NoError(t, err)
	defer s.Disconnect()

	sess.ApplyTick(market.Tick{Price: 1, Time: 60})
	s.ResetCandle()
	_, ok := sess.Current()
	assert.False(t, ok)

	c, ev := sess.ApplyTick(market.Tick{Price: 2, Time: 61})
	assert.Equal(t, market.NewBar, ev)
	assert.Equal(t, market.Candle{Time: 60, Open: 2, High: 2, Low: 2, Close: 2}, c)
}
