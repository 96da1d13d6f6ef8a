package chart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rustyeddy/bdschart/internal/birdeye"
	"github.com/rustyeddy/bdschart/internal/logx"
	"github.com/rustyeddy/bdschart/internal/metrics"
	"github.com/rustyeddy/bdschart/market"
	"github.com/rustyeddy/bdschart/pkg/id"
)

// DefaultSubscribeDelay is the pause between the socket opening and the
// subscription request.
const DefaultSubscribeDelay = time.Second

var ErrAlreadyConnected = errors.New("chart: already connected")

// Subscriber owns at most one streaming session at a time.
type Subscriber struct {
	URL    string // socket url without the api key
	APIKey string
	Origin string
	Dialer *websocket.Dialer

	// SubscribeDelay defaults to DefaultSubscribeDelay.
	SubscribeDelay time.Duration
	// Trades also subscribes to the token's swaps and logs each one.
	Trades bool

	Surface Surface
	Status  StatusReporter // optional
	Log     *Log
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	mu      sync.Mutex
	state   market.ConnectionState
	session *Session
}

// State returns the connection state.
func (s *Subscriber) State() market.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == "" {
		return market.Disconnected
	}
	return s.state
}

// Session returns the open session, or nil.
func (s *Subscriber) Session() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Connect opens the socket and starts a session for token. While a session
// is open or being opened it returns ErrAlreadyConnected and does nothing
// else. Cancelling ctx ends the session.
func (s *Subscriber) Connect(ctx context.Context, token string, tf market.Timeframe) (*Session, error) {
	if token == "" {
		s.Log.Error("❌ Please enter a token address")
		return nil, fmt.Errorf("chart: missing token address")
	}

	s.mu.Lock()
	if s.state == market.Connecting || s.state == market.Connected {
		sess := s.session
		s.mu.Unlock()
		s.Log.Warn("⚠️ WebSocket already connected")
		return sess, ErrAlreadyConnected
	}
	s.state = market.Connecting
	s.mu.Unlock()

	s.report(market.Connecting, "Connecting to Birdeye WebSocket...")
	s.Log.Info(fmt.Sprintf("🔌 Connecting to Birdeye WebSocket for %s...", short(token)))

	stream, err := birdeye.DialStream(ctx, birdeye.StreamOptions{
		URL:    s.URL,
		APIKey: s.APIKey,
		Origin: s.Origin,
		Dialer: s.Dialer,
	})
	if err != nil {
		s.mu.Lock()
		s.state = market.Disconnected
		s.mu.Unlock()
		s.report(market.Disconnected, "WebSocket Error")
		s.Log.Error(fmt.Sprintf("❌ WebSocket error: %s", err.Error()), zap.Error(err))
		return nil, err
	}

	delay := s.SubscribeDelay
	if delay <= 0 {
		delay = DefaultSubscribeDelay
	}

	sess := &Session{
		id:        id.Session(),
		token:     token,
		timeframe: tf,
		delay:     delay,
		stream:    stream,
		builder:   market.NewCandleBuilder(tf),
		lastBar:   -1,
		owner:     s,
		done:      make(chan struct{}),
	}
	sess.logger = logx.OrNop(s.Logger).With(
		zap.String("session", sess.id),
		zap.String("token", token),
		zap.Int64("interval", sess.builder.Interval()),
	)

	s.mu.Lock()
	s.state = market.Connected
	s.session = sess
	s.mu.Unlock()

	s.report(market.Connected, "WebSocket Connected to Birdeye")
	s.Log.Info("✅ WebSocket connected to Birdeye successfully", zap.String("session", sess.id))

	go sess.run(ctx)
	return sess, nil
}

// Disconnect closes the open session and waits for it to end. It is a no-op
// without one. Do not call it from Surface or Log callbacks.
func (s *Subscriber) Disconnect() {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess == nil {
		return
	}
	sess.Close()
	<-sess.Done()
}

// ResetCandle drops the open session's in-progress candle, if any. Call it
// after the surface's data has been replaced.
func (s *Subscriber) ResetCandle() {
	if s == nil {
		return
	}
	if sess := s.Session(); sess != nil {
		sess.ResetCandle()
	}
}

func (s *Subscriber) report(state market.ConnectionState, msg string) {
	s.Metrics.SetState(state)
	if s.Status != nil {
		s.Status.SetStatus(state, msg)
	}
}

func (s *Subscriber) release(sess *Session) {
	s.mu.Lock()
	if s.session == sess {
		s.session = nil
		s.state = market.Disconnected
	}
	s.mu.Unlock()
}

// Session is one streaming connection and the candle it is building.
type Session struct {
	id        string
	token     string
	timeframe market.Timeframe
	delay     time.Duration
	stream    *birdeye.Stream
	owner     *Subscriber
	logger    *zap.Logger

	mu      sync.Mutex
	builder *market.CandleBuilder
	lastBar int64

	done chan struct{}
	err  error
}

func (ss *Session) ID() string                  { return ss.id }
func (ss *Session) Token() string               { return ss.token }
func (ss *Session) Timeframe() market.Timeframe { return ss.timeframe }

// Done is closed when the session has ended.
func (ss *Session) Done() <-chan struct{} {
	return ss.done
}

// Err is the transport error that ended the session; nil after an orderly
// close. Only meaningful once Done is closed.
func (ss *Session) Err() error {
	<-ss.done
	return ss.err
}

// Close closes the socket. The session ends once the reader notices.
func (ss *Session) Close() {
	_ = ss.stream.Close()
}

// Current returns the candle built from price-only ticks, if any.
func (ss *Session) Current() (market.Candle, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.builder.Current()
}

// ResetCandle drops the in-progress candle so the next tick opens a new bar.
func (ss *Session) ResetCandle() {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.builder.Reset()
	ss.lastBar = -1
}

// ApplyTick folds a price-only tick into the current candle and pushes the
// result to the surface. The surface is called without the session lock
// held, so its callbacks may use Current.
func (ss *Session) ApplyTick(t market.Tick) (market.Candle, market.BarEvent) {
	ss.mu.Lock()
	c, ev := ss.builder.Apply(t)
	ss.mu.Unlock()

	ss.owner.Surface.UpdateCandle(c)
	ss.owner.Metrics.Bar(ev)
	return c, ev
}

type readResult struct {
	msg birdeye.Message
	err error
}

// run consumes messages in delivery order until the socket ends.
func (ss *Session) run(ctx context.Context) {
	defer ss.finish()

	reads := make(chan readResult)
	go ss.readLoop(reads)

	subscribe := time.NewTimer(ss.delay)
	defer subscribe.Stop()

	ctxDone := ctx.Done()
	for {
		select {
		case <-ctxDone:
			ctxDone = nil
			ss.Close()

		case <-subscribe.C:
			req := birdeye.NewSubscribePrice(ss.token, ss.timeframe)
			err := ss.stream.Subscribe(req)
			if errors.Is(err, birdeye.ErrStreamClosed) {
				continue
			}
			if err != nil {
				ss.owner.Log.Error(fmt.Sprintf("❌ Subscribe failed: %s", err.Error()), zap.Error(err))
				continue
			}
			ss.owner.Log.Info(fmt.Sprintf("📡 Subscribed to Birdeye price updates for %s...", short(ss.token)))
			if !ss.owner.Trades {
				continue
			}
			if err := ss.stream.SubscribeTxs(ss.token); err != nil {
				if !errors.Is(err, birdeye.ErrStreamClosed) {
					ss.owner.Log.Error(fmt.Sprintf("❌ Subscribe failed: %s", err.Error()), zap.Error(err))
				}
				continue
			}
			ss.owner.Log.Info(fmt.Sprintf("📡 Subscribed to Birdeye trades for %s...", short(ss.token)))

		case r := <-reads:
			if r.err == nil {
				ss.handle(r.msg)
				continue
			}
			var de *birdeye.DecodeError
			if errors.As(r.err, &de) {
				ss.owner.Metrics.ParseError()
				ss.owner.Log.Error(fmt.Sprintf("❌ Error parsing WebSocket message: %s", de.Err.Error()))
				continue
			}
			if !birdeye.IsNormalClose(r.err) {
				ss.err = r.err
			}
			return
		}
	}
}

// readLoop is the only reader of the stream. It stops after the first
// transport error.
func (ss *Session) readLoop(out chan<- readResult) {
	for {
		m, err := ss.stream.Read()
		out <- readResult{msg: m, err: err}
		if err != nil {
			var de *birdeye.DecodeError
			if !errors.As(err, &de) {
				return
			}
		}
	}
}

func (ss *Session) handle(m birdeye.Message) {
	ss.owner.Metrics.Message(m.Type)
	switch {
	case m.Type == birdeye.TypePriceData:
	case m.Type == birdeye.TypeTxsData && ss.owner.Trades:
		ss.handleTx(m)
		return
	default:
		ss.logger.Debug("ignoring event", zap.String("type", m.Type))
		return
	}

	p, err := m.PriceData()
	if errors.Is(err, birdeye.ErrNoData) {
		return
	}
	if err != nil {
		ss.owner.Metrics.ParseError()
		ss.owner.Log.Error(fmt.Sprintf("❌ Error parsing WebSocket message: %s", err.Error()))
		return
	}
	if p.UnixTime == 0 {
		return
	}

	if p.IsOHLCV() {
		ss.applyOHLCV(p)
		return
	}
	if t, ok := p.Tick(); ok {
		c, ev := ss.ApplyTick(t)
		ss.logger.Debug("price tick", zap.Float64("price", t.Price), zap.Int64("bucket", c.Time), zap.Stringer("event", ev))
	}
}

// applyOHLCV applies a provider aggregated candle as is.
func (ss *Session) applyOHLCV(p birdeye.PriceData) {
	c := p.Candle()

	ss.mu.Lock()
	ev := market.UpdateBar
	if c.Time != ss.lastBar {
		ev = market.NewBar
		ss.lastBar = c.Time
	}
	ss.mu.Unlock()

	surface := ss.owner.Surface
	surface.UpdateCandle(c)

	volume := 0.0
	if p.V != nil {
		volume = p.V.Float64()
		surface.UpdateVolume(market.NewVolumeBar(c, volume))
	}
	ss.owner.Metrics.Bar(ev)

	ss.owner.Log.Info(fmt.Sprintf("📊 OHLCV update: O=$%.6f H=$%.6f L=$%.6f C=$%.6f V=%g at %s",
		c.Open, c.High, c.Low, c.Close, volume, time.Unix(c.Time, 0).Format("15:04:05")))
}

func (ss *Session) handleTx(m birdeye.Message) {
	tx, err := m.TxsData()
	if errors.Is(err, birdeye.ErrNoData) {
		return
	}
	if err != nil {
		ss.owner.Metrics.ParseError()
		ss.owner.Log.Error(fmt.Sprintf("❌ Error parsing WebSocket message: %s", err.Error()))
		return
	}
	ss.owner.Log.Info(fmt.Sprintf("💱 Trade: %s %g %s for %g %s ($%.2f) at %s",
		tx.Side, tx.From.UIAmount.Float64(), tx.From.Symbol, tx.To.UIAmount.Float64(), tx.To.Symbol,
		tx.VolumeUSD.Float64(), time.Unix(tx.BlockUnixTime.Int64(), 0).Format("15:04:05")),
		zap.String("tx", tx.TxHash))
}

func (ss *Session) finish() {
	_ = ss.stream.Close()
	ss.owner.release(ss)

	if ss.err != nil {
		ss.owner.report(market.Disconnected, "WebSocket Error")
		ss.owner.Log.Error(fmt.Sprintf("❌ WebSocket error: %s", ss.err.Error()), zap.String("session", ss.id))
	} else {
		ss.owner.report(market.Disconnected, "WebSocket Disconnected")
	}
	fields := []zap.Field{zap.String("session", ss.id)}
	if started, err := id.Time(ss.id); err == nil {
		fields = append(fields, zap.Duration("age", time.Since(started).Round(time.Millisecond)))
	}
	ss.owner.Log.Info("🔌 WebSocket disconnected from Birdeye", fields...)
	close(ss.done)
}
