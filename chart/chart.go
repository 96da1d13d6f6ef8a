// Package chart is the market data client behind the generated page: it
// loads history into a chart surface and keeps it current from the price
// socket.
package chart

import (
	"sort"
	"sync"

	"github.com/rustyeddy/bdschart/market"
)

// Surface receives series data. The generated page implements the same
// calls on lightweight-charts series; Chart implements them in memory.
type Surface interface {
	// SetData replaces both series.
	SetData(candles []market.Candle, volumes []market.VolumeBar)
	// UpdateCandle replaces the bar at c.Time, or appends it when newer.
	UpdateCandle(c market.Candle)
	UpdateVolume(v market.VolumeBar)
}

// StatusReporter shows the connection state to the user.
type StatusReporter interface {
	SetStatus(state market.ConnectionState, message string)
}

// Chart is an in-memory Surface and StatusReporter. Safe for concurrent use.
type Chart struct {
	mu      sync.RWMutex
	candles []market.Candle
	volumes []market.VolumeBar
	state   market.ConnectionState
	status  string

	onCandle func(market.Candle)
	onStatus func(market.ConnectionState, string)
}

func New() *Chart {
	return &Chart{
		state:  market.Disconnected,
		status: "Disconnected",
	}
}

// OnCandle registers fn to be called after every UpdateCandle.
func (c *Chart) OnCandle(fn func(market.Candle)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCandle = fn
}

// OnStatus registers fn to be called after every SetStatus.
func (c *Chart) OnStatus(fn func(market.ConnectionState, string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = fn
}

func (c *Chart) SetData(candles []market.Candle, volumes []market.VolumeBar) {
	cs := append([]market.Candle(nil), candles...)
	vs := append([]market.VolumeBar(nil), volumes...)
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].Time < cs[j].Time })
	sort.SliceStable(vs, func(i, j int) bool { return vs[i].Time < vs[j].Time })

	c.mu.Lock()
	c.candles = cs
	c.volumes = vs
	c.mu.Unlock()
}

func (c *Chart) UpdateCandle(bar market.Candle) {
	c.mu.Lock()
	c.candles = upsert(c.candles, bar, func(b market.Candle) int64 { return b.Time })
	fn := c.onCandle
	c.mu.Unlock()

	if fn != nil {
		fn(bar)
	}
}

func (c *Chart) UpdateVolume(v market.VolumeBar) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volumes = upsert(c.volumes, v, func(b market.VolumeBar) int64 { return b.Time })
}

func (c *Chart) SetStatus(state market.ConnectionState, message string) {
	c.mu.Lock()
	c.state = state
	c.status = message
	fn := c.onStatus
	c.mu.Unlock()

	if fn != nil {
		fn(state, message)
	}
}

func (c *Chart) Candles() []market.Candle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]market.Candle(nil), c.candles...)
}

func (c *Chart) Volumes() []market.VolumeBar {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]market.VolumeBar(nil), c.volumes...)
}

// Last returns the newest candle.
func (c *Chart) Last() (market.Candle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.candles) == 0 {
		return market.Candle{}, false
	}
	return c.candles[len(c.candles)-1], true
}

func (c *Chart) Status() (market.ConnectionState, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state, c.status
}

// upsert keeps bars ordered by time. Bars older than the last one are
// accepted in place rather than dropped.
func upsert[T any](bars []T, bar T, at func(T) int64) []T {
	t := at(bar)
	n := len(bars)
	if n == 0 || at(bars[n-1]) < t {
		return append(bars, bar)
	}
	i := sort.Search(n, func(i int) bool { return at(bars[i]) >= t })
	if i < n && at(bars[i]) == t {
		bars[i] = bar
		return bars
	}
	bars = append(bars, bar)
	copy(bars[i+1:], bars[i:n])
	bars[i] = bar
	return bars
}
