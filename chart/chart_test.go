package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/bdschart/market"
)

func TestChartSetDataSortsAndCopies(t *testing.T) {
	c := New()
	candles := []market.Candle{{Time: 120, Close: 2}, {Time: 60, Close: 1}}
	c.SetData(candles, []market.VolumeBar{{Time: 120}, {Time: 60}})

	candles[0].Close = 99
	got := c.Candles()
	require.Len(t, got, 2)
	assert.Equal(t, int64(60), got[0].Time)
	assert.Equal(t, 2.0, got[1].Close)
	assert.Equal(t, int64(60), c.Volumes()[0].Time)
}

func TestChartUpdateCandle(t *testing.T) {
	c := New()
	c.SetData([]market.Candle{{Time: 60, Close: 1}, {Time: 180, Close: 3}}, nil)

	var updates []market.Candle
	c.OnCandle(func(b market.Candle) { updates = append(updates, b) })

	c.UpdateCandle(market.Candle{Time: 180, Close: 4}) // replace last
	c.UpdateCandle(market.Candle{Time: 240, Close: 5}) // append
	c.UpdateCandle(market.Candle{Time: 120, Close: 2}) // insert in order

	got := c.Candles()
	require.Len(t, got, 4)
	assert.Equal(t, []int64{60, 120, 180, 240}, []int64{got[0].Time, got[1].Time, got[2].Time, got[3].Time})
	assert.Equal(t, 4.0, got[2].Close)
	assert.Len(t, updates, 3)

	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, 5.0, last.Close)
}

func TestChartStatus(t *testing.T) {
	c := New()
	state, msg := c.Status()
	assert.Equal(t, market.Disconnected, state)
	assert.Equal(t, "Disconnected", msg)

	var got []market.ConnectionState
	c.OnStatus(func(s market.ConnectionState, _ string) { got = append(got, s) })
	c.SetStatus(market.Connecting, "Connecting")
	c.SetStatus(market.Connected, "Connected")

	state, msg = c.Status()
	assert.Equal(t, market.Connected, state)
	assert.Equal(t, "Connected", msg)
	assert.Equal(t, []market.ConnectionState{market.Connecting, market.Connected}, got)

	_, ok := New().Last()
	assert.False(t, ok)
}
