package chart

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/bdschart/internal/birdeye"
	"github.com/rustyeddy/bdschart/internal/logx"
	"github.com/rustyeddy/bdschart/internal/metrics"
	"github.com/rustyeddy/bdschart/market"
)

// OHLCVSource is the request/response side of the provider.
type OHLCVSource interface {
	OHLCV(ctx context.Context, opts birdeye.OHLCVOptions) ([]birdeye.OHLCVItem, error)
}

// Loader replaces a surface's data with one bounded page of history.
type Loader struct {
	Source  OHLCVSource
	Surface Surface
	Log     *Log
	Count   int // page size, defaults to birdeye.DefaultPageCount

	// Live, when set, has its in-progress candle dropped after each
	// successful load.
	Live *Subscriber

	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time

	seq atomic.Uint64
}

// ErrStale is returned by Load when a newer load started before this one
// finished. Its result was discarded.
var ErrStale = errors.New("chart: superseded by a newer load")

// Load makes one request for the most recent candles ending now. On failure
// exactly one error entry is logged and the surface is left untouched.
func (l *Loader) Load(ctx context.Context, token string, tf market.Timeframe) error {
	if token == "" {
		l.Log.Error("❌ Please enter a token address")
		return fmt.Errorf("chart: missing token address")
	}

	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	count := l.Count
	if count <= 0 {
		count = birdeye.DefaultPageCount
	}
	logger := logx.OrNop(l.Logger).With(zap.String("token", token), zap.Stringer("timeframe", tf))

	seq := l.seq.Add(1)
	l.Log.Info(fmt.Sprintf("🔄 Loading historical data for %s...", short(token)))

	items, err := l.Source.OHLCV(ctx, birdeye.OHLCVOptions{
		Address:    token,
		Type:       tf,
		TimeTo:     now(),
		CountLimit: count,
	})
	if l.seq.Load() != seq {
		logger.Debug("discarding stale historical response", zap.Uint64("seq", seq))
		l.Metrics.Load("stale")
		return ErrStale
	}
	if err != nil {
		l.Metrics.Load("error")
		var apiErr *birdeye.APIError
		if errors.As(err, &apiErr) {
			l.Log.Error(fmt.Sprintf("❌ Failed to load historical data: %s", apiErr.Error()), zap.Int("status", apiErr.StatusCode))
			return err
		}
		l.Log.Error(fmt.Sprintf("❌ Error loading data: %s", err.Error()), zap.Error(err))
		return err
	}

	candles := make([]market.Candle, 0, len(items))
	volumes := make([]market.VolumeBar, 0, len(items))
	invalid := 0
	for _, it := range items {
		c, v := it.Candle()
		if !c.Valid() {
			invalid++
		}
		candles = append(candles, c)
		volumes = append(volumes, v)
	}
	if invalid > 0 {
		logger.Debug("provider candles with high/low outside open/close", zap.Int("count", invalid))
	}

	l.Surface.SetData(candles, volumes)
	l.Live.ResetCandle()
	l.Metrics.Load("ok")
	l.Log.Info(fmt.Sprintf("✅ Loaded %d historical candles", len(candles)))
	return nil
}

func short(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}
