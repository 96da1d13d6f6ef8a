package market

// Tick is a single price observation from a price-only feed.
type Tick struct {
	Price float64
	Time  int64 // unix seconds
}

// BarEvent tells the chart whether a tick opened a new bar or changed the last one.
type BarEvent int

const (
	NewBar BarEvent = iota
	UpdateBar
)

func (e BarEvent) String() string {
	switch e {
	case NewBar:
		return "new"
	case UpdateBar:
		return "update"
	default:
		return "unknown"
	}
}

// BucketStart floors ts to a multiple of interval seconds. Negative timestamps
// floor toward negative infinity.
func BucketStart(ts, interval int64) int64 {
	start := ts / interval * interval
	if ts < 0 && ts%interval != 0 {
		start -= interval
	}
	return start
}

// CandleBuilder aggregates price ticks into the current candle of a
// timeframe. It is not safe for concurrent use; a streaming session owns one.
type CandleBuilder struct {
	interval int64
	cur      *Candle
}

func NewCandleBuilder(tf Timeframe) *CandleBuilder {
	return &CandleBuilder{interval: tf.Seconds()}
}

// Apply folds one tick into the current candle and returns a copy of it.
// A tick in a different bucket replaces the current candle with a fresh one;
// the replaced candle is never touched again.
func (b *CandleBuilder) Apply(t Tick) (Candle, BarEvent) {
	start := BucketStart(t.Time, b.interval)

	if b.cur == nil || b.cur.Time != start {
		b.cur = &Candle{
			Time:  start,
			Open:  t.Price,
			High:  t.Price,
			Low:   t.Price,
			Close: t.Price,
		}
		return *b.cur, NewBar
	}

	b.cur.High = max(b.cur.High, t.Price)
	b.cur.Low = min(b.cur.Low, t.Price)
	b.cur.Close = t.Price
	return *b.cur, UpdateBar
}

// Current returns the in-progress candle, if any.
func (b *CandleBuilder) Current() (Candle, bool) {
	if b.cur == nil {
		return Candle{}, false
	}
	return *b.cur, true
}

// Reset forgets the in-progress candle.
func (b *CandleBuilder) Reset() {
	b.cur = nil
}

// Interval is the bucket duration in seconds.
func (b *CandleBuilder) Interval() int64 {
	return b.interval
}
