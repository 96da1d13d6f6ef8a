package market

// Default series colors used by the chart and for volume bars.
const (
	UpColor   = "#4caf50"
	DownColor = "#f44336"
)

// Candle represents OHLC (Open, High, Low, Close) candlestick data for one
// bucket. Time is the bucket start in unix seconds.
type Candle struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Up reports whether the candle closed at or above its open.
func (c Candle) Up() bool {
	return c.Close >= c.Open
}

// Valid reports whether high and low bound open and close. Provider data is
// not guaranteed to satisfy this, so callers only use it for diagnostics.
func (c Candle) Valid() bool {
	return c.High >= max(c.Open, c.Close) && c.Low <= min(c.Open, c.Close)
}

// VolumeBar is the histogram value paired with the candle at the same time.
type VolumeBar struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
	Color string  `json:"color"`
}

// VolumeColor returns UpColor when close >= open, else DownColor.
func VolumeColor(c Candle) string {
	if c.Up() {
		return UpColor
	}
	return DownColor
}

// NewVolumeBar pairs a volume value with its candle.
func NewVolumeBar(c Candle, volume float64) VolumeBar {
	return VolumeBar{
		Time:  c.Time,
		Value: volume,
		Color: VolumeColor(c),
	}
}
