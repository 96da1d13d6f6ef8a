package market

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is a BDS chart type code such as "1m" or "1D".
type Timeframe string

const (
	M1  Timeframe = "1m"
	M5  Timeframe = "5m"
	M15 Timeframe = "15m"
	H1  Timeframe = "1H"
	H4  Timeframe = "4H"
	D1  Timeframe = "1D"
)

// DefaultTimeframe is selected when nothing else is configured.
const DefaultTimeframe = D1

type timeframeMeta struct {
	seconds int64
	label   string
}

var timeframes = map[Timeframe]timeframeMeta{
	M1:  {60, "1 minute"},
	M5:  {300, "5 minutes"},
	M15: {900, "15 minutes"},
	H1:  {3600, "1 hour"},
	H4:  {14400, "4 hours"},
	D1:  {86400, "1 day"},
}

// Timeframes returns every supported timeframe, shortest first.
func Timeframes() []Timeframe {
	return []Timeframe{M1, M5, M15, H1, H4, D1}
}

// ParseTimeframe accepts a chart type code. Codes are case sensitive ("1m" is
// one minute, "1M" is not supported) except that surrounding space is ignored.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.TrimSpace(s))
	if _, ok := timeframes[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q (want one of %s)", s, timeframeList())
	}
	return tf, nil
}

// Seconds is the bucket duration. Unknown codes fall back to one day.
func (tf Timeframe) Seconds() int64 {
	if m, ok := timeframes[tf]; ok {
		return m.seconds
	}
	return timeframes[D1].seconds
}

func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf.Seconds()) * time.Second
}

// Label is the human readable name shown in the timeframe selector.
func (tf Timeframe) Label() string {
	if m, ok := timeframes[tf]; ok {
		return m.label
	}
	return string(tf)
}

func (tf Timeframe) String() string {
	return string(tf)
}

func timeframeList() string {
	names := make([]string, 0, len(timeframes))
	for _, tf := range Timeframes() {
		names = append(names, string(tf))
	}
	return strings.Join(names, "|")
}
