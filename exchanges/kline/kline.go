// Package kline defines unified candle types and interval tokens
package kline

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/unifex/unifex/currency"
)

// Interval is a candle timeframe
type Interval time.Duration

// Standard intervals. Venue drivers translate these to their wire tokens
// through per-driver tables.
const (
	OneMin     = Interval(time.Minute)
	ThreeMin   = Interval(3 * time.Minute)
	FiveMin    = Interval(5 * time.Minute)
	FifteenMin = Interval(15 * time.Minute)
	ThirtyMin  = Interval(30 * time.Minute)
	OneHour    = Interval(time.Hour)
	TwoHour    = Interval(2 * time.Hour)
	FourHour   = Interval(4 * time.Hour)
	SixHour    = Interval(6 * time.Hour)
	EightHour  = Interval(8 * time.Hour)
	TwelveHour = Interval(12 * time.Hour)
	OneDay     = Interval(24 * time.Hour)
	OneWeek    = Interval(7 * 24 * time.Hour)
	OneMonth   = Interval(30 * 24 * time.Hour)
)

// ErrUnsupportedInterval is returned when a venue has no token for the
// requested interval
var ErrUnsupportedInterval = errors.New("interval unsupported by venue")

// Duration returns the interval as a time.Duration
func (i Interval) Duration() time.Duration { return time.Duration(i) }

// Short returns the unified short token for the interval
func (i Interval) Short() string {
	d := time.Duration(i)
	switch {
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dw", int(d.Hours()/(24*7)))
	default:
		return fmt.Sprintf("%dM", int(d.Hours()/(24*30)))
	}
}

// Candle is one OHLCV bar
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Item holds a normalized candle series
type Item struct {
	Pair     currency.Pair `json:"pair"`
	Interval Interval      `json:"interval"`
	Candles  []Candle      `json:"candles"`
}

// SortAscending orders candles chronologically ascending in place
func SortAscending(candles []Candle) {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Time.Before(candles[j].Time)
	})
}

// Reverse flips candle order in place. Venues returning newest-first are
// normalized with this before delivery.
func Reverse(candles []Candle) {
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
}

// Limit truncates an ascending series to its first n candles. n <= 0 returns
// the series untouched.
func Limit(candles []Candle, n int) []Candle {
	if n <= 0 || len(candles) <= n {
		return candles
	}
	return candles[:n]
}
