package candles

import (
	"context"
	"time"
)

// Candle represents one OHLCV record for a symbol/timeframe/time bucket.
// Candles are immutable once stored and ordered by timestamp ascending
// per (symbol, timeframe).
type Candle struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// Range returns the intrabar high-low spread.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// Bullish reports whether the candle closed above its open.
func (c Candle) Bullish() bool {
	return c.Close > c.Open
}

// Supplier provides historical candles for a symbol and timeframe.
// Implementations must return candles in chronological order.
type Supplier interface {
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
	GetCandlesInRange(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]Candle, error)
}

// Chronological reports whether the series is ordered by timestamp ascending.
func Chronological(series []Candle) bool {
	for i := 1; i < len(series); i++ {
		if series[i].Timestamp.Before(series[i-1].Timestamp) {
			return false
		}
	}
	return true
}

// Span returns the first and last timestamps of the series.
func Span(series []Candle) (time.Time, time.Time) {
	if len(series) == 0 {
		return time.Time{}, time.Time{}
	}
	return series[0].Timestamp, series[len(series)-1].Timestamp
}
