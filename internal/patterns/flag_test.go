package patterns

import (
	"testing"
	"time"

	"pattern-engine/internal/candles"
)

func candleAt(i int, open, close, high, low float64, volume int64) candles.Candle {
	return candles.Candle{
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour),
		Open:      open,
		Close:     close,
		High:      high,
		Low:       low,
		Volume:    volume,
	}
}

// buildFlagSeries creates a 25-candle directional pole followed by a
// 10-candle tight consolidation on declining volume.
func buildFlagSeries(up bool) []candles.Candle {
	series := make([]candles.Candle, 0, 35)

	for i := 0; i < 25; i++ {
		if up {
			open := 100.0 + float64(i)
			series = append(series, candleAt(i, open, open+1, open+2.5, open-1.5, 1000))
		} else {
			open := 150.0 - float64(i)
			series = append(series, candleAt(i, open, open-1, open+1.5, open-2.5, 1000))
		}
	}

	base := series[24].Close
	for i := 25; i < 35; i++ {
		// Sideways, intrabar range well under the volatility threshold.
		offset := 0.1 * float64(i%2)
		series = append(series, candleAt(i, base+offset, base-offset+0.2, base+0.3, base-0.2, 400))
	}

	return series
}

func TestFlagDetectorBullishPoleEmitsBearishFlag(t *testing.T) {
	detector := NewFlagDetector()
	series := buildFlagSeries(true)

	signals := detector.Detect(series, "strat-1", "BTCUSDT", "1h", DefaultConfig())

	if len(signals) != 1 {
		t.Fatalf("expected exactly 1 signal, got %d", len(signals))
	}

	sig := signals[0]
	if sig.PatternType != ReversalFlagBearish {
		t.Errorf("upward pole should emit %s, got %s", ReversalFlagBearish, sig.PatternType)
	}
	if sig.Confidence < 0 || sig.Confidence > 100 {
		t.Errorf("confidence out of range: %f", sig.Confidence)
	}
	if !sig.IsActive {
		t.Error("new signal should be active")
	}

	first, last := candles.Span(series)
	if sig.DetectedAt.Before(first) || sig.DetectedAt.After(last) {
		t.Errorf("detectedAt %v outside candle span [%v, %v]", sig.DetectedAt, first, last)
	}

	ev := sig.Metadata.Flag
	if ev == nil {
		t.Fatal("flag evidence missing from metadata")
	}
	if ev.PoleSize < 5.0 {
		t.Errorf("pole size %f should exceed minPoleSize", ev.PoleSize)
	}
	if ev.VolumeDeclineRatio >= 1 {
		t.Errorf("volume decline ratio %f should be below 1", ev.VolumeDeclineRatio)
	}
	if ev.ConsolidationDuration != 10 {
		t.Errorf("expected 10-candle consolidation, got %d", ev.ConsolidationDuration)
	}
}

func TestFlagDetectorBearishPoleEmitsBullishFlag(t *testing.T) {
	detector := NewFlagDetector()
	series := buildFlagSeries(false)

	signals := detector.Detect(series, "strat-1", "BTCUSDT", "1h", DefaultConfig())

	if len(signals) != 1 {
		t.Fatalf("expected exactly 1 signal, got %d", len(signals))
	}
	if signals[0].PatternType != ReversalFlagBullish {
		t.Errorf("downward pole should emit %s, got %s", ReversalFlagBullish, signals[0].PatternType)
	}
}

func TestFlagDetectorShortSeriesReturnsEmpty(t *testing.T) {
	detector := NewFlagDetector()
	series := buildFlagSeries(true)[:20]

	if signals := detector.Detect(series, "strat-1", "BTCUSDT", "1h", DefaultConfig()); len(signals) != 0 {
		t.Errorf("series below minCandles should yield no signals, got %d", len(signals))
	}
}

func TestFlagDetectorRejectsRisingVolume(t *testing.T) {
	detector := NewFlagDetector()
	series := buildFlagSeries(true)

	// Volume climbing through the consolidation invalidates the flag.
	for i := 25; i < 35; i++ {
		series[i].Volume = 2000
	}

	if signals := detector.Detect(series, "strat-1", "BTCUSDT", "1h", DefaultConfig()); len(signals) != 0 {
		t.Errorf("consolidation on rising volume should not emit, got %d signals", len(signals))
	}
}

func TestFlagDetectorRejectsDeepPullback(t *testing.T) {
	detector := NewFlagDetector()
	series := buildFlagSeries(true)

	// Carve a pullback deeper than maxPullbackRatio into the pole.
	series[12].Low = series[12].Low - 15
	series[12].Close = series[12].Open - 10

	if signals := detector.Detect(series, "strat-1", "BTCUSDT", "1h", DefaultConfig()); len(signals) != 0 {
		t.Errorf("pole with deep pullback should not emit, got %d signals", len(signals))
	}
}

func TestFlagDetectorRejectsVolatileConsolidation(t *testing.T) {
	detector := NewFlagDetector()
	series := buildFlagSeries(true)

	for i := 25; i < 35; i++ {
		series[i].High = series[i].Open + 3
		series[i].Low = series[i].Open - 3
	}

	if signals := detector.Detect(series, "strat-1", "BTCUSDT", "1h", DefaultConfig()); len(signals) != 0 {
		t.Errorf("volatile consolidation should not emit, got %d signals", len(signals))
	}
}
