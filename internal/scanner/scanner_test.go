package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pattern-engine/internal/candles"
	"pattern-engine/internal/patterns"
	"pattern-engine/internal/signals"
	"pattern-engine/internal/strategies"
)

// perSymbolSupplier serves a different fixed series per symbol.
type perSymbolSupplier struct {
	bySymbol map[string][]candles.Candle
}

func (f *perSymbolSupplier) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]candles.Candle, error) {
	return f.bySymbol[symbol], nil
}

func (f *perSymbolSupplier) GetCandlesInRange(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]candles.Candle, error) {
	return f.bySymbol[symbol], nil
}

func flagSeries(symbol string) []candles.Candle {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	series := make([]candles.Candle, 0, 35)

	for i := 0; i < 25; i++ {
		open := 100.0 + float64(i)
		series = append(series, candles.Candle{
			Symbol: symbol, Timeframe: "1h",
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      open, Close: open + 1, High: open + 2.5, Low: open - 1.5,
			Volume: 1000,
		})
	}
	base := series[24].Close
	for i := 25; i < 35; i++ {
		series = append(series, candles.Candle{
			Symbol: symbol, Timeframe: "1h",
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      base, Close: base + 0.2, High: base + 0.3, Low: base - 0.2,
			Volume: 400,
		})
	}
	return series
}

func TestScannerScan(t *testing.T) {
	store := signals.NewMemoryStore()
	registry := strategies.NewRegistry()
	strat := registry.Register("user-1", "scanner strategy")

	supplier := &perSymbolSupplier{bySymbol: map[string][]candles.Candle{
		"BTCUSDT": flagSeries("BTCUSDT"),
		"ETHUSDT": flagSeries("ETHUSDT")[:10], // too short, must be skipped
	}}
	svc := signals.NewService(store, supplier, patterns.NewRegistry(), registry, nil, zerolog.Nop())

	sc := NewScanner(svc, nil, Config{
		Enabled:     true,
		WorkerCount: 2,
		CandleLimit: 50,
		StrategyIDs: []string{strat.ID},
		Symbols:     []string{"BTCUSDT", "ETHUSDT"},
		Timeframes:  []string{"1h"},
	}, zerolog.Nop())

	result := sc.Scan()
	if result.TargetsScanned != 2 {
		t.Fatalf("TargetsScanned = %d, want 2", result.TargetsScanned)
	}
	if result.SignalsFound == 0 {
		t.Fatal("expected the flag series to produce at least one signal")
	}
	if len(result.Results) != 2 {
		t.Fatalf("len(Results) = %d, want 2", len(result.Results))
	}

	var skipped, detected int
	for _, tr := range result.Results {
		switch {
		case tr.Skipped:
			skipped++
			if tr.Target.Symbol != "ETHUSDT" {
				t.Errorf("skipped target = %s, want ETHUSDT", tr.Target.Symbol)
			}
		case len(tr.Signals) > 0:
			detected++
		}
	}
	if skipped != 1 || detected != 1 {
		t.Errorf("skipped/detected = %d/%d, want 1/1", skipped, detected)
	}

	// Detected signals must be persisted under the scanned strategy.
	stored, err := store.ListByStrategy(context.Background(), strat.ID, nil)
	if err != nil {
		t.Fatalf("ListByStrategy: %v", err)
	}
	if len(stored) != result.SignalsFound {
		t.Errorf("stored %d signals, scan reported %d", len(stored), result.SignalsFound)
	}

	if sc.LastResult() == nil || sc.LastResult().ScanID != result.ScanID {
		t.Error("last result snapshot not updated")
	}
}

func TestScannerTargetExpansion(t *testing.T) {
	sc := NewScanner(nil, nil, Config{
		StrategyIDs: []string{"s1", "s2"},
		Symbols:     []string{"BTCUSDT"},
		Timeframes:  []string{"1h", "4h"},
	}, zerolog.Nop())

	targets := sc.targets()
	if len(targets) != 4 {
		t.Fatalf("len(targets) = %d, want 4", len(targets))
	}
}

func TestScannerDisabledStartReturns(t *testing.T) {
	sc := NewScanner(nil, nil, Config{Enabled: false}, zerolog.Nop())
	sc.Start() // must not spawn the loop
	sc.Stop()  // and stop must not block or panic

	if sc.LastResult() != nil {
		t.Error("disabled scanner should never produce a result")
	}
}
