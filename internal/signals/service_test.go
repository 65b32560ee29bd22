package signals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pattern-engine/internal/candles"
	"pattern-engine/internal/patterns"
	"pattern-engine/internal/strategies"
)

// fakeSupplier serves a fixed series regardless of symbol or timeframe.
type fakeSupplier struct {
	series []candles.Candle
	err    error
}

func (f *fakeSupplier) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]candles.Candle, error) {
	return f.series, f.err
}

func (f *fakeSupplier) GetCandlesInRange(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]candles.Candle, error) {
	return f.series, f.err
}

// flagSeries builds a 25-candle upward pole and a 10-candle tight
// consolidation on declining volume, enough for the flag detector to emit.
func flagSeries() []candles.Candle {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	series := make([]candles.Candle, 0, 35)

	for i := 0; i < 25; i++ {
		open := 100.0 + float64(i)
		series = append(series, candles.Candle{
			Symbol:    "BTCUSDT",
			Timeframe: "1h",
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      open,
			Close:     open + 1,
			High:      open + 2.5,
			Low:       open - 1.5,
			Volume:    1000,
		})
	}
	base := series[24].Close
	for i := 25; i < 35; i++ {
		series = append(series, candles.Candle{
			Symbol:    "BTCUSDT",
			Timeframe: "1h",
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      base,
			Close:     base + 0.2,
			High:      base + 0.3,
			Low:       base - 0.2,
			Volume:    400,
		})
	}
	return series
}

func newTestService(supplier candles.Supplier) (*Service, *MemoryStore, *strategies.Strategy) {
	store := NewMemoryStore()
	registry := strategies.NewRegistry()
	strat := registry.Register("user-1", "breakout hunter")
	svc := NewService(store, supplier, patterns.NewRegistry(), registry, nil, zerolog.Nop())
	return svc, store, strat
}

func TestServiceDetectPersistsSignals(t *testing.T) {
	svc, store, strat := newTestService(&fakeSupplier{series: flagSeries()})

	sigs, err := svc.Detect(context.Background(), "user-1", strat.ID, "BTCUSDT", "1h", 50)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(sigs) == 0 {
		t.Fatal("expected at least one signal from the flag series")
	}

	for _, sig := range sigs {
		stored, err := store.GetSignal(context.Background(), sig.ID)
		if err != nil {
			t.Fatalf("detected signal %s not persisted: %v", sig.ID, err)
		}
		if !stored.IsActive {
			t.Errorf("fresh signal %s should be active", sig.ID)
		}
		if stored.StrategyID != strat.ID {
			t.Errorf("signal strategy = %s, want %s", stored.StrategyID, strat.ID)
		}
	}
}

func TestServiceDetectInsufficientData(t *testing.T) {
	svc, _, strat := newTestService(&fakeSupplier{series: flagSeries()[:10]})

	_, err := svc.Detect(context.Background(), "user-1", strat.ID, "BTCUSDT", "1h", 50)
	var insufficient *InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientDataError", err)
	}
	if insufficient.Required != 25 {
		t.Errorf("Required = %d, want 25", insufficient.Required)
	}
	if insufficient.Available != 10 {
		t.Errorf("Available = %d, want 10", insufficient.Available)
	}
}

func TestServiceDetectOwnership(t *testing.T) {
	svc, _, strat := newTestService(&fakeSupplier{series: flagSeries()})

	if _, err := svc.Detect(context.Background(), "user-2", strat.ID, "BTCUSDT", "1h", 50); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("foreign user: err = %v, want ErrAccessDenied", err)
	}
	if _, err := svc.Detect(context.Background(), "user-1", "no-such-strategy", "BTCUSDT", "1h", 50); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown strategy: err = %v, want ErrNotFound", err)
	}

	// Empty user marks an internal caller and bypasses the ownership check.
	if _, err := svc.Detect(context.Background(), "", strat.ID, "BTCUSDT", "1h", 50); err != nil {
		t.Errorf("internal caller: err = %v, want nil", err)
	}
}

func TestServiceDetectUsesActiveConfig(t *testing.T) {
	svc, store, strat := newTestService(&fakeSupplier{series: flagSeries()[:30]})

	// Raise MinCandles for every pattern type; 30 candles no longer suffice.
	strict := patterns.DefaultConfig()
	strict.MinCandles = 40
	for _, pt := range patterns.AllPatternTypes() {
		err := store.CreateConfig(context.Background(), &patterns.PatternConfig{
			StrategyID:  strat.ID,
			PatternType: pt,
			Config:      strict,
			IsActive:    true,
		})
		if err != nil {
			t.Fatalf("CreateConfig: %v", err)
		}
	}

	_, err := svc.Detect(context.Background(), "user-1", strat.ID, "BTCUSDT", "1h", 50)
	var insufficient *InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientDataError", err)
	}
	if insufficient.Required != 40 {
		t.Errorf("Required = %d, want the configured 40", insufficient.Required)
	}
}

func TestServiceRecordOutcomeDeactivatesSignal(t *testing.T) {
	svc, store, strat := newTestService(&fakeSupplier{series: flagSeries()})

	sigs, err := svc.Detect(context.Background(), "user-1", strat.ID, "BTCUSDT", "1h", 50)
	if err != nil || len(sigs) == 0 {
		t.Fatalf("Detect: %v (%d signals)", err, len(sigs))
	}
	id := sigs[0].ID

	o, err := svc.RecordOutcome(context.Background(), "user-1", id, patterns.OutcomeSuccess, 42.5, 90, map[string]string{"exit": "target"})
	if err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if o.PatternSignalID != id || o.ProfitLoss != 42.5 || o.HoldTimeMinutes != 90 {
		t.Errorf("outcome fields wrong: %+v", o)
	}

	sig, err := store.GetSignal(context.Background(), id)
	if err != nil {
		t.Fatalf("GetSignal: %v", err)
	}
	if sig.IsActive {
		t.Error("recording an outcome must deactivate the signal")
	}

	listed, err := svc.OutcomesBySignal(context.Background(), "user-1", id)
	if err != nil {
		t.Fatalf("OutcomesBySignal: %v", err)
	}
	if len(listed) != 1 || listed[0].Metadata["exit"] != "target" {
		t.Errorf("listed outcomes wrong: %+v", listed)
	}

	// Other users cannot record against a foreign strategy's signal.
	if _, err := svc.RecordOutcome(context.Background(), "user-2", id, patterns.OutcomeFailure, -1, 10, nil); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("foreign record: err = %v, want ErrAccessDenied", err)
	}
}

func TestServiceRecordOutcomeValidation(t *testing.T) {
	svc, _, strat := newTestService(&fakeSupplier{series: flagSeries()})
	sigs, err := svc.Detect(context.Background(), "user-1", strat.ID, "BTCUSDT", "1h", 50)
	if err != nil || len(sigs) == 0 {
		t.Fatalf("Detect: %v", err)
	}

	var verr *ValidationError
	if _, err := svc.RecordOutcome(context.Background(), "user-1", sigs[0].ID, "breakeven", 0, 10, nil); !errors.As(err, &verr) {
		t.Errorf("bad outcome value: err = %v, want ValidationError", err)
	}
	if _, err := svc.RecordOutcome(context.Background(), "user-1", sigs[0].ID, patterns.OutcomeSuccess, 0, -5, nil); !errors.As(err, &verr) {
		t.Errorf("negative hold time: err = %v, want ValidationError", err)
	}
	if _, err := svc.RecordOutcome(context.Background(), "user-1", "missing", patterns.OutcomeSuccess, 0, 5, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown signal: err = %v, want ErrNotFound", err)
	}
}

func TestServiceBulkUpdatePartialSuccess(t *testing.T) {
	svc, store, strat := newTestService(&fakeSupplier{series: flagSeries()})

	a := &patterns.PatternSignal{
		StrategyID: strat.ID, Symbol: "AAPL", Timeframe: "1h",
		PatternType: patterns.HeadAndShoulders, Confidence: 70,
		DetectedAt: time.Now().UTC(),
	}
	b := &patterns.PatternSignal{
		StrategyID: strat.ID, Symbol: "MSFT", Timeframe: "1h",
		PatternType: patterns.ReversalFlagBullish, Confidence: 70,
		DetectedAt: time.Now().UTC(),
	}
	for _, sig := range []*patterns.PatternSignal{a, b} {
		if err := store.CreateSignal(context.Background(), sig); err != nil {
			t.Fatalf("CreateSignal: %v", err)
		}
	}

	inactive := false
	res, err := svc.BulkUpdateSignals(context.Background(), "user-1", []string{a.ID, "missing", b.ID}, SignalUpdate{IsActive: &inactive})
	if err != nil {
		t.Fatalf("BulkUpdateSignals: %v", err)
	}

	if res.Processed != 3 || res.Successful != 2 || res.Failed != 1 {
		t.Fatalf("counts = %d/%d/%d, want 3/2/1", res.Processed, res.Successful, res.Failed)
	}
	if len(res.Items) != 3 {
		t.Fatalf("len(Items) = %d, want 3", len(res.Items))
	}
	if !res.Items[0].Success || res.Items[1].Success || !res.Items[2].Success {
		t.Errorf("per-id results wrong: %+v", res.Items)
	}
	if res.Items[1].Error == "" {
		t.Error("failed item should carry an error message")
	}

	for _, id := range []string{a.ID, b.ID} {
		sig, err := store.GetSignal(context.Background(), id)
		if err != nil {
			t.Fatalf("GetSignal: %v", err)
		}
		if sig.IsActive {
			t.Errorf("signal %s still active after bulk deactivation", id)
		}
	}
}

func TestServiceConfigOwnership(t *testing.T) {
	svc, _, strat := newTestService(&fakeSupplier{series: flagSeries()})
	ctx := context.Background()

	cfg, err := svc.CreateConfig(ctx, "user-1", strat.ID, patterns.HeadAndShoulders, patterns.DefaultConfig(), true)
	if err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}

	if _, err := svc.CreateConfig(ctx, "user-2", strat.ID, patterns.HeadAndShoulders, patterns.DefaultConfig(), true); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("foreign create: err = %v, want ErrAccessDenied", err)
	}
	if _, err := svc.ListConfigs(ctx, "user-2", strat.ID); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("foreign list: err = %v, want ErrAccessDenied", err)
	}
	if _, err := svc.UpdateConfig(ctx, "user-2", cfg.ID, ConfigUpdate{}); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("foreign update: err = %v, want ErrAccessDenied", err)
	}
	if err := svc.DeleteConfig(ctx, "user-2", cfg.ID); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("foreign delete: err = %v, want ErrAccessDenied", err)
	}

	if err := svc.DeleteConfig(ctx, "user-1", cfg.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
}
