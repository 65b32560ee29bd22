package signals

import (
	"context"
	"errors"
	"testing"
	"time"

	"pattern-engine/internal/patterns"
)

var t0 = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func storeSignal(t *testing.T, store *MemoryStore, strategyID, symbol string, pt patterns.PatternType, detectedAt time.Time) *patterns.PatternSignal {
	t.Helper()
	sig := &patterns.PatternSignal{
		StrategyID:  strategyID,
		Symbol:      symbol,
		Timeframe:   "1h",
		PatternType: pt,
		Confidence:  80,
		PriceLevel:  100,
		DetectedAt:  detectedAt,
	}
	if err := store.CreateSignal(context.Background(), sig); err != nil {
		t.Fatalf("CreateSignal: %v", err)
	}
	return sig
}

func TestMemoryStoreSignalValidation(t *testing.T) {
	store := NewMemoryStore()

	var verr *ValidationError
	err := store.CreateSignal(context.Background(), &patterns.PatternSignal{
		PatternType: patterns.HeadAndShoulders,
		Confidence:  50,
	})
	if !errors.As(err, &verr) || verr.Field != "symbol" {
		t.Errorf("empty symbol: err = %v, want symbol ValidationError", err)
	}

	var invalid *patterns.InvalidPatternTypeError
	err = store.CreateSignal(context.Background(), &patterns.PatternSignal{
		Symbol:      "AAPL",
		PatternType: "triangle",
	})
	if !errors.As(err, &invalid) {
		t.Errorf("bad pattern type: err = %v, want InvalidPatternTypeError", err)
	}

	err = store.CreateSignal(context.Background(), &patterns.PatternSignal{
		Symbol:      "AAPL",
		PatternType: patterns.HeadAndShoulders,
		Confidence:  130,
	})
	if !errors.As(err, &verr) || verr.Field != "confidence" {
		t.Errorf("confidence 130: err = %v, want confidence ValidationError", err)
	}
}

func TestMemoryStoreListOrdering(t *testing.T) {
	store := NewMemoryStore()

	// Insert out of chronological order; listings must still sort.
	storeSignal(t, store, "strat-1", "AAPL", patterns.HeadAndShoulders, t0.Add(2*time.Hour))
	storeSignal(t, store, "strat-1", "MSFT", patterns.ReversalFlagBullish, t0)
	storeSignal(t, store, "strat-1", "AAPL", patterns.ReversalFlagBearish, t0.Add(time.Hour))

	got, err := store.ListByStrategy(context.Background(), "strat-1", nil)
	if err != nil {
		t.Fatalf("ListByStrategy: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].DetectedAt.After(got[i-1].DetectedAt) {
			t.Errorf("listing not newest-first at %d: %v before %v", i, got[i-1].DetectedAt, got[i].DetectedAt)
		}
	}

	asc, err := store.ListInRange(context.Background(), RangeQuery{
		Start: t0.Add(-time.Hour),
		End:   t0.Add(3 * time.Hour),
	})
	if err != nil {
		t.Fatalf("ListInRange: %v", err)
	}
	if len(asc) != 3 {
		t.Fatalf("range len = %d, want 3", len(asc))
	}
	for i := 1; i < len(asc); i++ {
		if asc[i].DetectedAt.Before(asc[i-1].DetectedAt) {
			t.Errorf("range not ascending at %d", i)
		}
	}
}

func TestMemoryStoreListInRangeFilters(t *testing.T) {
	store := NewMemoryStore()
	storeSignal(t, store, "strat-1", "AAPL", patterns.HeadAndShoulders, t0)
	storeSignal(t, store, "strat-1", "MSFT", patterns.HeadAndShoulders, t0.Add(time.Hour))
	storeSignal(t, store, "strat-2", "AAPL", patterns.ReversalFlagBullish, t0.Add(time.Hour))
	storeSignal(t, store, "strat-1", "AAPL", patterns.HeadAndShoulders, t0.Add(72*time.Hour))

	got, err := store.ListInRange(context.Background(), RangeQuery{
		StrategyID:   "strat-1",
		Symbols:      []string{"AAPL"},
		PatternTypes: []patterns.PatternType{patterns.HeadAndShoulders},
		Start:        t0.Add(-time.Hour),
		End:          t0.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("ListInRange: %v", err)
	}
	if len(got) != 1 || got[0].Symbol != "AAPL" {
		t.Fatalf("got %d signals, want exactly the in-window AAPL one", len(got))
	}

	if _, err := store.ListInRange(context.Background(), RangeQuery{Start: t0, End: t0}); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("empty window: err = %v, want ErrInvalidRange", err)
	}
}

func TestMemoryStoreActiveFiltering(t *testing.T) {
	store := NewMemoryStore()
	a := storeSignal(t, store, "strat-1", "AAPL", patterns.HeadAndShoulders, t0)
	storeSignal(t, store, "strat-1", "AAPL", patterns.ReversalFlagBullish, t0.Add(time.Hour))

	inactive := false
	if _, err := store.UpdateSignal(context.Background(), a.ID, SignalUpdate{IsActive: &inactive}); err != nil {
		t.Fatalf("UpdateSignal: %v", err)
	}

	active := true
	got, err := store.ListByStrategy(context.Background(), "strat-1", &active)
	if err != nil {
		t.Fatalf("ListByStrategy: %v", err)
	}
	if len(got) != 1 || got[0].PatternType != patterns.ReversalFlagBullish {
		t.Errorf("active filter returned %d signals", len(got))
	}

	// Symbol listings only ever return active signals.
	bySymbol, err := store.ListBySymbol(context.Background(), "AAPL", "")
	if err != nil {
		t.Fatalf("ListBySymbol: %v", err)
	}
	if len(bySymbol) != 1 {
		t.Errorf("ListBySymbol returned %d, want 1", len(bySymbol))
	}

	none, err := store.ListBySymbol(context.Background(), "AAPL", patterns.HeadAndShoulders)
	if err != nil {
		t.Fatalf("ListBySymbol: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("inactive h&s should be excluded, got %d", len(none))
	}
}

func TestMemoryStoreUpdateMergesMetadata(t *testing.T) {
	store := NewMemoryStore()
	sig := storeSignal(t, store, "strat-1", "AAPL", patterns.HeadAndShoulders, t0)

	upd, err := store.UpdateSignal(context.Background(), sig.ID, SignalUpdate{
		Metadata: &patterns.Metadata{Notes: map[string]string{"review": "manual"}},
	})
	if err != nil {
		t.Fatalf("UpdateSignal: %v", err)
	}
	if upd.Metadata.Notes["review"] != "manual" {
		t.Errorf("metadata not merged: %+v", upd.Metadata)
	}
	if !upd.IsActive {
		t.Error("metadata-only update must not deactivate the signal")
	}

	if _, err := store.UpdateSignal(context.Background(), "missing", SignalUpdate{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id: err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreCopyOnRead(t *testing.T) {
	store := NewMemoryStore()
	sig := storeSignal(t, store, "strat-1", "AAPL", patterns.HeadAndShoulders, t0)

	got, err := store.GetSignal(context.Background(), sig.ID)
	if err != nil {
		t.Fatalf("GetSignal: %v", err)
	}
	got.Symbol = "HACKED"
	got.IsActive = false

	again, err := store.GetSignal(context.Background(), sig.ID)
	if err != nil {
		t.Fatalf("GetSignal: %v", err)
	}
	if again.Symbol != "AAPL" || !again.IsActive {
		t.Errorf("stored signal mutated through a returned copy: %+v", again)
	}
}

func TestMemoryStoreActiveConfigIndex(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := &patterns.PatternConfig{
		StrategyID:  "strat-1",
		PatternType: patterns.HeadAndShoulders,
		Config:      patterns.DefaultConfig(),
		IsActive:    true,
	}
	if err := store.CreateConfig(ctx, first); err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}

	second := &patterns.PatternConfig{
		StrategyID:  "strat-1",
		PatternType: patterns.HeadAndShoulders,
		Config:      patterns.DefaultConfig(),
		IsActive:    true,
	}
	if err := store.CreateConfig(ctx, second); err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}

	active, err := store.ActiveConfig(ctx, "strat-1", patterns.HeadAndShoulders)
	if err != nil {
		t.Fatalf("ActiveConfig: %v", err)
	}
	if active.ID != second.ID {
		t.Errorf("active config = %s, want the newer %s", active.ID, second.ID)
	}

	prev, err := store.GetConfig(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if prev.IsActive {
		t.Error("previous active config should have been deactivated")
	}

	inactive := false
	if _, err := store.UpdateConfig(ctx, second.ID, ConfigUpdate{IsActive: &inactive}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if _, err := store.ActiveConfig(ctx, "strat-1", patterns.HeadAndShoulders); !errors.Is(err, ErrNotFound) {
		t.Errorf("after deactivation: err = %v, want ErrNotFound", err)
	}

	if err := store.DeleteConfig(ctx, first.ID); err != nil {
		t.Fatalf("DeleteConfig: %v", err)
	}
	if _, err := store.GetConfig(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted config still readable: %v", err)
	}
}

func TestMemoryStoreConfigValidation(t *testing.T) {
	store := NewMemoryStore()

	bad := patterns.DefaultConfig()
	bad.MinCandles = 0
	err := store.CreateConfig(context.Background(), &patterns.PatternConfig{
		StrategyID:  "strat-1",
		PatternType: patterns.HeadAndShoulders,
		Config:      bad,
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("zero minCandles: err = %v, want ValidationError", err)
	}
}

func TestMemoryStoreOutcomeRecordOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	a := storeSignal(t, store, "strat-1", "AAPL", patterns.HeadAndShoulders, t0)
	b := storeSignal(t, store, "strat-1", "MSFT", patterns.ReversalFlagBullish, t0.Add(time.Hour))

	pnls := []float64{1, 2, 3, 4}
	owners := []string{a.ID, b.ID, a.ID, b.ID}
	for i := range pnls {
		err := store.CreateOutcome(ctx, &patterns.PatternOutcome{
			PatternSignalID: owners[i],
			Outcome:         patterns.OutcomeSuccess,
			ProfitLoss:      pnls[i],
			HoldTimeMinutes: 60,
		})
		if err != nil {
			t.Fatalf("CreateOutcome %d: %v", i, err)
		}
	}

	all, err := store.ListOutcomesBySignals(ctx, []string{a.ID, b.ID})
	if err != nil {
		t.Fatalf("ListOutcomesBySignals: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("len = %d, want 4", len(all))
	}
	for i, o := range all {
		if o.ProfitLoss != pnls[i] {
			t.Errorf("outcome %d out of record order: pnl %f", i, o.ProfitLoss)
		}
	}

	onlyA, err := store.ListOutcomesBySignal(ctx, a.ID)
	if err != nil {
		t.Fatalf("ListOutcomesBySignal: %v", err)
	}
	if len(onlyA) != 2 || onlyA[0].ProfitLoss != 1 || onlyA[1].ProfitLoss != 3 {
		t.Errorf("per-signal outcomes wrong: %+v", onlyA)
	}

	err = store.CreateOutcome(ctx, &patterns.PatternOutcome{
		PatternSignalID: "missing",
		Outcome:         patterns.OutcomeSuccess,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("outcome for unknown signal: err = %v, want ErrNotFound", err)
	}
}
