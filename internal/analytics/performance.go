// Package analytics computes pattern performance metrics, dashboard
// aggregates and historical backtests from stored signals and outcomes.
package analytics

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"pattern-engine/internal/cache"
	"pattern-engine/internal/patterns"
	"pattern-engine/internal/signals"
)

// PatternPerformanceMetrics aggregates realized outcomes for one pattern
// type. Hold time is reported in hours; every ratio is zero-safe.
type PatternPerformanceMetrics struct {
	PatternType           patterns.PatternType `json:"patternType"`
	StrategyID            string               `json:"strategyId,omitempty"`
	TotalSignals          int                  `json:"totalSignals"`
	SuccessfulSignals     int                  `json:"successfulSignals"`
	SuccessRate           float64              `json:"successRate"`     // percent
	AverageHoldTime       float64              `json:"averageHoldTime"` // hours
	TotalProfitLoss       float64              `json:"totalProfitLoss"`
	AverageProfitLoss     float64              `json:"averageProfitLoss"`
	BestPerformingSymbol  string               `json:"bestPerformingSymbol,omitempty"`
	WorstPerformingSymbol string               `json:"worstPerformingSymbol,omitempty"`
}

// Analyzer computes performance metrics over the signal store, memoizing
// results per (patternType, strategy) for the cache TTL.
type Analyzer struct {
	store  signals.Store
	cache  cache.Cache[PatternPerformanceMetrics]
	logger zerolog.Logger
}

// NewAnalyzer wires the performance analyzer. c must not be nil.
func NewAnalyzer(store signals.Store, c cache.Cache[PatternPerformanceMetrics], logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		store:  store,
		cache:  c,
		logger: logger.With().Str("component", "PerformanceAnalyzer").Logger(),
	}
}

// metricsKey scopes cached metrics; an empty strategyID means all strategies.
func metricsKey(pt patterns.PatternType, strategyID string) string {
	scope := strategyID
	if scope == "" {
		scope = "all"
	}
	return fmt.Sprintf("performance:%s:%s", pt, scope)
}

// Performance returns aggregated metrics for one pattern type, optionally
// scoped to a strategy. Results are served from cache within the TTL.
func (a *Analyzer) Performance(ctx context.Context, pt patterns.PatternType, strategyID string) (PatternPerformanceMetrics, error) {
	if !pt.Valid() {
		return PatternPerformanceMetrics{}, &patterns.InvalidPatternTypeError{Value: string(pt)}
	}

	key := metricsKey(pt, strategyID)
	if m, ok := a.cache.Get(key); ok {
		return m, nil
	}

	m, err := a.compute(ctx, pt, strategyID)
	if err != nil {
		return PatternPerformanceMetrics{}, err
	}
	a.cache.Set(key, m, cache.DefaultTTL)
	return m, nil
}

func (a *Analyzer) compute(ctx context.Context, pt patterns.PatternType, strategyID string) (PatternPerformanceMetrics, error) {
	sigs, err := a.store.ListByPatternType(ctx, pt, strategyID)
	if err != nil {
		return PatternPerformanceMetrics{}, fmt.Errorf("list signals: %w", err)
	}

	m := PatternPerformanceMetrics{
		PatternType:  pt,
		StrategyID:   strategyID,
		TotalSignals: len(sigs),
	}

	ids := make([]string, len(sigs))
	symbolByID := make(map[string]string, len(sigs))
	for i, sig := range sigs {
		ids[i] = sig.ID
		symbolByID[sig.ID] = sig.Symbol
	}

	outcomes, err := a.store.ListOutcomesBySignals(ctx, ids)
	if err != nil {
		return PatternPerformanceMetrics{}, fmt.Errorf("list outcomes: %w", err)
	}
	if len(outcomes) == 0 {
		return m, nil
	}

	var holdMinutes int
	symbolPnL := make(map[string]float64)
	for _, o := range outcomes {
		if o.Outcome == patterns.OutcomeSuccess {
			m.SuccessfulSignals++
		}
		m.TotalProfitLoss += o.ProfitLoss
		holdMinutes += o.HoldTimeMinutes
		symbolPnL[symbolByID[o.PatternSignalID]] += o.ProfitLoss
	}

	n := float64(len(outcomes))
	m.SuccessRate = float64(m.SuccessfulSignals) / n * 100
	m.AverageHoldTime = float64(holdMinutes) / n / 60
	m.AverageProfitLoss = m.TotalProfitLoss / n

	best, worst := "", ""
	bestPnL, worstPnL := math.Inf(-1), math.Inf(1)
	for sym, pnl := range symbolPnL {
		if pnl > bestPnL || (pnl == bestPnL && sym < best) {
			best, bestPnL = sym, pnl
		}
		if pnl < worstPnL || (pnl == worstPnL && sym < worst) {
			worst, worstPnL = sym, pnl
		}
	}
	m.BestPerformingSymbol = best
	m.WorstPerformingSymbol = worst

	a.logger.Debug().
		Str("pattern_type", string(pt)).
		Str("strategy_id", strategyID).
		Int("signals", m.TotalSignals).
		Int("outcomes", len(outcomes)).
		Msg("performance metrics computed")

	return m, nil
}

// Invalidate drops cached metrics for one pattern type in both the
// strategy-scoped and global slots.
func (a *Analyzer) Invalidate(pt patterns.PatternType, strategyID string) {
	a.cache.Delete(metricsKey(pt, strategyID))
	a.cache.Delete(metricsKey(pt, ""))
}
