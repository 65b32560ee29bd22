package analytics

import (
	"context"
	"fmt"

	"pattern-engine/internal/patterns"
)

// DashboardStats is the cross-pattern aggregate served to the dashboard
// view, optionally scoped to one strategy.
type DashboardStats struct {
	StrategyID          string                       `json:"strategyId,omitempty"`
	TotalSignals        int                          `json:"totalSignals"`
	ActiveSignals       int                          `json:"activeSignals"`
	TotalOutcomes       int                          `json:"totalOutcomes"`
	SuccessRate         float64                      `json:"successRate"` // percent
	TotalProfitLoss     float64                      `json:"totalProfitLoss"`
	PatternDistribution map[patterns.PatternType]int `json:"patternDistribution"`
	ConfiguredPatterns  int                          `json:"configuredPatterns"`
}

// Dashboard aggregates counts, success rate and P&L across every pattern
// type. An empty strategyID spans all strategies.
func (a *Analyzer) Dashboard(ctx context.Context, strategyID string) (*DashboardStats, error) {
	stats := &DashboardStats{
		StrategyID:          strategyID,
		PatternDistribution: make(map[patterns.PatternType]int),
	}

	var ids []string
	for _, pt := range patterns.AllPatternTypes() {
		sigs, err := a.store.ListByPatternType(ctx, pt, strategyID)
		if err != nil {
			return nil, fmt.Errorf("list %s signals: %w", pt, err)
		}
		stats.PatternDistribution[pt] = len(sigs)
		stats.TotalSignals += len(sigs)
		for _, sig := range sigs {
			if sig.IsActive {
				stats.ActiveSignals++
			}
			ids = append(ids, sig.ID)
		}
	}

	outcomes, err := a.store.ListOutcomesBySignals(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	stats.TotalOutcomes = len(outcomes)

	successful := 0
	for _, o := range outcomes {
		if o.Outcome == patterns.OutcomeSuccess {
			successful++
		}
		stats.TotalProfitLoss += o.ProfitLoss
	}
	if len(outcomes) > 0 {
		stats.SuccessRate = float64(successful) / float64(len(outcomes)) * 100
	}

	configs, err := a.store.ListConfigs(ctx, strategyID)
	if err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}
	stats.ConfiguredPatterns = len(configs)

	return stats, nil
}
