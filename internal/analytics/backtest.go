package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"pattern-engine/internal/patterns"
	"pattern-engine/internal/signals"
)

// BacktestRequest selects the historical window to replay. PatternTypes and
// Symbols narrow the selection when non-empty.
type BacktestRequest struct {
	StrategyID   string                   `json:"strategyId"`
	Symbols      []string                 `json:"symbols,omitempty"`
	StartDate    time.Time                `json:"startDate"`
	EndDate      time.Time                `json:"endDate"`
	PatternTypes []patterns.PatternType   `json:"patternTypes,omitempty"`
	Config       *patterns.DetectorConfig `json:"config,omitempty"`
}

// BacktestTrade is one signal/outcome pair flattened for reporting. Hold
// time stays in minutes here, unlike the performance metrics.
type BacktestTrade struct {
	SignalID    string               `json:"signalId"`
	Symbol      string               `json:"symbol"`
	PatternType patterns.PatternType `json:"patternType"`
	DetectedAt  time.Time            `json:"detectedAt"`
	Outcome     string               `json:"outcome"`
	ProfitLoss  float64              `json:"pnl"`
	HoldTime    int                  `json:"holdTime"` // minutes
}

// BacktestResult summarizes a replay of recorded outcomes over the window.
type BacktestResult struct {
	StrategyID        string          `json:"strategyId"`
	StartDate         time.Time       `json:"startDate"`
	EndDate           time.Time       `json:"endDate"`
	TotalSignals      int             `json:"totalSignals"`
	ProfitableSignals int             `json:"profitableSignals"`
	WinRate           float64         `json:"winRate"` // percent
	TotalPnL          float64         `json:"totalPnL"`
	AverageHoldTime   float64         `json:"averageHoldTime"` // minutes
	MaxDrawdown       float64         `json:"maxDrawdown"`     // percent of peak cumulative P&L
	SharpeRatio       float64         `json:"sharpeRatio"`
	Signals           []BacktestTrade `json:"signals"`
}

// BacktestEngine replays stored signals and their recorded outcomes. It
// never re-runs detection; the history is the single source of truth.
type BacktestEngine struct {
	store  signals.Store
	logger zerolog.Logger
}

// NewBacktestEngine wires the backtest engine over the signal store.
func NewBacktestEngine(store signals.Store, logger zerolog.Logger) *BacktestEngine {
	return &BacktestEngine{
		store:  store,
		logger: logger.With().Str("component", "BacktestEngine").Logger(),
	}
}

// Run replays the strategy's signals detected inside the window and folds
// their outcomes, in record order, into aggregate statistics.
func (e *BacktestEngine) Run(ctx context.Context, req BacktestRequest) (*BacktestResult, error) {
	if !req.EndDate.After(req.StartDate) {
		return nil, signals.ErrInvalidRange
	}

	sigs, err := e.store.ListInRange(ctx, signals.RangeQuery{
		StrategyID:   req.StrategyID,
		Symbols:      req.Symbols,
		PatternTypes: req.PatternTypes,
		Start:        req.StartDate,
		End:          req.EndDate,
	})
	if err != nil {
		return nil, fmt.Errorf("list signals in range: %w", err)
	}

	res := &BacktestResult{
		StrategyID:   req.StrategyID,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		TotalSignals: len(sigs),
		Signals:      []BacktestTrade{},
	}

	ids := make([]string, len(sigs))
	sigByID := make(map[string]*patterns.PatternSignal, len(sigs))
	for i, sig := range sigs {
		ids[i] = sig.ID
		sigByID[sig.ID] = sig
	}

	// Record order, so the equity curve folds the way results arrived.
	outcomes, err := e.store.ListOutcomesBySignals(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}

	var holdMinutes int
	pnls := make([]float64, 0, len(outcomes))
	for _, o := range outcomes {
		sig := sigByID[o.PatternSignalID]

		if o.Outcome == patterns.OutcomeSuccess {
			res.ProfitableSignals++
		}
		res.TotalPnL += o.ProfitLoss
		holdMinutes += o.HoldTimeMinutes
		pnls = append(pnls, o.ProfitLoss)

		res.Signals = append(res.Signals, BacktestTrade{
			SignalID:    sig.ID,
			Symbol:      sig.Symbol,
			PatternType: sig.PatternType,
			DetectedAt:  sig.DetectedAt,
			Outcome:     string(o.Outcome),
			ProfitLoss:  o.ProfitLoss,
			HoldTime:    o.HoldTimeMinutes,
		})
	}

	if n := len(outcomes); n > 0 {
		res.WinRate = float64(res.ProfitableSignals) / float64(n) * 100
		res.AverageHoldTime = float64(holdMinutes) / float64(n)
	}
	res.MaxDrawdown = maxDrawdown(pnls)
	res.SharpeRatio = sharpeRatio(pnls)

	e.logger.Info().
		Str("strategy_id", req.StrategyID).
		Int("signals", res.TotalSignals).
		Int("outcomes", len(outcomes)).
		Float64("total_pnl", res.TotalPnL).
		Msg("backtest complete")

	return res, nil
}

// maxDrawdown walks the cumulative P&L curve and returns the largest
// peak-to-trough decline as a percentage of the peak. A non-positive peak
// contributes nothing, so the result is always in [0, 100+].
func maxDrawdown(pnls []float64) float64 {
	var cumulative, peak, maxDD float64
	for _, pnl := range pnls {
		cumulative += pnl
		if cumulative > peak {
			peak = cumulative
		}
		if peak > 0 {
			if dd := (peak - cumulative) / peak * 100; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// sharpeRatio is mean P&L over its sample standard deviation. Fewer than
// two outcomes, or zero variance, yields 0 rather than NaN or Inf.
func sharpeRatio(pnls []float64) float64 {
	if len(pnls) < 2 {
		return 0
	}

	var sum float64
	for _, pnl := range pnls {
		sum += pnl
	}
	mean := sum / float64(len(pnls))

	var sq float64
	for _, pnl := range pnls {
		d := pnl - mean
		sq += d * d
	}
	variance := sq / float64(len(pnls)-1)
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance)
}
