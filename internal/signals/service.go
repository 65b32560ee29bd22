package signals

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"pattern-engine/internal/candles"
	"pattern-engine/internal/events"
	"pattern-engine/internal/patterns"
)

// StrategyResolver resolves a strategy's owning user. The second return is
// false when the strategy id is unknown.
type StrategyResolver interface {
	Owner(strategyID string) (string, bool)
}

// Service is the application boundary around detection, signal lifecycle,
// configs and outcomes. Every strategy-scoped operation verifies ownership
// before touching the store.
type Service struct {
	store      Store
	supplier   candles.Supplier
	detectors  *patterns.Registry
	strategies StrategyResolver
	recorder   *Recorder
	bus        *events.EventBus
	logger     zerolog.Logger
}

// NewService wires the detection service. bus may be nil.
func NewService(store Store, supplier candles.Supplier, detectors *patterns.Registry, strategies StrategyResolver, bus *events.EventBus, logger zerolog.Logger) *Service {
	return &Service{
		store:      store,
		supplier:   supplier,
		detectors:  detectors,
		strategies: strategies,
		recorder:   NewRecorder(store, bus, logger),
		bus:        bus,
		logger:     logger.With().Str("component", "SignalService").Logger(),
	}
}

// authorize checks that userID owns the strategy. An empty userID marks an
// internal caller (the scanner) and skips the check.
func (s *Service) authorize(strategyID, userID string) error {
	owner, ok := s.strategies.Owner(strategyID)
	if !ok {
		return fmt.Errorf("strategy %s: %w", strategyID, ErrNotFound)
	}
	if userID != "" && owner != userID {
		return ErrAccessDenied
	}
	return nil
}

// Detect fetches candles and runs every pattern family over them using the
// strategy's active configs (falling back to defaults), persisting and
// publishing each emitted signal. Too few candles yields
// InsufficientDataError carrying the required and available counts.
func (s *Service) Detect(ctx context.Context, userID, strategyID, symbol, timeframe string, limit int) ([]*patterns.PatternSignal, error) {
	if err := s.authorize(strategyID, userID); err != nil {
		return nil, err
	}

	groups, required := s.resolveConfigs(ctx, strategyID)

	series, err := s.supplier.GetCandles(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch candles %s %s: %w", symbol, timeframe, err)
	}
	if len(series) < required {
		return nil, &InsufficientDataError{Required: required, Available: len(series)}
	}

	var created []*patterns.PatternSignal
	for cfg, types := range groups {
		for _, sig := range s.detectors.Detect(series, strategyID, symbol, timeframe, cfg, types...) {
			stored := sig
			if err := s.store.CreateSignal(ctx, &stored); err != nil {
				s.logger.Error().Err(err).
					Str("symbol", symbol).
					Str("timeframe", timeframe).
					Str("pattern_type", string(sig.PatternType)).
					Msg("failed to persist detected signal")
				continue
			}
			created = append(created, &stored)
			if s.bus != nil {
				s.bus.PublishSignalDetected(stored.ID, strategyID, symbol, timeframe, string(stored.PatternType), stored.Confidence, stored.PriceLevel)
			}
		}
	}

	s.logger.Info().
		Str("strategy_id", strategyID).
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Int("candles", len(series)).
		Int("signals", len(created)).
		Msg("detection run complete")

	return created, nil
}

// resolveConfigs maps each pattern type to its effective detector config and
// groups types sharing one, so each group costs a single detection pass.
// The required candle count is the strictest MinCandles in play.
func (s *Service) resolveConfigs(ctx context.Context, strategyID string) (map[patterns.DetectorConfig][]patterns.PatternType, int) {
	groups := make(map[patterns.DetectorConfig][]patterns.PatternType)
	required := 0
	for _, pt := range patterns.AllPatternTypes() {
		cfg := patterns.DefaultConfig()
		if pc, err := s.store.ActiveConfig(ctx, strategyID, pt); err == nil {
			cfg = pc.Config
		}
		groups[cfg] = append(groups[cfg], pt)
		if cfg.MinCandles > required {
			required = cfg.MinCandles
		}
	}
	return groups, required
}

// ListByStrategy returns a strategy's signals after an ownership check.
func (s *Service) ListByStrategy(ctx context.Context, userID, strategyID string, active *bool) ([]*patterns.PatternSignal, error) {
	if err := s.authorize(strategyID, userID); err != nil {
		return nil, err
	}
	return s.store.ListByStrategy(ctx, strategyID, active)
}

// ListBySymbol returns a symbol's active signals. Symbol listings are not
// strategy-scoped, so there is no ownership check.
func (s *Service) ListBySymbol(ctx context.Context, symbol string, patternType patterns.PatternType) ([]*patterns.PatternSignal, error) {
	return s.store.ListBySymbol(ctx, symbol, patternType)
}

// BulkUpdateItem reports one id's fate inside a bulk update.
type BulkUpdateItem struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// BulkUpdateResult summarizes a bulk update: failures never abort the batch.
type BulkUpdateResult struct {
	Processed  int              `json:"processed"`
	Successful int              `json:"successful"`
	Failed     int              `json:"failed"`
	Items      []BulkUpdateItem `json:"items"`
}

// BulkUpdateSignals applies the update to each id independently, reporting
// per-id success or failure.
func (s *Service) BulkUpdateSignals(ctx context.Context, userID string, ids []string, upd SignalUpdate) (*BulkUpdateResult, error) {
	res := &BulkUpdateResult{}
	var updated []string

	for _, id := range ids {
		res.Processed++

		sig, err := s.store.GetSignal(ctx, id)
		if err == nil {
			err = s.authorize(sig.StrategyID, userID)
		}
		if err == nil {
			_, err = s.store.UpdateSignal(ctx, id, upd)
		}

		if err != nil {
			res.Failed++
			res.Items = append(res.Items, BulkUpdateItem{ID: id, Error: err.Error()})
			continue
		}
		res.Successful++
		res.Items = append(res.Items, BulkUpdateItem{ID: id, Success: true})
		updated = append(updated, id)
	}

	if len(updated) > 0 && s.bus != nil {
		s.bus.PublishSignalsUpdated(updated)
	}
	return res, nil
}

// SignalsInRange exposes chronological range queries, used by the backtest
// engine.
func (s *Service) SignalsInRange(ctx context.Context, q RangeQuery) ([]*patterns.PatternSignal, error) {
	return s.store.ListInRange(ctx, q)
}

// CreateConfig stores a detector config for the strategy.
func (s *Service) CreateConfig(ctx context.Context, userID, strategyID string, pt patterns.PatternType, dc patterns.DetectorConfig, isActive bool) (*patterns.PatternConfig, error) {
	if err := s.authorize(strategyID, userID); err != nil {
		return nil, err
	}

	cfg := &patterns.PatternConfig{
		StrategyID:  strategyID,
		PatternType: pt,
		Config:      dc,
		IsActive:    isActive,
	}
	if err := s.store.CreateConfig(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ListConfigs returns a strategy's configs.
func (s *Service) ListConfigs(ctx context.Context, userID, strategyID string) ([]*patterns.PatternConfig, error) {
	if err := s.authorize(strategyID, userID); err != nil {
		return nil, err
	}
	return s.store.ListConfigs(ctx, strategyID)
}

// UpdateConfig applies a partial config update after resolving ownership
// through the stored config's strategy.
func (s *Service) UpdateConfig(ctx context.Context, userID, id string, upd ConfigUpdate) (*patterns.PatternConfig, error) {
	cfg, err := s.store.GetConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(cfg.StrategyID, userID); err != nil {
		return nil, err
	}
	return s.store.UpdateConfig(ctx, id, upd)
}

// DeleteConfig removes a config after an ownership check.
func (s *Service) DeleteConfig(ctx context.Context, userID, id string) error {
	cfg, err := s.store.GetConfig(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(cfg.StrategyID, userID); err != nil {
		return err
	}
	return s.store.DeleteConfig(ctx, id)
}

// RecordOutcome records a realized result against a signal the user owns.
func (s *Service) RecordOutcome(ctx context.Context, userID, signalID string, outcome patterns.OutcomeResult, profitLoss float64, holdMinutes int, metadata map[string]string) (*patterns.PatternOutcome, error) {
	sig, err := s.store.GetSignal(ctx, signalID)
	if err != nil {
		return nil, fmt.Errorf("signal %s: %w", signalID, err)
	}
	if err := s.authorize(sig.StrategyID, userID); err != nil {
		return nil, err
	}
	return s.recorder.Record(ctx, signalID, outcome, profitLoss, holdMinutes, metadata)
}

// OutcomesBySignal lists a signal's outcomes in record order.
func (s *Service) OutcomesBySignal(ctx context.Context, userID, signalID string) ([]*patterns.PatternOutcome, error) {
	sig, err := s.store.GetSignal(ctx, signalID)
	if err != nil {
		return nil, fmt.Errorf("signal %s: %w", signalID, err)
	}
	if err := s.authorize(sig.StrategyID, userID); err != nil {
		return nil, err
	}
	return s.store.ListOutcomesBySignal(ctx, signalID)
}

// OutcomesByStrategy lists every outcome attached to the strategy's signals.
func (s *Service) OutcomesByStrategy(ctx context.Context, userID, strategyID string) ([]*patterns.PatternOutcome, error) {
	if err := s.authorize(strategyID, userID); err != nil {
		return nil, err
	}

	sigs, err := s.store.ListByStrategy(ctx, strategyID, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(sigs))
	for i, sig := range sigs {
		ids[i] = sig.ID
	}
	return s.store.ListOutcomesBySignals(ctx, ids)
}
