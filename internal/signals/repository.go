package signals

import (
	"context"
	"time"

	"pattern-engine/internal/patterns"
)

// SignalUpdate is a partial update applied to a stored signal. Signals are
// never deleted; updates only flip IsActive or merge metadata.
type SignalUpdate struct {
	IsActive *bool              `json:"isActive,omitempty"`
	Metadata *patterns.Metadata `json:"metadata,omitempty"`
}

// RangeQuery selects signals by detection time, chronologically ascending.
type RangeQuery struct {
	StrategyID   string
	Symbols      []string
	PatternTypes []patterns.PatternType
	Start        time.Time
	End          time.Time
}

// SignalRepository stores detected signals. Listings are newest-detection
// first except ListInRange, which is chronological ascending.
type SignalRepository interface {
	CreateSignal(ctx context.Context, sig *patterns.PatternSignal) error
	GetSignal(ctx context.Context, id string) (*patterns.PatternSignal, error)
	ListByStrategy(ctx context.Context, strategyID string, active *bool) ([]*patterns.PatternSignal, error)
	// ListBySymbol returns active signals only, optionally filtered by
	// pattern type (empty means all).
	ListBySymbol(ctx context.Context, symbol string, patternType patterns.PatternType) ([]*patterns.PatternSignal, error)
	UpdateSignal(ctx context.Context, id string, upd SignalUpdate) (*patterns.PatternSignal, error)
	ListInRange(ctx context.Context, q RangeQuery) ([]*patterns.PatternSignal, error)
	// ListByPatternType returns all signals of one pattern type, newest
	// first, optionally scoped to a strategy (empty means all).
	ListByPatternType(ctx context.Context, pt patterns.PatternType, strategyID string) ([]*patterns.PatternSignal, error)
}

// ConfigUpdate is a partial update applied to a stored pattern config.
type ConfigUpdate struct {
	Config   *patterns.DetectorConfig `json:"config,omitempty"`
	IsActive *bool                    `json:"isActive,omitempty"`
}

// ConfigRepository stores per-strategy detector configs. At most one active
// config per (strategyId, patternType); ActiveConfig resolves that pair via
// a dedicated index.
type ConfigRepository interface {
	CreateConfig(ctx context.Context, cfg *patterns.PatternConfig) error
	GetConfig(ctx context.Context, id string) (*patterns.PatternConfig, error)
	ActiveConfig(ctx context.Context, strategyID string, pt patterns.PatternType) (*patterns.PatternConfig, error)
	// ListConfigs returns a strategy's configs, or every config when
	// strategyID is empty.
	ListConfigs(ctx context.Context, strategyID string) ([]*patterns.PatternConfig, error)
	UpdateConfig(ctx context.Context, id string, upd ConfigUpdate) (*patterns.PatternConfig, error)
	DeleteConfig(ctx context.Context, id string) error
}

// OutcomeRepository stores realized outcomes. Outcomes are append-only and
// returned in record order.
type OutcomeRepository interface {
	CreateOutcome(ctx context.Context, o *patterns.PatternOutcome) error
	ListOutcomesBySignal(ctx context.Context, signalID string) ([]*patterns.PatternOutcome, error)
	ListOutcomesBySignals(ctx context.Context, signalIDs []string) ([]*patterns.PatternOutcome, error)
}

// Store is the full persistence boundary injected into the detection
// service, the performance analyzer and the backtest engine.
type Store interface {
	SignalRepository
	ConfigRepository
	OutcomeRepository
}
