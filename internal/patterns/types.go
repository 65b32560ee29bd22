package patterns

import (
	"fmt"
	"time"
)

// PatternType identifies a chart pattern family. The set is closed: new
// variants require a code change, never free text.
type PatternType string

const (
	HeadAndShoulders        PatternType = "head_and_shoulders"
	InverseHeadAndShoulders PatternType = "inverse_head_and_shoulders"
	ReversalFlagBullish     PatternType = "reversal_flag_bullish"
	ReversalFlagBearish     PatternType = "reversal_flag_bearish"
)

// AllPatternTypes lists every supported pattern type.
func AllPatternTypes() []PatternType {
	return []PatternType{
		HeadAndShoulders,
		InverseHeadAndShoulders,
		ReversalFlagBullish,
		ReversalFlagBearish,
	}
}

// Valid reports whether the value is part of the closed enumeration.
func (pt PatternType) Valid() bool {
	switch pt {
	case HeadAndShoulders, InverseHeadAndShoulders, ReversalFlagBullish, ReversalFlagBearish:
		return true
	}
	return false
}

// ParsePatternType validates a raw string against the enumeration.
func ParsePatternType(raw string) (PatternType, error) {
	pt := PatternType(raw)
	if !pt.Valid() {
		return "", &InvalidPatternTypeError{Value: raw}
	}
	return pt, nil
}

// FlagEvidence records the measurements behind a reversal-flag signal.
type FlagEvidence struct {
	PoleSize              float64 `json:"poleSize"`              // head-to-tail % change of the pole
	PullbackRatio         float64 `json:"pullbackRatio"`         // worst pullback / net pole move
	ConsolidationDuration int     `json:"consolidationDuration"` // candles
	VolumeDeclineRatio    float64 `json:"volumeDeclineRatio"`    // mean consolidation volume / mean pole volume
}

// HeadShouldersEvidence records the measurements behind a head-and-shoulders
// signal. Peak values are highs for the standard shape and lows for the
// inverse shape.
type HeadShouldersEvidence struct {
	PreMoveSize       float64 `json:"preMoveSize"` // % move into the left shoulder
	LeftShoulderPeak  float64 `json:"leftShoulderPeak"`
	HeadPeak          float64 `json:"headPeak"`
	RightShoulderPeak float64 `json:"rightShoulderPeak"`
	HeadRejection     float64 `json:"headRejection"`     // retracement off the head, price units
	ShoulderDeviation float64 `json:"shoulderDeviation"` // |left-right| relative to head
	VolumeConfirmed   bool    `json:"volumeConfirmed"`
	Timespan          int     `json:"timespan"` // candles covered by the shape
}

// Metadata is the detector evidence attached to a signal, tagged by pattern
// family so each detector's fields stay statically known. Notes carries
// free-form updates merged in after detection.
type Metadata struct {
	Flag          *FlagEvidence          `json:"flag,omitempty"`
	HeadShoulders *HeadShouldersEvidence `json:"headShoulders,omitempty"`
	Notes         map[string]string      `json:"notes,omitempty"`
}

// Merge copies non-empty fields of other into m. Evidence is only set when
// absent; notes always merge key-by-key.
func (m *Metadata) Merge(other Metadata) {
	if m.Flag == nil && other.Flag != nil {
		m.Flag = other.Flag
	}
	if m.HeadShoulders == nil && other.HeadShoulders != nil {
		m.HeadShoulders = other.HeadShoulders
	}
	if len(other.Notes) > 0 {
		if m.Notes == nil {
			m.Notes = make(map[string]string, len(other.Notes))
		}
		for k, v := range other.Notes {
			m.Notes[k] = v
		}
	}
}

// PatternSignal is an emitted detection. Signals are created only by the
// detector, mutated only to flip IsActive or merge metadata, and never
// deleted.
type PatternSignal struct {
	ID          string      `json:"id"`
	StrategyID  string      `json:"strategyId"`
	Symbol      string      `json:"symbol"`
	Timeframe   string      `json:"timeframe"`
	PatternType PatternType `json:"patternType"`
	Confidence  float64     `json:"confidence"` // 0-100
	PriceLevel  float64     `json:"priceLevel"`
	Metadata    Metadata    `json:"metadata"`
	DetectedAt  time.Time   `json:"detectedAt"`
	CreatedAt   time.Time   `json:"createdAt"`
	IsActive    bool        `json:"isActive"`
}

// PatternConfig holds per-strategy detector thresholds. At most one active
// config per (strategyId, patternType) is meaningful.
type PatternConfig struct {
	ID          string         `json:"id"`
	StrategyID  string         `json:"strategyId"`
	PatternType PatternType    `json:"patternType"`
	Config      DetectorConfig `json:"config"`
	IsActive    bool           `json:"isActive"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// OutcomeResult is the realized result attached to a signal.
type OutcomeResult string

const (
	OutcomeSuccess OutcomeResult = "success"
	OutcomeFailure OutcomeResult = "failure"
	OutcomePending OutcomeResult = "pending"
)

// Valid reports whether the value is a known outcome result.
func (o OutcomeResult) Valid() bool {
	return o == OutcomeSuccess || o == OutcomeFailure || o == OutcomePending
}

// PatternOutcome records what happened to a signal. Outcomes are append-only;
// a signal may accumulate several.
type PatternOutcome struct {
	ID              string            `json:"id"`
	PatternSignalID string            `json:"patternSignalId"`
	Outcome         OutcomeResult     `json:"outcome"`
	ProfitLoss      float64           `json:"profitLoss"`
	HoldTimeMinutes int               `json:"holdTime"` // minutes
	RecordedAt      time.Time         `json:"recordedAt"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// InvalidPatternTypeError signals a value outside the closed enumeration.
type InvalidPatternTypeError struct {
	Value string
}

func (e *InvalidPatternTypeError) Error() string {
	return fmt.Sprintf("invalid pattern type: %q", e.Value)
}
