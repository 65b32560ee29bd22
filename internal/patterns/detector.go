package patterns

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"pattern-engine/internal/candles"
)

// DetectorConfig holds the thresholds shared by all detectors. Sizes and
// durations must be strictly positive.
type DetectorConfig struct {
	MinCandles                       int     `json:"minCandles"`
	MinPoleSize                      float64 `json:"minPoleSize"`      // % head-to-tail move
	MaxPullbackRatio                 float64 `json:"maxPullbackRatio"` // fraction of the net pole move
	MinConsolidationDuration         int     `json:"minConsolidationDuration"`
	MaxConsolidationDuration         int     `json:"maxConsolidationDuration"`
	ConsolidationVolatilityThreshold float64 `json:"consolidationVolatilityThreshold"` // mean intrabar range
	MinRejectionSize                 float64 `json:"minRejectionSize"`                 // price units
	MaxTimespan                      int     `json:"maxTimespan"`                      // candles a shape may span
	ConfidenceThreshold              float64 `json:"confidenceThreshold"`              // 0-100
}

// DefaultConfig returns the stock thresholds used when a strategy has no
// PatternConfig of its own.
func DefaultConfig() DetectorConfig {
	return DetectorConfig{
		MinCandles:                       25,
		MinPoleSize:                      5.0,
		MaxPullbackRatio:                 0.3,
		MinConsolidationDuration:         3,
		MaxConsolidationDuration:         15,
		ConsolidationVolatilityThreshold: 2.5,
		MinRejectionSize:                 3.0,
		MaxTimespan:                      60,
		ConfidenceThreshold:              60,
	}
}

// Validate checks that every size/duration threshold is strictly positive.
func (c DetectorConfig) Validate() error {
	checks := []struct {
		name string
		ok   bool
	}{
		{"minCandles", c.MinCandles > 0},
		{"minPoleSize", c.MinPoleSize > 0},
		{"maxPullbackRatio", c.MaxPullbackRatio > 0},
		{"minConsolidationDuration", c.MinConsolidationDuration > 0},
		{"maxConsolidationDuration", c.MaxConsolidationDuration >= c.MinConsolidationDuration},
		{"consolidationVolatilityThreshold", c.ConsolidationVolatilityThreshold > 0},
		{"minRejectionSize", c.MinRejectionSize > 0},
		{"maxTimespan", c.MaxTimespan > 0},
	}
	for _, chk := range checks {
		if !chk.ok {
			return fmt.Errorf("detector config: %s must be positive", chk.name)
		}
	}
	return nil
}

// Detector is a pure function over a candle series. Implementations perform
// no I/O and are safe to call concurrently.
type Detector interface {
	PatternTypes() []PatternType
	Detect(series []candles.Candle, strategyID, symbol, timeframe string, cfg DetectorConfig) []PatternSignal
}

// Registry dispatches detection to the detector owning each pattern type.
type Registry struct {
	detectors map[PatternType]Detector
	ordered   []Detector
}

// NewRegistry builds a registry with all built-in detectors.
func NewRegistry() *Registry {
	r := &Registry{detectors: make(map[PatternType]Detector)}
	r.register(NewFlagDetector())
	r.register(NewHeadShouldersDetector())
	return r
}

func (r *Registry) register(d Detector) {
	r.ordered = append(r.ordered, d)
	for _, pt := range d.PatternTypes() {
		r.detectors[pt] = d
	}
}

// Detect runs every registered detector over the series. When patternTypes is
// non-empty, only detectors owning one of those types run, and foreign
// emissions are filtered out. Series shorter than cfg.MinCandles yield an
// empty result, never an error.
func (r *Registry) Detect(series []candles.Candle, strategyID, symbol, timeframe string, cfg DetectorConfig, patternTypes ...PatternType) []PatternSignal {
	if len(series) < cfg.MinCandles {
		return nil
	}

	wanted := make(map[PatternType]bool, len(patternTypes))
	for _, pt := range patternTypes {
		wanted[pt] = true
	}

	var signals []PatternSignal
	for _, d := range r.ordered {
		if len(wanted) > 0 {
			runs := false
			for _, pt := range d.PatternTypes() {
				if wanted[pt] {
					runs = true
					break
				}
			}
			if !runs {
				continue
			}
		}

		for _, sig := range d.Detect(series, strategyID, symbol, timeframe, cfg) {
			if len(wanted) > 0 && !wanted[sig.PatternType] {
				continue
			}
			signals = append(signals, sig)
		}
	}
	return signals
}

// newSignal assembles an emitted signal, clamping confidence into [0, 100].
func newSignal(pt PatternType, strategyID, symbol, timeframe string, confidence, priceLevel float64, detectedAt time.Time, meta Metadata) PatternSignal {
	return PatternSignal{
		ID:          uuid.New().String(),
		StrategyID:  strategyID,
		Symbol:      symbol,
		Timeframe:   timeframe,
		PatternType: pt,
		Confidence:  clamp(confidence, 0, 100),
		PriceLevel:  priceLevel,
		Metadata:    meta,
		DetectedAt:  detectedAt,
		CreatedAt:   time.Now().UTC(),
		IsActive:    true,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func meanVolume(series []candles.Candle) float64 {
	if len(series) == 0 {
		return 0
	}
	var sum float64
	for _, c := range series {
		sum += float64(c.Volume)
	}
	return sum / float64(len(series))
}

func meanRange(series []candles.Candle) float64 {
	if len(series) == 0 {
		return 0
	}
	var sum float64
	for _, c := range series {
		sum += c.Range()
	}
	return sum / float64(len(series))
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
