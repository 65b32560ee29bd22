package patterns

import (
	"pattern-engine/internal/candles"
)

// minPoleCandles is the smallest run that can count as a pole.
const minPoleCandles = 5

// directionalShare is the fraction of pole candles that must close in the
// pole's direction for the run to count as mostly monotonic.
const directionalShare = 0.6

// FlagDetector finds reversal flags: a strong, mostly monotonic pole followed
// by a tight, low-volume consolidation. The expected move is the reversal of
// the pole, so a bearish pole yields a bullish flag and vice versa.
type FlagDetector struct{}

// NewFlagDetector creates a reversal-flag detector.
func NewFlagDetector() *FlagDetector {
	return &FlagDetector{}
}

// PatternTypes lists the pattern types this detector emits.
func (fd *FlagDetector) PatternTypes() []PatternType {
	return []PatternType{ReversalFlagBullish, ReversalFlagBearish}
}

type poleMeasure struct {
	up       bool
	size     float64 // head-to-tail % change, absolute
	pullback float64 // worst adverse excursion / net move
}

// Detect emits at most one flag signal per series. The consolidation is the
// trailing window of the series, the pole everything before it; the longest
// valid consolidation wins.
func (fd *FlagDetector) Detect(series []candles.Candle, strategyID, symbol, timeframe string, cfg DetectorConfig) []PatternSignal {
	if len(series) < cfg.MinCandles {
		return nil
	}

	maxDur := cfg.MaxConsolidationDuration
	if maxDur > len(series)-minPoleCandles {
		maxDur = len(series) - minPoleCandles
	}

	for dur := maxDur; dur >= cfg.MinConsolidationDuration; dur-- {
		pole := series[:len(series)-dur]
		cons := series[len(series)-dur:]

		m, ok := measurePole(pole, cfg)
		if !ok {
			continue
		}

		if !tightConsolidation(cons, cfg.ConsolidationVolatilityThreshold) {
			continue
		}
		volatility := meanRange(cons)

		poleVol := meanVolume(pole)
		if poleVol == 0 {
			continue
		}
		volRatio := meanVolume(cons) / poleVol
		if volRatio >= 1 {
			continue
		}

		// A bullish pole exhausts upward, so the expected reversal is down.
		pt := ReversalFlagBearish
		if !m.up {
			pt = ReversalFlagBullish
		}

		evidence := &FlagEvidence{
			PoleSize:              m.size,
			PullbackRatio:         m.pullback,
			ConsolidationDuration: dur,
			VolumeDeclineRatio:    volRatio,
		}
		confidence := flagConfidence(m, volRatio, volatility, cfg)
		last := cons[len(cons)-1]

		sig := newSignal(pt, strategyID, symbol, timeframe, confidence, last.Close, last.Timestamp, Metadata{Flag: evidence})
		return []PatternSignal{sig}
	}

	return nil
}

// tightConsolidation reports whether every candle's intrabar range stays
// below the volatility threshold.
func tightConsolidation(cons []candles.Candle, threshold float64) bool {
	for _, c := range cons {
		if c.Range() >= threshold {
			return false
		}
	}
	return true
}

// measurePole validates a candidate pole: net move above MinPoleSize, mostly
// directional candles, and no intermediate pullback beyond MaxPullbackRatio
// of the net move.
func measurePole(pole []candles.Candle, cfg DetectorConfig) (poleMeasure, bool) {
	if len(pole) < minPoleCandles {
		return poleMeasure{}, false
	}

	start := pole[0].Open
	end := pole[len(pole)-1].Close
	if start <= 0 {
		return poleMeasure{}, false
	}

	change := (end - start) / start * 100
	up := change > 0
	size := abs(change)
	if size < cfg.MinPoleSize {
		return poleMeasure{}, false
	}

	directional := 0
	for _, c := range pole {
		if (up && c.Close > c.Open) || (!up && c.Close < c.Open) {
			directional++
		}
	}
	if float64(directional)/float64(len(pole)) < directionalShare {
		return poleMeasure{}, false
	}

	net := abs(end - start)
	worst := 0.0
	if up {
		peak := pole[0].High
		for _, c := range pole {
			if c.High > peak {
				peak = c.High
			}
			if dd := peak - c.Low; dd > worst {
				worst = dd
			}
		}
	} else {
		trough := pole[0].Low
		for _, c := range pole {
			if c.Low < trough {
				trough = c.Low
			}
			if dd := c.High - trough; dd > worst {
				worst = dd
			}
		}
	}

	pullback := worst / net
	if pullback > cfg.MaxPullbackRatio {
		return poleMeasure{}, false
	}

	return poleMeasure{up: up, size: size, pullback: pullback}, true
}

// flagConfidence scores a confirmed flag: pole strength, volume decline and
// consolidation tightness each add on top of a base score.
func flagConfidence(m poleMeasure, volRatio, volatility float64, cfg DetectorConfig) float64 {
	score := 50.0

	sizeFactor := (m.size - cfg.MinPoleSize) / cfg.MinPoleSize
	if sizeFactor > 1 {
		sizeFactor = 1
	}
	score += 20 * sizeFactor

	score += 15 * (1 - volRatio)
	score += 15 * (1 - volatility/cfg.ConsolidationVolatilityThreshold)

	return score
}
