package patterns

import (
	"pattern-engine/internal/candles"
)

// rejectionWindow is how many candles after a peak are inspected for the
// retracement that qualifies it.
const rejectionWindow = 5

// preMoveLookback bounds how far before the left shoulder the pre-move is
// measured.
const preMoveLookback = 15

// HeadShouldersDetector finds head-and-shoulders tops and their inverse.
// Shoulder symmetry is deliberately a soft scoring factor, never a hard
// gate: real shoulders are rarely symmetric, so the detector keys on the
// behavioral signature instead (pre-move, rejections, volume).
type HeadShouldersDetector struct{}

// NewHeadShouldersDetector creates a head-and-shoulders detector.
func NewHeadShouldersDetector() *HeadShouldersDetector {
	return &HeadShouldersDetector{}
}

// PatternTypes lists the pattern types this detector emits.
func (hd *HeadShouldersDetector) PatternTypes() []PatternType {
	return []PatternType{HeadAndShoulders, InverseHeadAndShoulders}
}

// Detect scans for both the standard and the inverse shape.
func (hd *HeadShouldersDetector) Detect(series []candles.Candle, strategyID, symbol, timeframe string, cfg DetectorConfig) []PatternSignal {
	if len(series) < cfg.MinCandles {
		return nil
	}

	signals := hd.detectShape(series, strategyID, symbol, timeframe, cfg, false)
	signals = append(signals, hd.detectShape(series, strategyID, symbol, timeframe, cfg, true)...)
	return signals
}

// peak is a qualified local extreme: a high (or low, for the inverse shape)
// followed by a rejection of at least MinRejectionSize.
type peak struct {
	idx       int
	price     float64
	rejection float64
}

func (hd *HeadShouldersDetector) detectShape(series []candles.Candle, strategyID, symbol, timeframe string, cfg DetectorConfig, inverse bool) []PatternSignal {
	peaks := findPeaks(series, cfg.MinRejectionSize, inverse)
	if len(peaks) < 3 {
		return nil
	}

	var signals []PatternSignal
	for i := 0; i+2 < len(peaks); i++ {
		left, head, right := peaks[i], peaks[i+1], peaks[i+2]

		// The head must stick out beyond both shoulders.
		if inverse {
			if head.price >= left.price || head.price >= right.price {
				continue
			}
		} else {
			if head.price <= left.price || head.price <= right.price {
				continue
			}
		}

		preStart := left.idx - preMoveLookback
		if preStart < 0 {
			preStart = 0
		}
		preMove, ok := measurePreMove(series[preStart:left.idx+1], left.price, cfg, inverse)
		if !ok {
			continue
		}

		shapeEnd := right.idx + rejectionWindow
		if shapeEnd > len(series)-1 {
			shapeEnd = len(series) - 1
		}
		timespan := shapeEnd - preStart + 1
		if timespan > cfg.MaxTimespan {
			continue
		}

		// The head must carry the heaviest volume of the three peaks.
		headVol := series[head.idx].Volume
		if headVol < series[left.idx].Volume || headVol < series[right.idx].Volume {
			continue
		}
		volumeConfirmed := shouldersElevated(series, left, head, right)

		deviation := abs(left.price-right.price) / abs(head.price)
		confidence := headShouldersConfidence(preMove, deviation, head.rejection, volumeConfirmed, cfg)
		if confidence < cfg.ConfidenceThreshold {
			continue
		}

		pt := HeadAndShoulders
		if inverse {
			pt = InverseHeadAndShoulders
		}
		evidence := &HeadShouldersEvidence{
			PreMoveSize:       preMove,
			LeftShoulderPeak:  left.price,
			HeadPeak:          head.price,
			RightShoulderPeak: right.price,
			HeadRejection:     head.rejection,
			ShoulderDeviation: deviation,
			VolumeConfirmed:   volumeConfirmed,
			Timespan:          timespan,
		}
		last := series[shapeEnd]
		signals = append(signals, newSignal(pt, strategyID, symbol, timeframe, confidence, last.Close, last.Timestamp, Metadata{HeadShoulders: evidence}))
	}
	return signals
}

// findPeaks returns local extremes that are followed by a rejection of at
// least minRejection within the rejection window.
func findPeaks(series []candles.Candle, minRejection float64, inverse bool) []peak {
	var peaks []peak
	for i := 1; i < len(series)-1; i++ {
		if inverse {
			if !(series[i].Low < series[i-1].Low && series[i].Low < series[i+1].Low) {
				continue
			}
		} else {
			if !(series[i].High > series[i-1].High && series[i].High > series[i+1].High) {
				continue
			}
		}

		rej := rejectionAfter(series, i, inverse)
		if rej < minRejection {
			continue
		}

		price := series[i].High
		if inverse {
			price = series[i].Low
		}
		peaks = append(peaks, peak{idx: i, price: price, rejection: rej})
	}
	return peaks
}

// rejectionAfter measures the retracement off the extreme at idx within the
// rejection window: distance down from a high, or up from a low.
func rejectionAfter(series []candles.Candle, idx int, inverse bool) float64 {
	end := idx + rejectionWindow
	if end > len(series)-1 {
		end = len(series) - 1
	}

	best := 0.0
	for j := idx + 1; j <= end; j++ {
		var d float64
		if inverse {
			d = series[j].High - series[idx].Low
		} else {
			d = series[idx].High - series[j].Low
		}
		if d > best {
			best = d
		}
	}
	return best
}

// measurePreMove checks there was room to reverse: a move of at least
// MinPoleSize percent into the left shoulder. Returns the move size.
func measurePreMove(window []candles.Candle, shoulderPrice float64, cfg DetectorConfig, inverse bool) (float64, bool) {
	if len(window) < 2 {
		return 0, false
	}

	if inverse {
		// Decline into the left-shoulder low.
		start := window[0].High
		for _, c := range window {
			if c.High > start {
				start = c.High
			}
		}
		if start <= 0 {
			return 0, false
		}
		move := (start - shoulderPrice) / start * 100
		return move, move >= cfg.MinPoleSize
	}

	// Rise into the left-shoulder high.
	start := window[0].Low
	for _, c := range window {
		if c.Low < start {
			start = c.Low
		}
	}
	if start <= 0 {
		return 0, false
	}
	move := (shoulderPrice - start) / start * 100
	return move, move >= cfg.MinPoleSize
}

// shouldersElevated reports whether both shoulders carry more volume than
// the valleys separating them from the head.
func shouldersElevated(series []candles.Candle, left, head, right peak) bool {
	v1 := minVolumeBetween(series, left.idx, head.idx)
	v2 := minVolumeBetween(series, head.idx, right.idx)
	return series[left.idx].Volume > v1 && series[right.idx].Volume > v2
}

func minVolumeBetween(series []candles.Candle, from, to int) int64 {
	if to-from < 2 {
		return 0
	}
	min := series[from+1].Volume
	for i := from + 2; i < to; i++ {
		if series[i].Volume < min {
			min = series[i].Volume
		}
	}
	return min
}

// headShouldersConfidence builds the weighted 0-100 score: pre-move size,
// shoulder symmetry, head rejection strength and volume confirmation each
// contribute up to 25 points.
func headShouldersConfidence(preMove, deviation, headRejection float64, volumeConfirmed bool, cfg DetectorConfig) float64 {
	score := 0.0

	pm := preMove / cfg.MinPoleSize
	if pm > 2 {
		pm = 2
	}
	score += 12.5 * pm

	// 5 points of symmetry lost per percent of shoulder deviation.
	sym := 25 - deviation*100*5
	if sym < 0 {
		sym = 0
	}
	score += sym

	rej := headRejection / cfg.MinRejectionSize
	if rej > 2 {
		rej = 2
	}
	score += 12.5 * rej

	if volumeConfirmed {
		score += 25
	} else {
		score += 10
	}

	return clamp(score, 0, 100)
}
