// Package scanner runs periodic bulk pattern detection across configured
// symbols and timeframes using a bounded worker pool.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pattern-engine/internal/events"
	"pattern-engine/internal/patterns"
	"pattern-engine/internal/signals"
)

// Config controls the scan loop and its worker pool.
type Config struct {
	Enabled      bool          `json:"enabled"`
	ScanInterval time.Duration `json:"scan_interval"`
	WorkerCount  int           `json:"worker_count"`
	CandleLimit  int           `json:"candle_limit"`
	StrategyIDs  []string      `json:"strategy_ids"`
	Symbols      []string      `json:"symbols"`
	Timeframes   []string      `json:"timeframes"`
}

// Target is one (strategy, symbol, timeframe) detection unit.
type Target struct {
	StrategyID string `json:"strategyId"`
	Symbol     string `json:"symbol"`
	Timeframe  string `json:"timeframe"`
}

// TargetResult reports one target's detection outcome inside a scan.
type TargetResult struct {
	Target  Target                    `json:"target"`
	Signals []*patterns.PatternSignal `json:"signals,omitempty"`
	Skipped bool                      `json:"skipped,omitempty"`
	Error   string                    `json:"error,omitempty"`
}

// ScanResult summarizes one full scan cycle.
type ScanResult struct {
	ScanID         string         `json:"scanId"`
	StartTime      time.Time      `json:"startTime"`
	EndTime        time.Time      `json:"endTime"`
	Duration       time.Duration  `json:"duration"`
	TargetsScanned int            `json:"targetsScanned"`
	SignalsFound   int            `json:"signalsFound"`
	Results        []TargetResult `json:"results"`
}

// Scanner fans detection out over a worker pool at a fixed interval.
type Scanner struct {
	service    *signals.Service
	bus        *events.EventBus
	config     Config
	logger     zerolog.Logger
	stopChan   chan struct{}
	wg         sync.WaitGroup
	mu         sync.RWMutex
	lastResult *ScanResult
}

// NewScanner creates a scanner over the detection service. bus may be nil.
func NewScanner(service *signals.Service, bus *events.EventBus, config Config, logger zerolog.Logger) *Scanner {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 4
	}
	if config.CandleLimit <= 0 {
		config.CandleLimit = 100
	}
	return &Scanner{
		service:  service,
		bus:      bus,
		config:   config,
		logger:   logger.With().Str("component", "Scanner").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start begins the background scan loop.
func (sc *Scanner) Start() {
	if !sc.config.Enabled {
		sc.logger.Info().Msg("scanner is disabled")
		return
	}

	sc.wg.Add(1)
	go sc.runScanLoop()
	sc.logger.Info().
		Dur("interval", sc.config.ScanInterval).
		Int("workers", sc.config.WorkerCount).
		Msg("scanner started")
}

func (sc *Scanner) runScanLoop() {
	defer sc.wg.Done()

	ticker := time.NewTicker(sc.config.ScanInterval)
	defer ticker.Stop()

	// Run immediately
	sc.scan()

	for {
		select {
		case <-ticker.C:
			sc.scan()
		case <-sc.stopChan:
			sc.logger.Info().Msg("scanner stopped")
			return
		}
	}
}

// Scan executes a single scan cycle, for manual triggering.
func (sc *Scanner) Scan() *ScanResult {
	return sc.scan()
}

func (sc *Scanner) scan() *ScanResult {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	startTime := time.Now()
	scanID := fmt.Sprintf("scan-%d", startTime.Unix())
	targets := sc.targets()

	targetChan := make(chan Target, len(targets))
	resultChan := make(chan TargetResult, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < sc.config.WorkerCount; i++ {
		wg.Add(1)
		go sc.worker(ctx, targetChan, resultChan, &wg)
	}

	go func() {
		for _, t := range targets {
			select {
			case targetChan <- t:
			case <-ctx.Done():
			}
		}
		close(targetChan)
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	result := &ScanResult{
		ScanID:    scanID,
		StartTime: startTime,
		Results:   make([]TargetResult, 0, len(targets)),
	}
	for tr := range resultChan {
		result.Results = append(result.Results, tr)
		result.SignalsFound += len(tr.Signals)
	}
	result.TargetsScanned = len(targets)
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	sc.mu.Lock()
	sc.lastResult = result
	sc.mu.Unlock()

	if sc.bus != nil {
		sc.bus.PublishScanCompleted(scanID, result.TargetsScanned, result.SignalsFound, result.Duration)
	}

	sc.logger.Info().
		Str("scan_id", scanID).
		Int("targets", result.TargetsScanned).
		Int("signals", result.SignalsFound).
		Dur("duration", result.Duration).
		Msg("scan completed")

	return result
}

func (sc *Scanner) worker(ctx context.Context, targetChan <-chan Target, resultChan chan<- TargetResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for target := range targetChan {
		select {
		case <-ctx.Done():
			return
		default:
			resultChan <- sc.scanTarget(ctx, target)
		}
	}
}

// scanTarget runs detection for one target as an internal caller. Targets
// with too little candle data are skipped, not failed.
func (sc *Scanner) scanTarget(ctx context.Context, target Target) TargetResult {
	sigs, err := sc.service.Detect(ctx, "", target.StrategyID, target.Symbol, target.Timeframe, sc.config.CandleLimit)
	if err != nil {
		var insufficient *signals.InsufficientDataError
		if errors.As(err, &insufficient) {
			sc.logger.Debug().
				Str("symbol", target.Symbol).
				Str("timeframe", target.Timeframe).
				Int("required", insufficient.Required).
				Int("available", insufficient.Available).
				Msg("target skipped, not enough candles")
			return TargetResult{Target: target, Skipped: true, Error: err.Error()}
		}

		sc.logger.Warn().Err(err).
			Str("symbol", target.Symbol).
			Str("timeframe", target.Timeframe).
			Msg("target scan failed")
		return TargetResult{Target: target, Error: err.Error()}
	}

	return TargetResult{Target: target, Signals: sigs}
}

// targets expands the configured strategies, symbols and timeframes into
// the scan's work units.
func (sc *Scanner) targets() []Target {
	targets := make([]Target, 0, len(sc.config.StrategyIDs)*len(sc.config.Symbols)*len(sc.config.Timeframes))
	for _, strategyID := range sc.config.StrategyIDs {
		for _, symbol := range sc.config.Symbols {
			for _, timeframe := range sc.config.Timeframes {
				targets = append(targets, Target{
					StrategyID: strategyID,
					Symbol:     symbol,
					Timeframe:  timeframe,
				})
			}
		}
	}
	return targets
}

// LastResult returns the most recent scan result, nil before the first scan.
func (sc *Scanner) LastResult() *ScanResult {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.lastResult
}

// Stop gracefully shuts down the scan loop.
func (sc *Scanner) Stop() {
	if !sc.config.Enabled {
		return
	}
	close(sc.stopChan)
	sc.wg.Wait()
}
