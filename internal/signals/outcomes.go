package signals

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"pattern-engine/internal/events"
	"pattern-engine/internal/patterns"
)

// Recorder attaches realized results to signals. Recording an outcome
// always deactivates the referenced signal; outcomes themselves are
// append-only, so a closed signal may accumulate more.
type Recorder struct {
	store  Store
	bus    *events.EventBus
	logger zerolog.Logger
}

// NewRecorder creates an outcome recorder. bus may be nil.
func NewRecorder(store Store, bus *events.EventBus, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		bus:    bus,
		logger: logger.With().Str("component", "OutcomeRecorder").Logger(),
	}
}

// Record validates and stores an outcome for the signal, then flips the
// signal inactive. Unknown signal ids return ErrNotFound.
func (r *Recorder) Record(ctx context.Context, signalID string, outcome patterns.OutcomeResult, profitLoss float64, holdMinutes int, metadata map[string]string) (*patterns.PatternOutcome, error) {
	if !outcome.Valid() {
		return nil, &ValidationError{Field: "outcome", Reason: "must be success, failure or pending"}
	}
	if holdMinutes < 0 {
		return nil, &ValidationError{Field: "holdTime", Reason: "must not be negative"}
	}

	sig, err := r.store.GetSignal(ctx, signalID)
	if err != nil {
		return nil, fmt.Errorf("signal %s: %w", signalID, err)
	}

	o := &patterns.PatternOutcome{
		PatternSignalID: signalID,
		Outcome:         outcome,
		ProfitLoss:      profitLoss,
		HoldTimeMinutes: holdMinutes,
		Metadata:        metadata,
	}
	if err := r.store.CreateOutcome(ctx, o); err != nil {
		return nil, fmt.Errorf("create outcome: %w", err)
	}

	inactive := false
	if _, err := r.store.UpdateSignal(ctx, signalID, SignalUpdate{IsActive: &inactive}); err != nil {
		return nil, fmt.Errorf("deactivate signal %s: %w", signalID, err)
	}

	if r.bus != nil {
		r.bus.PublishOutcomeRecorded(o.ID, signalID, string(outcome), profitLoss)
	}

	r.logger.Info().
		Str("signal_id", signalID).
		Str("symbol", sig.Symbol).
		Str("pattern_type", string(sig.PatternType)).
		Str("outcome", string(outcome)).
		Float64("profit_loss", profitLoss).
		Msg("outcome recorded")

	return o, nil
}
