package signals

import (
	"errors"
	"fmt"
)

// Sentinel errors for the signal/config/outcome stores and services.
var (
	// ErrNotFound is returned when a signal, config or strategy id is unknown.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied is returned when a strategy belongs to another user.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidRange is returned when a backtest window ends before it starts.
	ErrInvalidRange = errors.New("invalid range: end date must be after start date")
)

// InsufficientDataError is returned when a detection request has fewer
// candles than the detector requires. It is recoverable: batch callers skip
// the symbol/timeframe and continue.
type InsufficientDataError struct {
	Required  int `json:"required"`
	Available int `json:"available"`
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient candle data: need %d, have %d", e.Required, e.Available)
}

// ValidationError describes a malformed create/update payload.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}
