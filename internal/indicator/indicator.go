// Package indicator provides technical indicator calculations over bar data.
//
// All indicators implement the Indicator interface, receiving bars and
// producing float64 values. Indicators are designed to be composable.
package indicator

import "mss-enginev1/internal/model"

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "ATR_14").
	Name() string

	// Update feeds a new completed bar and recalculates.
	Update(bar model.Bar)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Peek returns the value the indicator would have after applying bar,
	// without mutating state.
	Peek(bar model.Bar) float64
}
