package detect

// Config tunes the shared sweep/MSS detection algorithm. Both the HTF and
// LTF detectors run the same core with different bar windows and roles.
type Config struct {
	SwingWindow   int     // trailing window for swing extremes
	SweepLookback int     // bars scanned backwards for a liquidity sweep
	MSSForward    int     // bars after the sweep scanned for the break
	DispMult      float64 // MSS body must exceed DispMult × ATR
	MinBreakPips  float64 // minimum structure-break distance in pips
	ATRPeriod     int

	// HTF role.
	WindowCandles int // context validity in HTF candles after detection

	// LTF role.
	MinRR   float64 // minimum reward-to-risk for a priced confirmation
	OTELow  float64 // optimal-trade-entry retracement band, lower bound
	OTEHigh float64 // optimal-trade-entry retracement band, upper bound
}

// DefaultConfig returns the standard detection parameters.
func DefaultConfig() Config {
	return Config{
		SwingWindow:   20,
		SweepLookback: 10,
		MSSForward:    5,
		DispMult:      1.2,
		MinBreakPips:  2.0,
		ATRPeriod:     14,
		WindowCandles: 12,
		MinRR:         1.5,
		OTELow:        0.618,
		OTEHigh:       0.79,
	}
}

// minBars is the smallest window the core algorithm can evaluate:
// a full swing window plus room for the sweep scan.
func (c Config) minBars() int {
	return c.SwingWindow + c.SweepLookback
}
