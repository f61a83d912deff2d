// Package detect implements the liquidity-sweep / market-structure-shift
// detectors shared by the higher- and lower-timeframe roles.
//
// All detectors are pure functions over a closed-bar window: any missing
// precondition (insufficient bars, no sweep, no break, RR too low) yields
// "no event", never an error.
package detect

import "mss-enginev1/internal/model"

// SwingHigh returns the highest high over the window bars ending just
// before index upto (exclusive). Returns ok=false if the window would
// reach before the start of the slice.
func SwingHigh(bars []model.Bar, upto, window int) (float64, bool) {
	if upto-window < 0 || upto > len(bars) {
		return 0, false
	}
	hi := bars[upto-window].High
	for i := upto - window + 1; i < upto; i++ {
		if bars[i].High > hi {
			hi = bars[i].High
		}
	}
	return hi, true
}

// SwingLow returns the lowest low over the window bars ending just before
// index upto (exclusive).
func SwingLow(bars []model.Bar, upto, window int) (float64, bool) {
	if upto-window < 0 || upto > len(bars) {
		return 0, false
	}
	lo := bars[upto-window].Low
	for i := upto - window + 1; i < upto; i++ {
		if bars[i].Low < lo {
			lo = bars[i].Low
		}
	}
	return lo, true
}

// Pivot is a fractal swing point: bar i is a high pivot if its high is the
// maximum over [i-left, i+right], a low pivot if its low is the minimum.
type Pivot struct {
	Idx   int
	Price float64
	High  bool
}

// FractalPivots scans the window for fractal swing points.
// Returns nil when the window is too short.
func FractalPivots(bars []model.Bar, left, right int) []Pivot {
	if len(bars) < left+right+1 {
		return nil
	}
	out := make([]Pivot, 0, len(bars)/5)
	for i := left; i < len(bars)-right; i++ {
		hi, lo := true, true
		for j := i - left; j <= i+right; j++ {
			if bars[j].High > bars[i].High {
				hi = false
			}
			if bars[j].Low < bars[i].Low {
				lo = false
			}
			if !hi && !lo {
				break
			}
		}
		if hi {
			out = append(out, Pivot{Idx: i, Price: bars[i].High, High: true})
		} else if lo {
			out = append(out, Pivot{Idx: i, Price: bars[i].Low, High: false})
		}
	}
	return out
}
