package indicator

import (
	"mss-enginev1/internal/model"
)

// ATR calculates the Average True Range with Wilder-style smoothing.
// First value is SMA(period) of true ranges, then
// ATR = (prev*(period-1) + TR) / period.
type ATR struct {
	period    int
	count     int
	sum       float64
	current   float64
	prevClose float64
	hasPrev   bool
}

// NewATR creates a new ATR indicator with the given period.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string { return "ATR_" + itoa(a.period) }

func (a *ATR) Update(bar model.Bar) {
	tr := bar.High - bar.Low
	if a.hasPrev {
		if hc := abs(bar.High - a.prevClose); hc > tr {
			tr = hc
		}
		if lc := abs(bar.Low - a.prevClose); lc > tr {
			tr = lc
		}
	}
	a.prevClose = bar.Close
	a.hasPrev = true
	a.count++

	if a.count <= a.period {
		// Accumulate for initial SMA seed
		a.sum += tr
		if a.count == a.period {
			a.current = a.sum / float64(a.period)
		}
		return
	}

	// Wilder-style smoothing
	a.current = (a.current*float64(a.period-1) + tr) / float64(a.period)
}

func (a *ATR) Value() float64 { return a.current }
func (a *ATR) Ready() bool    { return a.count >= a.period }

// Peek computes the ATR after bar without mutating state.
func (a *ATR) Peek(bar model.Bar) float64 {
	tmp := *a
	tmp.Update(bar)
	return tmp.Value()
}

// Reset clears the ATR state for reuse.
func (a *ATR) Reset() {
	a.count = 0
	a.sum = 0
	a.current = 0
	a.prevClose = 0
	a.hasPrev = false
}

// FromBars computes ATR(period) over a bar window in one pass.
// Returns 0 when the window is shorter than period+1.
func FromBars(bars []model.Bar, period int) float64 {
	if len(bars) < period+1 {
		return 0
	}
	a := NewATR(period)
	for _, b := range bars {
		a.Update(b)
	}
	return a.Value()
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// itoa converts int to string without importing strconv.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	buf := [20]byte{}
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
