package detect

import (
	"math"
	"time"

	"mss-enginev1/internal/model"
)

// orderBlockQuality grades the POI by how it was found.
const (
	qualityOrderBlock = 80.0
	qualityFallback   = 50.0
)

// Shift is a raw sweep-then-break detection on one timeframe, before it is
// bound to a role (HTF context or LTF confirmation).
type Shift struct {
	Side         model.Side
	Sweep        model.SweepEvent
	SweepIdx     int
	MSSIdx       int
	POI          model.POI
	Displacement model.Displacement
	StructBreak  model.StructBreak

	// Extremes of the displacement leg, used for OTE retracement math.
	SwingHigh float64
	SwingLow  float64
}

// FindShift scans a closed-bar window for a liquidity sweep followed by a
// displaced structural break. Returns nil when no complete detection exists;
// a window shorter than the minimum is a silent no-op. When several sweeps
// qualify, the most recent completed detection wins.
func FindShift(bars []model.Bar, cfg Config, atr float64) *Shift {
	if len(bars) < cfg.minBars() || atr <= 0 {
		return nil
	}

	pip := model.PipSize(bars[0].Symbol)
	var found *Shift

	start := len(bars) - cfg.SweepLookback
	if start < cfg.SwingWindow {
		start = cfg.SwingWindow
	}
	for i := start; i < len(bars); i++ {
		if sh, ok := SwingHigh(bars, i, cfg.SwingWindow); ok &&
			bars[i].High > sh && bars[i].Close < sh {
			if d := completeShift(bars, cfg, atr, pip, i, model.DirUp, sh); d != nil {
				found = d
			}
		}
		if sl, ok := SwingLow(bars, i, cfg.SwingWindow); ok &&
			bars[i].Low < sl && bars[i].Close > sl {
			if d := completeShift(bars, cfg, atr, pip, i, model.DirDown, sl); d != nil {
				found = d
			}
		}
	}
	return found
}

// completeShift looks forward from a sweep at index si for the opposite
// structural break with sufficient displacement.
func completeShift(bars []model.Bar, cfg Config, atr, pip float64, si int, dir model.Direction, refLevel float64) *Shift {
	end := si + cfg.MSSForward
	if end >= len(bars) {
		end = len(bars) - 1
	}

	for j := si + 1; j <= end; j++ {
		var broke bool
		var breakLevel float64

		if dir == model.DirUp {
			// Buyside swept: the shift is bearish, through the swing low.
			lo, ok := SwingLow(bars, j, cfg.SwingWindow)
			if !ok {
				continue
			}
			breakLevel = lo
			broke = bars[j].Bearish() && bars[j].Close < lo
		} else {
			hi, ok := SwingHigh(bars, j, cfg.SwingWindow)
			if !ok {
				continue
			}
			breakLevel = hi
			broke = bars[j].Bullish() && bars[j].Close > hi
		}
		if !broke {
			continue
		}
		if bars[j].Body() < cfg.DispMult*atr {
			continue
		}

		distance := math.Abs(bars[j].Close - breakLevel)
		if distance/pip < cfg.MinBreakPips {
			continue // break too shallow, discard
		}

		side := model.SideBearish
		if dir == model.DirDown {
			side = model.SideBullish
		}
		sh := &Shift{
			Side:     side,
			SweepIdx: si,
			MSSIdx:   j,
			StructBreak: model.StructBreak{
				Level:        breakLevel,
				Distance:     distance,
				DistancePips: distance / pip,
			},
		}
		sh.Sweep = sweepEvent(bars, si, dir, refLevel)
		sh.POI = pointOfInterest(bars, si, j, side)
		sh.Displacement = displacement(bars, cfg, j, atr, side)
		sh.SwingHigh, sh.SwingLow = legExtremes(bars, si, j)
		return sh
	}
	return nil
}

func sweepEvent(bars []model.Bar, si int, dir model.Direction, refLevel float64) model.SweepEvent {
	b := bars[si]
	sweepPrice := b.High
	label := "SWING_HIGH"
	if dir == model.DirDown {
		sweepPrice = b.Low
		label = "SWING_LOW"
	}
	return model.SweepEvent{
		Time:         barClose(b),
		Direction:    dir,
		RefLabel:     label,
		RefLevel:     refLevel,
		SweepPrice:   sweepPrice,
		ClosePrice:   b.Close,
		Displacement: math.Abs(sweepPrice - refLevel),
	}
}

// pointOfInterest takes the last opposite-colored candle before the MSS
// candle as the order block; absent one, the MSS candle itself is a
// lower-quality fallback.
func pointOfInterest(bars []model.Bar, si, mi int, side model.Side) model.POI {
	for k := mi - 1; k >= si; k-- {
		b := bars[k]
		opposite := (side == model.SideBullish && b.Bearish()) ||
			(side == model.SideBearish && b.Bullish())
		if opposite {
			return model.POI{
				Top:       b.High,
				Bottom:    b.Low,
				Kind:      model.POIOrderBlock,
				Quality:   qualityOrderBlock,
				CreatedAt: barClose(b),
			}
		}
	}
	m := bars[mi]
	return model.POI{
		Top:       m.High,
		Bottom:    m.Low,
		Kind:      model.POIMSSCandle,
		Quality:   qualityFallback,
		CreatedAt: barClose(m),
	}
}

func displacement(bars []model.Bar, cfg Config, mi int, atr float64, side model.Side) model.Displacement {
	body := bars[mi].Body()
	d := model.Displacement{
		BodyFactor: body / atr,
		ATRZ:       bodyZScore(bars, mi, cfg.SwingWindow, body),
	}
	if gap, ok := FVGAt(bars, mi); ok && gap.Bullish == (side == model.SideBullish) {
		d.GapSize = gap.Size
	}
	return d
}

// bodyZScore normalizes the MSS body against the trailing window of bodies.
func bodyZScore(bars []model.Bar, mi, window int, body float64) float64 {
	start := mi - window
	if start < 0 {
		start = 0
	}
	n := mi - start
	if n < 2 {
		return 0
	}
	var sum float64
	for k := start; k < mi; k++ {
		sum += bars[k].Body()
	}
	mean := sum / float64(n)
	var varSum float64
	for k := start; k < mi; k++ {
		dv := bars[k].Body() - mean
		varSum += dv * dv
	}
	std := math.Sqrt(varSum / float64(n))
	if std == 0 {
		return 0
	}
	return (body - mean) / std
}

// legExtremes returns the high and low of the displacement leg from the
// sweep bar through the MSS bar.
func legExtremes(bars []model.Bar, si, mi int) (hi, lo float64) {
	hi, lo = bars[si].High, bars[si].Low
	for k := si + 1; k <= mi; k++ {
		if bars[k].High > hi {
			hi = bars[k].High
		}
		if bars[k].Low < lo {
			lo = bars[k].Low
		}
	}
	return hi, lo
}

// barClose returns the close time of a bar (bucket start + duration).
func barClose(b model.Bar) time.Time {
	return b.TS.Add(b.TF.Duration())
}
