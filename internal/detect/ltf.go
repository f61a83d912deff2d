package detect

import (
	"time"

	"mss-enginev1/internal/model"
)

// DetectLTF runs the shared core over a lower-timeframe window looking for a
// confirmation of an existing, unexpired HTF context. The confirmation must:
//
//   - match the context's side,
//   - retrace into the 0.618–0.79 OTE band of the LTF displacement leg,
//   - land its entry inside the HTF point of interest,
//   - price out at or above the minimum reward-to-risk.
//
// Any failed requirement yields nil, never an error.
func DetectLTF(bars []model.Bar, cfg Config, atr float64, ctx *model.HTFMSSEvent, now time.Time) *model.LTFConfirmEvent {
	if ctx == nil || ctx.Expired(now) {
		return nil
	}
	sh := FindShift(bars, cfg, atr)
	if sh == nil || sh.Side != ctx.Side {
		return nil
	}

	last := bars[len(bars)-1]
	entry := last.Close
	leg := sh.SwingHigh - sh.SwingLow
	if leg <= 0 {
		return nil
	}

	// Retracement depth off the displacement leg, measured from the break
	// extreme back toward the sweep extreme.
	var retrace float64
	var stop, target float64
	pip := model.PipSize(last.Symbol)
	if ctx.Side == model.SideBullish {
		retrace = (sh.SwingHigh - entry) / leg
		stop = sh.SwingLow - pip
		target = sh.SwingHigh
	} else {
		retrace = (entry - sh.SwingLow) / leg
		stop = sh.SwingHigh + pip
		target = sh.SwingLow
	}
	if retrace < cfg.OTELow || retrace > cfg.OTEHigh {
		return nil
	}
	if !ctx.POI.Contains(entry) {
		return nil
	}

	ev := &model.LTFConfirmEvent{
		Symbol:       last.Symbol,
		Side:         ctx.Side,
		EntryPrice:   entry,
		StopLoss:     stop,
		TakeProfit:   target,
		POI:          sh.POI,
		Displacement: sh.Displacement,
		DetectedAt:   barClose(last),
	}
	if ev.RewardRisk() < cfg.MinRR {
		return nil
	}
	return ev
}
