package detect

import (
	"time"

	"mss-enginev1/internal/model"
)

// DetectHTF runs the shared sweep/MSS core over a higher-timeframe window
// and, on success, binds the result into an HTF context event with a hard
// expiry of WindowCandles bar durations past detection.
// Returns nil when no complete detection exists.
func DetectHTF(bars []model.Bar, cfg Config, atr float64) *model.HTFMSSEvent {
	sh := FindShift(bars, cfg, atr)
	if sh == nil {
		return nil
	}

	mss := bars[sh.MSSIdx]
	detectedAt := barClose(mss)
	return &model.HTFMSSEvent{
		Symbol:       mss.Symbol,
		Side:         sh.Side,
		POI:          sh.POI,
		SweepRef:     sh.Sweep,
		Displacement: sh.Displacement,
		StructBreak:  sh.StructBreak,
		DetectedAt:   detectedAt,
		ValidUntil:   detectedAt.Add(time.Duration(cfg.WindowCandles) * mss.TF.Duration()),
	}
}
