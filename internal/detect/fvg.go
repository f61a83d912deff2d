package detect

import "mss-enginev1/internal/model"

// FVG is a fair value gap: a price void between the candle two bars before
// the displacement candle and the displacement candle itself.
type FVG struct {
	Top     float64
	Bottom  float64
	Size    float64
	Bullish bool
}

// FVGAt checks for a fair value gap at index i (the displacement candle),
// measured against the candle at i-2.
// Bullish gap: low of bar i above high of bar i-2.
// Bearish gap: high of bar i below low of bar i-2.
func FVGAt(bars []model.Bar, i int) (FVG, bool) {
	if i < 2 || i >= len(bars) {
		return FVG{}, false
	}
	first, third := bars[i-2], bars[i]

	if third.Low > first.High {
		return FVG{
			Top:     third.Low,
			Bottom:  first.High,
			Size:    third.Low - first.High,
			Bullish: true,
		}, true
	}
	if third.High < first.Low {
		return FVG{
			Top:     first.Low,
			Bottom:  third.High,
			Size:    first.Low - third.High,
			Bullish: false,
		}, true
	}
	return FVG{}, false
}
