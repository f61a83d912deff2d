package orchestrator

import (
	"time"

	"mss-enginev1/internal/model"
)

// Score component caps. The total is always clamped to [0, 100].
const (
	maxDisplacementScore = 30.0
	alignmentScore       = 20.0
	maxPOIQualityScore   = 20.0
	insidePOIBonus       = 10.0
	maxFreshnessScore    = 10.0
	structBreakScore     = 10.0
)

// Breakdown labels each score component for diagnostics.
type Breakdown map[string]float64

// score rates a combined HTF context + LTF confirmation from 0 to 100.
func score(htf *model.HTFMSSEvent, ltf *model.LTFConfirmEvent, now time.Time, poiMaxAge time.Duration) (float64, Breakdown) {
	bd := make(Breakdown, 6)

	// Displacement: body factor and ATR z-score share the 30 points.
	body := htf.Displacement.BodyFactor * 6
	if body > 18 {
		body = 18
	}
	z := htf.Displacement.ATRZ * 4
	if z < 0 {
		z = 0
	}
	if z > 12 {
		z = 12
	}
	bd["displacement"] = body + z

	if ltf.Side == htf.Side {
		bd["alignment"] = alignmentScore
	}

	q := htf.POI.Quality / 100 * maxPOIQualityScore
	if q > maxPOIQualityScore {
		q = maxPOIQualityScore
	}
	if q < 0 {
		q = 0
	}
	bd["poi_quality"] = q

	if htf.POI.Contains(ltf.EntryPrice) {
		bd["inside_poi"] = insidePOIBonus
	}

	// POI freshness decays linearly to zero over the max-aging window.
	if poiMaxAge > 0 {
		age := now.Sub(htf.POI.CreatedAt)
		if age < 0 {
			age = 0
		}
		f := 1 - float64(age)/float64(poiMaxAge)
		if f < 0 {
			f = 0
		}
		bd["freshness"] = f * maxFreshnessScore
	}

	if htf.StructBreak.Level != 0 {
		bd["struct_break"] = structBreakScore
	}

	var total float64
	for _, v := range bd {
		total += v
	}
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}
	return total, bd
}
