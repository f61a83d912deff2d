package model

import "time"

// Side is the trade direction implied by a structure shift.
type Side string

const (
	SideBullish Side = "BULLISH"
	SideBearish Side = "BEARISH"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBullish {
		return SideBearish
	}
	return SideBullish
}

// Direction is the direction of a price excursion.
type Direction string

const (
	DirUp   Direction = "UP"
	DirDown Direction = "DOWN"
)

// RefKind tags a liquidity reference as resting above price (supply, built
// from highs) or below price (demand, built from lows).
type RefKind string

const (
	RefSupply RefKind = "SUPPLY"
	RefDemand RefKind = "DEMAND"
)

// LiquidityReference is one significant price level used as a sweep target.
// References are recomputed from scratch each evaluation cycle and never
// mutated in place.
type LiquidityReference struct {
	Label      string    `json:"label"` // e.g. "PDH", "SESSION_LOW", "H4_PREV_HIGH"
	Level      float64   `json:"level"`
	Kind       RefKind   `json:"kind"`
	SourceTF   Timeframe `json:"source_tf"`
	ComputedAt time.Time `json:"computed_at"`
}

// SweepEvent records a liquidity grab: a bar traded through a reference
// level and a later bar closed back inside within the confirmation window.
type SweepEvent struct {
	Time         time.Time `json:"time"`
	Direction    Direction `json:"direction"`
	RefLabel     string    `json:"ref_label"`
	RefLevel     float64   `json:"ref_level"`
	SweepPrice   float64   `json:"sweep_price"` // extreme of the sweeping bar
	ClosePrice   float64   `json:"close_price"` // close that confirmed the reversal
	Displacement float64   `json:"displacement"`
}

// POIKind classifies a point-of-interest zone.
type POIKind string

const (
	POIOrderBlock POIKind = "ORDER_BLOCK"
	POIFVG        POIKind = "FVG"
	POIMSSCandle  POIKind = "MSS_CANDLE" // fallback when no opposite candle exists
)

// POI is a price zone expected to attract a retracement.
// Quality is 0–100; the MSS-candle fallback gets a reduced quality.
type POI struct {
	Top       float64   `json:"top"`
	Bottom    float64   `json:"bottom"`
	Kind      POIKind   `json:"kind"`
	Quality   float64   `json:"quality"`
	CreatedAt time.Time `json:"created_at"`
}

// Contains reports whether price falls inside the zone, inclusive.
func (p POI) Contains(price float64) bool {
	return price >= p.Bottom && price <= p.Top
}

// Displacement captures how violent the MSS candle was, normalized to ATR.
type Displacement struct {
	BodyFactor float64 `json:"body_factor"` // body / ATR
	GapSize    float64 `json:"gap_size"`    // FVG size, 0 when absent
	ATRZ       float64 `json:"atr_z"`       // body z-score against recent bodies
}

// StructBreak describes the swing level whose close-through confirmed
// the shift.
type StructBreak struct {
	Level        float64 `json:"level"`
	Distance     float64 `json:"distance"`      // close minus level, absolute
	DistancePips float64 `json:"distance_pips"` // distance in symbol pips
}

// HTFMSSEvent is a higher-timeframe market structure shift. It serves as
// directional context for the lower-timeframe confirmation and is discarded
// once Now exceeds ValidUntil.
type HTFMSSEvent struct {
	Symbol       string       `json:"symbol"`
	Side         Side         `json:"side"`
	POI          POI          `json:"poi"`
	SweepRef     SweepEvent   `json:"sweep_ref"`
	Displacement Displacement `json:"displacement"`
	StructBreak  StructBreak  `json:"struct_break"`
	DetectedAt   time.Time    `json:"detected_at"`
	ValidUntil   time.Time    `json:"valid_until"`
}

// Expired reports whether the context can no longer be used. The boundary is
// inclusive: a confirmation arriving exactly at ValidUntil is still accepted.
func (e *HTFMSSEvent) Expired(now time.Time) bool {
	return now.After(e.ValidUntil)
}

// LTFConfirmEvent is a lower-timeframe confirmation of an HTF context,
// carrying a fully priced entry.
type LTFConfirmEvent struct {
	Symbol       string       `json:"symbol"`
	Side         Side         `json:"side"`
	EntryPrice   float64      `json:"entry_price"`
	StopLoss     float64      `json:"stop_loss"`
	TakeProfit   float64      `json:"take_profit"`
	POI          POI          `json:"poi"`
	Displacement Displacement `json:"displacement"`
	DetectedAt   time.Time    `json:"detected_at"`
}

// RewardRisk returns the reward-to-risk ratio of the priced entry.
// Returns 0 when the stop distance is degenerate.
func (e *LTFConfirmEvent) RewardRisk() float64 {
	risk := e.EntryPrice - e.StopLoss
	reward := e.TakeProfit - e.EntryPrice
	if e.Side == SideBearish {
		risk, reward = -risk, -reward
	}
	if risk <= 0 {
		return 0
	}
	return reward / risk
}
