package model

import (
	"fmt"
	"time"
)

// Timeframe is a bar duration expressed in minutes.
type Timeframe int

// Supported timeframes.
const (
	M1  Timeframe = 1
	M5  Timeframe = 5
	M15 Timeframe = 15
	M30 Timeframe = 30
	H1  Timeframe = 60
	H4  Timeframe = 240
	D1  Timeframe = 1440
	W1  Timeframe = 10080
	MN1 Timeframe = 43200
)

// Duration returns the bar duration.
func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf) * time.Minute
}

// Minutes returns the timeframe length in minutes.
func (tf Timeframe) Minutes() int { return int(tf) }

// Swing reports whether the timeframe is large enough that session phases
// are measured in weekdays rather than intraday hours.
func (tf Timeframe) Swing() bool { return tf >= H4 }

func (tf Timeframe) String() string {
	switch tf {
	case M1:
		return "M1"
	case M5:
		return "M5"
	case M15:
		return "M15"
	case M30:
		return "M30"
	case H1:
		return "H1"
	case H4:
		return "H4"
	case D1:
		return "D1"
	case W1:
		return "W1"
	case MN1:
		return "MN1"
	default:
		return fmt.Sprintf("TF%d", int(tf))
	}
}

// ErrUnsupportedTimeframe is returned when a trading timeframe has no
// higher-timeframe mapping. This indicates a setup mistake, not a runtime
// data condition, so it surfaces as a hard error.
var ErrUnsupportedTimeframe = fmt.Errorf("unsupported trading timeframe")

// TimeframePlan binds a trading timeframe to the two higher timeframes used
// for bias/liquidity analysis and the lower timeframe used for entry
// confirmation.
type TimeframePlan struct {
	Trading Timeframe
	HTF1    Timeframe // primary bias timeframe
	HTF2    Timeframe // secondary bias timeframe
	LTF     Timeframe // confirmation timeframe
}

// tfPlans maps each supported trading timeframe to its plan.
var tfPlans = map[Timeframe]TimeframePlan{
	M1:  {Trading: M1, HTF1: M15, HTF2: H1, LTF: M1},
	M5:  {Trading: M5, HTF1: H1, HTF2: H4, LTF: M1},
	M15: {Trading: M15, HTF1: H4, HTF2: D1, LTF: M1},
	M30: {Trading: M30, HTF1: H4, HTF2: D1, LTF: M5},
	H1:  {Trading: H1, HTF1: D1, HTF2: W1, LTF: M5},
	H4:  {Trading: H4, HTF1: W1, HTF2: MN1, LTF: M15},
}

// PlanFor resolves the timeframe plan for a trading timeframe.
// Returns ErrUnsupportedTimeframe for anything outside the map.
func PlanFor(trading Timeframe) (TimeframePlan, error) {
	p, ok := tfPlans[trading]
	if !ok {
		return TimeframePlan{}, fmt.Errorf("%w: %s", ErrUnsupportedTimeframe, trading)
	}
	return p, nil
}

// SupportedTimeframes returns the trading timeframes with a plan, unordered.
func SupportedTimeframes() []Timeframe {
	out := make([]Timeframe, 0, len(tfPlans))
	for tf := range tfPlans {
		out = append(out, tf)
	}
	return out
}
