package engine

import (
	"math"
	"time"

	"mss-enginev1/internal/model"
)

// minReferences is the smallest reference set considered healthy
// (PDH/PDL plus both HTF candle pairs).
const minReferences = 6

// Check is one entry of the validation report.
type Check struct {
	Name   string `json:"name"`
	Pass   bool   `json:"pass"`
	Detail string `json:"detail,omitempty"`
}

// Report is the per-symbol compatibility checklist. It is advisory only and
// never blocks evaluation.
type Report struct {
	Symbol string  `json:"symbol"`
	At     string  `json:"at"`
	Checks []Check `json:"checks"`
}

// Pass reports whether every check passed.
func (r Report) Pass() bool {
	for _, c := range r.Checks {
		if !c.Pass {
			return false
		}
	}
	return true
}

// Validate runs the compatibility checklist for one symbol at now:
// gate bus usable, timeframe plan resolvable, liquidity references finite
// and present in minimum count, higher-timeframe data available.
func (e *Engine) Validate(symbol string, now time.Time) Report {
	r := Report{Symbol: symbol, At: now.UTC().Format(time.RFC3339)}
	ev, ok := e.evaluators[symbol]
	if !ok {
		r.Checks = append(r.Checks, Check{Name: "symbol_known", Detail: "no evaluator for symbol"})
		return r
	}
	r.Checks = append(r.Checks, Check{Name: "symbol_known", Pass: true})

	r.Checks = append(r.Checks, Check{
		Name: "gate_bus_initialized",
		Pass: e.bus.Initialized(),
	})

	_, err := model.PlanFor(e.cfg.TradingTF)
	c := Check{Name: "timeframe_plan", Pass: err == nil}
	if err != nil {
		c.Detail = err.Error()
	}
	r.Checks = append(r.Checks, c)

	refs := ev.refs.Compute(symbol, ev.plan, now)
	refCheck := Check{Name: "liquidity_references", Pass: true}
	if len(refs) < minReferences {
		refCheck.Pass = false
		refCheck.Detail = "insufficient references"
	}
	for _, ref := range refs {
		if math.IsNaN(ref.Level) || math.IsInf(ref.Level, 0) || ref.Level <= 0 {
			refCheck.Pass = false
			refCheck.Detail = "non-finite level: " + ref.Label
			break
		}
	}
	r.Checks = append(r.Checks, refCheck)

	htf1 := ev.series.Bars(symbol, ev.plan.HTF1)
	htf2 := ev.series.Bars(symbol, ev.plan.HTF2)
	htfCheck := Check{Name: "htf_data_present", Pass: len(htf1) >= 2 && len(htf2) >= 2}
	if !htfCheck.Pass {
		htfCheck.Detail = "fewer than two completed bars on a higher timeframe"
	}
	r.Checks = append(r.Checks, htfCheck)

	return r
}
