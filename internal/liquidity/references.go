// Package liquidity computes the significant price levels used as sweep
// targets: previous-day extremes, session-window extremes, and the extremes
// of the current and previous completed higher-timeframe candles.
package liquidity

import (
	"time"

	"mss-enginev1/internal/model"
	"mss-enginev1/internal/session"
)

// DefaultSessionWindow is the reference session used for session extremes
// when none is configured (Asia into early London).
var DefaultSessionWindow = session.Window{StartHour: 0, EndHour: 9}

// Manager derives liquidity references from a bar source. It holds only
// configuration — every Compute call produces a fresh slice from the inputs,
// with no state carried between evaluation cycles.
type Manager struct {
	src    model.MarketDataSource
	window session.Window
}

// NewManager creates a reference manager over the given bar source.
func NewManager(src model.MarketDataSource) *Manager {
	return &Manager{src: src, window: DefaultSessionWindow}
}

// SetSessionWindow overrides the session extreme window.
func (m *Manager) SetSessionWindow(w session.Window) { m.window = w }

// Compute returns the ordered liquidity references for a symbol under the
// given timeframe plan at evaluation time now. Returns an empty slice —
// never an error — when any required timeframe has fewer than two completed
// bars; callers must treat empty as "not ready".
func (m *Manager) Compute(symbol string, plan model.TimeframePlan, now time.Time) []model.LiquidityReference {
	daily := m.src.Bars(symbol, model.D1)
	htf1 := m.src.Bars(symbol, plan.HTF1)
	htf2 := m.src.Bars(symbol, plan.HTF2)
	if len(daily) < 2 || len(htf1) < 2 || len(htf2) < 2 {
		return nil
	}

	refs := make([]model.LiquidityReference, 0, 10)

	// Previous completed day.
	prevDay := daily[len(daily)-1]
	if session.SameUTCDay(prevDay.TS, now) && len(daily) >= 2 {
		// Last stored daily bar belongs to today; step back one.
		prevDay = daily[len(daily)-2]
	}
	refs = append(refs,
		ref("PDH", prevDay.High, model.RefSupply, model.D1, now),
		ref("PDL", prevDay.Low, model.RefDemand, model.D1, now),
	)

	// Session-window extremes over today's trading-timeframe bars.
	if hi, lo, ok := m.sessionExtremes(symbol, plan.Trading, now); ok {
		refs = append(refs,
			ref("SESSION_HIGH", hi, model.RefSupply, plan.Trading, now),
			ref("SESSION_LOW", lo, model.RefDemand, plan.Trading, now),
		)
	}

	// Current + previous completed candle extremes for both higher TFs.
	for _, htf := range []struct {
		tf   model.Timeframe
		bars []model.Bar
	}{{plan.HTF1, htf1}, {plan.HTF2, htf2}} {
		cur := htf.bars[len(htf.bars)-1]
		prev := htf.bars[len(htf.bars)-2]
		name := htf.tf.String()
		refs = append(refs,
			ref(name+"_CUR_HIGH", cur.High, model.RefSupply, htf.tf, now),
			ref(name+"_CUR_LOW", cur.Low, model.RefDemand, htf.tf, now),
			ref(name+"_PREV_HIGH", prev.High, model.RefSupply, htf.tf, now),
			ref(name+"_PREV_LOW", prev.Low, model.RefDemand, htf.tf, now),
		)
	}

	return refs
}

// sessionExtremes scans today's trading-TF bars inside the session window.
func (m *Manager) sessionExtremes(symbol string, tf model.Timeframe, now time.Time) (hi, lo float64, ok bool) {
	bars := m.src.Bars(symbol, tf)
	for i := len(bars) - 1; i >= 0; i-- {
		b := bars[i]
		if !session.SameUTCDay(b.TS, now) {
			break
		}
		if !m.window.Contains(b.TS) {
			continue
		}
		if !ok {
			hi, lo, ok = b.High, b.Low, true
			continue
		}
		if b.High > hi {
			hi = b.High
		}
		if b.Low < lo {
			lo = b.Low
		}
	}
	return hi, lo, ok
}

func ref(label string, level float64, kind model.RefKind, tf model.Timeframe, now time.Time) model.LiquidityReference {
	return model.LiquidityReference{
		Label:      label,
		Level:      level,
		Kind:       kind,
		SourceTF:   tf,
		ComputedAt: now,
	}
}
