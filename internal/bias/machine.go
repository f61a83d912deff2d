// Package bias implements the per-symbol directional bias state machine.
//
// The machine is the sole authority on current bias. It advances once per
// closed trading-timeframe bar through the strict sequence
//
//	Idle → HtfBiasSet → AwaitingSweep → SweepDetected → MssConfirmed →
//	ReadyForEntry → (Invalidated → Idle)
//
// consuming detector primitives and liquidity references, and emitting
// gate/event signals on the bus. Evaluation is synchronous and
// single-goroutine per symbol; "now" is always caller-supplied.
package bias

import (
	"log/slog"
	"time"

	"mss-enginev1/internal/detect"
	"mss-enginev1/internal/gatebus"
	"mss-enginev1/internal/model"
	"mss-enginev1/internal/session"
)

// State is the tagged bias progression state.
type State string

const (
	StateIdle          State = "IDLE"
	StateHtfBiasSet    State = "HTF_BIAS_SET"
	StateAwaitingSweep State = "AWAITING_SWEEP"
	StateSweepDetected State = "SWEEP_DETECTED"
	StateMssConfirmed  State = "MSS_CONFIRMED"
	StateReadyForEntry State = "READY_FOR_ENTRY"
	StateInvalidated   State = "INVALIDATED"
)

// Config tunes the bias machine's numeric policy.
type Config struct {
	BreakFactor      float64       // sweep must exceed the reference by BreakFactor × ATR
	ConfirmBars      int           // bars allowed for the close back inside
	DispMult         float64       // sweep/MSS displacement threshold in ATR
	FlipThresh       float64       // invalidation excursion in ATR
	SwingLookback    int           // swing window for the MSS confirmation
	CandidateTimeout time.Duration // pending confirmation expiry
}

// DefaultConfig returns the standard bias parameters.
func DefaultConfig() Config {
	return Config{
		BreakFactor:      0.25,
		ConfirmBars:      3,
		DispMult:         0.5,
		FlipThresh:       1.5,
		SwingLookback:    20,
		CandidateTimeout: 300 * time.Minute,
	}
}

// Input carries one evaluation cycle's data.
type Input struct {
	Now  time.Time
	Bars []model.Bar // completed trading-TF bars, oldest-first
	ATR  float64
	Refs []model.LiquidityReference
}

// Machine is the per-symbol bias state machine. Exactly one instance exists
// per traded symbol; it is that symbol's only bias mutator.
type Machine struct {
	symbol string
	plan   model.TimeframePlan
	cfg    Config
	bus    *gatebus.Bus
	src    model.MarketDataSource

	state          State
	confirmedBias  model.Side // "" while unconfirmed
	confidence     model.Confidence
	sweep          *model.SweepEvent
	candidateStart time.Time
	lastBarTS      time.Time
}

// New creates a bias machine for one symbol.
func New(symbol string, plan model.TimeframePlan, cfg Config, bus *gatebus.Bus, src model.MarketDataSource) *Machine {
	return &Machine{
		symbol: symbol,
		plan:   plan,
		cfg:    cfg,
		bus:    bus,
		src:    src,
		state:  StateIdle,
	}
}

// State returns the current progression state.
func (m *Machine) State() State { return m.state }

// ConfirmedBias returns the current bias and whether one is set.
func (m *Machine) ConfirmedBias() (model.Side, bool) {
	return m.confirmedBias, m.confirmedBias != ""
}

// Confidence returns the cross-timeframe agreement grade of the bias.
func (m *Machine) Confidence() model.Confidence { return m.confidence }

// Sweep returns the accepted sweep event, if any.
func (m *Machine) Sweep() *model.SweepEvent { return m.sweep }

// gate is the ENTRY gate module name for this symbol.
func (m *Machine) gate() string { return "entry:" + m.symbol }

// OnBarClose advances the machine for one closed trading-timeframe bar.
// Re-evaluating the same closed bar is a no-op (idempotent).
func (m *Machine) OnBarClose(in Input) {
	if len(in.Bars) == 0 {
		return // not ready
	}
	last := in.Bars[len(in.Bars)-1]
	if !last.TS.After(m.lastBarTS) {
		return // already processed this closed bar
	}
	m.lastBarTS = last.TS

	// An invalidated sequence resets on the next cycle; the confirmed bias
	// survives an ordinary reset.
	if m.state == StateInvalidated {
		m.clearCandidate()
		m.state = StateIdle
	}

	switch m.state {
	case StateIdle:
		m.evalIdle(in)
	case StateAwaitingSweep:
		m.evalAwaitingSweep(in)
	case StateSweepDetected:
		m.evalSweepDetected(in)
	case StateReadyForEntry:
		m.evalReadyForEntry(in)
	}
}

// evalIdle establishes (or re-arms) the HTF bias.
func (m *Machine) evalIdle(in Input) {
	if m.confirmedBias == "" {
		// Bias may only be established during Accumulation.
		if session.PhaseAt(in.Now, m.plan.Trading) != session.PhaseAccumulation {
			return
		}
		side, conf, ok := m.htfBias()
		if !ok {
			return
		}
		m.confirmedBias = side
		m.confidence = conf
		m.state = StateHtfBiasSet
		m.bus.Emit("BIAS_SET", in.Now, map[string]any{
			"symbol":     m.symbol,
			"side":       string(side),
			"confidence": string(conf),
		})
	} else {
		// Bias preserved across a reset: re-enter the sequence directly.
		m.state = StateHtfBiasSet
	}

	// HtfBiasSet → AwaitingSweep is unconditional and immediate.
	m.state = StateAwaitingSweep
}

// htfBias evaluates the two higher timeframes' last two completed candles.
// A higher-high/higher-low pattern on the primary HTF sets a bullish bias,
// lower-high/lower-low a bearish one; an opposing pattern on the secondary
// HTF vetoes. Confidence comes from candle-body direction agreement.
func (m *Machine) htfBias() (model.Side, model.Confidence, bool) {
	h1 := m.src.Bars(m.symbol, m.plan.HTF1)
	h2 := m.src.Bars(m.symbol, m.plan.HTF2)
	if len(h1) < 2 || len(h2) < 2 {
		return "", "", false // not ready
	}

	side, ok := structurePattern(h1[len(h1)-2], h1[len(h1)-1])
	if !ok {
		return "", "", false
	}
	if s2, ok2 := structurePattern(h2[len(h2)-2], h2[len(h2)-1]); ok2 && s2 != side {
		return "", "", false // higher timeframes disagree on structure
	}

	agree := 0
	if bodyAgrees(h1[len(h1)-1], side) {
		agree++
	}
	if bodyAgrees(h2[len(h2)-1], side) {
		agree++
	}
	conf := model.ConfidenceLow
	switch agree {
	case 1:
		conf = model.ConfidenceBase
	case 2:
		conf = model.ConfidenceHigh
	}
	return side, conf, true
}

// structurePattern classifies two consecutive candles: HH/HL bullish,
// LH/LL bearish, anything mixed is no pattern.
func structurePattern(prev, cur model.Bar) (model.Side, bool) {
	switch {
	case cur.High > prev.High && cur.Low > prev.Low:
		return model.SideBullish, true
	case cur.High < prev.High && cur.Low < prev.Low:
		return model.SideBearish, true
	default:
		return "", false
	}
}

func bodyAgrees(b model.Bar, side model.Side) bool {
	if side == model.SideBullish {
		return b.Bullish()
	}
	return b.Bearish()
}

// evalAwaitingSweep looks for a sweep opposite to the confirmed bias
// against the current liquidity references.
func (m *Machine) evalAwaitingSweep(in Input) {
	if in.ATR <= 0 || len(in.Refs) == 0 {
		return
	}
	sweep := m.findSweep(in)
	if sweep == nil {
		return
	}
	m.sweep = sweep
	m.candidateStart = in.Now
	m.state = StateSweepDetected
	m.bus.Emit("SWEEP_DETECTED", in.Now, map[string]any{
		"symbol": m.symbol,
		"ref":    sweep.RefLabel,
		"level":  sweep.RefLevel,
		"price":  sweep.SweepPrice,
	})

	// Same-cycle follow-through: the sweep bar window may already contain
	// the structural break.
	m.evalSweepDetected(in)
}

// findSweep scans the recent window for a reference-level sweep opposite to
// the confirmed bias: excursion beyond BreakFactor × ATR, close back inside
// within ConfirmBars, displacement at least DispMult × ATR.
func (m *Machine) findSweep(in Input) *model.SweepEvent {
	bars := in.Bars
	scan := m.cfg.ConfirmBars + 2
	start := len(bars) - scan
	if start < 0 {
		start = 0
	}

	// A bullish bias waits on a sweep of demand (direction down);
	// a bearish bias waits on a sweep of supply (direction up).
	wantDemand := m.confirmedBias == model.SideBullish

	for _, ref := range in.Refs {
		if wantDemand != (ref.Kind == model.RefDemand) {
			continue
		}
		for i := start; i < len(bars); i++ {
			b := bars[i]
			var excursion float64
			if wantDemand {
				excursion = ref.Level - b.Low
			} else {
				excursion = b.High - ref.Level
			}
			if excursion < m.cfg.BreakFactor*in.ATR || excursion < m.cfg.DispMult*in.ATR {
				continue
			}
			// Close back inside within the confirmation window (the
			// sweeping bar itself may confirm).
			kEnd := i + m.cfg.ConfirmBars
			if kEnd > len(bars)-1 {
				kEnd = len(bars) - 1
			}
			for k := i; k <= kEnd; k++ {
				inside := bars[k].Close > ref.Level
				dir := model.DirDown
				sweepPrice := b.Low
				if !wantDemand {
					inside = bars[k].Close < ref.Level
					dir = model.DirUp
					sweepPrice = b.High
				}
				if !inside {
					continue
				}
				return &model.SweepEvent{
					Time:         barCloseTime(bars[k]),
					Direction:    dir,
					RefLabel:     ref.Label,
					RefLevel:     ref.Level,
					SweepPrice:   sweepPrice,
					ClosePrice:   bars[k].Close,
					Displacement: excursion,
				}
			}
		}
	}
	return nil
}

// evalSweepDetected waits for the displaced structural break in the bias
// direction, with a valid fair value gap, or times the candidate out.
func (m *Machine) evalSweepDetected(in Input) {
	if m.cfg.CandidateTimeout > 0 && in.Now.Sub(m.candidateStart) > m.cfg.CandidateTimeout {
		slog.Debug("bias candidate timed out",
			"symbol", m.symbol, "pending_since", m.candidateStart)
		m.invalidate(in.Now, "candidate_timeout")
		return
	}
	if in.ATR <= 0 {
		return
	}

	brk, ok := m.confirmMSS(in)
	if !ok {
		return
	}
	m.state = StateMssConfirmed
	m.bus.Emit("MSS_CONFIRMED", in.Now, map[string]any{
		"symbol": m.symbol,
		"side":   string(m.confirmedBias),
		"level":  brk.Level,
		"pips":   brk.DistancePips,
	})

	// MssConfirmed → ReadyForEntry is unconditional; open the ENTRY gate.
	m.state = StateReadyForEntry
	m.bus.OpenGate(m.gate(), in.Now)
	m.bus.Emit("READY_FOR_ENTRY", in.Now, map[string]any{
		"symbol": m.symbol,
		"side":   string(m.confirmedBias),
	})
}

// confirmMSS checks the last closed bar for a displaced break of the recent
// swing extreme in the bias direction, carrying a fair value gap.
func (m *Machine) confirmMSS(in Input) (model.StructBreak, bool) {
	bars := in.Bars
	last := len(bars) - 1
	if last < m.cfg.SwingLookback {
		return model.StructBreak{}, false
	}
	b := bars[last]
	if b.Body() < m.cfg.DispMult*in.ATR {
		return model.StructBreak{}, false
	}

	var level float64
	if m.confirmedBias == model.SideBullish {
		hi, ok := detect.SwingHigh(bars, last, m.cfg.SwingLookback)
		if !ok || !b.Bullish() || b.Close <= hi {
			return model.StructBreak{}, false
		}
		level = hi
	} else {
		lo, ok := detect.SwingLow(bars, last, m.cfg.SwingLookback)
		if !ok || !b.Bearish() || b.Close >= lo {
			return model.StructBreak{}, false
		}
		level = lo
	}

	gap, ok := detect.FVGAt(bars, last)
	if !ok || gap.Bullish != (m.confirmedBias == model.SideBullish) {
		slog.Debug("structural break without fair value gap rejected",
			"symbol", m.symbol, "level", level)
		return model.StructBreak{}, false
	}

	dist := b.Close - level
	if dist < 0 {
		dist = -dist
	}
	return model.StructBreak{
		Level:        level,
		Distance:     dist,
		DistancePips: dist / model.PipSize(m.symbol),
	}, true
}

// evalReadyForEntry holds the gate open until an opposite excursion beyond
// FlipThresh × ATR invalidates the sequence.
func (m *Machine) evalReadyForEntry(in Input) {
	if in.ATR <= 0 || m.sweep == nil {
		return
	}
	b := in.Bars[len(in.Bars)-1]
	flip := m.cfg.FlipThresh * in.ATR

	var flipped bool
	if m.confirmedBias == model.SideBullish {
		flipped = b.Low < m.sweep.SweepPrice-flip
	} else {
		flipped = b.High > m.sweep.SweepPrice+flip
	}
	if flipped {
		m.invalidate(in.Now, "opposite_sweep")
	}
}

// invalidate routes through the normal state-reset path: gate closes, the
// candidate is discarded, the confirmed bias survives.
func (m *Machine) invalidate(now time.Time, reason string) {
	m.state = StateInvalidated
	m.bus.CloseGate(m.gate(), now)
	m.bus.Emit("BIAS_INVALIDATED", now, map[string]any{
		"symbol": m.symbol,
		"reason": reason,
	})
}

// clearCandidate discards in-flight sweep/candidate data.
func (m *Machine) clearCandidate() {
	m.sweep = nil
	m.candidateStart = time.Time{}
}

// ResetDaily performs the daily-boundary reset: full return to Idle with the
// confirmed bias explicitly cleared.
func (m *Machine) ResetDaily(now time.Time) {
	m.clearCandidate()
	m.state = StateIdle
	m.confirmedBias = ""
	m.confidence = ""
	m.bus.CloseGate(m.gate(), now)
	m.bus.Emit("BIAS_RESET", now, map[string]any{"symbol": m.symbol})
}

func barCloseTime(b model.Bar) time.Time {
	return b.TS.Add(b.TF.Duration())
}
