// Package orchestrator couples a higher-timeframe MSS detection with a later
// lower-timeframe confirmation inside a validity window, scores the combined
// setup, and enforces risk/session/limit gates before approving a signal.
//
// The orchestrator is a per-symbol state machine:
//
//	Idle → HtfAwaitLtf → ReadyToFire → InTrade → Cooldown → Idle
//
// All timers (context expiry, cooldown) are evaluated lazily on Tick — there
// is no background scheduler and "now" is always caller-supplied.
package orchestrator

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mss-enginev1/internal/gatebus"
	"mss-enginev1/internal/model"
	"mss-enginev1/internal/session"
)

// State is the orchestration progression state.
type State string

const (
	StateIdle        State = "IDLE"
	StateHtfAwaitLtf State = "HTF_AWAIT_LTF"
	StateReadyToFire State = "READY_TO_FIRE"
	StateInTrade     State = "IN_TRADE"
	StateCooldown    State = "COOLDOWN"
)

// Config tunes HTF acceptance minima, policy gates, and cooldowns.
type Config struct {
	MinBodyFactor float64 // reject HTF contexts with weaker displacement
	MinATRZ       float64

	MinRR           float64 // reward-to-risk policy gate
	SessionFilter   bool
	AllowedSessions []session.Session
	RequirePOIEntry bool // reject confirmations outside the HTF POI

	MaxOpenPositions int
	MaxDailyTrades   int

	CancelOnOpposite bool
	POIMaxAge        time.Duration

	CooldownWin  time.Duration
	CooldownLoss time.Duration
}

// DefaultConfig returns the standard orchestration parameters.
func DefaultConfig() Config {
	return Config{
		MinBodyFactor:    1.0,
		MinATRZ:          0.0,
		MinRR:            1.5,
		SessionFilter:    true,
		AllowedSessions:  []session.Session{session.SessionLondon, session.SessionOverlap, session.SessionNewYork},
		RequirePOIEntry:  true,
		MaxOpenPositions: 1,
		MaxDailyTrades:   3,
		CancelOnOpposite: true,
		POIMaxAge:        24 * time.Hour,
		CooldownWin:      30 * time.Minute,
		CooldownLoss:     90 * time.Minute,
	}
}

// Context aggregates one HTF detection with, once available, its LTF
// confirmation and score. Exactly one active context exists per symbol.
type Context struct {
	HTF       *model.HTFMSSEvent
	LTF       *model.LTFConfirmEvent
	Score     float64
	Breakdown Breakdown
}

// Orchestrator is the per-symbol scoring and gating state machine.
type Orchestrator struct {
	symbol  string
	cfg     Config
	bus     *gatebus.Bus
	gateway model.OrderGateway

	state         State
	ctx           *Context
	signal        *model.TradeSignal
	cooldownUntil time.Time
}

// New creates an orchestrator for one symbol.
func New(symbol string, cfg Config, bus *gatebus.Bus, gateway model.OrderGateway) *Orchestrator {
	return &Orchestrator{
		symbol:  symbol,
		cfg:     cfg,
		bus:     bus,
		gateway: gateway,
		state:   StateIdle,
	}
}

// State returns the current orchestration state.
func (o *Orchestrator) State() State { return o.state }

// Context returns the active MSS context, if any.
func (o *Orchestrator) Context() *Context { return o.ctx }

// Signal returns the approved signal while in ReadyToFire, else nil.
func (o *Orchestrator) Signal() *model.TradeSignal {
	if o.state != StateReadyToFire {
		return nil
	}
	return o.signal
}

// Tick performs lazy timer evaluation: cooldown expiry and HTF context
// expiry. Called once per closed-bar cycle before any detection is offered.
func (o *Orchestrator) Tick(now time.Time) {
	switch o.state {
	case StateCooldown:
		if now.After(o.cooldownUntil) {
			o.state = StateIdle
			o.bus.Emit("COOLDOWN_EXPIRED", now, map[string]any{"symbol": o.symbol})
		}
	case StateHtfAwaitLtf:
		if o.ctx != nil && o.ctx.HTF.Expired(now) {
			slog.Debug("htf context expired", "symbol", o.symbol, "valid_until", o.ctx.HTF.ValidUntil)
			o.dropContext(now, "context_expired")
		}
	}
}

// OnHTFDetection offers a new HTF context. Rejected during cooldown and when
// displacement is below the configured minima. A same-side detection
// supersedes the active context; an opposite-side detection cancels it when
// configured to, otherwise it is ignored.
func (o *Orchestrator) OnHTFDetection(ev *model.HTFMSSEvent, now time.Time) {
	if ev == nil {
		return
	}
	switch o.state {
	case StateCooldown:
		slog.Debug("htf detection rejected during cooldown", "symbol", o.symbol)
		return
	case StateReadyToFire, StateInTrade:
		return
	}
	if ev.Displacement.BodyFactor < o.cfg.MinBodyFactor || ev.Displacement.ATRZ < o.cfg.MinATRZ {
		slog.Debug("htf detection below displacement minima",
			"symbol", o.symbol,
			"body_factor", ev.Displacement.BodyFactor,
			"atr_z", ev.Displacement.ATRZ)
		return
	}

	if o.ctx != nil && o.ctx.HTF.Side != ev.Side {
		if !o.cfg.CancelOnOpposite {
			return
		}
		o.dropContext(now, "opposite_side_detection")
	}

	o.ctx = &Context{HTF: ev}
	o.state = StateHtfAwaitLtf
	o.bus.Emit("HTF_CONTEXT_SET", now, map[string]any{
		"symbol":      o.symbol,
		"side":        string(ev.Side),
		"valid_until": ev.ValidUntil,
	})
}

// OnLTFConfirm offers a lower-timeframe confirmation. Ignored unless
// awaiting one; rejected on expiry (strictly: now past ValidUntil), side
// mismatch, entry outside the HTF POI (when refinement is on), or any
// failing policy gate. On success the signal is staged and the state moves
// to ReadyToFire.
func (o *Orchestrator) OnLTFConfirm(ev *model.LTFConfirmEvent, now time.Time) {
	if ev == nil || o.state != StateHtfAwaitLtf || o.ctx == nil {
		return
	}
	htf := o.ctx.HTF
	if htf.Expired(now) {
		o.dropContext(now, "context_expired")
		return
	}
	if ev.Side != htf.Side {
		slog.Debug("ltf confirmation side mismatch",
			"symbol", o.symbol, "ltf", ev.Side, "htf", htf.Side)
		return
	}
	if o.cfg.RequirePOIEntry && !htf.POI.Contains(ev.EntryPrice) {
		slog.Debug("ltf entry outside htf poi", "symbol", o.symbol, "entry", ev.EntryPrice)
		return
	}

	total, bd := score(htf, ev, now, o.cfg.POIMaxAge)
	o.ctx.LTF = ev
	o.ctx.Score = total
	o.ctx.Breakdown = bd

	if reason, ok := o.gateCheck(ev, now); !ok {
		slog.Debug("signal rejected by policy gate", "symbol", o.symbol, "reason", reason)
		o.bus.Emit("SIGNAL_REJECTED", now, map[string]any{
			"symbol": o.symbol,
			"reason": reason,
			"score":  total,
		})
		return
	}

	o.signal = &model.TradeSignal{
		ID:         uuid.NewString(),
		Symbol:     o.symbol,
		Side:       ev.Side,
		EntryPrice: ev.EntryPrice,
		StopLoss:   ev.StopLoss,
		TakeProfit: ev.TakeProfit,
		Label:      "MSS_" + string(ev.Side),
		Score:      total,
		IssuedAt:   now,
	}
	o.state = StateReadyToFire
	o.bus.Emit("READY_TO_FIRE", now, map[string]any{
		"symbol":    o.symbol,
		"side":      string(ev.Side),
		"score":     total,
		"breakdown": map[string]float64(bd),
	})
}

// gateCheck applies the policy gates after scoring. Each gate independently
// rejects the signal with a reason.
func (o *Orchestrator) gateCheck(ev *model.LTFConfirmEvent, now time.Time) (string, bool) {
	if rr := ev.RewardRisk(); rr < o.cfg.MinRR {
		return "rr_below_minimum", false
	}
	if o.cfg.SessionFilter {
		cur := session.Current(now)
		allowed := false
		for _, s := range o.cfg.AllowedSessions {
			if s == cur {
				allowed = true
				break
			}
		}
		if !allowed {
			return "session_not_allowed", false
		}
	}
	if o.cfg.MaxOpenPositions > 0 && o.gateway.OpenPositions(o.symbol) >= o.cfg.MaxOpenPositions {
		return "max_open_positions", false
	}
	if o.cfg.MaxDailyTrades > 0 && o.gateway.TradesToday(o.symbol) >= o.cfg.MaxDailyTrades {
		return "max_daily_trades", false
	}
	return "", true
}

// OnTradeOpened records that the staged signal was accepted by the gateway.
func (o *Orchestrator) OnTradeOpened(now time.Time) {
	if o.state != StateReadyToFire {
		return
	}
	o.state = StateInTrade
	o.bus.Emit("TRADE_OPENED", now, map[string]any{"symbol": o.symbol})
}

// OnSignalDropped records that the staged signal was refused downstream
// (admission layer or gateway); the orchestrator returns to Idle.
func (o *Orchestrator) OnSignalDropped(now time.Time, reason string) {
	if o.state != StateReadyToFire {
		return
	}
	o.signal = nil
	o.ctx = nil
	o.state = StateIdle
	o.bus.Emit("SIGNAL_DROPPED", now, map[string]any{"symbol": o.symbol, "reason": reason})
}

// OnTradeClosed transitions to cooldown; losses cool longer than wins.
func (o *Orchestrator) OnTradeClosed(now time.Time, won bool) {
	if o.state != StateInTrade {
		return
	}
	d := o.cfg.CooldownLoss
	if won {
		d = o.cfg.CooldownWin
	}
	o.signal = nil
	o.ctx = nil
	o.state = StateCooldown
	o.cooldownUntil = now.Add(d)
	o.bus.Emit("COOLDOWN_STARTED", now, map[string]any{
		"symbol": o.symbol,
		"won":    won,
		"until":  o.cooldownUntil,
	})
}

// dropContext discards the active context and returns to Idle.
func (o *Orchestrator) dropContext(now time.Time, reason string) {
	o.ctx = nil
	o.signal = nil
	o.state = StateIdle
	o.bus.Emit("CONTEXT_DROPPED", now, map[string]any{"symbol": o.symbol, "reason": reason})
}
