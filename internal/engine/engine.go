// Package engine wires the per-symbol evaluation pipeline: bar ingestion and
// resampling, liquidity references, the bias state machine, HTF/LTF
// detection, orchestration, preset admission, and gateway submission.
//
// The engine ingests bars at the plan's lowest timeframe; trading-TF and
// higher-timeframe bars are derived by resampling. Each symbol owns an
// isolated evaluator; there is no cross-symbol shared mutable state.
package engine

import (
	"fmt"
	"log/slog"
	"time"

	"mss-enginev1/internal/bias"
	"mss-enginev1/internal/detect"
	"mss-enginev1/internal/execution"
	"mss-enginev1/internal/gatebus"
	"mss-enginev1/internal/indicator"
	"mss-enginev1/internal/liquidity"
	"mss-enginev1/internal/logger"
	"mss-enginev1/internal/marketdata"
	"mss-enginev1/internal/metrics"
	"mss-enginev1/internal/model"
	"mss-enginev1/internal/orchestrator"
	"mss-enginev1/internal/preset"
	"mss-enginev1/internal/session"
)

// Config bundles the tunables of every pipeline stage.
type Config struct {
	TradingTF    model.Timeframe
	Detect       detect.Config
	Bias         bias.Config
	Orchestrator orchestrator.Config
	ATRPeriod    int
	MaxBars      int
}

// DefaultConfig returns the standard engine configuration.
func DefaultConfig(tradingTF model.Timeframe) Config {
	return Config{
		TradingTF:    tradingTF,
		Detect:       detect.DefaultConfig(),
		Bias:         bias.DefaultConfig(),
		Orchestrator: orchestrator.DefaultConfig(),
		ATRPeriod:    14,
		MaxBars:      2000,
	}
}

// PositionUpdater receives every ingested bar so simulated positions can be
// closed against it. The paper gateway implements this; the engine ignores
// the closed trades and relies on the gateway's close hook instead.
type PositionUpdater interface {
	OnBar(bar model.Bar) []execution.ClosedTrade
}

// Evaluator is the per-symbol pipeline instance.
type Evaluator struct {
	symbol string
	plan   model.TimeframePlan
	cfg    Config

	series *marketdata.Series
	refs   *liquidity.Manager
	bias   *bias.Machine
	orch   *orchestrator.Orchestrator

	lastTradingTS time.Time
	lastHTFAt     time.Time // DetectedAt of the last detection offered to the orchestrator
	lastHTFSeen   time.Time // DetectedAt of the last detection observed (metrics dedupe)
	day           time.Time
}

// Engine routes bars to per-symbol evaluators and submits admitted signals.
type Engine struct {
	cfg       Config
	plan      model.TimeframePlan
	bus       *gatebus.Bus
	admission *preset.Admission
	gateway   model.OrderGateway
	metrics   *metrics.Metrics // nil disables instrumentation
	filler    PositionUpdater  // nil for live gateways

	evaluators map[string]*Evaluator

	// OnSignal observes every admitted signal (journaling, broadcast).
	OnSignal func(sig *model.TradeSignal)
}

// New creates an engine for the given symbols. Returns an error only for an
// unsupported trading timeframe.
func New(cfg Config, symbols []string, bus *gatebus.Bus, admission *preset.Admission, gateway model.OrderGateway, m *metrics.Metrics) (*Engine, error) {
	plan, err := model.PlanFor(cfg.TradingTF)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		cfg:        cfg,
		plan:       plan,
		bus:        bus,
		admission:  admission,
		gateway:    gateway,
		metrics:    m,
		evaluators: make(map[string]*Evaluator, len(symbols)),
	}
	for _, sym := range symbols {
		e.evaluators[sym] = e.newEvaluator(sym)
	}
	return e, nil
}

func (e *Engine) newEvaluator(symbol string) *Evaluator {
	// D1 is always derived: the liquidity manager needs previous-day extremes
	// even when neither plan HTF is daily.
	derived := []model.Timeframe{e.plan.Trading, e.plan.HTF1, e.plan.HTF2}
	if e.plan.HTF1 != model.D1 && e.plan.HTF2 != model.D1 {
		derived = append(derived, model.D1)
	}
	series := marketdata.NewSeries(derived, e.cfg.MaxBars)
	return &Evaluator{
		symbol: symbol,
		plan:   e.plan,
		cfg:    e.cfg,
		series: series,
		refs:   liquidity.NewManager(series),
		bias:   bias.New(symbol, e.plan, e.cfg.Bias, e.bus, series),
		orch:   orchestrator.New(symbol, e.cfg.Orchestrator, e.bus, e.gateway),
	}
}

// SetPositionUpdater wires the paper gateway's fill simulation into the bar
// flow. Must be called before bars are ingested.
func (e *Engine) SetPositionUpdater(p PositionUpdater) { e.filler = p }

// Evaluator returns the pipeline instance for a symbol, or nil.
func (e *Engine) Evaluator(symbol string) *Evaluator { return e.evaluators[symbol] }

// Symbols returns the traded symbols.
func (e *Engine) Symbols() []string {
	out := make([]string, 0, len(e.evaluators))
	for s := range e.evaluators {
		out = append(out, s)
	}
	return out
}

// OnBar ingests one closed bar at the plan's lowest timeframe. Bars for
// unknown symbols or wrong timeframes are dropped.
func (e *Engine) OnBar(bar model.Bar) {
	ev, ok := e.evaluators[bar.Symbol]
	if !ok || bar.TF != e.plan.LTF {
		return
	}

	start := time.Now()
	if e.filler != nil {
		e.filler.OnBar(bar)
	}
	e.evaluate(ev, bar)
	if e.metrics != nil {
		e.metrics.EvalDuration.Observe(time.Since(start).Seconds())
		e.metrics.BarsEvaluated.WithLabelValues(bar.Symbol, bar.TF.String()).Inc()
	}
}

// OnTradeClosed routes a gateway close notification to the symbol's
// orchestrator, starting its win/loss cooldown.
func (e *Engine) OnTradeClosed(symbol string, closedAt time.Time, won bool) {
	ev, ok := e.evaluators[symbol]
	if !ok {
		return
	}
	ev.orch.OnTradeClosed(closedAt, won)
	if e.metrics != nil {
		outcome := "loss"
		if won {
			outcome = "win"
		}
		e.metrics.TradesClosed.WithLabelValues(symbol, outcome).Inc()
	}
}

// evaluate runs one full cycle for the bar's symbol. Now is the bar's close
// time; no wall clock is read inside the pipeline.
func (e *Engine) evaluate(ev *Evaluator, bar model.Bar) {
	now := bar.TS.Add(bar.TF.Duration())

	// daily reset before the new day's first evaluation
	if d := session.DayStart(now.Add(-time.Nanosecond)); !d.Equal(ev.day) {
		if !ev.day.IsZero() {
			ev.bias.ResetDaily(now)
		}
		ev.day = d
	}

	ev.series.Append(bar)
	ev.orch.Tick(now)

	// trading-TF cycle: liquidity references and the bias machine
	tradingBars := ev.series.Bars(ev.symbol, ev.plan.Trading)
	if n := len(tradingBars); n > 0 && tradingBars[n-1].TS.After(ev.lastTradingTS) {
		ev.lastTradingTS = tradingBars[n-1].TS
		refs := ev.refs.Compute(ev.symbol, ev.plan, now)
		atr := indicator.FromBars(tradingBars, ev.cfg.ATRPeriod)
		ev.bias.OnBarClose(bias.Input{Now: now, Bars: tradingBars, ATR: atr, Refs: refs})
	}

	e.offerHTF(ev, now)
	e.offerLTF(ev, now)
	e.submit(ev, now)
}

// offerHTF runs HTF detection and offers fresh results to the orchestrator.
// Detections are only offered while the bias machine holds the entry gate
// open, and only when aligned with the confirmed bias. A detection that
// fails those checks is held, not consumed: it is re-offered on every later
// cycle until it is accepted or its validity window expires.
func (e *Engine) offerHTF(ev *Evaluator, now time.Time) {
	htfBars := ev.series.Bars(ev.symbol, ev.plan.HTF1)
	atr := indicator.FromBars(htfBars, ev.cfg.ATRPeriod)
	det := detect.DetectHTF(htfBars, ev.cfg.Detect, atr)
	if det == nil || !det.DetectedAt.After(ev.lastHTFAt) {
		return
	}

	if det.DetectedAt.After(ev.lastHTFSeen) {
		ev.lastHTFSeen = det.DetectedAt
		if e.metrics != nil {
			e.metrics.MSSDetections.WithLabelValues(ev.symbol, string(det.Side), "htf").Inc()
		}
	}

	if det.Expired(now) {
		ev.lastHTFAt = det.DetectedAt
		return
	}
	if !e.bus.IsGateOpen("entry:" + ev.symbol) {
		slog.Debug("htf detection held, entry gate closed", "symbol", ev.symbol)
		return
	}
	if biasSide, ok := ev.bias.ConfirmedBias(); ok && biasSide != det.Side {
		slog.Debug("htf detection held, against confirmed bias",
			"symbol", ev.symbol, "bias", biasSide, "detection", det.Side)
		return
	}

	ev.lastHTFAt = det.DetectedAt
	det.Symbol = ev.symbol
	ev.orch.OnHTFDetection(det, now)
}

// offerLTF runs LTF confirmation against the active HTF context.
func (e *Engine) offerLTF(ev *Evaluator, now time.Time) {
	if ev.orch.State() != orchestrator.StateHtfAwaitLtf {
		return
	}
	ctx := ev.orch.Context()
	if ctx == nil {
		return
	}
	ltfBars := ev.series.Bars(ev.symbol, ev.plan.LTF)
	atr := indicator.FromBars(ltfBars, ev.cfg.ATRPeriod)
	conf := detect.DetectLTF(ltfBars, ev.cfg.Detect, atr, ctx.HTF, now)
	if conf == nil {
		return
	}
	conf.Symbol = ev.symbol
	if e.metrics != nil {
		e.metrics.MSSDetections.WithLabelValues(ev.symbol, string(conf.Side), "ltf").Inc()
	}
	ev.orch.OnLTFConfirm(conf, now)
}

// submit pushes a staged signal through the preset admission layer and, if
// admitted, to the order gateway.
func (e *Engine) submit(ev *Evaluator, now time.Time) {
	sig := ev.orch.Signal()
	if sig == nil {
		return
	}

	d := e.admission.Admit(sig, now)
	if !d.Admitted {
		if e.metrics != nil {
			e.metrics.SignalsRejected.WithLabelValues(ev.symbol, d.Reason).Inc()
		}
		ev.orch.OnSignalDropped(now, d.Reason)
		return
	}
	sig.Label = d.Label

	if err := e.gateway.OpenFromSignal(sig); err != nil {
		slog.Error("gateway rejected signal", "symbol", ev.symbol, "err", err)
		ev.orch.OnSignalDropped(now, "gateway_error")
		return
	}
	ev.orch.OnTradeOpened(now)

	trace := logger.GenerateTraceID(sig.Symbol, now)
	slog.Info("signal admitted",
		"symbol", sig.Symbol, "side", string(sig.Side), "score", sig.Score,
		"preset", d.Preset, "trace_id", trace)
	e.bus.Emit("SIGNAL_ADMITTED", now, map[string]any{
		"symbol":   sig.Symbol,
		"side":     string(sig.Side),
		"score":    sig.Score,
		"preset":   d.Preset,
		"label":    sig.Label,
		"trace_id": trace,
	})
	if e.metrics != nil {
		e.metrics.SignalsAdmitted.WithLabelValues(ev.symbol, d.Preset).Inc()
		e.metrics.SignalScore.Observe(sig.Score)
	}
	if e.OnSignal != nil {
		e.OnSignal(sig)
	}
}

// BiasState exposes the bias machine state for diagnostics.
func (ev *Evaluator) BiasState() bias.State { return ev.bias.State() }

// OrchestratorState exposes the orchestration state for diagnostics.
func (ev *Evaluator) OrchestratorState() orchestrator.State { return ev.orch.State() }
