package orchestrator

import (
	"testing"
	"time"

	"mss-enginev1/internal/gatebus"
	"mss-enginev1/internal/model"
)

// stubGateway answers the position/limit queries with fixed counts.
type stubGateway struct {
	open   int
	today  int
	opened []*model.TradeSignal
}

func (g *stubGateway) OpenFromSignal(sig *model.TradeSignal) error {
	g.opened = append(g.opened, sig)
	return nil
}
func (g *stubGateway) OpenPositions(symbol string) int { return g.open }
func (g *stubGateway) TradesToday(symbol string) int   { return g.today }

// tLondon is inside the London session allowlist.
var tLondon = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

func htfEvent(side model.Side, now time.Time) *model.HTFMSSEvent {
	return &model.HTFMSSEvent{
		Symbol: "EURUSD",
		Side:   side,
		POI: model.POI{
			Top:       1.1005,
			Bottom:    1.0970,
			Kind:      model.POIOrderBlock,
			Quality:   80,
			CreatedAt: now.Add(-time.Hour),
		},
		Displacement: model.Displacement{BodyFactor: 2.5, ATRZ: 1.0},
		StructBreak:  model.StructBreak{Level: 1.1010, Distance: 0.0015, DistancePips: 15},
		DetectedAt:   now.Add(-30 * time.Minute),
		ValidUntil:   now.Add(3 * time.Hour),
	}
}

func ltfEvent(side model.Side, now time.Time) *model.LTFConfirmEvent {
	// entry 1.0990 inside the POI; risk 25 pips, reward 70 pips -> RR 2.8
	return &model.LTFConfirmEvent{
		Symbol:       "EURUSD",
		Side:         side,
		EntryPrice:   1.0990,
		StopLoss:     1.0965,
		TakeProfit:   1.1060,
		Displacement: model.Displacement{BodyFactor: 1.8, ATRZ: 0.5},
		DetectedAt:   now,
	}
}

func newTestOrch(gw model.OrderGateway) (*Orchestrator, *gatebus.Bus) {
	bus := gatebus.New(256)
	return New("EURUSD", DefaultConfig(), bus, gw), bus
}

func TestHappyPathToReadyToFire(t *testing.T) {
	o, _ := newTestOrch(&stubGateway{})

	o.OnHTFDetection(htfEvent(model.SideBullish, tLondon), tLondon)
	if o.State() != StateHtfAwaitLtf {
		t.Fatalf("state = %s, want HTF_AWAIT_LTF", o.State())
	}

	later := tLondon.Add(45 * time.Minute)
	o.OnLTFConfirm(ltfEvent(model.SideBullish, later), later)
	if o.State() != StateReadyToFire {
		t.Fatalf("state = %s, want READY_TO_FIRE", o.State())
	}

	sig := o.Signal()
	if sig == nil {
		t.Fatal("no signal staged")
	}
	if sig.ID == "" {
		t.Error("signal ID is empty")
	}
	if sig.Side != model.SideBullish || sig.EntryPrice != 1.0990 {
		t.Errorf("signal = %+v", sig)
	}
	if sig.Score <= 0 || sig.Score > 100 {
		t.Errorf("score %.2f out of range", sig.Score)
	}
}

func TestTradeLifecycleAndCooldown(t *testing.T) {
	o, _ := newTestOrch(&stubGateway{})
	o.OnHTFDetection(htfEvent(model.SideBullish, tLondon), tLondon)
	now := tLondon.Add(30 * time.Minute)
	o.OnLTFConfirm(ltfEvent(model.SideBullish, now), now)
	if o.State() != StateReadyToFire {
		t.Fatalf("state = %s", o.State())
	}

	o.OnTradeOpened(now)
	if o.State() != StateInTrade {
		t.Fatalf("state = %s, want IN_TRADE", o.State())
	}

	closed := now.Add(2 * time.Hour)
	o.OnTradeClosed(closed, false)
	if o.State() != StateCooldown {
		t.Fatalf("state = %s, want COOLDOWN", o.State())
	}

	// losses cool for CooldownLoss; a detection inside the window is rejected
	o.OnHTFDetection(htfEvent(model.SideBullish, closed.Add(time.Minute)), closed.Add(time.Minute))
	if o.State() != StateCooldown || o.Context() != nil {
		t.Error("detection accepted during cooldown")
	}

	o.Tick(closed.Add(30 * time.Minute))
	if o.State() != StateCooldown {
		t.Error("cooldown expired too early")
	}
	o.Tick(closed.Add(91 * time.Minute))
	if o.State() != StateIdle {
		t.Errorf("state = %s after cooldown, want IDLE", o.State())
	}
}

func TestWinCooldownShorterThanLoss(t *testing.T) {
	o, _ := newTestOrch(&stubGateway{})
	o.OnHTFDetection(htfEvent(model.SideBullish, tLondon), tLondon)
	o.OnLTFConfirm(ltfEvent(model.SideBullish, tLondon), tLondon)
	o.OnTradeOpened(tLondon)
	o.OnTradeClosed(tLondon, true)

	o.Tick(tLondon.Add(31 * time.Minute))
	if o.State() != StateIdle {
		t.Errorf("state = %s after win cooldown, want IDLE", o.State())
	}
}

func TestContextExpiryIsInclusive(t *testing.T) {
	o, _ := newTestOrch(&stubGateway{})
	ev := htfEvent(model.SideBullish, tLondon)
	o.OnHTFDetection(ev, tLondon)

	// exactly at ValidUntil the context still works
	at := ev.ValidUntil
	o.OnLTFConfirm(ltfEvent(model.SideBullish, at), at)
	if o.State() != StateReadyToFire {
		t.Fatalf("confirmation at ValidUntil rejected, state = %s", o.State())
	}
}

func TestContextExpiryDropsOnTick(t *testing.T) {
	o, _ := newTestOrch(&stubGateway{})
	ev := htfEvent(model.SideBullish, tLondon)
	o.OnHTFDetection(ev, tLondon)

	o.Tick(ev.ValidUntil) // boundary inclusive, still valid
	if o.State() != StateHtfAwaitLtf {
		t.Fatalf("context dropped at ValidUntil")
	}

	past := ev.ValidUntil.Add(time.Second)
	o.Tick(past)
	if o.State() != StateIdle || o.Context() != nil {
		t.Errorf("expired context not dropped, state = %s", o.State())
	}

	// a late confirmation must not resurrect it
	o.OnLTFConfirm(ltfEvent(model.SideBullish, past), past)
	if o.State() != StateIdle {
		t.Error("confirmation accepted without a context")
	}
}

func TestSideMismatchRejected(t *testing.T) {
	o, _ := newTestOrch(&stubGateway{})
	o.OnHTFDetection(htfEvent(model.SideBullish, tLondon), tLondon)
	o.OnLTFConfirm(ltfEvent(model.SideBearish, tLondon), tLondon)
	if o.State() != StateHtfAwaitLtf {
		t.Errorf("state = %s after side mismatch, want HTF_AWAIT_LTF", o.State())
	}
	if o.Signal() != nil {
		t.Error("signal staged from mismatched confirmation")
	}
}

func TestEntryOutsidePOIRejected(t *testing.T) {
	o, _ := newTestOrch(&stubGateway{})
	o.OnHTFDetection(htfEvent(model.SideBullish, tLondon), tLondon)

	ev := ltfEvent(model.SideBullish, tLondon)
	ev.EntryPrice = 1.1050 // above POI top
	o.OnLTFConfirm(ev, tLondon)
	if o.State() != StateHtfAwaitLtf {
		t.Errorf("state = %s, entry outside POI should not fire", o.State())
	}
}

func TestRewardRiskGateRejectsRegardlessOfScore(t *testing.T) {
	o, bus := newTestOrch(&stubGateway{})
	o.OnHTFDetection(htfEvent(model.SideBullish, tLondon), tLondon)

	ev := ltfEvent(model.SideBullish, tLondon)
	ev.TakeProfit = 1.1000 // reward 10 pips vs risk 25 -> RR 0.4
	o.OnLTFConfirm(ev, tLondon)

	if o.State() != StateHtfAwaitLtf {
		t.Errorf("state = %s, want HTF_AWAIT_LTF after RR rejection", o.State())
	}
	found := false
	for _, e := range bus.Events() {
		if e.Type == "SIGNAL_REJECTED" && e.Data["reason"] == "rr_below_minimum" {
			found = true
		}
	}
	if !found {
		t.Error("no SIGNAL_REJECTED event with rr_below_minimum")
	}
}

func TestSessionFilterRejectsOffHours(t *testing.T) {
	o, bus := newTestOrch(&stubGateway{})
	asia := time.Date(2024, 3, 5, 3, 0, 0, 0, time.UTC)
	ev := htfEvent(model.SideBullish, asia)
	o.OnHTFDetection(ev, asia)
	o.OnLTFConfirm(ltfEvent(model.SideBullish, asia), asia)

	if o.State() != StateHtfAwaitLtf {
		t.Errorf("state = %s, asia-session signal should be rejected", o.State())
	}
	found := false
	for _, e := range bus.Events() {
		if e.Type == "SIGNAL_REJECTED" && e.Data["reason"] == "session_not_allowed" {
			found = true
		}
	}
	if !found {
		t.Error("no session_not_allowed rejection recorded")
	}
}

func TestPositionAndDailyCaps(t *testing.T) {
	gw := &stubGateway{open: 1}
	o, _ := newTestOrch(gw)
	o.OnHTFDetection(htfEvent(model.SideBullish, tLondon), tLondon)
	o.OnLTFConfirm(ltfEvent(model.SideBullish, tLondon), tLondon)
	if o.State() == StateReadyToFire {
		t.Error("fired with an open position at the cap")
	}

	gw.open = 0
	gw.today = 3
	o.OnLTFConfirm(ltfEvent(model.SideBullish, tLondon), tLondon)
	if o.State() == StateReadyToFire {
		t.Error("fired past the daily trade cap")
	}
}

func TestDisplacementMinimaGateHTF(t *testing.T) {
	o, _ := newTestOrch(&stubGateway{})
	ev := htfEvent(model.SideBullish, tLondon)
	ev.Displacement.BodyFactor = 0.4 // below MinBodyFactor 1.0
	o.OnHTFDetection(ev, tLondon)
	if o.State() != StateIdle || o.Context() != nil {
		t.Error("weak displacement accepted as context")
	}
}

func TestOppositeSideSupersedesWhenConfigured(t *testing.T) {
	o, _ := newTestOrch(&stubGateway{})
	o.OnHTFDetection(htfEvent(model.SideBullish, tLondon), tLondon)

	bear := htfEvent(model.SideBearish, tLondon.Add(time.Hour))
	o.OnHTFDetection(bear, tLondon.Add(time.Hour))
	if ctx := o.Context(); ctx == nil || ctx.HTF.Side != model.SideBearish {
		t.Fatal("opposite detection did not replace the context")
	}
}

func TestOppositeSideIgnoredWhenCancelDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CancelOnOpposite = false
	o := New("EURUSD", cfg, gatebus.New(64), &stubGateway{})

	o.OnHTFDetection(htfEvent(model.SideBullish, tLondon), tLondon)
	o.OnHTFDetection(htfEvent(model.SideBearish, tLondon), tLondon)
	if ctx := o.Context(); ctx == nil || ctx.HTF.Side != model.SideBullish {
		t.Error("opposite detection replaced the context despite CancelOnOpposite=false")
	}
}

func TestSameSideSupersedes(t *testing.T) {
	o, _ := newTestOrch(&stubGateway{})
	first := htfEvent(model.SideBullish, tLondon)
	o.OnHTFDetection(first, tLondon)

	second := htfEvent(model.SideBullish, tLondon.Add(time.Hour))
	second.POI.Quality = 50
	o.OnHTFDetection(second, tLondon.Add(time.Hour))
	if ctx := o.Context(); ctx == nil || ctx.HTF.POI.Quality != 50 {
		t.Error("fresh same-side detection did not supersede the old context")
	}
}

func TestSignalDroppedReturnsToIdle(t *testing.T) {
	o, _ := newTestOrch(&stubGateway{})
	o.OnHTFDetection(htfEvent(model.SideBullish, tLondon), tLondon)
	o.OnLTFConfirm(ltfEvent(model.SideBullish, tLondon), tLondon)
	if o.State() != StateReadyToFire {
		t.Fatalf("state = %s", o.State())
	}

	o.OnSignalDropped(tLondon, "preset_cooldown")
	if o.State() != StateIdle || o.Signal() != nil {
		t.Errorf("state = %s after drop, want IDLE with no signal", o.State())
	}
}

func TestScoreClampedToHundred(t *testing.T) {
	htf := htfEvent(model.SideBullish, tLondon)
	htf.Displacement = model.Displacement{BodyFactor: 50, ATRZ: 50}
	htf.POI.Quality = 200
	htf.POI.CreatedAt = tLondon // perfectly fresh

	total, bd := score(htf, ltfEvent(model.SideBullish, tLondon), tLondon, 24*time.Hour)
	if total > 100 {
		t.Errorf("score %.2f exceeds 100", total)
	}
	if bd["displacement"] > 30 {
		t.Errorf("displacement component %.2f exceeds its cap", bd["displacement"])
	}
	if bd["poi_quality"] > 20 {
		t.Errorf("poi_quality component %.2f exceeds its cap", bd["poi_quality"])
	}
}

func TestScoreNeverNegative(t *testing.T) {
	htf := htfEvent(model.SideBullish, tLondon)
	htf.Displacement = model.Displacement{BodyFactor: 0, ATRZ: -5}
	htf.POI.Quality = 0
	htf.POI.CreatedAt = tLondon.Add(-72 * time.Hour) // long stale
	htf.StructBreak = model.StructBreak{}

	ltf := ltfEvent(model.SideBearish, tLondon) // misaligned
	ltf.EntryPrice = 2.0                        // outside POI

	total, _ := score(htf, ltf, tLondon, 24*time.Hour)
	if total < 0 {
		t.Errorf("score %.2f is negative", total)
	}
}

func TestScoreBreakdownComponents(t *testing.T) {
	htf := htfEvent(model.SideBullish, tLondon)
	total, bd := score(htf, ltfEvent(model.SideBullish, tLondon), tLondon, 24*time.Hour)

	if bd["alignment"] != 20 {
		t.Errorf("alignment = %.2f, want 20", bd["alignment"])
	}
	if bd["inside_poi"] != 10 {
		t.Errorf("inside_poi = %.2f, want 10", bd["inside_poi"])
	}
	if bd["struct_break"] != 10 {
		t.Errorf("struct_break = %.2f, want 10", bd["struct_break"])
	}
	// poi quality 80 -> 16 of 20
	if bd["poi_quality"] != 16 {
		t.Errorf("poi_quality = %.2f, want 16", bd["poi_quality"])
	}
	var sum float64
	for _, v := range bd {
		sum += v
	}
	if diff := sum - total; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("breakdown sum %.4f != total %.4f", sum, total)
	}
}
