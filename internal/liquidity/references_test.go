package liquidity

import (
	"testing"
	"time"

	"mss-enginev1/internal/model"
)

// stubSource is an in-memory MarketDataSource for tests.
type stubSource struct {
	series map[string][]model.Bar
}

func newStubSource() *stubSource {
	return &stubSource{series: make(map[string][]model.Bar)}
}

func (s *stubSource) add(symbol string, tf model.Timeframe, bars ...model.Bar) {
	key := symbol + ":" + tf.String()
	s.series[key] = append(s.series[key], bars...)
}

func (s *stubSource) Bars(symbol string, tf model.Timeframe) []model.Bar {
	return s.series[symbol+":"+tf.String()]
}

func bar(tf model.Timeframe, ts time.Time, o, h, l, c float64) model.Bar {
	return model.Bar{Symbol: "EURUSD", TF: tf, TS: ts, Open: o, High: h, Low: l, Close: c}
}

var plan = model.TimeframePlan{Trading: model.M15, HTF1: model.H4, HTF2: model.D1, LTF: model.M1}

func TestCompute_NotReadyReturnsEmpty(t *testing.T) {
	src := newStubSource()
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

	// Only one daily bar: every required TF needs at least two.
	src.add("EURUSD", model.D1, bar(model.D1, now.AddDate(0, 0, -1), 1, 1.2, 0.9, 1.1))
	m := NewManager(src)
	if refs := m.Compute("EURUSD", plan, now); len(refs) != 0 {
		t.Fatalf("expected empty references when not ready, got %d", len(refs))
	}
}

func TestCompute_PreviousDayAndHTFExtremes(t *testing.T) {
	src := newStubSource()
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	d0 := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
	d1 := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	src.add("EURUSD", model.D1,
		bar(model.D1, d0, 1.10, 1.15, 1.05, 1.12),
		bar(model.D1, d1, 1.12, 1.20, 1.08, 1.18), // previous completed day
	)
	src.add("EURUSD", model.H4,
		bar(model.H4, now.Add(-8*time.Hour), 1.17, 1.19, 1.16, 1.18),
		bar(model.H4, now.Add(-4*time.Hour), 1.18, 1.21, 1.17, 1.20),
	)
	m := NewManager(src)
	refs := m.Compute("EURUSD", plan, now)
	if len(refs) == 0 {
		t.Fatal("expected references")
	}

	byLabel := make(map[string]model.LiquidityReference, len(refs))
	for _, r := range refs {
		byLabel[r.Label] = r
	}

	if got := byLabel["PDH"]; got.Level != 1.20 || got.Kind != model.RefSupply {
		t.Errorf("PDH: expected 1.20 supply, got %+v", got)
	}
	if got := byLabel["PDL"]; got.Level != 1.08 || got.Kind != model.RefDemand {
		t.Errorf("PDL: expected 1.08 demand, got %+v", got)
	}
	if got := byLabel["H4_CUR_HIGH"]; got.Level != 1.21 {
		t.Errorf("H4_CUR_HIGH: expected 1.21, got %v", got.Level)
	}
	if got := byLabel["H4_PREV_LOW"]; got.Level != 1.16 {
		t.Errorf("H4_PREV_LOW: expected 1.16, got %v", got.Level)
	}
	if got := byLabel["D1_PREV_HIGH"]; got.Level != 1.15 {
		t.Errorf("D1_PREV_HIGH: expected 1.15, got %v", got.Level)
	}
}

func TestCompute_SessionExtremesOnlyInsideWindow(t *testing.T) {
	src := newStubSource()
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	src.add("EURUSD", model.D1,
		bar(model.D1, day.AddDate(0, 0, -2), 1, 1.2, 0.9, 1.1),
		bar(model.D1, day.AddDate(0, 0, -1), 1, 1.2, 0.9, 1.1),
	)
	src.add("EURUSD", model.H4,
		bar(model.H4, now.Add(-8*time.Hour), 1, 1.2, 0.9, 1.1),
		bar(model.H4, now.Add(-4*time.Hour), 1, 1.2, 0.9, 1.1),
	)
	// Trading-TF bars: two inside the 00:00-09:00 window, one outside.
	src.add("EURUSD", model.M15,
		bar(model.M15, day.Add(2*time.Hour), 1.10, 1.111, 1.095, 1.10),
		bar(model.M15, day.Add(5*time.Hour), 1.10, 1.118, 1.091, 1.11),
		bar(model.M15, day.Add(9*time.Hour+30*time.Minute), 1.11, 1.30, 1.00, 1.12),
	)
	m := NewManager(src)
	refs := m.Compute("EURUSD", plan, now)

	byLabel := make(map[string]model.LiquidityReference, len(refs))
	for _, r := range refs {
		byLabel[r.Label] = r
	}
	if got := byLabel["SESSION_HIGH"]; got.Level != 1.118 {
		t.Errorf("SESSION_HIGH: expected 1.118 (outside-window bar excluded), got %v", got.Level)
	}
	if got := byLabel["SESSION_LOW"]; got.Level != 1.091 {
		t.Errorf("SESSION_LOW: expected 1.091, got %v", got.Level)
	}
}

func TestCompute_FreshSliceEachCall(t *testing.T) {
	src := newStubSource()
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		src.add("EURUSD", model.D1, bar(model.D1, now.AddDate(0, 0, -2+i), 1, 1.2, 0.9, 1.1))
		src.add("EURUSD", model.H4, bar(model.H4, now.Add(time.Duration(-8+4*i)*time.Hour), 1, 1.2, 0.9, 1.1))
	}
	m := NewManager(src)
	a := m.Compute("EURUSD", plan, now)
	b := m.Compute("EURUSD", plan, now)
	if len(a) == 0 || len(b) == 0 {
		t.Fatal("expected references")
	}
	a[0].Level = -1
	if b[0].Level == -1 {
		t.Fatal("expected each Compute call to return an independent slice")
	}
}
