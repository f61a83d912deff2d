package detect

import (
	"testing"
	"time"

	"mss-enginev1/internal/model"
)

// makeBar creates a completed M15 bar at base + idx*15m.
func makeBar(idx int, open, high, low, close_ float64) model.Bar {
	base := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	return model.Bar{
		Symbol: "EURUSD",
		TF:     model.M15,
		TS:     base.Add(time.Duration(idx) * 15 * time.Minute),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close_,
	}
}

// testConfig shrinks the windows so fixtures stay readable.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SwingWindow = 5
	cfg.SweepLookback = 5
	cfg.MSSForward = 5
	cfg.DispMult = 1.0
	cfg.MinBreakPips = 2.0
	return cfg
}

const testATR = 0.0010

// flatBars returns n quiet range bars around 1.1000.
func flatBars(n int) []model.Bar {
	bars := make([]model.Bar, 0, n)
	for i := 0; i < n; i++ {
		bars = append(bars, makeBar(i, 1.1000, 1.1010, 1.0990, 1.1000))
	}
	return bars
}

// bullishShiftBars builds a sell-side sweep at index 10 followed by a
// displaced bullish break at index 11.
func bullishShiftBars() []model.Bar {
	bars := flatBars(10)
	// Sweep bar: trades below the 1.0990 swing low, closes back above.
	bars = append(bars, makeBar(10, 1.1002, 1.1005, 1.0970, 1.1000))
	// MSS bar: bullish close above the 1.1010 swing high with a wide body.
	bars = append(bars, makeBar(11, 1.1000, 1.1030, 1.0998, 1.1025))
	return bars
}

func TestFindShift_QuietRangeReturnsNil(t *testing.T) {
	if sh := FindShift(flatBars(40), testConfig(), testATR); sh != nil {
		t.Fatalf("expected nil on quiet range, got %+v", sh)
	}
}

func TestFindShift_ShortWindowIsNoOp(t *testing.T) {
	if sh := FindShift(flatBars(5), testConfig(), testATR); sh != nil {
		t.Fatal("expected nil for short window")
	}
	if sh := FindShift(nil, testConfig(), testATR); sh != nil {
		t.Fatal("expected nil for empty window")
	}
}

func TestFindShift_ZeroATRIsNoOp(t *testing.T) {
	if sh := FindShift(bullishShiftBars(), testConfig(), 0); sh != nil {
		t.Fatal("expected nil when ATR is not ready")
	}
}

func TestFindShift_BullishSweepThenBreak(t *testing.T) {
	sh := FindShift(bullishShiftBars(), testConfig(), testATR)
	if sh == nil {
		t.Fatal("expected a detection")
	}
	if sh.Side != model.SideBullish {
		t.Errorf("expected bullish side, got %s", sh.Side)
	}
	if sh.SweepIdx != 10 || sh.MSSIdx != 11 {
		t.Errorf("expected sweep@10 mss@11, got %d/%d", sh.SweepIdx, sh.MSSIdx)
	}
	if sh.Sweep.Direction != model.DirDown {
		t.Errorf("expected down sweep, got %s", sh.Sweep.Direction)
	}
	if sh.Sweep.RefLevel != 1.0990 {
		t.Errorf("expected swept level 1.0990, got %v", sh.Sweep.RefLevel)
	}
	if sh.Sweep.SweepPrice != 1.0970 {
		t.Errorf("expected sweep price 1.0970, got %v", sh.Sweep.SweepPrice)
	}
	// Break through the 1.1010 swing high by 15 pips.
	if sh.StructBreak.Level != 1.1010 {
		t.Errorf("expected break level 1.1010, got %v", sh.StructBreak.Level)
	}
	if pips := sh.StructBreak.DistancePips; pips < 14.9 || pips > 15.1 {
		t.Errorf("expected ~15 pip break, got %v", pips)
	}
	// The bearish sweep bar is the order block.
	if sh.POI.Kind != model.POIOrderBlock {
		t.Errorf("expected order-block POI, got %s", sh.POI.Kind)
	}
	if sh.POI.Top != 1.1005 || sh.POI.Bottom != 1.0970 {
		t.Errorf("expected POI [1.0970, 1.1005], got [%v, %v]", sh.POI.Bottom, sh.POI.Top)
	}
	if sh.Displacement.BodyFactor < 2.4 || sh.Displacement.BodyFactor > 2.6 {
		t.Errorf("expected body factor ~2.5, got %v", sh.Displacement.BodyFactor)
	}
	if sh.SwingHigh != 1.1030 || sh.SwingLow != 1.0970 {
		t.Errorf("expected leg [1.0970, 1.1030], got [%v, %v]", sh.SwingLow, sh.SwingHigh)
	}
}

func TestFindShift_Idempotent(t *testing.T) {
	bars := bullishShiftBars()
	cfg := testConfig()
	a := FindShift(bars, cfg, testATR)
	b := FindShift(bars, cfg, testATR)
	if a == nil || b == nil {
		t.Fatal("expected detections")
	}
	if *a != *b {
		t.Fatalf("expected identical detections across evaluations: %+v vs %+v", a, b)
	}
}

func TestFindShift_ShallowBreakDiscarded(t *testing.T) {
	cfg := testConfig()
	cfg.MinBreakPips = 50 // 15-pip break is no longer enough
	if sh := FindShift(bullishShiftBars(), cfg, testATR); sh != nil {
		t.Fatalf("expected shallow break to be discarded, got %+v", sh)
	}
}

func TestFindShift_SmallBodyDiscarded(t *testing.T) {
	cfg := testConfig()
	cfg.DispMult = 10 // demand a 100-pip body
	if sh := FindShift(bullishShiftBars(), cfg, testATR); sh != nil {
		t.Fatalf("expected undisplaced break to be discarded, got %+v", sh)
	}
}

func TestFindShift_FallbackPOIWhenNoOppositeCandle(t *testing.T) {
	bars := flatBars(10)
	// Bullish sweep bar that itself closes bullish: no bearish candle
	// between sweep and MSS, so the MSS candle becomes the fallback POI.
	bars = append(bars, makeBar(10, 1.0998, 1.1005, 1.0970, 1.1001))
	bars = append(bars, makeBar(11, 1.1001, 1.1030, 1.0999, 1.1025))
	sh := FindShift(bars, testConfig(), testATR)
	if sh == nil {
		t.Fatal("expected a detection")
	}
	if sh.POI.Kind != model.POIMSSCandle {
		t.Errorf("expected fallback POI, got %s", sh.POI.Kind)
	}
	if sh.POI.Quality >= qualityOrderBlock {
		t.Errorf("expected downgraded quality, got %v", sh.POI.Quality)
	}
}

func TestFVGAt(t *testing.T) {
	bars := []model.Bar{
		makeBar(0, 1.1000, 1.1010, 1.0990, 1.1000),
		makeBar(1, 1.1005, 1.1040, 1.1004, 1.1038),
		makeBar(2, 1.1038, 1.1060, 1.1020, 1.1050), // low above bar 0 high
	}
	gap, ok := FVGAt(bars, 2)
	if !ok || !gap.Bullish {
		t.Fatalf("expected bullish FVG, got ok=%v %+v", ok, gap)
	}
	if gap.Bottom != 1.1010 || gap.Top != 1.1020 {
		t.Errorf("expected gap [1.1010, 1.1020], got [%v, %v]", gap.Bottom, gap.Top)
	}
	if _, ok := FVGAt(bars, 1); ok {
		t.Error("expected no FVG without two prior bars")
	}
}

func TestFractalPivots(t *testing.T) {
	bars := []model.Bar{
		makeBar(0, 1, 1.10, 1.00, 1.05),
		makeBar(1, 1, 1.12, 1.02, 1.05),
		makeBar(2, 1, 1.20, 1.08, 1.15), // fractal high
		makeBar(3, 1, 1.12, 1.02, 1.05),
		makeBar(4, 1, 1.10, 1.00, 1.05),
	}
	pivots := FractalPivots(bars, 2, 2)
	if len(pivots) != 1 {
		t.Fatalf("expected 1 pivot, got %d", len(pivots))
	}
	if !pivots[0].High || pivots[0].Idx != 2 || pivots[0].Price != 1.20 {
		t.Errorf("unexpected pivot %+v", pivots[0])
	}
	if got := FractalPivots(bars[:3], 2, 2); got != nil {
		t.Error("expected nil for short window")
	}
}
