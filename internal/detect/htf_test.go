package detect

import (
	"testing"
	"time"

	"mss-enginev1/internal/model"
)

func TestDetectHTF_BindsValidityWindow(t *testing.T) {
	cfg := testConfig()
	ev := DetectHTF(bullishShiftBars(), cfg, testATR)
	if ev == nil {
		t.Fatal("expected an HTF context event")
	}
	if ev.Symbol != "EURUSD" || ev.Side != model.SideBullish {
		t.Errorf("unexpected identity %s/%s", ev.Symbol, ev.Side)
	}
	if ev.POI.Top != 1.1005 || ev.POI.Bottom != 1.0970 {
		t.Errorf("POI not carried over: [%v, %v]", ev.POI.Bottom, ev.POI.Top)
	}

	// Detection stamps at the close of the breaking bar (index 11).
	base := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	wantDetected := base.Add(3 * time.Hour)
	if !ev.DetectedAt.Equal(wantDetected) {
		t.Errorf("DetectedAt = %v, want %v", ev.DetectedAt, wantDetected)
	}
	wantUntil := wantDetected.Add(time.Duration(cfg.WindowCandles) * 15 * time.Minute)
	if !ev.ValidUntil.Equal(wantUntil) {
		t.Errorf("ValidUntil = %v, want %v", ev.ValidUntil, wantUntil)
	}
}

func TestDetectHTF_ExpiryBoundaryIsInclusive(t *testing.T) {
	ev := DetectHTF(bullishShiftBars(), testConfig(), testATR)
	if ev == nil {
		t.Fatal("expected an HTF context event")
	}
	if ev.Expired(ev.ValidUntil) {
		t.Error("context expired exactly at ValidUntil")
	}
	if !ev.Expired(ev.ValidUntil.Add(time.Second)) {
		t.Error("context survived past ValidUntil")
	}
}

func TestDetectHTF_QuietRangeReturnsNil(t *testing.T) {
	if ev := DetectHTF(flatBars(40), testConfig(), testATR); ev != nil {
		t.Fatalf("expected nil on quiet range, got %+v", ev)
	}
}
