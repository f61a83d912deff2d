package marketdata

import (
	"testing"
	"time"

	"mss-enginev1/internal/model"
)

// makeBar creates a completed M15 bar at the given Unix second.
func makeBar(symbol string, unixSec int64, open, high, low, close_ float64) model.Bar {
	return model.Bar{
		Symbol: symbol,
		TF:     model.M15,
		TS:     time.Unix(unixSec, 0).UTC(),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close_,
	}
}

func TestSeries_DerivedBucketOnlyVisibleAfterClose(t *testing.T) {
	s := NewSeries([]model.Timeframe{model.H1}, 0)
	base := int64(1700000000)
	base = base - base%3600 // H1-aligned

	// Three M15 bars inside one H1 bucket: no derived bar yet.
	for i := int64(0); i < 3; i++ {
		s.Append(makeBar("EURUSD", base+i*900, 1.10, 1.11, 1.09, 1.105))
	}
	if got := s.Bars("EURUSD", model.H1); len(got) != 0 {
		t.Fatalf("expected no completed H1 bars while bucket open, got %d", len(got))
	}

	// Fourth bar completes the bucket; fifth rolls into the next one.
	s.Append(makeBar("EURUSD", base+3*900, 1.105, 1.12, 1.10, 1.115))
	s.Append(makeBar("EURUSD", base+4*900, 1.115, 1.118, 1.112, 1.116))

	h1 := s.Bars("EURUSD", model.H1)
	if len(h1) != 1 {
		t.Fatalf("expected 1 completed H1 bar, got %d", len(h1))
	}
	c := h1[0]
	if c.Open != 1.10 {
		t.Errorf("expected H1 open=1.10, got %v", c.Open)
	}
	if c.High != 1.12 {
		t.Errorf("expected H1 high=1.12, got %v", c.High)
	}
	if c.Low != 1.09 {
		t.Errorf("expected H1 low=1.09, got %v", c.Low)
	}
	if c.Close != 1.115 {
		t.Errorf("expected H1 close=1.115, got %v", c.Close)
	}
	if c.TS.Unix() != base {
		t.Errorf("expected H1 TS=%d, got %d", base, c.TS.Unix())
	}
}

func TestSeries_DropsOutOfOrderBars(t *testing.T) {
	s := NewSeries(nil, 0)
	s.Append(makeBar("EURUSD", 1700000100, 1, 1, 1, 1))
	s.Append(makeBar("EURUSD", 1700000100, 2, 2, 2, 2)) // duplicate TS
	s.Append(makeBar("EURUSD", 1700000000, 3, 3, 3, 3)) // earlier TS

	bars := s.Bars("EURUSD", model.M15)
	if len(bars) != 1 {
		t.Fatalf("expected 1 bar after out-of-order drops, got %d", len(bars))
	}
	if bars[0].Open != 1 {
		t.Errorf("expected first bar retained, got open=%v", bars[0].Open)
	}
}

func TestSeries_TrimsToMaxBars(t *testing.T) {
	s := NewSeries(nil, 5)
	for i := int64(0); i < 20; i++ {
		s.Append(makeBar("EURUSD", 1700000000+i*900, float64(i), float64(i), float64(i), float64(i)))
	}
	bars := s.Bars("EURUSD", model.M15)
	if len(bars) != 5 {
		t.Fatalf("expected 5 retained bars, got %d", len(bars))
	}
	if bars[0].Open != 15 {
		t.Errorf("expected oldest retained bar open=15, got %v", bars[0].Open)
	}
}

func TestSeries_SeparateSymbols(t *testing.T) {
	s := NewSeries(nil, 0)
	s.Append(makeBar("EURUSD", 1700000000, 1, 1, 1, 1))
	s.Append(makeBar("GBPUSD", 1700000000, 2, 2, 2, 2))
	if len(s.Bars("EURUSD", model.M15)) != 1 || len(s.Bars("GBPUSD", model.M15)) != 1 {
		t.Fatal("expected independent per-symbol series")
	}
}
