package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Bar represents a completed OHLC bar for one symbol and timeframe.
// TS is the bucket start time (UTC, aligned to the timeframe). The engine
// only ever consumes completed bars — the forming bar is never exposed to
// detection code, so evaluations never repaint.
type Bar struct {
	Symbol string    `json:"symbol"`
	TF     Timeframe `json:"tf"`
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
}

// Key returns a unique key for this bar's series: "symbol:tf".
func (b *Bar) Key() string {
	return b.Symbol + ":" + b.TF.String()
}

// Body returns the absolute candle body size.
func (b *Bar) Body() float64 {
	if b.Close >= b.Open {
		return b.Close - b.Open
	}
	return b.Open - b.Close
}

// Bullish reports whether the bar closed above its open.
func (b *Bar) Bullish() bool { return b.Close > b.Open }

// Bearish reports whether the bar closed below its open.
func (b *Bar) Bearish() bool { return b.Close < b.Open }

// Range returns high minus low.
func (b *Bar) Range() float64 { return b.High - b.Low }

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}

// PipSize returns the pip unit for a symbol. FX majors quote pips at the
// fourth decimal, JPY crosses at the second, gold at one tenth.
func PipSize(symbol string) float64 {
	s := strings.ToUpper(symbol)
	switch {
	case strings.Contains(s, "JPY"):
		return 0.01
	case strings.HasPrefix(s, "XAU") || strings.HasPrefix(s, "GOLD"):
		return 0.1
	default:
		return 0.0001
	}
}
