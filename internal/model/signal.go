package model

import (
	"encoding/json"
	"time"
)

// Confidence grades cross-timeframe agreement behind a bias.
type Confidence string

const (
	ConfidenceLow  Confidence = "LOW"
	ConfidenceBase Confidence = "BASE"
	ConfidenceHigh Confidence = "HIGH"
)

// TradeSignal is the finalized output handed to the order gateway after all
// scoring and admission gates pass.
type TradeSignal struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Label      string    `json:"label"`
	Score      float64   `json:"score"`
	IssuedAt   time.Time `json:"issued_at"`
}

// CooldownKey builds the admission-layer dedup key:
// symbol + direction + entry price + label.
func (s *TradeSignal) CooldownKey() string {
	b, _ := json.Marshal([4]any{s.Symbol, s.Side, s.EntryPrice, s.Label})
	return string(b)
}

// RewardRisk returns the signal's reward-to-risk ratio (0 when degenerate).
func (s *TradeSignal) RewardRisk() float64 {
	risk := s.EntryPrice - s.StopLoss
	reward := s.TakeProfit - s.EntryPrice
	if s.Side == SideBearish {
		risk, reward = -risk, -reward
	}
	if risk <= 0 {
		return 0
	}
	return reward / risk
}

// JSON returns the JSON-encoded signal.
func (s *TradeSignal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
