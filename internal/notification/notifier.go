// Package notification delivers admitted-signal and trade-close alerts to
// external channels (Telegram, generic webhooks).
package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"mss-enginev1/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// SignalAlert formats an admitted trade signal for delivery.
func SignalAlert(sig *model.TradeSignal) Alert {
	return Alert{
		Level: AlertInfo,
		Title: fmt.Sprintf("%s %s signal", sig.Symbol, sig.Side),
		Message: fmt.Sprintf("%s\nentry %.5f  sl %.5f  tp %.5f\nrr %.2f  score %.0f",
			sig.Label, sig.EntryPrice, sig.StopLoss, sig.TakeProfit, sig.RewardRisk(), sig.Score),
	}
}

// TradeCloseAlert formats a closed paper trade for delivery.
func TradeCloseAlert(symbol string, won bool, pnlPips float64, closedAt time.Time) Alert {
	outcome := "loss"
	level := AlertWarning
	if won {
		outcome = "win"
		level = AlertInfo
	}
	return Alert{
		Level: level,
		Title: fmt.Sprintf("%s trade closed: %s", symbol, outcome),
		Message: fmt.Sprintf("%+.1f pips at %s", pnlPips,
			closedAt.UTC().Format("2006-01-02 15:04:05")),
	}
}

// Multi fans an alert out to every backend. Delivery is best-effort: a
// failing backend is logged and does not block the others.
type Multi struct {
	backends []Notifier
	timeout  time.Duration
}

// NewMulti builds a fan-out notifier. Returns nil when no backends are
// configured so callers can hold a nil *Multi safely.
func NewMulti(backends ...Notifier) *Multi {
	if len(backends) == 0 {
		return nil
	}
	return &Multi{backends: backends, timeout: 10 * time.Second}
}

// Notify delivers the alert asynchronously to all backends.
func (m *Multi) Notify(alert Alert) {
	if m == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		for _, b := range m.backends {
			if err := b.Send(ctx, alert); err != nil {
				log.Printf("[notify] delivery failed: %v", err)
			}
		}
	}()
}

// LogNotifier logs alerts instead of delivering them (useful in development).
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}
