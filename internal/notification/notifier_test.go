package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mss-enginev1/internal/model"
)

func TestSignalAlertFormatting(t *testing.T) {
	sig := &model.TradeSignal{
		Symbol:     "EURUSD",
		Side:       model.SideBullish,
		EntryPrice: 1.0990,
		StopLoss:   1.0965,
		TakeProfit: 1.1060,
		Label:      "MSS_BULLISH",
		Score:      84,
	}
	a := SignalAlert(sig)
	if a.Level != AlertInfo {
		t.Errorf("level = %s, want INFO", a.Level)
	}
	if !strings.Contains(a.Title, "EURUSD") {
		t.Errorf("title missing symbol: %q", a.Title)
	}
	if !strings.Contains(a.Message, "MSS_BULLISH") || !strings.Contains(a.Message, "1.09900") {
		t.Errorf("message missing detail: %q", a.Message)
	}
}

func TestTradeCloseAlertLevels(t *testing.T) {
	win := TradeCloseAlert("EURUSD", true, 70, time.Now())
	if win.Level != AlertInfo {
		t.Errorf("win level = %s, want INFO", win.Level)
	}
	loss := TradeCloseAlert("EURUSD", false, -25, time.Now())
	if loss.Level != AlertWarning {
		t.Errorf("loss level = %s, want WARNING", loss.Level)
	}
	if !strings.Contains(loss.Message, "-25.0") {
		t.Errorf("loss message missing pips: %q", loss.Message)
	}
}

func TestMultiNilSafe(t *testing.T) {
	var m *Multi
	m.Notify(Alert{Title: "ignored"}) // must not panic

	if NewMulti() != nil {
		t.Error("NewMulti() with no backends should return nil")
	}
}

func TestWebhookNotifierPosts(t *testing.T) {
	got := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		got <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	if err := n.Send(context.Background(), Alert{Level: AlertInfo, Title: "t", Message: "m"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case payload := <-got:
		if payload["title"] != "t" || payload["level"] != "INFO" {
			t.Errorf("unexpected payload: %v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("webhook never received payload")
	}
}

func TestWebhookNotifierBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	if err := n.Send(context.Background(), Alert{Title: "t"}); err == nil {
		t.Fatal("expected error on 502 response")
	}
}
