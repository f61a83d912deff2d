package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mss-enginev1/internal/engine"
	"mss-enginev1/internal/execution"
	"mss-enginev1/internal/gatebus"
	"mss-enginev1/internal/model"
	"mss-enginev1/internal/preset"
)

func newTestRouter(t *testing.T) (*Router, *gatebus.Bus) {
	t.Helper()
	bus := gatebus.New(1024)
	paper := execution.NewPaperGateway(0, nil)
	admission := preset.NewAdmission(preset.Document{}, paper)
	eng, err := engine.New(engine.DefaultConfig(model.M15), []string{"EURUSD"}, bus, admission, paper, nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return New(eng, paper, nil, bus), bus
}

func serve(t *testing.T, rt *Router, path string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	rt.Mount(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	rt, _ := newTestRouter(t)
	rec := serve(t, rt, "/api/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var out struct {
		Symbols map[string]struct {
			Bias         string `json:"bias"`
			Orchestrator string `json:"orchestrator"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	st, ok := out.Symbols["EURUSD"]
	if !ok {
		t.Fatal("EURUSD missing from status")
	}
	if st.Orchestrator != "IDLE" {
		t.Errorf("orchestrator state = %q, want IDLE", st.Orchestrator)
	}
}

func TestTradesEndpointNilJournal(t *testing.T) {
	rt, _ := newTestRouter(t)
	rec := serve(t, rt, "/api/v1/trades")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var trades []execution.TradeRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &trades); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(trades) != 0 {
		t.Errorf("expected empty trades, got %d", len(trades))
	}
}

func TestEventsEndpointLimit(t *testing.T) {
	rt, bus := newTestRouter(t)
	for i := 0; i < 10; i++ {
		bus.Emit("TEST_EVENT", time.Now(), nil)
	}
	rec := serve(t, rt, "/api/v1/events?limit=3")
	var events []gatebus.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("got %d events, want 3", len(events))
	}
}

func TestValidateEndpoint(t *testing.T) {
	rt, _ := newTestRouter(t)

	rec := serve(t, rt, "/api/v1/validate")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing symbol: code = %d, want 400", rec.Code)
	}

	// Known symbol with no data yet fails readiness.
	rec = serve(t, rt, "/api/v1/validate?symbol=EURUSD")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("cold symbol: code = %d, want 503", rec.Code)
	}
	var report engine.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(report.Checks) == 0 {
		t.Error("report has no checks")
	}
}
