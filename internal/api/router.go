// Package api exposes read-only HTTP endpoints over the running engine:
// per-symbol state, journaled trades, the recent event log, and the
// readiness validation report.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"mss-enginev1/internal/engine"
	"mss-enginev1/internal/execution"
	"mss-enginev1/internal/gatebus"
)

// Mux is the route registrar the router mounts onto (satisfied by
// http.ServeMux and the metrics server).
type Mux interface {
	Handle(pattern string, h http.Handler)
}

// Router serves the v1 API. All endpoints are GET and return JSON.
type Router struct {
	engine  *engine.Engine
	paper   *execution.PaperGateway
	journal *execution.Journal
	bus     *gatebus.Bus
}

// New builds a router over the live components. journal may be nil.
func New(eng *engine.Engine, paper *execution.PaperGateway, journal *execution.Journal, bus *gatebus.Bus) *Router {
	return &Router{engine: eng, paper: paper, journal: journal, bus: bus}
}

// Mount registers the API routes on mux.
func (rt *Router) Mount(mux Mux) {
	mux.Handle("/api/v1/status", http.HandlerFunc(rt.handleStatus))
	mux.Handle("/api/v1/trades", http.HandlerFunc(rt.handleTrades))
	mux.Handle("/api/v1/events", http.HandlerFunc(rt.handleEvents))
	mux.Handle("/api/v1/validate", http.HandlerFunc(rt.handleValidate))
}

type symbolStatus struct {
	Bias         string `json:"bias"`
	Orchestrator string `json:"orchestrator"`
}

func (rt *Router) handleStatus(w http.ResponseWriter, r *http.Request) {
	symbols := map[string]symbolStatus{}
	for _, sym := range rt.engine.Symbols() {
		ev := rt.engine.Evaluator(sym)
		symbols[sym] = symbolStatus{
			Bias:         string(ev.BiasState()),
			Orchestrator: string(ev.OrchestratorState()),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbols": symbols,
		"stats":   rt.paper.Stats(),
	})
}

func (rt *Router) handleTrades(w http.ResponseWriter, r *http.Request) {
	if rt.journal == nil {
		writeJSON(w, http.StatusOK, []execution.TradeRecord{})
		return
	}
	limit := queryInt(r, "limit", 50)
	trades, err := rt.journal.Trades(limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

func (rt *Router) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	events := rt.bus.Events()
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	writeJSON(w, http.StatusOK, events)
}

func (rt *Router) handleValidate(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "symbol parameter is required"})
		return
	}
	report := rt.engine.Validate(symbol, time.Now().UTC())
	code := http.StatusOK
	if !report.Pass() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}

func queryInt(r *http.Request, key string, def int) int {
	if s := r.URL.Query().Get(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
