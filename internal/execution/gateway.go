// Package execution provides the paper order gateway. It accepts admitted
// trade signals, tracks simulated open positions, closes them against
// subsequent closed bars (stop-loss / take-profit), and journals every fill
// to SQLite.
package execution

import (
	"fmt"
	"log"
	"sync"
	"time"

	"mss-enginev1/internal/model"
	"mss-enginev1/internal/session"
)

// Position is one simulated open trade.
type Position struct {
	ID         string     `json:"id"` // signal ID
	Symbol     string     `json:"symbol"`
	Side       model.Side `json:"side"`
	EntryPrice float64    `json:"entry_price"` // after slippage
	StopLoss   float64    `json:"stop_loss"`
	TakeProfit float64    `json:"take_profit"`
	Label      string     `json:"label"`
	Score      float64    `json:"score"`
	OpenedAt   time.Time  `json:"opened_at"`
}

// ClosedTrade is a position after its stop or target filled.
type ClosedTrade struct {
	Position
	ExitPrice float64   `json:"exit_price"`
	ClosedAt  time.Time `json:"closed_at"`
	Won       bool      `json:"won"`
	PnLPips   float64   `json:"pnl_pips"`
}

// CloseHook is notified for every closed position, letting the orchestrator
// start its win/loss cooldown and alert channels report the result.
type CloseHook func(ct ClosedTrade)

// PaperGateway simulates order execution without broker calls. It
// implements model.OrderGateway.
type PaperGateway struct {
	mu           sync.RWMutex
	slippagePips float64
	journal      *Journal // nil disables journaling
	onClose      CloseHook

	open   map[string][]*Position
	closed []ClosedTrade

	day          time.Time // UTC day the daily counters belong to
	tradesDay    map[string]int
	realizedPips float64
}

var _ model.OrderGateway = (*PaperGateway)(nil)

// NewPaperGateway creates a paper gateway. slippagePips is applied against
// the entry (buys fill higher, sells lower). journal may be nil.
func NewPaperGateway(slippagePips float64, journal *Journal) *PaperGateway {
	return &PaperGateway{
		slippagePips: slippagePips,
		journal:      journal,
		open:         make(map[string][]*Position),
		tradesDay:    make(map[string]int),
	}
}

// SetCloseHook registers the close notification callback. Must be called
// before bars start flowing.
func (g *PaperGateway) SetCloseHook(h CloseHook) { g.onClose = h }

// OpenFromSignal opens a simulated position from an admitted signal.
func (g *PaperGateway) OpenFromSignal(sig *model.TradeSignal) error {
	if sig == nil {
		return fmt.Errorf("nil signal")
	}
	if sig.EntryPrice <= 0 {
		return fmt.Errorf("signal %s has no entry price", sig.ID)
	}

	pip := model.PipSize(sig.Symbol)
	entry := sig.EntryPrice
	slip := g.slippagePips * pip
	if sig.Side == model.SideBullish {
		entry += slip
	} else {
		entry -= slip
	}

	pos := &Position{
		ID:         sig.ID,
		Symbol:     sig.Symbol,
		Side:       sig.Side,
		EntryPrice: entry,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Label:      sig.Label,
		Score:      sig.Score,
		OpenedAt:   sig.IssuedAt,
	}

	g.mu.Lock()
	g.rollDay(sig.IssuedAt)
	g.open[sig.Symbol] = append(g.open[sig.Symbol], pos)
	g.tradesDay[sig.Symbol]++
	g.mu.Unlock()

	log.Printf("[paper] open %s %s entry=%.5f sl=%.5f tp=%.5f label=%s score=%.1f",
		sig.Side, sig.Symbol, entry, sig.StopLoss, sig.TakeProfit, sig.Label, sig.Score)

	if g.journal != nil {
		if err := g.journal.RecordOpen(pos); err != nil {
			log.Printf("[paper] journal open failed: %v", err)
		}
	}
	return nil
}

// OpenPositions returns the count of simulated open positions for a symbol.
func (g *PaperGateway) OpenPositions(symbol string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.open[symbol])
}

// TradesToday returns the number of positions opened in the current UTC day.
func (g *PaperGateway) TradesToday(symbol string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.tradesDay[symbol]
}

// OnBar tests every open position of the bar's symbol against the bar's
// range and closes those whose stop or target was touched. When a bar spans
// both levels the stop fills first (conservative). Returns the trades
// closed by this bar.
func (g *PaperGateway) OnBar(bar model.Bar) []ClosedTrade {
	closedAt := bar.TS.Add(bar.TF.Duration())

	g.mu.Lock()
	g.rollDay(closedAt)
	positions := g.open[bar.Symbol]
	var kept []*Position
	var done []ClosedTrade
	for _, p := range positions {
		exit, won, hit := fillAgainst(p, bar)
		if !hit {
			kept = append(kept, p)
			continue
		}
		ct := ClosedTrade{
			Position:  *p,
			ExitPrice: exit,
			ClosedAt:  closedAt,
			Won:       won,
			PnLPips:   pnlPips(p, exit),
		}
		done = append(done, ct)
		g.closed = append(g.closed, ct)
		g.realizedPips += ct.PnLPips
	}
	g.open[bar.Symbol] = kept
	g.mu.Unlock()

	for _, ct := range done {
		log.Printf("[paper] close %s %s exit=%.5f won=%v pnl=%.1f pips",
			ct.Side, ct.Symbol, ct.ExitPrice, ct.Won, ct.PnLPips)
		if g.journal != nil {
			if err := g.journal.RecordClose(ct); err != nil {
				log.Printf("[paper] journal close failed: %v", err)
			}
		}
		if g.onClose != nil {
			g.onClose(ct)
		}
	}
	return done
}

// fillAgainst reports whether the bar touched the position's stop or
// target, and at which price it exits.
func fillAgainst(p *Position, bar model.Bar) (exit float64, won, hit bool) {
	if p.Side == model.SideBullish {
		if bar.Low <= p.StopLoss {
			return p.StopLoss, false, true
		}
		if bar.High >= p.TakeProfit {
			return p.TakeProfit, true, true
		}
		return 0, false, false
	}
	if bar.High >= p.StopLoss {
		return p.StopLoss, false, true
	}
	if bar.Low <= p.TakeProfit {
		return p.TakeProfit, true, true
	}
	return 0, false, false
}

func pnlPips(p *Position, exit float64) float64 {
	pip := model.PipSize(p.Symbol)
	if p.Side == model.SideBullish {
		return (exit - p.EntryPrice) / pip
	}
	return (p.EntryPrice - exit) / pip
}

// rollDay resets the daily trade counters on a UTC day change.
// Caller holds g.mu.
func (g *PaperGateway) rollDay(now time.Time) {
	d := session.DayStart(now)
	if !d.Equal(g.day) {
		g.day = d
		g.tradesDay = make(map[string]int)
	}
}

// Stats summarizes realized performance.
type Stats struct {
	Open    int     `json:"open"`
	Closed  int     `json:"closed"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	NetPips float64 `json:"net_pips"`
}

// Stats returns a snapshot of realized performance across all symbols.
func (g *PaperGateway) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := Stats{Closed: len(g.closed), NetPips: g.realizedPips}
	for _, ps := range g.open {
		s.Open += len(ps)
	}
	for _, ct := range g.closed {
		if ct.Won {
			s.Wins++
		} else {
			s.Losses++
		}
	}
	return s
}

// ClosedTrades returns a snapshot of every closed trade, oldest first.
func (g *PaperGateway) ClosedTrades() []ClosedTrade {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]ClosedTrade, len(g.closed))
	copy(out, g.closed)
	return out
}
