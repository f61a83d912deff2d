// cmd/backtest replays stored bars through the full detection pipeline and
// prints the resulting paper trades. It uses the same engine, orchestrator,
// and preset admission as the live binary; only the bar source and the
// output sinks differ.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"mss-enginev1/internal/engine"
	"mss-enginev1/internal/execution"
	"mss-enginev1/internal/gatebus"
	"mss-enginev1/internal/model"
	"mss-enginev1/internal/preset"
	sqlitestore "mss-enginev1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	dbPath := flag.String("db", "data/mss.db", "SQLite database with recorded bars")
	symbol := flag.String("symbol", "EURUSD", "symbol to replay")
	tfName := flag.String("tf", "M15", "trading timeframe (M5, M15, H1)")
	fromStr := flag.String("from", "", "start date (YYYY-MM-DD, UTC)")
	toStr := flag.String("to", "", "end date exclusive (YYYY-MM-DD, UTC)")
	presetsPath := flag.String("presets", "", "optional preset YAML (empty = admit-all default)")
	slippage := flag.Float64("slippage", 0.5, "fill slippage in pips")
	verbose := flag.Bool("v", false, "print every closed trade")
	flag.Parse()

	tradingTF, err := parseTF(*tfName)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	plan, err := model.PlanFor(tradingTF)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	from, to, err := parseRange(*fromStr, *toStr)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	store, err := sqlitestore.New(sqlitestore.StoreConfig{DBPath: *dbPath})
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer store.Close()

	bars, err := store.LoadBars(*symbol, plan.LTF, from, to)
	if err != nil {
		log.Fatalf("[backtest] load bars failed: %v", err)
	}
	if len(bars) == 0 {
		log.Fatalf("[backtest] no %s bars for %s in [%s, %s)",
			plan.LTF, *symbol, from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	log.Printf("[backtest] %s %s: %d bars from %s to %s",
		*symbol, plan.LTF, len(bars),
		bars[0].TS.Format(time.RFC3339), bars[len(bars)-1].TS.Format(time.RFC3339))

	doc := preset.Document{}
	if *presetsPath != "" {
		doc, err = preset.Load(*presetsPath)
		if err != nil {
			log.Fatalf("[backtest] preset load failed: %v", err)
		}
	}

	paper := execution.NewPaperGateway(*slippage, nil)
	admission := preset.NewAdmission(doc, paper)
	bus := gatebus.New(65536)

	eng, err := engine.New(engine.DefaultConfig(tradingTF), []string{*symbol}, bus, admission, paper, nil)
	if err != nil {
		log.Fatalf("[backtest] engine init failed: %v", err)
	}
	eng.SetPositionUpdater(paper)
	paper.SetCloseHook(func(ct execution.ClosedTrade) {
		eng.OnTradeClosed(ct.Symbol, ct.ClosedAt, ct.Won)
	})

	start := time.Now()
	for _, bar := range bars {
		eng.OnBar(bar)
	}
	elapsed := time.Since(start)

	report := eng.Validate(*symbol, bars[len(bars)-1].TS.Add(plan.LTF.Duration()))
	for _, c := range report.Checks {
		status := "PASS"
		if !c.Pass {
			status = "FAIL"
		}
		log.Printf("[backtest] check %-22s %s %s", c.Name, status, c.Detail)
	}

	stats := paper.Stats()
	fmt.Println()
	fmt.Printf("Replayed %d bars in %s\n", len(bars), elapsed.Round(time.Millisecond))
	fmt.Printf("Trades closed: %d  (wins %d / losses %d)\n", stats.Closed, stats.Wins, stats.Losses)
	fmt.Printf("Still open:    %d\n", stats.Open)
	fmt.Printf("Net result:    %+.1f pips\n", stats.NetPips)
	if stats.Closed > 0 {
		fmt.Printf("Win rate:      %.1f%%\n", 100*float64(stats.Wins)/float64(stats.Closed))
	}

	if *verbose {
		fmt.Println()
		for _, ct := range paper.ClosedTrades() {
			outcome := "LOSS"
			if ct.Won {
				outcome = "WIN "
			}
			fmt.Printf("%s  %s %-4s %-20s entry=%.5f exit=%.5f  %s %+.1f pips\n",
				ct.OpenedAt.Format("2006-01-02 15:04"), ct.Symbol, ct.Side, ct.Label,
				ct.EntryPrice, ct.ExitPrice, outcome, ct.PnLPips)
		}
	}
}

func parseTF(name string) (model.Timeframe, error) {
	want := strings.ToUpper(strings.TrimSpace(name))
	for _, tf := range model.SupportedTimeframes() {
		if tf.String() == want {
			return tf, nil
		}
	}
	return 0, fmt.Errorf("unsupported timeframe %q", name)
}

func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	from := time.Time{}
	to := time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
	var err error
	if fromStr != "" {
		from, err = time.Parse("2006-01-02", fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("bad -from: %w", err)
		}
	}
	if toStr != "" {
		to, err = time.Parse("2006-01-02", toStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("bad -to: %w", err)
		}
	}
	return from, to, nil
}
