// cmd/mssengine runs the live detection engine: it consumes closed bars
// from a Redis Stream, evaluates the bias / sweep / MSS pipeline per symbol,
// and submits admitted signals to the paper gateway while publishing events
// to Redis, SQLite, and WebSocket dashboard clients.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mss-enginev1/config"
	"mss-enginev1/internal/api"
	"mss-enginev1/internal/engine"
	"mss-enginev1/internal/execution"
	"mss-enginev1/internal/gatebus"
	"mss-enginev1/internal/gateway"
	"mss-enginev1/internal/logger"
	"mss-enginev1/internal/marketdata"
	"mss-enginev1/internal/metrics"
	"mss-enginev1/internal/model"
	"mss-enginev1/internal/notification"
	"mss-enginev1/internal/preset"
	redisstore "mss-enginev1/internal/store/redis"
	sqlitestore "mss-enginev1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[mssengine] starting...")

	cfg := config.Load()
	logger.Init("mssengine", logger.ParseLevel(cfg.LogLevel))

	symbols := cfg.ParseSymbols()
	tradingTF := cfg.ParseTradingTF()
	log.Printf("[mssengine] symbols=%v trading_tf=%s", symbols, tradingTF)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Metrics & health ----
	prom := metrics.New()
	health := metrics.NewHealthStatus(symbols)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)

	// ---- SQLite store (events, signals, bars) ----
	os.MkdirAll("data", 0o755)
	store, err := sqlitestore.New(sqlitestore.StoreConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[mssengine] sqlite init failed: %v", err)
	}
	defer store.Close()
	go store.Run(ctx)

	// ---- Redis sink (event publishing + the live bar feed) ----
	redisSink, err := redisstore.NewSink(redisstore.SinkConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatalf("[mssengine] redis init failed: %v", err)
	}
	defer redisSink.Close()

	// ---- Gate bus with sinks ----
	bus := gatebus.New(4096, store, redisSink)

	// ---- WS gateway ----
	hub := gateway.NewHub()
	go hub.Run(bus.Subscribe(1024))
	metricsSrv.Handle("/ws", http.HandlerFunc(hub.ServeWS))
	metricsSrv.Start()

	// ---- Liveness checks ----
	health.StartLivenessChecker(ctx, redisSink.Client(), store.DB(), 10*time.Second)

	// ---- Presets ----
	doc, err := preset.Load(cfg.PresetsPath)
	if err != nil {
		log.Fatalf("[mssengine] preset load failed: %v", err)
	}
	log.Printf("[mssengine] loaded %d presets, %d schedules", len(doc.Presets), len(doc.Schedules))

	// ---- Paper gateway + journal ----
	journal, err := execution.NewJournal(cfg.JournalPath)
	if err != nil {
		log.Fatalf("[mssengine] journal init failed: %v", err)
	}
	defer journal.Close()
	paper := execution.NewPaperGateway(cfg.SlippagePips, journal)

	admission := preset.NewAdmission(doc, paper)

	// ---- Notifications ----
	var backends []notification.Notifier
	if cfg.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	notify := notification.NewMulti(backends...)

	// ---- Engine ----
	eng, err := engine.New(engine.DefaultConfig(tradingTF), symbols, bus, admission, paper, prom)
	if err != nil {
		log.Fatalf("[mssengine] engine init failed: %v", err)
	}
	eng.SetPositionUpdater(paper)
	paper.SetCloseHook(func(ct execution.ClosedTrade) {
		eng.OnTradeClosed(ct.Symbol, ct.ClosedAt, ct.Won)
		notify.Notify(notification.TradeCloseAlert(ct.Symbol, ct.Won, ct.PnLPips, ct.ClosedAt))
	})
	eng.OnSignal = func(sig *model.TradeSignal) {
		if err := store.SaveSignal(sig); err != nil {
			log.Printf("[mssengine] journal signal failed: %v", err)
		}
		redisSink.PublishSignal(sig)
		hub.BroadcastSignal(sig)
		notify.Notify(notification.SignalAlert(sig))
	}

	// ---- HTTP API ----
	api.New(eng, paper, journal, bus).Mount(metricsSrv)

	// ---- Bar feed ----
	feed := marketdata.NewFeed(redisSink.Client(), "mss:bars")
	barCh := make(chan model.Bar, 5000)
	go func() {
		if err := feed.Run(ctx, barCh); err != nil && ctx.Err() == nil {
			log.Printf("[mssengine] feed stopped: %v", err)
		}
	}()

	// ---- Startup validation report (advisory) ----
	go func() {
		time.Sleep(30 * time.Second)
		for _, sym := range symbols {
			r := eng.Validate(sym, time.Now().UTC())
			log.Printf("[mssengine] validation %s pass=%v", sym, r.Pass())
		}
	}()

	// ---- Main loop ----
	log.Println("[mssengine] running")
	persist := make([]model.Bar, 0, 128)
	flushTicker := time.NewTicker(5 * time.Second)
	defer flushTicker.Stop()

	for {
		select {
		case <-sigCh:
			log.Println("[mssengine] shutting down...")
			cancel()
			if len(persist) > 0 {
				store.SaveBars(persist)
			}
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			metricsSrv.Stop(shutdownCtx)
			shutdownCancel()
			return

		case bar := <-barCh:
			health.SetLastBarTime(time.Now())
			eng.OnBar(bar)
			persist = append(persist, bar)

		case <-flushTicker.C:
			if len(persist) > 0 {
				if err := store.SaveBars(persist); err != nil {
					log.Printf("[mssengine] bar persist failed: %v", err)
				}
				persist = persist[:0]
			}
		}
	}
}
