package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"mss-enginev1/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Symbols and timeframe
	Symbols   string // comma-separated, e.g. "EURUSD,GBPUSD"
	TradingTF string // e.g. "M15"

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	JournalPath   string
	MetricsAddr   string

	// Preset/schedule document (optional)
	PresetsPath string

	// Paper execution
	SlippagePips float64

	// Notifications (optional; empty disables the channel)
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Symbols:   getEnv("SYMBOLS", "EURUSD"),
		TradingTF: getEnv("TRADING_TF", "M15"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/mss.db"),
		JournalPath:   getEnv("JOURNAL_PATH", "data/journal.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		PresetsPath: getEnv("PRESETS_PATH", "config/presets.yaml"),

		SlippagePips: getEnvFloat("SLIPPAGE_PIPS", 0.5),

		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// ParseSymbols splits the Symbols string into a clean list.
func (c *Config) ParseSymbols() []string {
	parts := strings.Split(c.Symbols, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseTradingTF resolves the trading timeframe. An unsupported value is a
// setup mistake and aborts startup.
func (c *Config) ParseTradingTF() model.Timeframe {
	for _, tf := range model.SupportedTimeframes() {
		if strings.EqualFold(tf.String(), c.TradingTF) {
			return tf
		}
	}
	log.Fatalf("[config] unsupported trading timeframe %q", c.TradingTF)
	return 0
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return f
}
