package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Storage
	DatabaseURL string

	// Notification backends
	TelegramBotToken string
	WebhookURL       string
	RedisAddr        string
	RedisPassword    string

	// NotifierCircuitBreakerMaxFailures/ResetTimeout tune the breaker
	// guarding Dispatcher.Send against a persistently failing notifier.
	NotifierCircuitBreakerMaxFailures  int
	NotifierCircuitBreakerResetTimeout time.Duration

	// Exchange connectivity
	DevMode bool // when true, exchangeFor serves a SimulatedExchange instead of live WS feeds

	// Observability
	MetricsAddr   string
	DashboardAddr string

	// Scheduling
	RegistryPollInterval time.Duration
	JanitorWarmup        time.Duration
	JanitorInterval      time.Duration
	OrderBookPollInterval time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", "data/watcher.db"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),

		NotifierCircuitBreakerMaxFailures:  getEnvInt("NOTIFIER_BREAKER_MAX_FAILURES", 5),
		NotifierCircuitBreakerResetTimeout: getEnvDuration("NOTIFIER_BREAKER_RESET_TIMEOUT", 30*time.Second),

		DevMode: getEnvBool("DEV_MODE", false),

		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		DashboardAddr: getEnv("DASHBOARD_ADDR", ":9091"),

		RegistryPollInterval:  getEnvDuration("REGISTRY_POLL_INTERVAL", 5*time.Second),
		JanitorWarmup:         getEnvDuration("JANITOR_WARMUP", 10*time.Minute),
		JanitorInterval:       getEnvDuration("JANITOR_INTERVAL", 5*time.Minute),
		OrderBookPollInterval: getEnvDuration("ORDER_BOOK_POLL_INTERVAL", 100*time.Millisecond),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "1" || v == "true" || v == "TRUE"
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid duration for %s=%q, using default %s", key, v, fallback)
		return fallback
	}
	return d
}
