package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"cryptowatcher/config"
	"cryptowatcher/internal/bus"
	"cryptowatcher/internal/cache"
	"cryptowatcher/internal/dispatcher"
	"cryptowatcher/internal/evaluator"
	"cryptowatcher/internal/exchange"
	"cryptowatcher/internal/gateway"
	"cryptowatcher/internal/logger"
	"cryptowatcher/internal/metrics"
	"cryptowatcher/internal/model"
	"cryptowatcher/internal/notify"
	"cryptowatcher/internal/registry"
	"cryptowatcher/internal/store/sqlite"
	"cryptowatcher/internal/watchtask"
)

func main() {
	log := logger.Init("watcher", slog.LevelInfo)
	log.Info("starting")

	cfg := config.Load()

	if err := os.MkdirAll(filepath.Dir(cfg.DatabaseURL), 0o755); err != nil {
		log.Error("failed to create database directory", "error", err)
		os.Exit(1)
	}
	store, err := sqlite.Open(sqlite.Config{DBPath: cfg.DatabaseURL})
	if err != nil {
		log.Error("sqlite open failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	health.StartLivenessChecker(ctx, store.DB(), 10*time.Second)

	notifier := buildNotifier(cfg, log)

	exchangeFor := buildExchangeFactory(cfg, log, health, prom)

	c := cache.New()
	eval := evaluator.New(c, prom, log)
	candles := bus.NewCandleBus(256)
	alerts := bus.NewAlertBus(256)
	wireFanoutMetrics(ctx, candles, "candles", prom)
	wireFanoutMetrics(ctx, alerts, "alerts", prom)
	disp := dispatcher.New(notifier, alerts, cfg.NotifierCircuitBreakerMaxFailures, cfg.NotifierCircuitBreakerResetTimeout, prom, log)

	var runner *watchtask.Runner
	reg := registry.New(store, exchangeFor, c, func(ctx context.Context, ex model.ExchangeID, symbol string) {
		runner.SpawnFunc()(ctx, ex, symbol)
	}, log, prom)
	runner = watchtask.New(c, reg, eval, disp, exchangeFor, candles, log, prom)

	go reg.Run(ctx)
	go runner.RunBoundaryTask(ctx)
	go runner.RunJanitor(ctx, watchedIntervalsFor)

	hub := gateway.NewHub(log)
	go hub.Run(ctx, candles, alerts)

	dashMux := http.NewServeMux()
	dashMux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		gateway.ServeWS(hub, log, w, r)
	})
	dashSrv := &http.Server{Addr: cfg.DashboardAddr, Handler: dashMux}
	go func() {
		log.Info("dashboard server listening", "addr", cfg.DashboardAddr)
		if err := dashSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("dashboard server error", "error", err)
		}
	}()

	health.SetNotifierOK(true)
	log.Info("watcher ready")

	<-sigCh
	log.Info("shutdown signal received, cleaning up")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	dashSrv.Shutdown(shutdownCtx)

	log.Info("shutdown complete")
}

// buildNotifier composes the notifier chain in priority order: Telegram,
// then a generic webhook, then Redis Pub/Sub, falling back to logging so an
// alert is never silently lost even with no backend configured.
func buildNotifier(cfg *config.Config, log *slog.Logger) model.Notifier {
	var backends []model.Notifier

	if cfg.TelegramBotToken != "" {
		backends = append(backends, notify.NewTelegramNotifier(cfg.TelegramBotToken))
	}
	if cfg.WebhookURL != "" {
		backends = append(backends, notify.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn("redis notifier unavailable, skipping", "addr", cfg.RedisAddr, "error", err)
		} else {
			backends = append(backends, notify.NewRedisNotifier(rdb))
		}
	}
	backends = append(backends, notify.NewLogNotifier())

	return notify.NewMultiNotifier(backends...)
}

// buildExchangeFactory returns a function resolving an ExchangeID to its
// model.Exchange adapter. Each exchange gets exactly one StreamingExchange,
// shared across every symbol it streams, since one WS connection multiplexes
// all of an exchange's subscribed symbols.
func buildExchangeFactory(cfg *config.Config, log *slog.Logger, health *metrics.HealthStatus, prom *metrics.Metrics) func(model.ExchangeID) model.Exchange {
	if cfg.DevMode {
		sim := exchange.NewSimulatedExchange()
		health.SetExchangeConnected("simulated", true)
		return func(model.ExchangeID) model.Exchange { return sim }
	}

	upbit := exchange.NewStreamingExchange(model.Upbit, exchange.UpbitDecoder{}, log, prom)
	binance := exchange.NewStreamingExchange(model.Binance, exchange.BinanceDecoder{}, log, prom)
	health.SetExchangeConnected(model.Upbit.String(), true)
	health.SetExchangeConnected(model.Binance.String(), true)

	return func(id model.ExchangeID) model.Exchange {
		switch id {
		case model.Binance:
			return binance
		default:
			return upbit
		}
	}
}

// wireFanoutMetrics hooks b's drop callback and periodically samples its
// subscriber channel saturation, both exported under name so the candle and
// alert buses show up as distinct Prometheus series.
func wireFanoutMetrics[T any](ctx context.Context, b *bus.FanOut[T], name string, m *metrics.Metrics) {
	if m == nil {
		return
	}
	b.OnDrop = func(subscriberIdx int) {
		m.FanoutDropsTotal.WithLabelValues(fmt.Sprintf("%s-%d", name, subscriberIdx)).Inc()
	}

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for i, stat := range b.ChannelStats() {
					if stat.Cap == 0 {
						continue
					}
					pct := float64(stat.Len) / float64(stat.Cap) * 100
					m.ChannelSaturationPct.WithLabelValues(fmt.Sprintf("%s-%d", name, i)).Set(pct)
				}
			}
		}
	}()
}

// watchedIntervalsFor collects the union of intervals any of alarms still
// references, used by the janitor sweep to decide which cache slots to keep.
func watchedIntervalsFor(alarms []*model.Alarm) map[model.Interval]bool {
	out := make(map[model.Interval]bool)
	for _, a := range alarms {
		for _, iv := range a.Condition.IntervalsNeedToBeWatched() {
			out[iv] = true
		}
	}
	return out
}
