// Package watchtask runs the per-(exchange, symbol) trade and order-book
// streaming loops, the candle-boundary task, and the cache janitor.
package watchtask

import (
	"context"
	"log/slog"
	"time"

	"cryptowatcher/internal/bus"
	"cryptowatcher/internal/cache"
	"cryptowatcher/internal/dispatcher"
	"cryptowatcher/internal/evaluator"
	"cryptowatcher/internal/metrics"
	"cryptowatcher/internal/model"
	"cryptowatcher/internal/registry"
)

const orderBookPollInterval = 100 * time.Millisecond

// boundaryTickInterval mirrors the original's candle_update_task(period=0.3).
const boundaryTickInterval = 300 * time.Millisecond

const (
	janitorWarmup   = 10 * time.Minute
	janitorInterval = 5 * time.Minute
)

// Registrar is the subset of registry.Registry the tasks depend on.
type Registrar interface {
	IsSymbolRegistered(exchange model.ExchangeID, symbol string) bool
	AlarmsFor(exchange model.ExchangeID, symbol string) []*model.Alarm
	MarkAlerted(alarmID model.AlarmID, ts int64)
}

// Runner drives the trade/order-book tasks, boundary task and janitor for a
// Watcher.
type Runner struct {
	cache      *cache.Cache
	registrar  Registrar
	evaluator  *evaluator.Evaluator
	dispatcher *dispatcher.Dispatcher
	exchangeOf func(model.ExchangeID) model.Exchange
	candles    *bus.CandleBus
	log        *slog.Logger
	metrics    *metrics.Metrics
}

// New returns a Runner. m may be nil.
func New(c *cache.Cache, reg Registrar, eval *evaluator.Evaluator, disp *dispatcher.Dispatcher, exchangeOf func(model.ExchangeID) model.Exchange, candles *bus.CandleBus, log *slog.Logger, m *metrics.Metrics) *Runner {
	return &Runner{
		cache:      c,
		registrar:  reg,
		evaluator:  eval,
		dispatcher: disp,
		exchangeOf: exchangeOf,
		candles:    candles,
		log:        log,
		metrics:    m,
	}
}

// SpawnFunc returns a registry.SpawnFunc that starts the trade and
// order-book tasks for a pair.
func (r *Runner) SpawnFunc() registry.SpawnFunc {
	return func(ctx context.Context, exchange model.ExchangeID, symbol string) {
		go r.runTradeTask(ctx, exchange, symbol)
		go r.runOrderBookTask(ctx, exchange, symbol)
	}
}

// RunBoundaryTask ticks the cache's candle-boundary logic until ctx is
// cancelled.
func (r *Runner) RunBoundaryTask(ctx context.Context) {
	ticker := time.NewTicker(boundaryTickInterval)
	defer ticker.Stop()
	var lastSecond int64 = -1
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.Unix() == lastSecond {
				continue
			}
			lastSecond = now.Unix()
			r.cache.BoundaryTickFunc(now, r.publishCandleEvent)
		}
	}
}

// RunJanitor periodically drops cache slots for symbols/intervals no
// alarm references any longer, after an initial warmup grace period.
func (r *Runner) RunJanitor(ctx context.Context, watchedIntervalsFor func(alarms []*model.Alarm) map[model.Interval]bool) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(janitorWarmup):
	}
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(watchedIntervalsFor)
			if r.metrics != nil {
				r.metrics.JanitorSweeps.Inc()
			}
		}
	}
}

func (r *Runner) sweep(watchedIntervalsFor func(alarms []*model.Alarm) map[model.Interval]bool) {
	for _, ref := range r.cache.WatchedSymbols() {
		alarms := r.registrar.AlarmsFor(ref.Exchange, ref.Symbol)
		if len(alarms) == 0 {
			r.cache.DropSymbol(ref.Exchange, ref.Symbol)
			r.log.Info("janitor dropped unreferenced symbol", "exchange", ref.Exchange, "symbol", ref.Symbol)
			continue
		}
		wanted := watchedIntervalsFor(alarms)
		for _, interval := range r.cache.WatchedIntervals(ref.Exchange, ref.Symbol) {
			if !wanted[interval] {
				r.cache.DropInterval(ref.Exchange, ref.Symbol, interval)
				r.log.Info("janitor dropped unreferenced interval", "exchange", ref.Exchange, "symbol", ref.Symbol, "interval", interval)
			}
		}
	}
}
