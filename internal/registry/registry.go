// Package registry reconciles the enabled-alarm set reported by an
// AlarmStore with the set of alarms and streaming tasks the watcher is
// currently running.
package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cryptowatcher/internal/cache"
	"cryptowatcher/internal/metrics"
	"cryptowatcher/internal/model"
)

// pollInterval is how often the registry polls the AlarmStore for changes.
const pollInterval = 5 * time.Second

// backfillLimit is how many historical candles are fetched per newly
// watched interval.
const backfillLimit = candleCap

const candleCap = 100

// SpawnFunc starts the trade and order-book tasks for a newly observed
// (exchange, symbol) pair. It is only called once per pair — subsequent
// alarms on the same symbol simply join the existing tasks by virtue of
// being present in the registry.
type SpawnFunc func(ctx context.Context, exchange model.ExchangeID, symbol string)

// Registry owns the live Alarm set and the cache slots backing it.
type Registry struct {
	store    model.AlarmStore
	exchange func(model.ExchangeID) model.Exchange
	cache    *cache.Cache
	spawn    SpawnFunc
	log      *slog.Logger
	metrics  *metrics.Metrics

	mu             sync.RWMutex
	alarms         map[model.AlarmID]*model.Alarm
	runningSymbols map[symbolKey]bool
}

type symbolKey struct {
	exchange model.ExchangeID
	symbol   string
}

// New returns a Registry. exchangeFor resolves an ExchangeID to the
// Exchange adapter used for backfill. m may be nil.
func New(store model.AlarmStore, exchangeFor func(model.ExchangeID) model.Exchange, c *cache.Cache, spawn SpawnFunc, log *slog.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		store:          store,
		exchange:       exchangeFor,
		cache:          c,
		spawn:          spawn,
		log:            log,
		metrics:        m,
		alarms:         make(map[model.AlarmID]*model.Alarm),
		runningSymbols: make(map[symbolKey]bool),
	}
}

// Run polls the store every 5 seconds until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	r.reconcile(ctx)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

// IsSymbolRegistered reports whether any live alarm still watches
// (exchange, symbol); watch tasks poll this to know when to self-terminate.
func (r *Registry) IsSymbolRegistered(exchange model.ExchangeID, symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.alarms {
		if a.Exchange == exchange && a.Symbol() == symbol {
			return true
		}
	}
	return false
}

// AlarmsFor returns a fresh snapshot of alarms currently watching
// (exchange, symbol); the trade task recomputes this on every batch rather
// than caching it, since alarms can be added/removed between batches.
func (r *Registry) AlarmsFor(exchange model.ExchangeID, symbol string) []*model.Alarm {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Alarm
	for _, a := range r.alarms {
		if a.Exchange == exchange && a.Symbol() == symbol {
			out = append(out, a)
		}
	}
	return out
}

// MarkAlerted advances alarm's AlertedCandleTimestamp. Never decreases it.
func (r *Registry) MarkAlerted(alarmID model.AlarmID, ts int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.alarms[alarmID]; ok && ts > a.AlertedCandleTimestamp {
		a.AlertedCandleTimestamp = ts
	}
}

func (r *Registry) reconcile(ctx context.Context) {
	records, err := r.store.SelectEnabledAlarms(ctx)
	if err != nil {
		r.log.Error("failed to load enabled alarms", "error", err)
		return
	}

	enabled := make(map[model.AlarmID]model.AlarmRecord, len(records))
	for _, rec := range records {
		enabled[rec.AlarmID] = rec
	}

	r.mu.Lock()
	var toRemove []model.AlarmID
	for id := range r.alarms {
		if _, ok := enabled[id]; !ok {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		delete(r.alarms, id)
	}
	r.mu.Unlock()

	for _, rec := range records {
		if !rec.ExchangeID.Valid() {
			r.log.Warn("skipping alarm with unknown exchange id", "alarm_id", rec.AlarmID, "exchange_id", rec.ExchangeID)
			continue
		}
		cond, err := r.store.SelectCondition(ctx, rec.AlarmID)
		if err != nil {
			r.log.Error("failed to load condition, skipping this cycle", "alarm_id", rec.AlarmID, "error", err)
			continue
		}

		r.mu.RLock()
		existing, known := r.alarms[rec.AlarmID]
		r.mu.RUnlock()

		if known {
			if !sameCondition(existing.Condition, cond) {
				r.reconcileCondition(ctx, existing, cond)
			}
			continue
		}

		r.register(ctx, rec, cond)
	}

	if r.metrics != nil {
		r.mu.RLock()
		r.metrics.RegisteredAlarms.Set(float64(len(r.alarms)))
		r.metrics.ActiveSymbols.Set(float64(len(r.runningSymbols)))
		r.mu.RUnlock()
	}
}

func (r *Registry) register(ctx context.Context, rec model.AlarmRecord, cond model.Condition) {
	alarm := &model.Alarm{
		ID:        rec.AlarmID,
		ChannelID: rec.ChannelID,
		Exchange:  rec.ExchangeID,
		Base:      rec.BaseSymbol,
		Quote:     rec.QuoteSymbol,
		Condition: cond,
	}
	symbol := alarm.Symbol()

	r.cache.CreateOrderBookStorage(alarm.Exchange, symbol)
	for _, interval := range cond.IntervalsNeedToBeWatched() {
		r.cache.CreateCandleStorage(alarm.Exchange, symbol, interval)
		r.backfill(ctx, alarm.Exchange, symbol, interval)
	}

	key := symbolKey{alarm.Exchange, symbol}
	r.mu.Lock()
	r.alarms[alarm.ID] = alarm
	alreadyRunning := r.runningSymbols[key]
	if !alreadyRunning {
		r.runningSymbols[key] = true
	}
	r.mu.Unlock()

	if !alreadyRunning && r.spawn != nil {
		r.spawn(ctx, alarm.Exchange, symbol)
	}
}

func (r *Registry) reconcileCondition(ctx context.Context, alarm *model.Alarm, cond model.Condition) {
	symbol := alarm.Symbol()
	existingIntervals := make(map[model.Interval]bool)
	for _, i := range alarm.Condition.IntervalsNeedToBeWatched() {
		existingIntervals[i] = true
	}
	for _, interval := range cond.IntervalsNeedToBeWatched() {
		if existingIntervals[interval] {
			continue
		}
		r.cache.CreateCandleStorage(alarm.Exchange, symbol, interval)
		r.backfill(ctx, alarm.Exchange, symbol, interval)
	}

	r.mu.Lock()
	alarm.Condition = cond
	r.mu.Unlock()
}

func (r *Registry) backfill(ctx context.Context, exchange model.ExchangeID, symbol string, interval model.Interval) {
	ex := r.exchange(exchange)
	if ex == nil {
		return
	}
	bars, err := ex.FetchOHLCV(ctx, symbol, interval, backfillLimit)
	if err != nil {
		r.log.Error("backfill failed", "exchange", exchange, "symbol", symbol, "interval", interval, "error", err)
		return
	}
	added := 0
	for _, bar := range bars {
		c := model.NewCandle(exchange, symbol, timeFromMs(bar.TimestampMs, interval), interval)
		c.AddTrade(model.Trade{Price: bar.Open, TimestampMs: bar.TimestampMs})
		if bar.High != bar.Open {
			c.AddTrade(model.Trade{Price: bar.High, TimestampMs: bar.TimestampMs})
		}
		if bar.Low != bar.Open && bar.Low != bar.High {
			c.AddTrade(model.Trade{Price: bar.Low, TimestampMs: bar.TimestampMs})
		}
		c.AddTrade(model.Trade{Price: bar.Close, TimestampMs: bar.TimestampMs})
		c.ClearTrade()
		if r.cache.AddCandle(exchange, symbol, interval, c) {
			added++
		}
	}

	ob, err := ex.FetchOrderBook(ctx, symbol, 20)
	if err == nil {
		r.cache.CacheOrderBook(ob, exchange, symbol)
	}

	r.log.Info("backfill complete", "exchange", exchange, "symbol", symbol, "interval", interval, "added", added)
}

func sameCondition(a, b model.Condition) bool {
	return conditionKey(a) == conditionKey(b)
}

// conditionKey renders a condition to a comparable string; conditions are
// small structs of plain values so this is cheap and avoids needing
// reflect.DeepEqual pulled in just for this comparison.
func conditionKey(c model.Condition) string {
	key := ""
	if c.Whale != nil {
		key += "w:" + floatKey(c.Whale.Quantity)
	}
	if c.Tick != nil {
		key += "|t:" + floatKey(c.Tick.Quantity)
	}
	if c.RSI != nil {
		key += "|r:" + c.RSI.Interval.String() + ":" + intKey(c.RSI.Length) + ":" + floatKey(c.RSI.UpperBound) + ":" + floatKey(c.RSI.LowerBound)
	}
	if c.BollingerBand != nil {
		bb := c.BollingerBand
		key += "|b:" + bb.Interval.String() + ":" + intKey(bb.Length) + ":" + floatKey(bb.Coefficient) + ":" + boolKey(bb.OnOverUpperBand) + ":" + boolKey(bb.OnUnderLowerBand)
	}
	return key
}
