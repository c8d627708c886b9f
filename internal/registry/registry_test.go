package registry

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"cryptowatcher/internal/cache"
	"cryptowatcher/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var oneMinute = model.Interval{Length: 1, Timeframe: model.Minutes}

type fakeStore struct {
	mu         sync.Mutex
	records    []model.AlarmRecord
	conditions map[model.AlarmID]model.Condition
}

func (s *fakeStore) SelectEnabledAlarms(ctx context.Context) ([]model.AlarmRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AlarmRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *fakeStore) SelectCondition(ctx context.Context, id model.AlarmID) (model.Condition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conditions[id], nil
}

type fakeExchange struct{}

func (fakeExchange) WatchTrades(ctx context.Context, symbol string) ([]model.Trade, error) {
	return nil, nil
}
func (fakeExchange) WatchOrderBook(ctx context.Context, symbol string, limit int) error { return nil }
func (fakeExchange) OrderBook(symbol string) (model.OrderBook, bool)                   { return model.OrderBook{}, false }
func (fakeExchange) FetchOHLCV(ctx context.Context, symbol string, interval model.Interval, limit int) ([]model.OHLCV, error) {
	return []model.OHLCV{{TimestampMs: 1700000000000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10}}, nil
}
func (fakeExchange) FetchOrderBook(ctx context.Context, symbol string, limit int) (model.OrderBook, error) {
	return model.OrderBook{Symbol: symbol}, nil
}
func (fakeExchange) Close() error { return nil }

func TestRegisterSpawnsOncePerSymbolNotPerAlarm(t *testing.T) {
	store := &fakeStore{
		records: []model.AlarmRecord{
			{AlarmID: 1, ChannelID: "c1", ExchangeID: model.Upbit, BaseSymbol: "BTC", QuoteSymbol: "KRW", IsEnabled: true},
			{AlarmID: 2, ChannelID: "c2", ExchangeID: model.Upbit, BaseSymbol: "BTC", QuoteSymbol: "KRW", IsEnabled: true},
		},
		conditions: map[model.AlarmID]model.Condition{
			1: {Tick: &model.TickCondition{Quantity: 1}},
			2: {Tick: &model.TickCondition{Quantity: 2}},
		},
	}
	c := cache.New()
	var spawnCount int
	var mu sync.Mutex
	spawn := func(ctx context.Context, exchange model.ExchangeID, symbol string) {
		mu.Lock()
		spawnCount++
		mu.Unlock()
	}
	r := New(store, func(model.ExchangeID) model.Exchange { return fakeExchange{} }, c, spawn, discardLogger(), nil)
	r.reconcile(context.Background())

	mu.Lock()
	got := spawnCount
	mu.Unlock()
	if got != 1 {
		t.Fatalf("expected exactly 1 spawn for 2 alarms on the same symbol, got %d", got)
	}
	if !r.IsSymbolRegistered(model.Upbit, "BTC/KRW") {
		t.Fatal("expected symbol to be registered")
	}
	if len(r.AlarmsFor(model.Upbit, "BTC/KRW")) != 2 {
		t.Fatal("expected both alarms to be tracked")
	}
}

func TestReconcileRemovesDisabledAlarms(t *testing.T) {
	store := &fakeStore{
		records: []model.AlarmRecord{
			{AlarmID: 1, ChannelID: "c1", ExchangeID: model.Upbit, BaseSymbol: "BTC", QuoteSymbol: "KRW", IsEnabled: true},
		},
		conditions: map[model.AlarmID]model.Condition{1: {Tick: &model.TickCondition{Quantity: 1}}},
	}
	c := cache.New()
	r := New(store, func(model.ExchangeID) model.Exchange { return fakeExchange{} }, c, nil, discardLogger(), nil)
	r.reconcile(context.Background())
	if !r.IsSymbolRegistered(model.Upbit, "BTC/KRW") {
		t.Fatal("expected symbol registered after first reconcile")
	}

	store.mu.Lock()
	store.records = nil
	store.mu.Unlock()
	r.reconcile(context.Background())

	if r.IsSymbolRegistered(model.Upbit, "BTC/KRW") {
		t.Fatal("expected symbol to be deregistered once its alarm is disabled")
	}
}

func TestMarkAlertedNeverDecreases(t *testing.T) {
	store := &fakeStore{
		records: []model.AlarmRecord{
			{AlarmID: 1, ChannelID: "c1", ExchangeID: model.Upbit, BaseSymbol: "BTC", QuoteSymbol: "KRW", IsEnabled: true},
		},
		conditions: map[model.AlarmID]model.Condition{1: {Tick: &model.TickCondition{Quantity: 1}}},
	}
	c := cache.New()
	r := New(store, func(model.ExchangeID) model.Exchange { return fakeExchange{} }, c, nil, discardLogger(), nil)
	r.reconcile(context.Background())

	r.MarkAlerted(1, 100)
	r.MarkAlerted(1, 50)
	alarms := r.AlarmsFor(model.Upbit, "BTC/KRW")
	if len(alarms) != 1 || alarms[0].AlertedCandleTimestamp != 100 {
		t.Fatalf("expected AlertedCandleTimestamp to stay at 100, got %+v", alarms)
	}
}

func TestRegisterBackfillsIntervalBearingConditions(t *testing.T) {
	store := &fakeStore{
		records: []model.AlarmRecord{
			{AlarmID: 1, ChannelID: "c1", ExchangeID: model.Upbit, BaseSymbol: "BTC", QuoteSymbol: "KRW", IsEnabled: true},
		},
		conditions: map[model.AlarmID]model.Condition{
			1: {RSI: &model.RsiCondition{Length: 14, Interval: oneMinute, UpperBound: 70, LowerBound: 30}},
		},
	}
	c := cache.New()
	r := New(store, func(model.ExchangeID) model.Exchange { return fakeExchange{} }, c, nil, discardLogger(), nil)
	r.reconcile(context.Background())

	if got := len(c.GetCandles(model.Upbit, "BTC/KRW", oneMinute, 0, 0)); got == 0 {
		t.Fatal("expected backfill to populate at least one candle")
	}
}
