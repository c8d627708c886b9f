package watchtask

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"cryptowatcher/internal/cache"
	"cryptowatcher/internal/dispatcher"
	"cryptowatcher/internal/evaluator"
	"cryptowatcher/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var oneMinute = model.Interval{Length: 1, Timeframe: model.Minutes}

type fakeRegistrar struct {
	mu         sync.Mutex
	registered bool
	alarms     []*model.Alarm
	alerted    map[model.AlarmID]int64
}

func (f *fakeRegistrar) IsSymbolRegistered(exchange model.ExchangeID, symbol string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered
}

func (f *fakeRegistrar) AlarmsFor(exchange model.ExchangeID, symbol string) []*model.Alarm {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Alarm, len(f.alarms))
	copy(out, f.alarms)
	return out
}

func (f *fakeRegistrar) MarkAlerted(alarmID model.AlarmID, ts int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.alerted == nil {
		f.alerted = make(map[model.AlarmID]int64)
	}
	f.alerted[alarmID] = ts
	for _, a := range f.alarms {
		if a.ID == alarmID && ts > a.AlertedCandleTimestamp {
			a.AlertedCandleTimestamp = ts
		}
	}
}

func (f *fakeRegistrar) setRegistered(v bool) {
	f.mu.Lock()
	f.registered = v
	f.mu.Unlock()
}

type scriptedExchange struct {
	mu     sync.Mutex
	trades [][]model.Trade
	idx    int
}

func (s *scriptedExchange) WatchTrades(ctx context.Context, symbol string) ([]model.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx >= len(s.trades) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	batch := s.trades[s.idx]
	s.idx++
	return batch, nil
}
func (s *scriptedExchange) WatchOrderBook(ctx context.Context, symbol string, limit int) error {
	return nil
}
func (s *scriptedExchange) OrderBook(symbol string) (model.OrderBook, bool) {
	return model.OrderBook{}, false
}
func (s *scriptedExchange) FetchOHLCV(ctx context.Context, symbol string, interval model.Interval, limit int) ([]model.OHLCV, error) {
	return nil, errors.New("not implemented")
}
func (s *scriptedExchange) FetchOrderBook(ctx context.Context, symbol string, limit int) (model.OrderBook, error) {
	return model.OrderBook{}, errors.New("not implemented")
}
func (s *scriptedExchange) Close() error { return nil }

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeNotifier) Send(ctx context.Context, channelID, text string) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRunTradeTaskSelfTerminatesWhenSymbolDeregistered(t *testing.T) {
	reg := &fakeRegistrar{registered: false}
	c := cache.New()
	ex := &scriptedExchange{}
	r := New(c, reg, evaluator.New(c, nil, nil), dispatcher.New(&fakeNotifier{}, nil, 0, 0, nil, discardLogger()),
		func(model.ExchangeID) model.Exchange { return ex }, nil, discardLogger(), nil)

	done := make(chan struct{})
	go func() {
		r.runTradeTask(context.Background(), model.Upbit, "BTC/KRW")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected runTradeTask to return immediately when the symbol is not registered")
	}
}

func TestRunTradeTaskTriggersAndMarksAlertedOnce(t *testing.T) {
	c := cache.New()
	c.CreateCandleStorage(model.Upbit, "BTC/KRW", oneMinute)
	now := time.Now()
	candle := model.NewCandle(model.Upbit, "BTC/KRW", now, oneMinute)
	c.AddCandle(model.Upbit, "BTC/KRW", oneMinute, candle)

	alarm := &model.Alarm{ID: 1, ChannelID: "c1", Exchange: model.Upbit, Base: "BTC", Quote: "KRW",
		Condition: model.Condition{Tick: &model.TickCondition{Quantity: 1}}}

	reg := &fakeRegistrar{registered: true, alarms: []*model.Alarm{alarm}}
	ex := &scriptedExchange{trades: [][]model.Trade{
		{{Symbol: "BTC/KRW", Price: 100, Amount: 5, TimestampMs: now.UnixMilli()}},
	}}
	notifier := &fakeNotifier{}
	r := New(c, reg, evaluator.New(c, nil, nil), dispatcher.New(notifier, nil, 0, 0, nil, discardLogger()),
		func(model.ExchangeID) model.Exchange { return ex }, nil, discardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.runTradeTask(ctx, model.Upbit, "BTC/KRW")
		close(done)
	}()

	deadline := time.After(time.Second)
	for notifier.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for alert to be delivered")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	reg.setRegistered(false)
	cancel()
	<-done

	if notifier.count() != 1 {
		t.Fatalf("expected exactly one delivered message, got %d", notifier.count())
	}
	reg.mu.Lock()
	_, marked := reg.alerted[alarm.ID]
	reg.mu.Unlock()
	if !marked {
		t.Fatal("expected MarkAlerted to be called after the successful send")
	}
}

func TestRunOrderBookTaskSelfTerminatesWhenSymbolDeregistered(t *testing.T) {
	reg := &fakeRegistrar{registered: true}
	c := cache.New()
	ex := &scriptedExchange{}
	r := New(c, reg, evaluator.New(c, nil, nil), dispatcher.New(&fakeNotifier{}, nil, 0, 0, nil, discardLogger()),
		func(model.ExchangeID) model.Exchange { return ex }, nil, discardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		r.runOrderBookTask(ctx, model.Upbit, "BTC/KRW")
		close(done)
	}()

	time.Sleep(2 * orderBookPollInterval)
	reg.setRegistered(false)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected runOrderBookTask to return once deregistered")
	}
}
