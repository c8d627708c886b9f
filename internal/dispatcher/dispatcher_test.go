package dispatcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"cryptowatcher/internal/bus"
	"cryptowatcher/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeNotifier struct {
	calls []string
	fail  bool
}

func (f *fakeNotifier) Send(ctx context.Context, channelID, text string) error {
	f.calls = append(f.calls, text)
	if f.fail {
		return errors.New("delivery failed")
	}
	return nil
}

func TestSendDeliversSingleMessageWithoutWhales(t *testing.T) {
	n := &fakeNotifier{}
	d := New(n, nil, 0, 0, nil, discardLogger())
	alarm := &model.Alarm{ID: 1, ChannelID: "c1", Exchange: model.Upbit, Base: "BTC", Quote: "KRW"}
	result := model.CheckResult{IsAlarmTriggered: true, Trade: model.Trade{Price: 100, Amount: 1}}

	if ok := d.Send(context.Background(), alarm, result); !ok {
		t.Fatal("expected delivery to succeed")
	}
	if len(n.calls) != 1 {
		t.Fatalf("expected exactly one message sent, got %d", len(n.calls))
	}
}

func TestSendDeliversWhaleLadderAsSecondMessage(t *testing.T) {
	n := &fakeNotifier{}
	d := New(n, nil, 0, 0, nil, discardLogger())
	alarm := &model.Alarm{ID: 1, ChannelID: "c1", Exchange: model.Upbit, Base: "BTC", Quote: "KRW"}
	result := model.CheckResult{
		IsAlarmTriggered: true,
		Trade:            model.Trade{Price: 100, Amount: 1},
		Whales: &model.WhaleLevels{
			Bids: []model.OrderBookLevel{{Price: 99, Amount: 10}},
		},
	}

	if ok := d.Send(context.Background(), alarm, result); !ok {
		t.Fatal("expected delivery to succeed")
	}
	if len(n.calls) != 2 {
		t.Fatalf("expected alert + whale ladder, got %d messages", len(n.calls))
	}
}

func TestSendPublishesAlertEventRegardlessOfOutcome(t *testing.T) {
	n := &fakeNotifier{fail: true}
	events := bus.NewAlertBus(1)
	sub := events.Subscribe()
	d := New(n, events, 0, 0, nil, discardLogger())
	alarm := &model.Alarm{ID: 1, ChannelID: "c1", Exchange: model.Upbit, Base: "BTC", Quote: "KRW"}
	result := model.CheckResult{IsAlarmTriggered: true, Trade: model.Trade{Price: 100, Amount: 1}}

	if ok := d.Send(context.Background(), alarm, result); ok {
		t.Fatal("expected delivery to fail")
	}

	select {
	case ev := <-sub:
		if ev.Delivered {
			t.Fatal("expected Delivered=false on the published event")
		}
	default:
		t.Fatal("expected an AlertEvent to be published even on delivery failure")
	}
}
