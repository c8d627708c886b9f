package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"cryptowatcher/internal/model"
)

func TestCircuitBreakerStartsClosed(t *testing.T) {
	cb := newCircuitBreaker(3, 100*time.Millisecond)
	if cb.currentState() != breakerClosed {
		t.Errorf("expected closed, got %v", cb.currentState())
	}
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := newCircuitBreaker(3, 100*time.Millisecond)
	errFail := errors.New("fail")

	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return errFail }); err != errFail {
			t.Fatalf("expected errFail, got %v", err)
		}
	}
	if cb.currentState() != breakerOpen {
		t.Errorf("expected open after 3 failures, got %v", cb.currentState())
	}

	if err := cb.Execute(func() error { return nil }); err != errCircuitOpen {
		t.Errorf("expected errCircuitOpen, got %v", err)
	}
}

func TestCircuitBreakerHalfOpenProbeRecovers(t *testing.T) {
	cb := newCircuitBreaker(2, 50*time.Millisecond)
	errFail := errors.New("fail")
	for i := 0; i < 2; i++ {
		cb.Execute(func() error { return errFail })
	}
	if cb.currentState() != breakerOpen {
		t.Fatal("expected open")
	}

	time.Sleep(60 * time.Millisecond)

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if cb.currentState() != breakerClosed {
		t.Errorf("expected closed after successful probe, got %v", cb.currentState())
	}
}

func TestCircuitBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	cb := newCircuitBreaker(2, 50*time.Millisecond)
	errFail := errors.New("fail")
	for i := 0; i < 2; i++ {
		cb.Execute(func() error { return errFail })
	}

	time.Sleep(60 * time.Millisecond)
	cb.Execute(func() error { return errFail })

	if cb.currentState() != breakerOpen {
		t.Errorf("expected open after failed probe, got %v", cb.currentState())
	}
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := newCircuitBreaker(3, 100*time.Millisecond)
	errFail := errors.New("fail")

	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return nil })

	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return errFail })

	if cb.currentState() != breakerClosed {
		t.Errorf("expected closed, failure count should have reset on success, got %v", cb.currentState())
	}
}

// TestDispatcherOpensBreakerAndReportsCircuitBreakerState exercises the
// breaker through the Dispatcher itself, confirming New's config-driven
// threshold is what actually trips it and that CircuitBreakerState tracks
// the transition, not just the standalone breaker in isolation.
func TestDispatcherOpensBreakerAndReportsCircuitBreakerState(t *testing.T) {
	n := &fakeNotifier{fail: true}
	d := New(n, nil, 2, 50*time.Millisecond, nil, discardLogger())

	alarm := &model.Alarm{ID: 1, ChannelID: "c1", Exchange: model.Upbit, Base: "BTC", Quote: "KRW"}
	result := model.CheckResult{IsAlarmTriggered: true, Trade: model.Trade{Price: 100, Amount: 1}}

	d.Send(context.Background(), alarm, result)
	d.Send(context.Background(), alarm, result)

	if d.breaker.currentState() != breakerOpen {
		t.Fatalf("expected breaker to open after maxFailures=2 consecutive failures, got %v", d.breaker.currentState())
	}

	n.fail = false
	if ok := d.Send(context.Background(), alarm, result); ok {
		t.Fatal("expected delivery to be rejected while breaker is open")
	}
}
