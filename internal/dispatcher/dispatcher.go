// Package dispatcher formats a CheckResult into alert text and delivers it
// through a model.Notifier, enforcing the at-most-once-per-candle rule.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cryptowatcher/internal/bus"
	"cryptowatcher/internal/logger"
	"cryptowatcher/internal/metrics"
	"cryptowatcher/internal/model"
)

// defaultMaxFailures/defaultResetTimeout apply when New is given a
// non-positive threshold, e.g. from a zero config.Config in tests.
const (
	defaultMaxFailures  = 5
	defaultResetTimeout = 30 * time.Second
)

// Dispatcher renders and delivers alerts.
type Dispatcher struct {
	notifier model.Notifier
	breaker  *circuitBreaker
	events   *bus.AlertBus
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// New returns a Dispatcher delivering through notifier, wrapped in a circuit
// breaker (opens after maxFailures consecutive failures, probes again after
// resetTimeout), and broadcasting every send attempt onto events for
// metrics/dashboard consumers. maxFailures <= 0 and resetTimeout <= 0 fall
// back to sane defaults. m may be nil.
func New(notifier model.Notifier, events *bus.AlertBus, maxFailures int, resetTimeout time.Duration, m *metrics.Metrics, log *slog.Logger) *Dispatcher {
	if maxFailures <= 0 {
		maxFailures = defaultMaxFailures
	}
	if resetTimeout <= 0 {
		resetTimeout = defaultResetTimeout
	}

	cb := newCircuitBreaker(maxFailures, resetTimeout)
	d := &Dispatcher{
		notifier: notifier,
		breaker:  cb,
		events:   events,
		metrics:  m,
		log:      log,
	}
	if m != nil {
		cb.onStateChange = func(from, to breakerState) {
			m.CircuitBreakerState.Set(float64(to))
		}
	}
	return d
}

// Send renders result for alarm and attempts delivery. It returns true only
// if delivery succeeded — the caller (the trade task) must advance
// alarm.AlertedCandleTimestamp only in that case. Delivery failures are
// logged, never propagated.
func (d *Dispatcher) Send(ctx context.Context, alarm *model.Alarm, result model.CheckResult) bool {
	text := renderMessage(alarm, result)
	ok := d.deliver(ctx, alarm.ChannelID, text)

	if ok && !result.Whales.Empty() {
		d.deliver(ctx, alarm.ChannelID, renderWhaleLadder(result.Whales))
	}

	if d.events != nil {
		d.events.Publish(bus.AlertEvent{
			Alarm:     alarm,
			Result:    result,
			Delivered: ok,
			At:        time.Now(),
		}, d.log)
	}
	return ok
}

func (d *Dispatcher) deliver(ctx context.Context, channelID, text string) bool {
	start := time.Now()
	err := d.breaker.Execute(func() error {
		return d.notifier.Send(ctx, channelID, text)
	})
	if d.metrics != nil {
		d.metrics.NotifyDur.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		attrs := append(logger.LogWithTrace(ctx), "channel", channelID, "error", err)
		d.log.Debug("alert delivery failed", attrs...)
		if d.metrics != nil {
			d.metrics.AlertsFailedTotal.Inc()
		}
		return false
	}
	if d.metrics != nil {
		d.metrics.AlertsSentTotal.Inc()
	}
	return true
}

func renderMessage(alarm *model.Alarm, r model.CheckResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s 알람\n", alarm.Exchange.Korean(), alarm.Symbol())
	fmt.Fprintf(&b, "가격: %.8f / 수량: %.8f / 총액: %.2f\n", r.Trade.Price, r.Trade.Amount, r.Trade.Cost)
	if r.RSI != nil {
		fmt.Fprintf(&b, "RSI: %.2f\n", *r.RSI)
	}
	if r.CrossedBand != nil {
		side := "상단선"
		if *r.CrossedBand == model.LowerBand {
			side = "하단선"
		}
		fmt.Fprintf(&b, "볼린저 밴드 %s 돌파\n", side)
	}
	return b.String()
}

// renderWhaleLadder formats the second message reporting qualifying
// order-book levels, matching the original's asks-reversed-then-bids
// ordering.
func renderWhaleLadder(w *model.WhaleLevels) string {
	var b strings.Builder
	b.WriteString("고래 호가\n")
	for i := len(w.Asks) - 1; i >= 0; i-- {
		lvl := w.Asks[i]
		fmt.Fprintf(&b, "%.8f@%.8f / 총액=%.2f\n", lvl.Amount, lvl.Price, lvl.Notional())
	}
	for _, lvl := range w.Bids {
		fmt.Fprintf(&b, "%.8f@%.8f / 총액=%.2f\n", lvl.Amount, lvl.Price, lvl.Notional())
	}
	return b.String()
}
