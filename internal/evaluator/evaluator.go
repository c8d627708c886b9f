// Package evaluator runs an alarm's configured sub-conditions against an
// incoming trade and the latest cached order book, producing a CheckResult.
package evaluator

import (
	"context"
	"log/slog"
	"time"

	"cryptowatcher/internal/cache"
	"cryptowatcher/internal/indicator"
	"cryptowatcher/internal/logger"
	"cryptowatcher/internal/metrics"
	"cryptowatcher/internal/model"
)

// secondsPerDay feeds the original's since = now - length*86400,
// evaluated regardless of the RSI condition's own interval — preserved
// verbatim (see DESIGN.md Open Question resolutions).
const secondsPerDay = 86400

// Evaluator checks alarms against trades using a shared candle/order-book
// cache.
type Evaluator struct {
	cache   *cache.Cache
	metrics *metrics.Metrics
	log     *slog.Logger
}

// New returns an Evaluator reading from c. m and log may be nil.
func New(c *cache.Cache, m *metrics.Metrics, log *slog.Logger) *Evaluator {
	return &Evaluator{cache: c, metrics: m, log: log}
}

// Check runs alarm's configured sub-conditions against trade in the fixed
// order whale, tick, rsi, bollinger_band, short-circuiting on the first
// failure. ctx only carries the trace ID propagated from the owning trade
// task for log correlation; evaluation itself never blocks.
func (e *Evaluator) Check(ctx context.Context, alarm *model.Alarm, trade model.Trade) model.CheckResult {
	if e.metrics != nil {
		start := time.Now()
		defer func() { e.metrics.EvaluateDur.Observe(time.Since(start).Seconds()) }()
	}

	result := model.CheckResult{Trade: trade}
	if e.log != nil {
		defer func() {
			attrs := append(logger.LogWithTrace(ctx), "alarm_id", alarm.ID, "triggered", result.IsAlarmTriggered)
			e.log.Debug("alarm condition evaluated", attrs...)
		}()
	}
	cond := alarm.Condition

	if cond.Whale != nil {
		whales, ok := e.checkWhale(alarm, cond.Whale)
		if !ok {
			return result
		}
		result.Whales = whales
	}

	if cond.Tick != nil {
		if !checkTick(trade, cond.Tick) {
			return result
		}
	}

	if cond.RSI != nil {
		rsiValue, ok := e.checkRSI(alarm, cond.RSI)
		if !ok {
			return result
		}
		result.RSI = &rsiValue
	}

	if cond.BollingerBand != nil {
		band, ok := e.checkBollingerBand(alarm, cond.BollingerBand, trade)
		if !ok {
			return result
		}
		result.CrossedBand = &band
	}

	result.IsAlarmTriggered = true
	return result
}

// checkWhale passes iff at least one level on either side of the latest
// cached order book has notional value >= quantity.
func (e *Evaluator) checkWhale(alarm *model.Alarm, cond *model.WhaleCondition) (*model.WhaleLevels, bool) {
	ob, ok := e.cache.OrderBook(alarm.Exchange, alarm.Symbol())
	if !ok {
		return nil, false
	}
	whales := &model.WhaleLevels{}
	for _, lvl := range ob.Bids {
		if lvl.Notional() >= cond.Quantity {
			whales.Bids = append(whales.Bids, lvl)
		}
	}
	for _, lvl := range ob.Asks {
		if lvl.Notional() >= cond.Quantity {
			whales.Asks = append(whales.Asks, lvl)
		}
	}
	if whales.Empty() {
		return nil, false
	}
	return whales, true
}

// checkTick passes iff the trade's base-unit amount meets or exceeds
// quantity.
func checkTick(trade model.Trade, cond *model.TickCondition) bool {
	return trade.Amount >= cond.Quantity
}

// checkRSI reads candles since length days back at the condition's interval
// (regardless of that interval's own width — an intentionally preserved
// quirk of the original) and passes iff the computed RSI breaches either
// bound.
func (e *Evaluator) checkRSI(alarm *model.Alarm, cond *model.RsiCondition) (float64, bool) {
	since := time.Now().Unix() - int64(cond.Length)*secondsPerDay
	candles := e.cache.GetCandles(alarm.Exchange, alarm.Symbol(), cond.Interval, since, 0)
	if len(candles) < 2 {
		return 0, false
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close()
	}
	value, err := indicator.RSI(closes, cond.Length)
	if err != nil {
		return 0, false
	}
	if value <= cond.LowerBound || value >= cond.UpperBound {
		return value, true
	}
	return value, false
}

// checkBollingerBand reads the last Length candles at the condition's
// interval, folds the incoming trade's price into the closes window (the
// original injects the live trade before computing the band), and passes
// iff the trade price breaches whichever side(s) are toggled on. Upper band
// takes precedence if both toggles and both breaches hold simultaneously —
// a deliberate deviation from the original, where the lower-band check
// (evaluated second) silently wins instead.
func (e *Evaluator) checkBollingerBand(alarm *model.Alarm, cond *model.BollingerBandCondition, trade model.Trade) (model.BandSide, bool) {
	candles := e.cache.LastNCandles(alarm.Exchange, alarm.Symbol(), cond.Interval, cond.Length)
	if len(candles) < cond.Length {
		return "", false
	}
	closes := make([]float64, 0, len(candles)+1)
	for _, c := range candles {
		closes = append(closes, c.Close())
	}
	closes = append(closes, trade.Price)

	_, upper, lower, err := indicator.BollingerBand(closes, cond.Coefficient)
	if err != nil {
		return "", false
	}

	isOverUpper := trade.Price >= upper
	isUnderLower := trade.Price <= lower

	if cond.OnOverUpperBand && isOverUpper {
		return model.UpperBand, true
	}
	if cond.OnUnderLowerBand && isUnderLower {
		return model.LowerBand, true
	}
	return "", false
}
