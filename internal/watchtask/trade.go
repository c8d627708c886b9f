package watchtask

import (
	"context"
	"fmt"
	"time"

	"cryptowatcher/internal/bus"
	"cryptowatcher/internal/logger"
	"cryptowatcher/internal/model"
)

// runTradeTask streams trades for (exchange, symbol), caches each, and
// evaluates every alarm currently registered on that symbol. It
// self-terminates once the symbol is no longer referenced by any alarm,
// recomputing the alarm list fresh on every batch since alarms can be
// added/removed concurrently by the registrar.
func (r *Runner) runTradeTask(ctx context.Context, exchange model.ExchangeID, symbol string) {
	ex := r.exchangeOf(exchange)
	defer ex.Close()

	for {
		if ctx.Err() != nil {
			return
		}
		if !r.registrar.IsSymbolRegistered(exchange, symbol) {
			r.cache.DropSymbol(exchange, symbol)
			return
		}

		trades, err := ex.WatchTrades(ctx, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Warn("trade stream error, reconnecting", "exchange", exchange, "symbol", symbol, "error", err)
			ex.Close()
			ex = r.exchangeOf(exchange)
			continue
		}

		for _, trade := range trades {
			r.cache.CacheTrade(trade, exchange)
			if r.metrics != nil {
				r.metrics.TradesTotal.Inc()
			}

			tradeCtx := logger.WithTraceID(ctx, logger.GenerateTraceID(fmt.Sprintf("%s:%s", exchange, symbol), time.Now()))

			for _, alarm := range r.registrar.AlarmsFor(exchange, symbol) {
				shortest, hasIntervals := alarm.ShortestWatchedInterval()
				if hasIntervals {
					last := r.cache.LastCandle(exchange, symbol, shortest)
					if last != nil && alarm.AlertedCandleTimestamp == last.Timestamp() {
						continue
					}
				}

				result := r.evaluator.Check(tradeCtx, alarm, trade)
				if !result.IsAlarmTriggered {
					continue
				}

				if r.dispatcher.Send(tradeCtx, alarm, result) {
					ts := time.Now().Unix()
					if hasIntervals {
						if last := r.cache.LastCandle(exchange, symbol, shortest); last != nil {
							ts = last.Timestamp()
						}
					}
					r.registrar.MarkAlerted(alarm.ID, ts)
				}
			}
		}
	}
}

// runOrderBookTask subscribes once to (exchange, symbol)'s order book, then
// periodically reads and caches the latest snapshot until the symbol is no
// longer referenced by any alarm.
func (r *Runner) runOrderBookTask(ctx context.Context, exchange model.ExchangeID, symbol string) {
	ex := r.exchangeOf(exchange)
	defer ex.Close()

	if err := ex.WatchOrderBook(ctx, symbol, 20); err != nil {
		r.log.Warn("order book subscribe failed", "exchange", exchange, "symbol", symbol, "error", err)
	}

	ticker := time.NewTicker(orderBookPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.registrar.IsSymbolRegistered(exchange, symbol) {
				return
			}
			if ob, ok := ex.OrderBook(symbol); ok {
				r.cache.CacheOrderBook(ob, exchange, symbol)
			}
		}
	}
}

// publishCandleEvent is passed by RunBoundaryTask to the cache's
// BoundaryTickFunc to notify the candle bus of a freshly finalized candle.
func (r *Runner) publishCandleEvent(exchange model.ExchangeID, symbol string, interval model.Interval, c *model.Candle) {
	if r.metrics != nil {
		r.metrics.CandlesTotal.Inc()
	}
	if r.candles == nil {
		return
	}
	r.candles.Publish(bus.CandleEvent{Exchange: exchange, Symbol: symbol, Interval: interval, Candle: c}, r.log)
}
