package model

import "context"

// AlarmStore is the external relational-storage port the AlarmRegistry polls
// for the enabled-alarm set. Implementations never need to know anything
// about candles, trades, or the evaluation pipeline.
type AlarmStore interface {
	// SelectEnabledAlarms returns every alarm currently marked enabled.
	SelectEnabledAlarms(ctx context.Context) ([]AlarmRecord, error)

	// SelectCondition returns the sub-condition set for an alarm.
	SelectCondition(ctx context.Context, alarmID AlarmID) (Condition, error)
}

// OHLCV is one historical candle as reported by an Exchange's backfill call:
// [timestamp_ms, open, high, low, close, volume].
type OHLCV struct {
	TimestampMs int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
}

// Exchange is the opaque streaming + REST capability the watch tasks and
// registrar consume. A concrete adapter wraps one real exchange connection
// (or a deterministic simulation) behind this interface.
type Exchange interface {
	// WatchTrades blocks until the next batch of trades for symbol is
	// available, or ctx is cancelled.
	WatchTrades(ctx context.Context, symbol string) ([]Trade, error)

	// WatchOrderBook starts or refreshes a subscription for symbol's order
	// book, truncated to the given depth. Call OrderBook to read the latest
	// snapshot once subscribed.
	WatchOrderBook(ctx context.Context, symbol string, limit int) error

	// OrderBook returns the latest snapshot cached by WatchOrderBook. The
	// second return is false if no snapshot has arrived yet.
	OrderBook(symbol string) (OrderBook, bool)

	// FetchOHLCV backfills up to limit historical candles at the given
	// interval.
	FetchOHLCV(ctx context.Context, symbol string, interval Interval, limit int) ([]OHLCV, error)

	// FetchOrderBook performs a one-shot REST snapshot fetch.
	FetchOrderBook(ctx context.Context, symbol string, limit int) (OrderBook, error)

	// Close releases the exchange handle. A subsequent call on the same
	// symbol is expected to transparently reopen it.
	Close() error
}

// Notifier delivers alert text to a channel. Implementations must be safe
// for concurrent use.
type Notifier interface {
	Send(ctx context.Context, channelID string, text string) error
}
