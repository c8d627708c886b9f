// Package cache holds the in-memory candle and order-book state the
// watcher's evaluation pipeline reads from. It mirrors the original
// watcher's cache module: candles are never created from here except by the
// boundary task; CacheTrade only appends to whatever candle is already live.
package cache

import (
	"sync"
	"time"

	"cryptowatcher/internal/model"
)

type candleKey struct {
	exchange model.ExchangeID
	symbol   string
	interval model.Interval
}

type bookKey struct {
	exchange model.ExchangeID
	symbol   string
}

// Cache is the shared candle/order-book store. Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	candles map[candleKey]*candleRing
	books   map[bookKey]*model.OrderBook
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		candles: make(map[candleKey]*candleRing),
		books:   make(map[bookKey]*model.OrderBook),
	}
}

// CreateCandleStorage idempotently allocates a candle ring for the slot.
func (c *Cache) CreateCandleStorage(exchange model.ExchangeID, symbol string, interval model.Interval) {
	k := candleKey{exchange, symbol, interval}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.candles[k]; !ok {
		c.candles[k] = newCandleRing()
	}
}

// CreateOrderBookStorage idempotently allocates an order-book slot.
func (c *Cache) CreateOrderBookStorage(exchange model.ExchangeID, symbol string) {
	k := bookKey{exchange, symbol}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.books[k]; !ok {
		c.books[k] = &model.OrderBook{Symbol: symbol}
	}
}

// CacheOrderBook overwrites the latest order-book snapshot for the slot.
func (c *Cache) CacheOrderBook(ob model.OrderBook, exchange model.ExchangeID, symbol string) {
	k := bookKey{exchange, symbol}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.books[k]; !ok {
		return
	}
	ob.Symbol = symbol
	c.books[k] = &ob
}

// OrderBook returns the latest cached snapshot for (exchange, symbol).
func (c *Cache) OrderBook(exchange model.ExchangeID, symbol string) (model.OrderBook, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ob, ok := c.books[bookKey{exchange, symbol}]
	if !ok || ob == nil {
		return model.OrderBook{}, false
	}
	return *ob, true
}

// CacheTrade appends t to the live (last) candle of every interval currently
// cached for (exchange, trade-symbol). It never creates a candle — symbols
// or intervals with nothing cached yet are silently skipped, matching the
// original cache_trade behavior.
func (c *Cache) CacheTrade(t model.Trade, exchange model.ExchangeID) {
	symbol := t.BaseSymbol()
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, ring := range c.candles {
		if k.exchange != exchange || k.symbol != symbol {
			continue
		}
		if last := ring.last(); last != nil {
			last.AddTrade(t)
		}
	}
}

// AddCandle inserts c into its slot's ring, evicting the oldest entry past
// capacity. Returns false if a candle at the same timestamp already exists.
// A slot that does not exist yet is created on the fly.
func (c *Cache) AddCandle(exchange model.ExchangeID, symbol string, interval model.Interval, cnd *model.Candle) bool {
	k := candleKey{exchange, symbol, interval}
	c.mu.Lock()
	defer c.mu.Unlock()
	ring, ok := c.candles[k]
	if !ok {
		ring = newCandleRing()
		c.candles[k] = ring
	}
	return ring.add(cnd)
}

// GetCandles returns candles for the slot with bucket timestamps in
// [since, until), ascending, or nil if the slot does not exist. A zero
// since/until disables that bound.
func (c *Cache) GetCandles(exchange model.ExchangeID, symbol string, interval model.Interval, since, until int64) []*model.Candle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ring, ok := c.candles[candleKey{exchange, symbol, interval}]
	if !ok {
		return nil
	}
	return ring.slice(since, until)
}

// LastNCandles returns up to n of the most recently cached candles for the
// slot, ascending.
func (c *Cache) LastNCandles(exchange model.ExchangeID, symbol string, interval model.Interval, n int) []*model.Candle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ring, ok := c.candles[candleKey{exchange, symbol, interval}]
	if !ok {
		return nil
	}
	return ring.tail(n)
}

// LastCandle returns the most recent candle cached for the slot.
func (c *Cache) LastCandle(exchange model.ExchangeID, symbol string, interval model.Interval) *model.Candle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ring, ok := c.candles[candleKey{exchange, symbol, interval}]
	if !ok {
		return nil
	}
	return ring.last()
}

// WatchedIntervals returns every interval with a candle slot allocated for
// (exchange, symbol), used by the janitor to find stale slots.
func (c *Cache) WatchedIntervals(exchange model.ExchangeID, symbol string) []model.Interval {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []model.Interval
	for k := range c.candles {
		if k.exchange == exchange && k.symbol == symbol {
			out = append(out, k.interval)
		}
	}
	return out
}

// WatchedSymbols returns every (exchange, symbol) pair with any cache slot
// allocated.
func (c *Cache) WatchedSymbols() []struct {
	Exchange model.ExchangeID
	Symbol   string
} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[bookKey]bool)
	var out []struct {
		Exchange model.ExchangeID
		Symbol   string
	}
	add := func(e model.ExchangeID, s string) {
		k := bookKey{e, s}
		if !seen[k] {
			seen[k] = true
			out = append(out, struct {
				Exchange model.ExchangeID
				Symbol   string
			}{e, s})
		}
	}
	for k := range c.candles {
		add(k.exchange, k.symbol)
	}
	for k := range c.books {
		add(k.exchange, k.symbol)
	}
	return out
}

// DropSymbol removes every candle and order-book slot for (exchange, symbol).
func (c *Cache) DropSymbol(exchange model.ExchangeID, symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.candles {
		if k.exchange == exchange && k.symbol == symbol {
			delete(c.candles, k)
		}
	}
	delete(c.books, bookKey{exchange, symbol})
}

// DropInterval removes a single candle slot.
func (c *Cache) DropInterval(exchange model.ExchangeID, symbol string, interval model.Interval) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.candles, candleKey{exchange, symbol, interval})
}

// candleKeysSnapshot is used by BoundaryTick to enumerate slots without
// holding the lock across per-slot processing.
func (c *Cache) candleKeysSnapshot() []candleKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]candleKey, 0, len(c.candles))
	for k := range c.candles {
		out = append(out, k)
	}
	return out
}

// BoundaryTick is invoked by the boundary task on every wall-clock second
// change. For every (exchange, symbol, interval) slot whose interval just
// completed a bucket (now % interval.Seconds() == 0), it freezes the current
// live candle and opens a new one — unconditionally, even if the closing
// candle received no trades, matching the original's build_new_candle. The
// new candle is seeded with the closing candle's close so a quiet interval
// never exposes a zero price to indicator windows.
func (c *Cache) BoundaryTick(now time.Time) {
	c.BoundaryTickFunc(now, nil)
}

// BoundaryTickFunc behaves like BoundaryTick but, when onClosed is non-nil,
// invokes it with every candle that was just frozen by this tick — used to
// publish finalized candles onto the candle bus.
func (c *Cache) BoundaryTickFunc(now time.Time, onClosed func(exchange model.ExchangeID, symbol string, interval model.Interval, closed *model.Candle)) {
	nowTS := now.Unix()
	for _, k := range c.candleKeysSnapshot() {
		secs := k.interval.Seconds()
		if secs <= 0 || nowTS%secs != 0 {
			continue
		}
		c.mu.Lock()
		ring, ok := c.candles[k]
		if !ok {
			c.mu.Unlock()
			continue
		}
		prev := ring.last()
		var prevClose float64
		if prev != nil {
			prev.ClearTrade()
			prevClose = prev.Close()
		}
		bucket := k.interval.Truncate(now)
		next := model.NewCandle(k.exchange, k.symbol, bucket, k.interval)
		if prev != nil {
			next.SeedFromPreviousClose(prevClose)
		}
		ring.add(next)
		c.mu.Unlock()

		if prev != nil && onClosed != nil {
			onClosed(k.exchange, k.symbol, k.interval, prev)
		}
	}
}
