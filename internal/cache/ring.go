package cache

import "cryptowatcher/internal/model"

// candleCap is the maximum number of candles retained per
// (exchange, symbol, interval) slot. Oldest candles are evicted first.
const candleCap = 100

// candleRing is a bounded, timestamp-ordered FIFO of candles for a single
// (exchange, symbol, interval). Unlike the lock-free SPSC ring it is adapted
// from, a candleRing has no synchronization of its own: every access goes
// through the owning Cache, whose single RWMutex guards all slots, rather
// than atomics. The cache has one writer goroutine per slot by convention (see
// the boundary task and the owning trade task) but several concurrent
// readers (the evaluator, the registrar's backfill, the janitor), so a plain
// mutex is the correct tool here, not a producer/consumer atomic pair.
type candleRing struct {
	candles []*model.Candle
}

func newCandleRing() *candleRing {
	return &candleRing{candles: make([]*model.Candle, 0, candleCap)}
}

// add appends c unless a candle with the same timestamp already exists,
// evicting the oldest entry if the ring is at capacity. Returns false if c
// was a duplicate (no-op).
func (r *candleRing) add(c *model.Candle) bool {
	ts := c.Timestamp()
	for _, existing := range r.candles {
		if existing.Timestamp() == ts {
			return false
		}
	}
	if len(r.candles) >= candleCap {
		r.candles = r.candles[1:]
	}
	r.candles = append(r.candles, c)
	return true
}

// last returns the most recently added candle, or nil if the ring is empty.
func (r *candleRing) last() *model.Candle {
	if len(r.candles) == 0 {
		return nil
	}
	return r.candles[len(r.candles)-1]
}

// slice returns candles in [since, until) order, ascending. A zero since/until
// disables that bound.
func (r *candleRing) slice(since, until int64) []*model.Candle {
	out := make([]*model.Candle, 0, len(r.candles))
	for _, c := range r.candles {
		ts := c.Timestamp()
		if since != 0 && ts < since {
			continue
		}
		if until != 0 && ts >= until {
			continue
		}
		out = append(out, c)
	}
	return out
}

// tail returns up to n of the most recent candles, ascending order.
func (r *candleRing) tail(n int) []*model.Candle {
	if n >= len(r.candles) {
		return append([]*model.Candle(nil), r.candles...)
	}
	start := len(r.candles) - n
	return append([]*model.Candle(nil), r.candles[start:]...)
}

func (r *candleRing) len() int {
	return len(r.candles)
}
