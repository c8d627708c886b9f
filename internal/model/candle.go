package model

import "time"

// Candle is an OHLC bucket for one (exchange, symbol, interval). While the
// candle is still receiving trades ("live"), Open/High/Low/Close are derived
// from the accumulated Trades; ClearTrade freezes the current values and
// empties the trade buffer so the candle no longer changes under further
// reads, matching the original watcher's property-based Candle semantics.
type Candle struct {
	Exchange     ExchangeID
	Symbol       string
	BucketStart  time.Time
	Interval     Interval
	Trades       []Trade
	frozenOpen   float64
	frozenHigh   float64
	frozenLow    float64
	frozenClose  float64
	hasFrozen    bool
}

// NewCandle creates an empty live candle for the given bucket.
func NewCandle(exchange ExchangeID, symbol string, bucketStart time.Time, interval Interval) *Candle {
	return &Candle{
		Exchange:    exchange,
		Symbol:      symbol,
		BucketStart: bucketStart,
		Interval:    interval,
	}
}

// Timestamp returns the bucket start as unix seconds, the value candles are
// ordered and deduplicated by in the cache.
func (c *Candle) Timestamp() int64 {
	return c.BucketStart.Unix()
}

// TimeLimit is the exclusive upper bound of this candle's bucket.
func (c *Candle) TimeLimit() time.Time {
	return c.BucketStart.Add(time.Duration(c.Interval.Seconds()) * time.Second)
}

// AddTrade appends a trade to the live candle.
func (c *Candle) AddTrade(t Trade) {
	c.Trades = append(c.Trades, t)
}

// Open returns the candle's opening price: the first live trade's price, or
// the frozen value once cleared.
func (c *Candle) Open() float64 {
	if len(c.Trades) > 0 {
		return c.Trades[0].Price
	}
	return c.frozenOpen
}

// High returns the candle's running/frozen high.
func (c *Candle) High() float64 {
	if len(c.Trades) == 0 {
		return c.frozenHigh
	}
	h := c.Trades[0].Price
	for _, t := range c.Trades[1:] {
		if t.Price > h {
			h = t.Price
		}
	}
	return h
}

// Low returns the candle's running/frozen low.
func (c *Candle) Low() float64 {
	if len(c.Trades) == 0 {
		return c.frozenLow
	}
	l := c.Trades[0].Price
	for _, t := range c.Trades[1:] {
		if t.Price < l {
			l = t.Price
		}
	}
	return l
}

// Close returns the candle's most recent/frozen close.
func (c *Candle) Close() float64 {
	if len(c.Trades) > 0 {
		return c.Trades[len(c.Trades)-1].Price
	}
	return c.frozenClose
}

// ClearTrade freezes the currently-live OHLC values and empties the trade
// buffer. Called once per candle when the next interval boundary is crossed.
// If the candle never received a trade, the previously frozen values (or, for
// a brand-new empty candle, the carried-forward close passed via
// SeedFromPreviousClose) are left untouched rather than becoming zero.
func (c *Candle) ClearTrade() {
	if len(c.Trades) > 0 {
		c.frozenOpen = c.Open()
		c.frozenHigh = c.High()
		c.frozenLow = c.Low()
		c.frozenClose = c.Close()
		c.hasFrozen = true
	}
	c.Trades = nil
}

// SeedFromPreviousClose carries a quiet candle's OHLC forward from the prior
// candle's close so RSI/Bollinger windows never read a zero price out of an
// interval that saw no trades.
func (c *Candle) SeedFromPreviousClose(prevClose float64) {
	if c.hasFrozen || len(c.Trades) > 0 {
		return
	}
	c.frozenOpen, c.frozenHigh, c.frozenLow, c.frozenClose = prevClose, prevClose, prevClose, prevClose
	c.hasFrozen = true
}
