package cache

import (
	"testing"
	"time"

	"cryptowatcher/internal/model"
)

var oneMinute = model.Interval{Length: 1, Timeframe: model.Minutes}

func TestAddCandleEvictsOldestPastCapacity(t *testing.T) {
	c := New()
	c.CreateCandleStorage(model.Upbit, "BTC/KRW", oneMinute)

	base := time.Unix(1700000000, 0).UTC()
	for i := 0; i < candleCap+5; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		c.AddCandle(model.Upbit, "BTC/KRW", oneMinute, model.NewCandle(model.Upbit, "BTC/KRW", ts, oneMinute))
	}

	got := c.GetCandles(model.Upbit, "BTC/KRW", oneMinute, 0, 0)
	if len(got) != candleCap {
		t.Fatalf("got %d candles, want cap %d", len(got), candleCap)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp() <= got[i-1].Timestamp() {
			t.Fatalf("candles not strictly ascending at index %d", i)
		}
	}
}

func TestAddCandleDuplicateTimestampIsNoOp(t *testing.T) {
	c := New()
	c.CreateCandleStorage(model.Upbit, "BTC/KRW", oneMinute)
	ts := time.Unix(1700000000, 0).UTC()

	if !c.AddCandle(model.Upbit, "BTC/KRW", oneMinute, model.NewCandle(model.Upbit, "BTC/KRW", ts, oneMinute)) {
		t.Fatal("expected first add to succeed")
	}
	if c.AddCandle(model.Upbit, "BTC/KRW", oneMinute, model.NewCandle(model.Upbit, "BTC/KRW", ts, oneMinute)) {
		t.Fatal("expected duplicate-timestamp add to be a no-op")
	}
	if len(c.GetCandles(model.Upbit, "BTC/KRW", oneMinute, 0, 0)) != 1 {
		t.Fatal("expected exactly one candle after duplicate add")
	}
}

func TestCacheTradeAppendsOnlyToLastCandleOfLiveIntervals(t *testing.T) {
	c := New()
	c.CreateCandleStorage(model.Upbit, "BTC/KRW", oneMinute)
	ts := time.Unix(1700000000, 0).UTC()
	c.AddCandle(model.Upbit, "BTC/KRW", oneMinute, model.NewCandle(model.Upbit, "BTC/KRW", ts, oneMinute))

	c.CacheTrade(model.Trade{Symbol: "BTC/KRW", TimestampMs: ts.UnixMilli(), Price: 100, Amount: 1}, model.Upbit)

	last := c.LastCandle(model.Upbit, "BTC/KRW", oneMinute)
	if last == nil || len(last.Trades) != 1 {
		t.Fatalf("expected the trade to land on the last live candle, got %+v", last)
	}
}

func TestCacheTradeSkipsSymbolsWithNothingCached(t *testing.T) {
	c := New()
	// No CreateCandleStorage call for this symbol — must not panic or create anything.
	c.CacheTrade(model.Trade{Symbol: "ETH/KRW", TimestampMs: 1700000000000, Price: 100, Amount: 1}, model.Upbit)
	if got := c.GetCandles(model.Upbit, "ETH/KRW", oneMinute, 0, 0); got != nil {
		t.Fatalf("expected no candles to be created, got %v", got)
	}
}

func TestBoundaryTickAlwaysCreatesNewCandleEvenWithoutTrades(t *testing.T) {
	c := New()
	c.CreateCandleStorage(model.Upbit, "BTC/KRW", oneMinute)

	boundary := time.Unix(1700000040, 0).UTC() // already a multiple of 60
	boundary = boundary.Add(-time.Duration(boundary.Unix()%60) * time.Second)

	c.BoundaryTick(boundary)
	if got := len(c.GetCandles(model.Upbit, "BTC/KRW", oneMinute, 0, 0)); got != 1 {
		t.Fatalf("expected boundary tick to create a candle, got %d", got)
	}

	// No trades added; next boundary should still create a second candle.
	next := boundary.Add(time.Minute)
	c.BoundaryTick(next)
	got := c.GetCandles(model.Upbit, "BTC/KRW", oneMinute, 0, 0)
	if len(got) != 2 {
		t.Fatalf("expected a second candle created on an empty interval, got %d", len(got))
	}
}

func TestGetCandlesSinceUntilBounds(t *testing.T) {
	c := New()
	c.CreateCandleStorage(model.Upbit, "BTC/KRW", oneMinute)
	base := time.Unix(1700000000, 0).UTC()
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		c.AddCandle(model.Upbit, "BTC/KRW", oneMinute, model.NewCandle(model.Upbit, "BTC/KRW", ts, oneMinute))
	}
	since := base.Add(1 * time.Minute).Unix()
	until := base.Add(4 * time.Minute).Unix()
	got := c.GetCandles(model.Upbit, "BTC/KRW", oneMinute, since, until)
	if len(got) != 3 {
		t.Fatalf("expected 3 candles in [since,until), got %d", len(got))
	}
}
