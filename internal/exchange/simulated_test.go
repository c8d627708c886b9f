package exchange

import (
	"context"
	"testing"
	"time"

	"cryptowatcher/internal/model"
)

func TestSimulatedExchangeWatchTradesDeliversPushedTrade(t *testing.T) {
	ex := NewSimulatedExchange()
	ex.PushTrade(model.Trade{Symbol: "BTC/KRW", Price: 100, Amount: 1})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	batch, err := ex.WatchTrades(ctx, "BTC/KRW")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch) != 1 || batch[0].Price != 100 {
		t.Fatalf("unexpected batch: %+v", batch)
	}
}

func TestSimulatedExchangeWatchTradesBlocksUntilCancelled(t *testing.T) {
	ex := NewSimulatedExchange()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := ex.WatchTrades(ctx, "BTC/KRW")
	if err == nil {
		t.Fatal("expected context deadline error when no trade is pushed")
	}
}

func TestSimulatedExchangeSeedOrderBookRoundTrips(t *testing.T) {
	ex := NewSimulatedExchange()
	ex.SeedOrderBook("BTC/KRW", model.OrderBook{
		Bids: []model.OrderBookLevel{{Price: 99, Amount: 1}},
		Asks: []model.OrderBookLevel{{Price: 101, Amount: 1}},
	})

	ob, ok := ex.OrderBook("BTC/KRW")
	if !ok || ob.Symbol != "BTC/KRW" || len(ob.Bids) != 1 || len(ob.Asks) != 1 {
		t.Fatalf("unexpected order book: %+v ok=%v", ob, ok)
	}
}

func TestSimulatedExchangeFetchOHLCVRespectsLimit(t *testing.T) {
	ex := NewSimulatedExchange()
	bars := make([]model.OHLCV, 5)
	for i := range bars {
		bars[i] = model.OHLCV{TimestampMs: int64(i), Close: float64(i)}
	}
	ex.SeedOHLCV("BTC/KRW", bars)

	got, err := ex.FetchOHLCV(context.Background(), "BTC/KRW", model.Interval{Length: 1, Timeframe: model.Minutes}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Close != 3 || got[1].Close != 4 {
		t.Fatalf("expected the last 2 bars, got %+v", got)
	}
}
