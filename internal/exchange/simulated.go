package exchange

import (
	"context"
	"sync"

	"cryptowatcher/internal/model"
)

// SimulatedExchange is a deterministic, in-memory model.Exchange used for
// local development and tests, in place of a real Upbit/Binance connection
// (the teacher's wssim package serves the same role for its own Angel One
// pipeline). Trades, order books and OHLCV backfill bars are injected
// directly by the caller via Push*/Seed* rather than read off a socket.
type SimulatedExchange struct {
	mu     sync.Mutex
	trades map[string]chan model.Trade
	books  map[string]model.OrderBook
	ohlcv  map[string][]model.OHLCV
}

// NewSimulatedExchange returns an empty SimulatedExchange.
func NewSimulatedExchange() *SimulatedExchange {
	return &SimulatedExchange{
		trades: make(map[string]chan model.Trade),
		books:  make(map[string]model.OrderBook),
		ohlcv:  make(map[string][]model.OHLCV),
	}
}

func (s *SimulatedExchange) tradeChan(symbol string) chan model.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.trades[symbol]
	if !ok {
		ch = make(chan model.Trade, 1024)
		s.trades[symbol] = ch
	}
	return ch
}

// PushTrade injects a trade for symbol, deliverable to the next WatchTrades
// call.
func (s *SimulatedExchange) PushTrade(t model.Trade) {
	s.tradeChan(t.BaseSymbol()) <- t
}

// WatchTrades blocks until a trade previously pushed via PushTrade is
// available, or ctx is cancelled.
func (s *SimulatedExchange) WatchTrades(ctx context.Context, symbol string) ([]model.Trade, error) {
	ch := s.tradeChan(symbol)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case t := <-ch:
		batch := []model.Trade{t}
		for {
			select {
			case t2 := <-ch:
				batch = append(batch, t2)
			default:
				return batch, nil
			}
		}
	}
}

// WatchOrderBook is a no-op; SeedOrderBook supplies snapshots directly.
func (s *SimulatedExchange) WatchOrderBook(ctx context.Context, symbol string, limit int) error {
	return nil
}

// SeedOrderBook sets the snapshot OrderBook returns for symbol.
func (s *SimulatedExchange) SeedOrderBook(symbol string, ob model.OrderBook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ob.Symbol = symbol
	s.books[symbol] = ob
}

// OrderBook returns the most recently seeded snapshot for symbol.
func (s *SimulatedExchange) OrderBook(symbol string) (model.OrderBook, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ob, ok := s.books[symbol]
	return ob, ok
}

// SeedOHLCV sets the bars FetchOHLCV returns for symbol regardless of the
// requested interval or limit.
func (s *SimulatedExchange) SeedOHLCV(symbol string, bars []model.OHLCV) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ohlcv[symbol] = bars
}

// FetchOHLCV returns up to limit of the seeded bars for symbol.
func (s *SimulatedExchange) FetchOHLCV(ctx context.Context, symbol string, interval model.Interval, limit int) ([]model.OHLCV, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bars := s.ohlcv[symbol]
	if limit > 0 && limit < len(bars) {
		bars = bars[len(bars)-limit:]
	}
	out := make([]model.OHLCV, len(bars))
	copy(out, bars)
	return out, nil
}

// FetchOrderBook returns the seeded snapshot for symbol.
func (s *SimulatedExchange) FetchOrderBook(ctx context.Context, symbol string, limit int) (model.OrderBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.books[symbol], nil
}

// Close is a no-op; the simulated feed has no underlying connection.
func (s *SimulatedExchange) Close() error {
	return nil
}
