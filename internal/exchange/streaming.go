// Package exchange adapts Upbit and Binance market data into model.Exchange.
// StreamingExchange wraps a single exchange's native WebSocket feed with a
// reconnect loop grounded on the teacher's wssim ingest client; Decoder
// implementations translate each exchange's wire format into the common
// model.Trade/model.OrderBook shapes, mirroring what ccxt.pro's unified API
// does for the original implementation.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cryptowatcher/internal/metrics"
	"cryptowatcher/internal/model"
)

// Decoder translates one exchange's native wire format into the common
// model types and builds REST requests for backfill.
type Decoder interface {
	// StreamURL returns the WebSocket endpoint to dial for these symbols.
	StreamURL(symbols []string) string

	// Decode parses one raw WS frame, reporting a trade and/or an order
	// book snapshot if the frame carried one.
	Decode(raw []byte) (trade model.Trade, hasTrade bool, book model.OrderBook, hasBook bool, err error)

	// FetchOHLCV performs a one-shot REST backfill request.
	FetchOHLCV(ctx context.Context, client *http.Client, symbol string, interval model.Interval, limit int) ([]model.OHLCV, error)

	// FetchOrderBook performs a one-shot REST order book snapshot request.
	FetchOrderBook(ctx context.Context, client *http.Client, symbol string, limit int) (model.OrderBook, error)
}

const (
	initialReconnectDelay = 2 * time.Second
	maxReconnectDelay     = 30 * time.Second
)

// StreamingExchange is a model.Exchange backed by a real exchange's
// WebSocket feed, with automatic reconnect-with-backoff.
type StreamingExchange struct {
	id      model.ExchangeID
	decoder Decoder
	client  *http.Client
	log     *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	conn     *websocket.Conn
	symbols  map[string]bool
	trades   chan model.Trade
	books    map[string]model.OrderBook
	cancel   context.CancelFunc
	started  bool
}

// NewStreamingExchange returns a StreamingExchange for id, using decoder for
// wire-format translation. m may be nil.
func NewStreamingExchange(id model.ExchangeID, decoder Decoder, log *slog.Logger, m *metrics.Metrics) *StreamingExchange {
	return &StreamingExchange{
		id:      id,
		decoder: decoder,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log,
		metrics: m,
		symbols: make(map[string]bool),
		trades:  make(chan model.Trade, 1024),
		books:   make(map[string]model.OrderBook),
	}
}

func (e *StreamingExchange) ensureRunning(ctx context.Context, symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.symbols[symbol] = true
	if e.started {
		return
	}
	e.started = true
	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	go e.run(runCtx)
}

// WatchTrades returns the next batch of trades for symbol, or blocks until
// one arrives or ctx is cancelled.
func (e *StreamingExchange) WatchTrades(ctx context.Context, symbol string) ([]model.Trade, error) {
	e.ensureRunning(ctx, symbol)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case t := <-e.trades:
		batch := []model.Trade{t}
		for {
			select {
			case t2 := <-e.trades:
				batch = append(batch, t2)
			default:
				return batch, nil
			}
		}
	}
}

// WatchOrderBook registers symbol for order book streaming; snapshots are
// written into the background connection's decode loop and read via
// OrderBook.
func (e *StreamingExchange) WatchOrderBook(ctx context.Context, symbol string, limit int) error {
	e.ensureRunning(ctx, symbol)
	return nil
}

// OrderBook returns the latest order book decoded off the stream for symbol.
func (e *StreamingExchange) OrderBook(symbol string) (model.OrderBook, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ob, ok := e.books[symbol]
	return ob, ok
}

// FetchOHLCV delegates to the decoder's REST call.
func (e *StreamingExchange) FetchOHLCV(ctx context.Context, symbol string, interval model.Interval, limit int) ([]model.OHLCV, error) {
	return e.decoder.FetchOHLCV(ctx, e.client, symbol, interval, limit)
}

// FetchOrderBook delegates to the decoder's REST call.
func (e *StreamingExchange) FetchOrderBook(ctx context.Context, symbol string, limit int) (model.OrderBook, error) {
	return e.decoder.FetchOrderBook(ctx, e.client, symbol, limit)
}

// Close tears down the background connection. A later WatchTrades/
// WatchOrderBook call transparently reopens it.
func (e *StreamingExchange) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
	e.started = false
	return nil
}

func (e *StreamingExchange) symbolList() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.symbols))
	for s := range e.symbols {
		out = append(out, s)
	}
	return out
}

// run dials the exchange feed and redials with exponential backoff on
// disconnect, exactly mirroring the teacher's wssim ingest loop.
func (e *StreamingExchange) run(ctx context.Context) {
	delay := initialReconnectDelay
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := e.runOnce(ctx)
		if err == nil {
			return
		}

		if e.metrics != nil {
			e.metrics.WSReconnects.Inc()
		}
		e.log.Warn("exchange stream disconnected, reconnecting", "exchange", e.id, "error", err, "delay", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (e *StreamingExchange) runOnce(ctx context.Context) error {
	streamURL := e.decoder.StreamURL(e.symbolList())
	if _, err := url.Parse(streamURL); err != nil {
		return fmt.Errorf("exchange: invalid stream url: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	e.mu.Lock()
	e.conn = conn
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		trade, hasTrade, book, hasBook, err := e.decoder.Decode(raw)
		if err != nil {
			e.log.Debug("exchange stream decode error", "exchange", e.id, "error", err)
			continue
		}
		if hasTrade {
			select {
			case e.trades <- trade:
			default:
				e.log.Warn("exchange trade channel full, dropping trade", "exchange", e.id, "symbol", trade.Symbol)
			}
		}
		if hasBook {
			e.mu.Lock()
			e.books[book.Symbol] = book
			e.mu.Unlock()
		}
	}
}
