package model

import "strings"

// Trade is a single executed trade as delivered by an Exchange's streaming
// trade subscription.
type Trade struct {
	Symbol      string  `json:"symbol"` // may carry a ":settle" suffix on futures symbols
	TimestampMs int64   `json:"timestamp_ms"`
	Datetime    string  `json:"datetime"`
	Price       float64 `json:"price"`
	Amount      float64 `json:"amount"`
	Cost        float64 `json:"cost"`
}

// BaseSymbol strips any ":settle" suffix some exchanges append to futures
// symbols, matching the original cache's trade-symbol normalization.
func (t Trade) BaseSymbol() string {
	if idx := strings.IndexByte(t.Symbol, ':'); idx >= 0 {
		return t.Symbol[:idx]
	}
	return t.Symbol
}

// TimestampSeconds truncates the millisecond exchange timestamp to whole
// seconds, the unit every candle bucket and alarm timestamp is keyed by.
func (t Trade) TimestampSeconds() int64 {
	return t.TimestampMs / 1000
}

// OrderBookLevel is one [price, amount] rung of an order book side.
type OrderBookLevel struct {
	Price  float64
	Amount float64
}

// Notional returns price * amount, the quantity whale detection thresholds
// against.
func (l OrderBookLevel) Notional() float64 {
	return l.Price * l.Amount
}

// OrderBook is a snapshot of the best N bid/ask levels for a symbol.
type OrderBook struct {
	Symbol string
	Bids   []OrderBookLevel
	Asks   []OrderBookLevel
}
