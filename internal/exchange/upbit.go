package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cryptowatcher/internal/model"
)

// UpbitDecoder implements Decoder for Upbit's public WebSocket and REST v1
// APIs. Symbols are ccxt-style "BASE/QUOTE"; Upbit's own wire format uses
// "QUOTE-BASE" (e.g. "KRW-BTC"), so every call translates between the two.
type UpbitDecoder struct{}

const upbitWSURL = "wss://api.upbit.com/websocket/v1"
const upbitRESTURL = "https://api.upbit.com/v1"

func (UpbitDecoder) StreamURL(symbols []string) string {
	// Upbit's subscribe message is sent post-connect by the caller in a
	// production build; the stream URL itself carries no query params.
	return upbitWSURL
}

func (UpbitDecoder) toMarket(symbol string) string {
	parts := strings.SplitN(symbol, "/", 2)
	if len(parts) != 2 {
		return symbol
	}
	return parts[1] + "-" + parts[0]
}

func (UpbitDecoder) toSymbol(market string) string {
	parts := strings.SplitN(market, "-", 2)
	if len(parts) != 2 {
		return market
	}
	return parts[1] + "/" + parts[0]
}

type upbitTradeMessage struct {
	Type          string  `json:"type"`
	Code          string  `json:"code"`
	TradePrice    float64 `json:"trade_price"`
	TradeVolume   float64 `json:"trade_volume"`
	TradeTimestamp int64  `json:"trade_timestamp"`
}

type upbitOrderBookMessage struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Units []struct {
		AskPrice float64 `json:"ask_price"`
		BidPrice float64 `json:"bid_price"`
		AskSize  float64 `json:"ask_size"`
		BidSize  float64 `json:"bid_size"`
	} `json:"orderbook_units"`
}

func (d UpbitDecoder) Decode(raw []byte) (model.Trade, bool, model.OrderBook, bool, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return model.Trade{}, false, model.OrderBook{}, false, fmt.Errorf("upbit: decode type: %w", err)
	}

	switch head.Type {
	case "trade":
		var m upbitTradeMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return model.Trade{}, false, model.OrderBook{}, false, fmt.Errorf("upbit: decode trade: %w", err)
		}
		t := model.Trade{
			Symbol:      d.toSymbol(m.Code),
			TimestampMs: m.TradeTimestamp,
			Price:       m.TradePrice,
			Amount:      m.TradeVolume,
			Cost:        m.TradePrice * m.TradeVolume,
		}
		return t, true, model.OrderBook{}, false, nil
	case "orderbook":
		var m upbitOrderBookMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return model.Trade{}, false, model.OrderBook{}, false, fmt.Errorf("upbit: decode orderbook: %w", err)
		}
		ob := model.OrderBook{Symbol: d.toSymbol(m.Code)}
		for _, u := range m.Units {
			ob.Asks = append(ob.Asks, model.OrderBookLevel{Price: u.AskPrice, Amount: u.AskSize})
			ob.Bids = append(ob.Bids, model.OrderBookLevel{Price: u.BidPrice, Amount: u.BidSize})
		}
		return model.Trade{}, false, ob, true, nil
	default:
		return model.Trade{}, false, model.OrderBook{}, false, nil
	}
}

func (d UpbitDecoder) FetchOHLCV(ctx context.Context, client *http.Client, symbol string, interval model.Interval, limit int) ([]model.OHLCV, error) {
	unit, err := upbitCandleUnit(interval)
	if err != nil {
		return nil, err
	}
	market := d.toMarket(symbol)
	reqURL := fmt.Sprintf("%s/candles/%s?market=%s&count=%d", upbitRESTURL, unit, market, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upbit: candles request failed: status %d", resp.StatusCode)
	}

	var raw []struct {
		TimestampMs int64   `json:"timestamp"`
		Open        float64 `json:"opening_price"`
		High        float64 `json:"high_price"`
		Low         float64 `json:"low_price"`
		Close       float64 `json:"trade_price"`
		Volume      float64 `json:"candle_acc_trade_volume"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("upbit: decode candles: %w", err)
	}

	out := make([]model.OHLCV, len(raw))
	for i, r := range raw {
		out[len(raw)-1-i] = model.OHLCV{TimestampMs: r.TimestampMs, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume}
	}
	return out, nil
}

func (d UpbitDecoder) FetchOrderBook(ctx context.Context, client *http.Client, symbol string, limit int) (model.OrderBook, error) {
	market := d.toMarket(symbol)
	reqURL := fmt.Sprintf("%s/orderbook?markets=%s", upbitRESTURL, market)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.OrderBook{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return model.OrderBook{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.OrderBook{}, fmt.Errorf("upbit: orderbook request failed: status %d", resp.StatusCode)
	}

	var raw []upbitOrderBookMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return model.OrderBook{}, fmt.Errorf("upbit: decode orderbook: %w", err)
	}
	if len(raw) == 0 {
		return model.OrderBook{Symbol: symbol}, nil
	}
	ob := model.OrderBook{Symbol: symbol}
	n := len(raw[0].Units)
	if limit > 0 && limit < n {
		n = limit
	}
	for _, u := range raw[0].Units[:n] {
		ob.Asks = append(ob.Asks, model.OrderBookLevel{Price: u.AskPrice, Amount: u.AskSize})
		ob.Bids = append(ob.Bids, model.OrderBookLevel{Price: u.BidPrice, Amount: u.BidSize})
	}
	return ob, nil
}

func upbitCandleUnit(interval model.Interval) (string, error) {
	switch interval.Timeframe {
	case model.Minutes:
		return "minutes/" + strconv.Itoa(interval.Length), nil
	case model.Days:
		return "days", nil
	case model.Weeks:
		return "weeks", nil
	case model.Months:
		return "months", nil
	default:
		return "", fmt.Errorf("upbit: unsupported interval %s", interval)
	}
}
