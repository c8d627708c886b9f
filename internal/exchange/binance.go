package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"cryptowatcher/internal/model"
)

// BinanceDecoder implements Decoder for Binance's combined-stream public
// WebSocket and REST v3 APIs. Symbols are ccxt-style "BASE/QUOTE"; Binance's
// own wire format uses lowercase "basequote" (e.g. "btcusdt").
type BinanceDecoder struct{}

const binanceWSBase = "wss://stream.binance.com:9443/stream"
const binanceRESTURL = "https://api.binance.com/api/v3"

func (BinanceDecoder) toMarket(symbol string) string {
	return strings.ToLower(strings.ReplaceAll(symbol, "/", ""))
}

func (BinanceDecoder) StreamURL(symbols []string) string {
	streams := make([]string, 0, len(symbols)*2)
	for _, s := range symbols {
		m := BinanceDecoder{}.toMarket(s)
		streams = append(streams, m+"@trade", m+"@depth20")
	}
	return binanceWSBase + "?streams=" + strings.Join(streams, "/")
}

type binanceEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type binanceTradeEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Qty       string `json:"q"`
	TradeTime int64  `json:"T"`
}

type binanceDepthEvent struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

func (d BinanceDecoder) Decode(raw []byte) (model.Trade, bool, model.OrderBook, bool, error) {
	var env binanceEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.Trade{}, false, model.OrderBook{}, false, fmt.Errorf("binance: decode envelope: %w", err)
	}

	switch {
	case strings.HasSuffix(env.Stream, "@trade"):
		var ev binanceTradeEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return model.Trade{}, false, model.OrderBook{}, false, fmt.Errorf("binance: decode trade: %w", err)
		}
		price, _ := strconv.ParseFloat(ev.Price, 64)
		qty, _ := strconv.ParseFloat(ev.Qty, 64)
		t := model.Trade{
			Symbol:      fromBinanceMarket(ev.Symbol),
			TimestampMs: ev.TradeTime,
			Price:       price,
			Amount:      qty,
			Cost:        price * qty,
		}
		return t, true, model.OrderBook{}, false, nil
	case strings.HasSuffix(env.Stream, "@depth20"):
		var ev binanceDepthEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return model.Trade{}, false, model.OrderBook{}, false, fmt.Errorf("binance: decode depth: %w", err)
		}
		symbol := fromBinanceStreamSymbol(env.Stream)
		ob := model.OrderBook{Symbol: symbol}
		for _, lvl := range ev.Bids {
			price, _ := strconv.ParseFloat(lvl[0], 64)
			amt, _ := strconv.ParseFloat(lvl[1], 64)
			ob.Bids = append(ob.Bids, model.OrderBookLevel{Price: price, Amount: amt})
		}
		for _, lvl := range ev.Asks {
			price, _ := strconv.ParseFloat(lvl[0], 64)
			amt, _ := strconv.ParseFloat(lvl[1], 64)
			ob.Asks = append(ob.Asks, model.OrderBookLevel{Price: price, Amount: amt})
		}
		return model.Trade{}, false, ob, true, nil
	default:
		return model.Trade{}, false, model.OrderBook{}, false, nil
	}
}

// fromBinanceMarket has no reliable base/quote split without a known quote
// list; Binance's own "s" field (e.g. "BTCUSDT") is mapped via the same
// heuristic ccxt uses: strip the common quote suffixes.
func fromBinanceMarket(market string) string {
	for _, quote := range []string{"USDT", "BUSD", "BTC", "KRW"} {
		if strings.HasSuffix(market, quote) && len(market) > len(quote) {
			return market[:len(market)-len(quote)] + "/" + quote
		}
	}
	return market
}

func fromBinanceStreamSymbol(stream string) string {
	market := strings.ToUpper(strings.SplitN(stream, "@", 2)[0])
	return fromBinanceMarket(market)
}

func (d BinanceDecoder) FetchOHLCV(ctx context.Context, client *http.Client, symbol string, interval model.Interval, limit int) ([]model.OHLCV, error) {
	binInterval, err := binanceKlineInterval(interval)
	if err != nil {
		return nil, err
	}
	reqURL := fmt.Sprintf("%s/klines?symbol=%s&interval=%s&limit=%d", binanceRESTURL, strings.ToUpper(d.toMarket(symbol)), binInterval, limit)
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
		return nil, fmt.Errorf("binance: klines request failed: status %d", resp.StatusCode)
	}

	var raw [][]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("binance: decode klines: %w", err)
	}

	out := make([]model.OHLCV, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			continue
		}
		out = append(out, model.OHLCV{
			TimestampMs: int64(row[0].(float64)),
			Open:        parseAny(row[1]),
			High:        parseAny(row[2]),
			Low:         parseAny(row[3]),
			Close:       parseAny(row[4]),
			Volume:      parseAny(row[5]),
		})
	}
	return out, nil
}

func parseAny(v any) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case float64:
		return t
	default:
		return 0
	}
}

func (d BinanceDecoder) FetchOrderBook(ctx context.Context, client *http.Client, symbol string, limit int) (model.OrderBook, error) {
	if limit <= 0 {
		limit = 20
	}
	reqURL := fmt.Sprintf("%s/depth?symbol=%s&limit=%d", binanceRESTURL, strings.ToUpper(d.toMarket(symbol)), limit)
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
		return model.OrderBook{}, fmt.Errorf("binance: depth request failed: status %d", resp.StatusCode)
	}

	var raw binanceDepthEvent
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return model.OrderBook{}, fmt.Errorf("binance: decode depth: %w", err)
	}
	ob := model.OrderBook{Symbol: symbol}
	for _, lvl := range raw.Bids {
		price, _ := strconv.ParseFloat(lvl[0], 64)
		amt, _ := strconv.ParseFloat(lvl[1], 64)
		ob.Bids = append(ob.Bids, model.OrderBookLevel{Price: price, Amount: amt})
	}
	for _, lvl := range raw.Asks {
		price, _ := strconv.ParseFloat(lvl[0], 64)
		amt, _ := strconv.ParseFloat(lvl[1], 64)
		ob.Asks = append(ob.Asks, model.OrderBookLevel{Price: price, Amount: amt})
	}
	return ob, nil
}

func binanceKlineInterval(interval model.Interval) (string, error) {
	switch interval.Timeframe {
	case model.Minutes:
		return strconv.Itoa(interval.Length) + "m", nil
	case model.Hours:
		return strconv.Itoa(interval.Length) + "h", nil
	case model.Days:
		return strconv.Itoa(interval.Length) + "d", nil
	case model.Weeks:
		return strconv.Itoa(interval.Length) + "w", nil
	case model.Months:
		return strconv.Itoa(interval.Length) + "M", nil
	default:
		return "", fmt.Errorf("binance: unsupported interval %s", interval)
	}
}
