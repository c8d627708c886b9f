package gateway

import (
	"encoding/json"
	"strconv"
	"time"

	"cryptowatcher/internal/bus"
)

// Broadcaster constructs envelope JSON and fans it out to every connected
// client. Hand-crafts the envelope instead of round-tripping through
// json.Marshal on the hot broadcast path.
type Broadcaster struct {
	hub *Hub
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// Broadcast sends data on a channel to every connected client.
func (b *Broadcaster) Broadcast(channel string, data []byte) {
	now := time.Now().UTC()

	b.hub.mu.Lock()
	b.hub.latest[channel] = latestEntry{Data: data, TS: now}
	b.hub.seq++
	seq := b.hub.seq
	b.hub.mu.Unlock()

	buf := make([]byte, 0, len(channel)+len(data)+128)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')

	b.hub.mu.RLock()
	defer b.hub.mu.RUnlock()
	for client := range b.hub.clients {
		select {
		case client.send <- buf:
		default:
		}
	}
}

func candleEnvelope(ev bus.CandleEvent) []byte {
	payload := struct {
		Exchange string  `json:"exchange"`
		Symbol   string  `json:"symbol"`
		Interval string  `json:"interval"`
		Open     float64 `json:"open"`
		High     float64 `json:"high"`
		Low      float64 `json:"low"`
		Close    float64 `json:"close"`
		TS       int64   `json:"ts"`
	}{
		Exchange: ev.Exchange.String(),
		Symbol:   ev.Symbol,
		Interval: ev.Interval.String(),
		Open:     ev.Candle.Open(),
		High:     ev.Candle.High(),
		Low:      ev.Candle.Low(),
		Close:    ev.Candle.Close(),
		TS:       ev.Candle.Timestamp(),
	}
	data, _ := json.Marshal(payload)
	return data
}

func alertEnvelope(ev bus.AlertEvent) []byte {
	payload := struct {
		AlarmID   int64   `json:"alarm_id"`
		Exchange  string  `json:"exchange"`
		Symbol    string  `json:"symbol"`
		Price     float64 `json:"price"`
		Amount    float64 `json:"amount"`
		Delivered bool    `json:"delivered"`
		At        string  `json:"at"`
	}{
		AlarmID:   int64(ev.Alarm.ID),
		Exchange:  ev.Alarm.Exchange.String(),
		Symbol:    ev.Alarm.Symbol(),
		Price:     ev.Result.Trade.Price,
		Amount:    ev.Result.Trade.Amount,
		Delivered: ev.Delivered,
		At:        ev.At.Format(time.RFC3339Nano),
	}
	data, _ := json.Marshal(payload)
	return data
}
