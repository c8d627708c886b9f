// Package gateway broadcasts finalized candles and alert attempts to
// connected WebSocket dashboard clients. It is a read-only observability
// feed: clients cannot configure or mutate anything through it.
package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cryptowatcher/internal/bus"
)

// Hub tracks connected dashboard clients and fans candle/alert events out
// to them.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64
}

type latestEntry struct {
	Data []byte
	TS   time.Time
}

// NewHub creates an empty Hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*Client]bool),
		latest:  make(map[string]latestEntry),
	}
}

// Run subscribes to candles and alerts and broadcasts each to every
// connected client until ctx is cancelled.
func (h *Hub) Run(ctx context.Context, candles *bus.CandleBus, alerts *bus.AlertBus) {
	b := NewBroadcaster(h)

	var candleCh <-chan bus.CandleEvent
	var alertCh <-chan bus.AlertEvent
	if candles != nil {
		candleCh = candles.Subscribe()
	}
	if alerts != nil {
		alertCh = alerts.Subscribe()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-candleCh:
			if !ok {
				candleCh = nil
				continue
			}
			b.Broadcast("candle", candleEnvelope(ev))
		case ev, ok := <-alertCh:
			if !ok {
				alertCh = nil
				continue
			}
			b.Broadcast("alert", alertEnvelope(ev))
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	if h.log != nil {
		h.log.Info("dashboard client connected", "total", h.ClientCount())
	}
}

// RemoveClient unregisters a disconnected client.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	close(c.send)
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// LatestSnapshot returns the last broadcast payload per channel, used to
// prime a newly connected client.
func (h *Hub) LatestSnapshot() map[string][]byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string][]byte, len(h.latest))
	for k, v := range h.latest {
		out[k] = v.Data
	}
	return out
}
