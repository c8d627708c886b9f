// Package notify provides alert delivery backends implementing
// model.Notifier: logging (development), Telegram Bot API, a generic
// webhook, and Redis Pub/Sub.
package notify

import (
	"context"
	"log"

	"cryptowatcher/internal/model"
)

// LogNotifier logs alerts instead of delivering them; the default for local
// development and for tests.
type LogNotifier struct{}

// NewLogNotifier returns a LogNotifier.
func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Send(ctx context.Context, channelID, text string) error {
	log.Printf("[notify] channel=%s: %s", channelID, text)
	return nil
}

// MultiNotifier fans Send out to several backends in priority order,
// stopping at the first one that succeeds.
type MultiNotifier struct {
	backends []model.Notifier
}

// NewMultiNotifier composes backends in priority order.
func NewMultiNotifier(backends ...model.Notifier) *MultiNotifier {
	return &MultiNotifier{backends: backends}
}

func (m *MultiNotifier) Send(ctx context.Context, channelID, text string) error {
	var lastErr error
	for _, b := range m.backends {
		if err := b.Send(ctx, channelID, text); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return lastErr
}
