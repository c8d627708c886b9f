package bus

import (
	"time"

	"cryptowatcher/internal/model"
)

// AlertEvent is published for every dispatch attempt, successful or not, so
// subscribers (the dashboard gateway) can see both.
type AlertEvent struct {
	Alarm     *model.Alarm
	Result    model.CheckResult
	Delivered bool
	At        time.Time
}

// AlertBus fans out AlertEvents.
type AlertBus = FanOut[AlertEvent]

// NewAlertBus returns a ready-to-use AlertBus.
func NewAlertBus(bufSize int) *AlertBus {
	return NewFanOut[AlertEvent](bufSize)
}

// CandleEvent is published whenever the boundary task finalizes a candle.
type CandleEvent struct {
	Exchange model.ExchangeID
	Symbol   string
	Interval model.Interval
	Candle   *model.Candle
}

// CandleBus fans out CandleEvents.
type CandleBus = FanOut[CandleEvent]

// NewCandleBus returns a ready-to-use CandleBus.
func NewCandleBus(bufSize int) *CandleBus {
	return NewFanOut[CandleEvent](bufSize)
}
