package model

// AlarmID identifies an alarm record in the AlarmStore.
type AlarmID int64

// WhaleCondition fires when a single order-book level's notional value
// (price * amount) meets or exceeds Quantity, on either side of the book.
type WhaleCondition struct {
	Quantity float64 `json:"quantity"`
}

// TickCondition fires when a single trade's base-unit amount meets or
// exceeds Quantity.
type TickCondition struct {
	Quantity float64 `json:"quantity"`
}

// RsiCondition fires when the RSI computed over Length closes at Interval
// breaches either bound.
type RsiCondition struct {
	Length     int      `json:"length"`
	Interval   Interval `json:"interval"`
	UpperBound float64  `json:"upper_bound"`
	LowerBound float64  `json:"lower_bound"`
}

// BollingerBandCondition fires when the incoming trade price breaches the
// upper and/or lower Bollinger band computed over the last Length closes at
// Interval, for whichever side(s) are toggled on.
type BollingerBandCondition struct {
	Length          int      `json:"length"`
	Interval        Interval `json:"interval"`
	Coefficient     float64  `json:"coefficient"`
	OnOverUpperBand bool     `json:"on_over_upper_band"`
	OnUnderLowerBand bool    `json:"on_under_lower_band"`
}

// Condition is the product of an alarm's (optional) sub-conditions. All
// configured sub-conditions must pass for the alarm to trigger.
type Condition struct {
	AlarmID       AlarmID                  `json:"alarm_id"`
	Whale         *WhaleCondition          `json:"whale,omitempty"`
	Tick          *TickCondition           `json:"tick,omitempty"`
	RSI           *RsiCondition            `json:"rsi,omitempty"`
	BollingerBand *BollingerBandCondition  `json:"bollinger_band,omitempty"`
}

// IntervalsNeedToBeWatched returns the deduplicated set of intervals the
// condition's interval-bearing sub-conditions (RSI, Bollinger) reference.
// Whale and tick conditions carry no interval.
func (c Condition) IntervalsNeedToBeWatched() []Interval {
	seen := make(map[Interval]bool, 2)
	var out []Interval
	add := func(i Interval) {
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	if c.RSI != nil {
		add(c.RSI.Interval)
	}
	if c.BollingerBand != nil {
		add(c.BollingerBand.Interval)
	}
	return out
}

// Alarm is a registered, live alarm being watched by the engine.
type Alarm struct {
	ID        AlarmID
	ChannelID string
	Exchange  ExchangeID
	Base      string
	Quote     string
	Condition Condition

	// AlertedCandleTimestamp is the unix-second timestamp of the shortest
	// watched interval's candle at the time this alarm last successfully
	// fired. Zero means it has never fired. Must never decrease.
	AlertedCandleTimestamp int64
}

// Symbol returns the "BASE/QUOTE" trading pair string.
func (a *Alarm) Symbol() string {
	return a.Base + "/" + a.Quote
}

// ShortestWatchedInterval returns the interval with the smallest second-width
// among the alarm's watched intervals, or the zero Interval and false if the
// alarm has no interval-bearing condition.
func (a *Alarm) ShortestWatchedInterval() (Interval, bool) {
	intervals := a.Condition.IntervalsNeedToBeWatched()
	if len(intervals) == 0 {
		return Interval{}, false
	}
	shortest := intervals[0]
	for _, i := range intervals[1:] {
		if i.Less(shortest) {
			shortest = i
		}
	}
	return shortest, true
}

// AlarmRecord is the wire shape an AlarmStore reports for an enabled alarm,
// ahead of a separate AlarmStore.SelectCondition call to fetch its
// sub-conditions.
type AlarmRecord struct {
	AlarmID    AlarmID
	ChannelID  string
	ExchangeID ExchangeID
	BaseSymbol string
	QuoteSymbol string
	IsEnabled  bool
}
