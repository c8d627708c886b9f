package model

// BandSide names which Bollinger band a trade crossed.
type BandSide string

const (
	UpperBand BandSide = "upper_band"
	LowerBand BandSide = "lower_band"
)

// WhaleLevels collects the order-book levels that qualified as whales on
// each side of the book.
type WhaleLevels struct {
	Bids []OrderBookLevel
	Asks []OrderBookLevel
}

// Empty reports whether no level qualified on either side.
func (w *WhaleLevels) Empty() bool {
	return w == nil || (len(w.Bids) == 0 && len(w.Asks) == 0)
}

// CheckResult is the Evaluator's verdict for one (alarm, trade) pair. Only
// the fields for the alarm's configured sub-conditions are populated.
type CheckResult struct {
	IsAlarmTriggered bool
	Whales           *WhaleLevels
	RSI              *float64
	CrossedBand      *BandSide
	Trade            Trade
}
