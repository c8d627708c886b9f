// Package indicator implements the pure, stateless technical-analysis
// functions the evaluator runs against cached candle closes: moving
// averages, RSI, and Bollinger Bands.
package indicator

import "errors"

// ErrInvalidInput is returned when a function is called with fewer data
// points than its calculation requires.
var ErrInvalidInput = errors.New("indicator: insufficient input length")
