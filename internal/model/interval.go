package model

import (
	"fmt"
	"time"
)

// Timeframe is the unit label of an Interval: seconds, minutes, hours, days,
// weeks, or months. Months ("M") have no fixed number of seconds and are
// compared only as a display label, never arithmetically.
type Timeframe string

const (
	Seconds Timeframe = "s"
	Minutes Timeframe = "m"
	Hours   Timeframe = "h"
	Days    Timeframe = "d"
	Weeks   Timeframe = "w"
	Months  Timeframe = "M"
)

var timeframeSeconds = map[Timeframe]int64{
	Seconds: 1,
	Minutes: 60,
	Hours:   3600,
	Days:    86400,
	Weeks:   604800,
	// Months intentionally absent: not arithmetically comparable.
}

// Interval is a candle bucket width, e.g. "1m", "15m", "1d".
type Interval struct {
	Length    int
	Timeframe Timeframe
}

// Seconds returns the interval's width in seconds. Months return 0 since they
// carry no fixed duration; callers must never use Seconds() to bucket a
// month-denominated interval.
func (i Interval) Seconds() int64 {
	return int64(i.Length) * timeframeSeconds[i.Timeframe]
}

// String renders the interval the way alert text and the English log stream
// does, e.g. "15m".
func (i Interval) String() string {
	return fmt.Sprintf("%d%s", i.Length, i.Timeframe)
}

// Korean renders the interval's unit in Korean, matching the original bot's
// alert copy (e.g. "15분").
func (i Interval) Korean() string {
	unit := map[Timeframe]string{
		Seconds: "초",
		Minutes: "분",
		Hours:   "시간",
		Days:    "일",
		Weeks:   "주",
		Months:  "개월",
	}[i.Timeframe]
	return fmt.Sprintf("%d%s", i.Length, unit)
}

// Less reports whether i sorts before o. Intervals denominated in the same
// arithmetic timeframe compare by seconds; "M" intervals always sort after
// every arithmetic timeframe since they have no fixed duration, and compare
// to each other by Length only.
func (i Interval) Less(o Interval) bool {
	iM, oM := i.Timeframe == Months, o.Timeframe == Months
	switch {
	case iM && oM:
		return i.Length < o.Length
	case iM:
		return false
	case oM:
		return true
	default:
		return i.Seconds() < o.Seconds()
	}
}

// Key returns the interval's string form, for callers that want a plain
// string index instead of the Interval struct itself.
func (i Interval) Key() string {
	return i.String()
}

// Truncate returns t truncated down to this interval's bucket boundary, in
// UTC. Month intervals are not arithmetically bucketed (no caller creates
// candle storage for a month interval; RSI/Bollinger never reference one in
// practice) and truncate to the start of t's UTC day as a safe fallback.
func (i Interval) Truncate(t time.Time) time.Time {
	secs := i.Seconds()
	if secs <= 0 {
		y, m, d := t.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	unix := t.Unix()
	bucket := unix - unix%secs
	return time.Unix(bucket, 0).UTC()
}
