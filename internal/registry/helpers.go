package registry

import (
	"strconv"
	"time"

	"cryptowatcher/internal/model"
)

func floatKey(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func intKey(n int) string {
	return strconv.Itoa(n)
}

func boolKey(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func timeFromMs(ms int64, interval model.Interval) time.Time {
	return interval.Truncate(time.UnixMilli(ms))
}
