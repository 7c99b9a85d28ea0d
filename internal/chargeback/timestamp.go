package chargeback

import "time"

// TimestampLayout is the layout of report timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// UsecsToTimestamp formats microseconds since the epoch in loc.
func UsecsToTimestamp(usecs int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMicro(usecs).In(loc).Format(TimestampLayout)
}
