package util

import (
	"strconv"
	"time"
)

// unix timestamps above this are taken as milliseconds
const unixMilliCutoff = 1e11

// ParseTime accepts RFC3339(Nano) or a unix timestamp in seconds or milliseconds.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return FromUnix(ts), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns def if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// FromUnix converts seconds or milliseconds since the epoch to UTC.
func FromUnix(ts int64) time.Time {
	if ts >= unixMilliCutoff {
		return time.UnixMilli(ts).UTC()
	}
	return time.Unix(ts, 0).UTC()
}
