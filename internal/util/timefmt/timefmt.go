// Package timefmt holds the wall-clock layouts the upstream API expects.
package timefmt

import (
	"strings"
	"time"
)

const (
	// TimestampLayout is the payload timestamp layout, "YYYY-MM-DD HH:mm:ss".
	TimestampLayout = "2006-01-02 15:04:05"
	// RequestTimeLayout adds milliseconds, used by the MFA follow-up.
	RequestTimeLayout = "2006-01-02 15:04:05.000"
)

var parseLayouts = []string{
	time.RFC3339Nano,
	TimestampLayout,
	RequestTimeLayout,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Timestamp formats t in local time without a zone offset.
func Timestamp(t time.Time) string {
	return t.Local().Format(TimestampLayout)
}

// RequestTime formats t in local time with milliseconds.
func RequestTime(t time.Time) string {
	return t.Local().Format(RequestTimeLayout)
}

// UTCRequestTime formats t in UTC without milliseconds.
func UTCRequestTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Parse accepts the layouts produced by browsers' datetime-local inputs and by
// this package. Values without a zone are read as local time.
func Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range parseLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
