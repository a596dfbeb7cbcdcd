package entity

import (
	"strings"
	"time"
)

// timestampLayouts are tried in order when comparing timestamps
var timestampLayouts = []string{
	TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999 UTC",
	"2006-01-02 15:04:05",
	"2006-01-02 03:04 PM",
	"Jan 02, 2006 03:04 PM",
	"2006-01-02",
}

// ParseTimestamp parses a timestamp produced by the engine or scraped from
// a repository page. A leading "Last modified" label is ignored.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) >= len("last modified") && strings.EqualFold(s[:len("last modified")], "last modified") {
		s = strings.TrimSpace(s[len("last modified"):])
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CompareTimestamps returns -1, 0 or +1 depending on whether a is older,
// equal to or newer than b. When both strings parse they are compared as
// instants, otherwise as plain strings.
func CompareTimestamps(a, b string) int {
	ta, okA := ParseTimestamp(a)
	tb, okB := ParseTimestamp(b)
	if okA && okB {
		return ta.Compare(tb)
	}
	return strings.Compare(a, b)
}
