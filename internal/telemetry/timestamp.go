package telemetry

import (
	"strconv"
	"time"
)

// isoLocalLayout matches timestamps without a zone suffix, which some
// firmware emits. They are interpreted as UTC.
const isoLocalLayout = "2006-01-02T15:04:05"

// ParseTimestamp interprets a device-reported timestamp string.
//
// Firmware in the field emits several formats, tried in order:
//  1. RFC 3339 ("2026-03-01T12:00:00Z", with or without offset)
//  2. Unix epoch milliseconds as a digit string ("1772366400000")
//  3. ISO local time without zone ("2026-03-01T12:00:00"), taken as UTC
//
// An empty or unparseable timestamp falls back to now. A bad clock on a
// device must never block its readings from being stored.
func ParseTimestamp(raw string, now time.Time) time.Time {
	if raw == "" {
		return now.UTC()
	}

	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC()
	}

	if isDigits(raw) {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC()
		}
	}

	if t, err := time.Parse(isoLocalLayout, raw); err == nil {
		return t.UTC()
	}

	return now.UTC()
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
