// Package normalize converts raw source values (Apple-epoch timestamps,
// phone numbers, email addresses) into the canonical forms the rest of
// the system keys on.
package normalize

import "time"

// appleEpoch is 2001-01-01 00:00:00 UTC, the reference instant Apple's
// Core Data timestamps (chat.db, call.db) count from.
var appleEpoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// AppleTimestampToLocal converts a raw Apple-epoch timestamp, in
// seconds, microseconds or nanoseconds (unit auto-detected by
// divisibility), into a timezone-aware local time. A nil value is
// treated as 0.
func AppleTimestampToLocal(raw *int64) time.Time {
	var value int64
	if raw != nil {
		value = *raw
	}

	var seconds float64
	switch {
	case value%1_000_000_000 == 0:
		seconds = float64(value) / 1_000_000_000
	case value%1_000_000 == 0:
		seconds = float64(value) / 1_000_000
	default:
		seconds = float64(value)
	}

	utc := appleEpoch.Add(time.Duration(seconds * float64(time.Second)))
	return utc.Local()
}

// LocalToAppleTimestampSeconds converts a local time into an Apple-epoch
// integer number of seconds, the inverse of AppleTimestampToLocal for
// the seconds-unit case.
func LocalToAppleTimestampSeconds(t time.Time) int64 {
	return int64(t.UTC().Sub(appleEpoch).Seconds())
}
