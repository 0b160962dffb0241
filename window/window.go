// Package window holds the pure strike-window and time-bucket arithmetic
// shared by ingestion and compaction.
package window

import (
	"math"
	"time"
)

// DefaultStrikeWindow is the number of strike increments kept on each
// side of the ATM strike.
const DefaultStrikeWindow = 40

// ATMStrike returns the nearest multiple of strikeRange to the underlying
// price. Halfway values round up.
func ATMStrike(underlyingPrice, strikeRange float64) float64 {
	return math.Round(underlyingPrice/strikeRange) * strikeRange
}

// AcceptBand returns the inclusive strike band centered on atm. Strikes
// outside [low, high] are silently excluded from minute rows.
func AcceptBand(atm, strikeRange float64, width int) (low, high float64) {
	span := float64(width) * strikeRange
	return atm - span, atm + span
}

// InBand reports whether strike falls inside the inclusive band
func InBand(strike, low, high float64) bool {
	return strike >= low && strike <= high
}

// FloorToMinute zeroes the seconds and sub-second components
func FloorToMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}

// BucketStart floors t's minute component to the nearest multiple of
// bucketMinutes, zeroing seconds. The calendar day is unchanged.
func BucketStart(t time.Time, bucketMinutes int) time.Time {
	m := FloorToMinute(t)
	return m.Add(-time.Duration(m.Minute()%bucketMinutes) * time.Minute)
}
