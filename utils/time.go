package utils

import "time"

// MakeTimeToString returns text represented time from time.Time
func MakeTimeToString(t time.Time) string {
	return t.Format(time.RFC3339)
}

// GetElapsedMinutes returns fractional minutes from since to now
// returns 0 if now is before since, e.g., when the clock goes backward
func GetElapsedMinutes(since time.Time, now time.Time) float64 {
	minutes := now.Sub(since).Minutes()
	if minutes < 0 {
		return 0
	}
	return minutes
}
