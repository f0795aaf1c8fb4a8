// Package period derives accounting-period keys from wall-clock time.
// All functions are pure; the monitor injects a clock so tests can walk
// across period boundaries deterministically.
package period

import "time"

// Layout is the canonical key form, one key per calendar month.
const Layout = "2006-01"

// Key returns the accounting-period key for t, e.g. "2025-06".
// Keys are derived in UTC so workers in different zones agree on the period.
func Key(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Bounds returns the half-open window [start, end) of the period containing t.
func Bounds(t time.Time) (time.Time, time.Time) {
	start := Start(t)
	return start, start.AddDate(0, 1, 0)
}

// Start returns the first instant of the period containing t.
func Start(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// Next returns the first instant of the period after the one containing t.
func Next(t time.Time) time.Time {
	return Start(t).AddDate(0, 1, 0)
}

// Parse converts a period key back to its starting instant.
func Parse(key string) (time.Time, error) {
	return time.Parse(Layout, key)
}
