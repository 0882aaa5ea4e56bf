package exporter

import (
	"math"
	"strconv"
	"time"
)

// FormatFloat renders f with the shortest round-trip representation.
// NaN is written as an empty cell.
func FormatFloat(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// FormatFixed renders f with a fixed number of decimals, for notes
func FormatFixed(f float64, decimals int) string {
	if math.IsNaN(f) {
		return "nan"
	}
	return strconv.FormatFloat(f, 'f', decimals, 64)
}

// FormatInt formats an integer value
func FormatInt(i int) string {
	return strconv.Itoa(i)
}

// FormatFlag formats a boolean as 1 or 0
func FormatFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// FormatBool formats a boolean value as true or false
func FormatBool(b bool) string {
	return strconv.FormatBool(b)
}

// FormatDate formats a calendar date as YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}
