// Package geo holds the small amount of planar geometry and timestamp
// arithmetic shared by the monitor and the store. Warehouse coordinates are
// already projected onto a local 2-D plane by the positioning system, so
// distance is plain Euclidean distance in metres.
package geo

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// TimestampLayout is the wire format for all timestamps exchanged with the
// store: microsecond precision, no timezone (the fleet runs on site-local
// clocks).
const TimestampLayout = "2006-01-02 15:04:05.000000"

// Point is a 2-D warehouse coordinate in metres.
type Point = orb.Point

// Distance returns the Euclidean distance between two points in metres.
func Distance(p, q Point) float64 {
	return planar.Distance(p, q)
}

// ParseTimestamp parses a site-local timestamp string.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}

// FormatTimestamp renders t in the store wire format.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// DeltaSeconds returns late − early as floating-point seconds with
// microsecond precision. Callers pass timestamps in event order; a negative
// result means the inputs were swapped.
func DeltaSeconds(early, late time.Time) float64 {
	return late.Sub(early).Seconds()
}
