package models

import (
	"fmt"
	"time"
)

// Interval is a half-open time range [Start, End) representing occupancy
// of a resource.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate checks the interval is well-formed.
func (iv Interval) Validate() error {
	if iv.Start.IsZero() || iv.End.IsZero() {
		return fmt.Errorf("interval start and end are required")
	}
	if !iv.Start.Before(iv.End) {
		return fmt.Errorf("interval start %s must be before end %s",
			iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339))
	}
	return nil
}

// Overlaps reports whether two half-open intervals intersect:
// [a,b) and [c,d) overlap iff a < d && c < b. Back-to-back intervals
// sharing a boundary do not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Contains reports whether t falls inside the interval.
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && t.Before(iv.End)
}

// Duration returns End - Start.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Nights returns the number of nightly slices the interval spans,
// rounding any partial night up. A 14:00 check-in to next-day 12:00
// check-out is one night.
func (iv Interval) Nights() int {
	d := iv.Duration()
	nights := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		nights++
	}
	return nights
}
