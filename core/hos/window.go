// Package hos implements hours-of-service compliance: duty-hour accumulation
// over arbitrary windows and a critical-point sweep that finds the worst
// exposure a continuously sliding window would observe.
package hos

import (
	"time"

	"github.com/fleetops/dutyroster/core/model"
)

// Interval is one span of duty time.
type Interval struct {
	Start    time.Time
	End      time.Time
	DutyType model.DutyType
}

// HoursInWindow returns the total duty hours accumulated inside
// [windowStart, windowEnd] across all intervals. Each interval contributes
// the positive part of its overlap with the window; zero-length or negative
// overlaps contribute nothing.
func HoursInWindow(intervals []Interval, windowStart, windowEnd time.Time) float64 {
	var total float64
	for _, iv := range intervals {
		start := iv.Start
		if windowStart.After(start) {
			start = windowStart
		}
		end := iv.End
		if windowEnd.Before(end) {
			end = windowEnd
		}
		if end.After(start) {
			total += end.Sub(start).Hours()
		}
	}
	return total
}
