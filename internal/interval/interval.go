// Package interval provides the half-open time interval primitives the
// planner's slot arithmetic is built on.
package interval

import "time"

// Interval is a half-open time span [Start, End) with End > Start.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Minutes returns the whole-minute duration, truncating partial minutes.
func (iv Interval) Minutes() int {
	return int(iv.End.Sub(iv.Start).Seconds()) / 60
}

// Clamp intersects iv with window. The second return value is false when the
// intersection has no positive duration.
func Clamp(iv, window Interval) (Interval, bool) {
	start := iv.Start
	if window.Start.After(start) {
		start = window.Start
	}
	end := iv.End
	if window.End.Before(end) {
		end = window.End
	}
	if !end.After(start) {
		return Interval{}, false
	}
	return Interval{Start: start, End: end}, true
}

// Subtract removes blocked from every interval in base. Intervals untouched by
// blocked pass through unchanged; covered ones are replaced by their surviving
// before/after pieces. Output order follows base, before-piece first.
func Subtract(base []Interval, blocked Interval) []Interval {
	result := make([]Interval, 0, len(base))
	for _, iv := range base {
		if !blocked.End.After(iv.Start) || !iv.End.After(blocked.Start) {
			result = append(result, iv)
			continue
		}
		if blocked.Start.After(iv.Start) {
			result = append(result, Interval{Start: iv.Start, End: blocked.Start})
		}
		if iv.End.After(blocked.End) {
			result = append(result, Interval{Start: blocked.End, End: iv.End})
		}
	}
	return result
}
