package planner

import (
	"sort"
	"time"

	"lifeline/internal/interval"
)

// dateOf truncates t to its calendar day.
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// daysOf lists every calendar day from the window start date through the
// window end date, inclusive.
func daysOf(windowStart, windowEnd time.Time) []time.Time {
	var days []time.Time
	end := dateOf(windowEnd)
	for day := dateOf(windowStart); !day.After(end); day = day.AddDate(0, 0, 1) {
		days = append(days, day)
	}
	return days
}

// sortEvents orders fixed events by (start, end, id), the canonical order for
// both slot subtraction and fixed-event block emission.
func sortEvents(events []EventInput) []EventInput {
	sorted := make([]EventInput, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		if !a.EndTime.Equal(b.EndTime) {
			return a.EndTime.Before(b.EndTime)
		}
		return a.ID < b.ID
	})
	return sorted
}

// buildDailySlots turns the planning window, focus hours and fixed events into
// per-day free intervals. A fixed event only affects the day its clamped start
// falls on.
func buildDailySlots(r Request) map[time.Time][]interval.Interval {
	window := interval.Interval{Start: r.WindowStart, End: r.WindowEnd}
	slots := map[time.Time][]interval.Interval{}
	for _, day := range daysOf(r.WindowStart, r.WindowEnd) {
		focus := interval.Interval{
			Start: day.Add(time.Duration(r.FocusHoursStart) * time.Hour),
			End:   day.Add(time.Duration(r.FocusHoursEnd) * time.Hour),
		}
		if clamped, ok := interval.Clamp(focus, window); ok {
			slots[day] = []interval.Interval{clamped}
		} else {
			slots[day] = nil
		}
	}
	for _, event := range sortEvents(r.FixedEvents) {
		blocked, ok := interval.Clamp(interval.Interval{Start: event.StartTime, End: event.EndTime}, window)
		if !ok {
			continue
		}
		day := dateOf(blocked.Start)
		if daySlots, exists := slots[day]; exists {
			slots[day] = interval.Subtract(daySlots, blocked)
		}
	}
	return slots
}
