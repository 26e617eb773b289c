package interval_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"lifeline/internal/interval"
)

func at(hour, min int) time.Time {
	return time.Date(2024, 1, 1, hour, min, 0, 0, time.UTC)
}

func iv(sh, sm, eh, em int) interval.Interval {
	return interval.Interval{Start: at(sh, sm), End: at(eh, em)}
}

func TestMinutesTruncatesPartialMinutes(t *testing.T) {
	span := interval.Interval{Start: at(9, 0), End: at(9, 0).Add(90*time.Second + 500*time.Millisecond)}
	assert.Equal(t, 1, span.Minutes())
	assert.Equal(t, 480, iv(9, 0, 17, 0).Minutes())
}

func TestClamp(t *testing.T) {
	window := iv(9, 0, 17, 0)

	got, ok := interval.Clamp(iv(8, 0, 10, 0), window)
	assert.True(t, ok)
	assert.Equal(t, iv(9, 0, 10, 0), got)

	got, ok = interval.Clamp(iv(16, 30, 18, 0), window)
	assert.True(t, ok)
	assert.Equal(t, iv(16, 30, 17, 0), got)

	_, ok = interval.Clamp(iv(7, 0, 9, 0), window)
	assert.False(t, ok, "touching the window edge is empty")

	_, ok = interval.Clamp(iv(18, 0, 19, 0), window)
	assert.False(t, ok)
}

func TestSubtractKeepsDisjointIntervals(t *testing.T) {
	base := []interval.Interval{iv(9, 0, 10, 0), iv(11, 0, 12, 0)}
	got := interval.Subtract(base, iv(10, 0, 11, 0))
	assert.Equal(t, base, got)
}

func TestSubtractSplitsCoveredInterval(t *testing.T) {
	base := []interval.Interval{iv(9, 0, 12, 0)}

	got := interval.Subtract(base, iv(10, 0, 11, 0))
	assert.Equal(t, []interval.Interval{iv(9, 0, 10, 0), iv(11, 0, 12, 0)}, got)

	got = interval.Subtract(base, iv(9, 0, 10, 0))
	assert.Equal(t, []interval.Interval{iv(10, 0, 12, 0)}, got)

	got = interval.Subtract(base, iv(11, 0, 12, 0))
	assert.Equal(t, []interval.Interval{iv(9, 0, 11, 0)}, got)

	got = interval.Subtract(base, iv(8, 0, 13, 0))
	assert.Empty(t, got)
}

func TestSubtractPreservesListOrder(t *testing.T) {
	base := []interval.Interval{iv(9, 0, 11, 0), iv(13, 0, 15, 0)}
	got := interval.Subtract(base, iv(10, 0, 14, 0))
	assert.Equal(t, []interval.Interval{iv(9, 0, 10, 0), iv(14, 0, 15, 0)}, got)
}
