package interval

import "time"

// Interval is a half-open [Start, End) time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether the interval contains no time at all.
func (iv Interval) Empty() bool {
	return !iv.Start.Before(iv.End)
}

// Duration returns End-Start, or zero for empty intervals.
func (iv Interval) Duration() time.Duration {
	if iv.Empty() {
		return 0
	}
	return iv.End.Sub(iv.Start)
}

// Hours returns the interval length in wall-clock hours.
func (iv Interval) Hours() float64 {
	return iv.Duration().Hours()
}

// Days returns the interval length in 24h days.
func (iv Interval) Days() float64 {
	return iv.Duration().Hours() / 24
}

// Intersect returns the overlap of a and b. ok is false when the overlap
// is empty (overlapStart >= overlapEnd).
func Intersect(a, b Interval) (Interval, bool) {
	out := Interval{Start: later(a.Start, b.Start), End: earlier(a.End, b.End)}
	if out.Empty() {
		return Interval{}, false
	}
	return out, true
}

// OverlapHours converts the overlap of a and b from days to hours at the
// given working-hours-per-day rate. Zero when the intervals do not overlap.
func OverlapHours(a, b Interval, hoursPerDay float64) float64 {
	ov, ok := Intersect(a, b)
	if !ok {
		return 0
	}
	return ov.Days() * hoursPerDay
}

// WorkingDays counts Monday-Friday calendar days between from and to,
// both ends inclusive.
func WorkingDays(from, to time.Time) int {
	from = truncateDay(from)
	to = truncateDay(to)
	count := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
		default:
			count++
		}
	}
	return count
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
