package schedule

import "time"

// Flexibility classifies how far a point-in-time departure may stretch.
type Flexibility string

const (
	FlexExact        Flexibility = "exact"
	FlexFlexible     Flexibility = "flexible"
	FlexVeryFlexible Flexibility = "very_flexible"
)

// Tolerance returns the total width of the window a point time expands into.
// Exact keeps a few minutes of slack to absorb clock skew between parties.
func (f Flexibility) Tolerance() time.Duration {
	switch f {
	case FlexFlexible:
		return 30 * time.Minute
	case FlexVeryFlexible:
		return 2 * time.Hour
	default:
		return 4 * time.Minute
	}
}

// TimeWindow is either an explicit half-open [Start, End) interval or a
// point time plus a flexibility class. Zero At means the explicit form.
type TimeWindow struct {
	Start time.Time   `json:"start,omitempty"`
	End   time.Time   `json:"end,omitempty"`
	At    time.Time   `json:"at,omitempty"`
	Flex  Flexibility `json:"flex,omitempty"`
}

// Interval returns the window between two explicit instants.
func Interval(start, end time.Time) TimeWindow {
	return TimeWindow{Start: start, End: end}
}

// Point returns a window around a single departure time.
func Point(at time.Time, flex Flexibility) TimeWindow {
	return TimeWindow{At: at, Flex: flex}
}

// ASAP treats "leave as soon as possible" as a window opening now.
func ASAP(now time.Time) TimeWindow {
	return TimeWindow{Start: now, End: now.Add(2 * time.Hour)}
}

// IsZero reports whether no time was specified at all.
func (w TimeWindow) IsZero() bool {
	return w.At.IsZero() && w.Start.IsZero() && w.End.IsZero()
}

// Resolve expands the window into its concrete [start, end) interval.
// A point with flexibility f becomes [at - f/2, at + f/2), so two
// same-class points overlap iff they are strictly less than f apart.
func (w TimeWindow) Resolve() (time.Time, time.Time) {
	if !w.At.IsZero() {
		half := w.Flex.Tolerance() / 2
		return w.At.Add(-half), w.At.Add(half)
	}
	return w.Start, w.End
}

// Center returns the representative departure instant, used for scoring
// how tightly two windows line up.
func (w TimeWindow) Center() time.Time {
	if !w.At.IsZero() {
		return w.At
	}
	return w.Start.Add(w.End.Sub(w.Start) / 2)
}

// Overlaps reports whether the two resolved intervals intersect.
// Intervals are half-open, so touching endpoints do not overlap.
// Commutative by construction.
func Overlaps(a, b TimeWindow) bool {
	as, ae := a.Resolve()
	bs, be := b.Resolve()
	return as.Before(be) && bs.Before(ae)
}

// ClockWindow is a recurring time-of-day window, minutes since midnight,
// half-open like TimeWindow. Used by routines, which repeat weekly.
type ClockWindow struct {
	StartMin int `json:"start_min"`
	EndMin   int `json:"end_min"`
}

// On anchors the clock window onto a concrete date in that date's location.
func (c ClockWindow) On(date time.Time) TimeWindow {
	y, m, d := date.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, date.Location())
	return TimeWindow{
		Start: midnight.Add(time.Duration(c.StartMin) * time.Minute),
		End:   midnight.Add(time.Duration(c.EndMin) * time.Minute),
	}
}
