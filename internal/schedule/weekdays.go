package schedule

import (
	"fmt"
	"strings"
	"time"
)

// WeekdaySet is a bitmask over time.Weekday (Sunday = bit 0).
type WeekdaySet uint8

// Days builds a set from an explicit list.
func Days(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s |= 1 << uint(d)
	}
	return s
}

// DayRange builds a contiguous range, inclusive on both ends. Ranges may
// wrap around the week end, e.g. Fri–Mon.
func DayRange(from, to time.Weekday) WeekdaySet {
	var s WeekdaySet
	d := from
	for {
		s |= 1 << uint(d)
		if d == to {
			return s
		}
		d = (d + 1) % 7
	}
}

var dayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseDays accepts either a comma-separated list ("sun,tue,thu") or a
// contiguous range ("sun-thu"); both normalize to the same bitmask.
func ParseDays(spec string) (WeekdaySet, error) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	if spec == "" {
		return 0, fmt.Errorf("empty weekday spec")
	}
	if i := strings.IndexAny(spec, "-–"); i >= 0 {
		from, ok := dayNames[strings.TrimSpace(spec[:i])]
		if !ok {
			return 0, fmt.Errorf("unknown weekday %q", spec[:i])
		}
		rest := strings.TrimLeft(spec[i:], "-–")
		to, ok := dayNames[strings.TrimSpace(rest)]
		if !ok {
			return 0, fmt.Errorf("unknown weekday %q", rest)
		}
		return DayRange(from, to), nil
	}
	var s WeekdaySet
	for _, part := range strings.Split(spec, ",") {
		d, ok := dayNames[strings.TrimSpace(part)]
		if !ok {
			return 0, fmt.Errorf("unknown weekday %q", part)
		}
		s |= 1 << uint(d)
	}
	return s, nil
}

// Has reports whether the set contains the given weekday.
func (s WeekdaySet) Has(d time.Weekday) bool {
	return s&(1<<uint(d)) != 0
}

// Covers reports whether the set contains the weekday of the given date.
func (s WeekdaySet) Covers(date time.Time) bool {
	return s.Has(date.Weekday())
}

// IsEmpty reports whether no weekday is set.
func (s WeekdaySet) IsEmpty() bool { return s == 0 }
