package schedule

import (
	"testing"
	"time"
)

var base = time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC) // a Tuesday

func TestOverlapsCommutative(t *testing.T) {
	a := Point(base, FlexFlexible)
	b := Interval(base.Add(-time.Hour), base.Add(time.Hour))
	if Overlaps(a, b) != Overlaps(b, a) {
		t.Fatal("Overlaps is not commutative")
	}
}

func TestExactSameInstantOverlap(t *testing.T) {
	a := Point(base, FlexExact)
	b := Point(base, FlexExact)
	if !Overlaps(a, b) {
		t.Fatal("exact windows at the same instant must overlap")
	}
}

func TestFlexibleSeparation(t *testing.T) {
	a := Point(base, FlexFlexible)
	if Overlaps(a, Point(base.Add(31*time.Minute), FlexFlexible)) {
		t.Fatal("flexible windows 31 minutes apart must not overlap")
	}
	if !Overlaps(a, Point(base.Add(29*time.Minute), FlexFlexible)) {
		t.Fatal("flexible windows 29 minutes apart must overlap")
	}
}

func TestVeryFlexibleSeparation(t *testing.T) {
	a := Point(base, FlexVeryFlexible)
	if !Overlaps(a, Point(base.Add(119*time.Minute), FlexVeryFlexible)) {
		t.Fatal("very_flexible windows 119 minutes apart must overlap")
	}
	if Overlaps(a, Point(base.Add(121*time.Minute), FlexVeryFlexible)) {
		t.Fatal("very_flexible windows 121 minutes apart must not overlap")
	}
}

func TestHalfOpenBoundary(t *testing.T) {
	a := Interval(base, base.Add(time.Hour))
	b := Interval(base.Add(time.Hour), base.Add(2*time.Hour))
	if Overlaps(a, b) {
		t.Fatal("touching endpoints must not count as overlapping")
	}
}

func TestParseDaysRangeAndListAgree(t *testing.T) {
	r, err := ParseDays("sun-thu")
	if err != nil {
		t.Fatalf("parse range: %v", err)
	}
	l, err := ParseDays("sun,mon,tue,wed,thu")
	if err != nil {
		t.Fatalf("parse list: %v", err)
	}
	if r != l {
		t.Fatalf("range and list must normalize identically: %b vs %b", r, l)
	}
}

func TestWeekdayCoverage(t *testing.T) {
	s, err := ParseDays("Sun-Thu")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !s.Covers(base) { // Tuesday
		t.Fatal("Sun-Thu must cover a Tuesday")
	}
	friday := base.AddDate(0, 0, 3)
	if s.Covers(friday) {
		t.Fatal("Sun-Thu must not cover a Friday")
	}
}

func TestDayRangeWraps(t *testing.T) {
	s := DayRange(time.Friday, time.Monday)
	if !s.Has(time.Sunday) || !s.Has(time.Saturday) {
		t.Fatal("Fri-Mon must wrap through the weekend")
	}
	if s.Has(time.Wednesday) {
		t.Fatal("Fri-Mon must not include Wednesday")
	}
}

func TestClockWindowOnDate(t *testing.T) {
	c := ClockWindow{StartMin: 8 * 60, EndMin: 9 * 60}
	w := c.On(base)
	start, end := w.Resolve()
	if start.Hour() != 8 || end.Hour() != 9 {
		t.Fatalf("unexpected anchored window: %v - %v", start, end)
	}
	if !Overlaps(w, Point(base.Add(-90*time.Minute), FlexExact)) { // 08:30
		t.Fatal("08:30 exact must fall inside 08:00-09:00")
	}
}
