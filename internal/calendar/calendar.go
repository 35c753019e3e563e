// Package calendar holds the small pure-time helpers shared by availability
// resolution and booking validation. Everything operates on UTC wall-clock
// instants so the same label always maps to the same instant on a given date.
package calendar

import (
	"fmt"
	"time"
)

// SlotGrid enumerates "HH:MM" labels from startHour (inclusive) to endHour
// (exclusive) at the given step. endHour may be 24 to run through midnight.
func SlotGrid(startHour, endHour int, step time.Duration) []string {
	stepMin := int(step / time.Minute)
	if stepMin <= 0 {
		return nil
	}
	var labels []string
	for m := startHour * 60; m < endHour*60; m += stepMin {
		labels = append(labels, fmt.Sprintf("%02d:%02d", m/60, m%60))
	}
	return labels
}

// Combine anchors an "HH:MM" label on the given date, UTC.
func Combine(date time.Time, clock string) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse clock %q: %w", clock, err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), nil
}

// MustCombine is Combine for labels already known to be well-formed, such as
// those produced by SlotGrid.
func MustCombine(date time.Time, clock string) time.Time {
	t, err := Combine(date, clock)
	if err != nil {
		panic(err)
	}
	return t
}

// SameDay reports whether two instants fall on the same UTC calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// Midnight truncates an instant to the start of its UTC day.
func Midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Overlaps reports whether two half-open intervals [aStart, aEnd) and
// [bStart, bEnd) share any instant. Touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
