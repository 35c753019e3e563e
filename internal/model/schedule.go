package model

import (
	"fmt"
	"time"
)

// WorkingHours describes a schedulable entity's recurring weekly availability.
// Hours are whole hours of the day; EndHour may be 24 (midnight).
type WorkingHours struct {
	EntityID   string
	Days       map[time.Weekday]bool
	StartHour  int
	EndHour    int
	LunchStart string // "HH:MM", empty when the entity takes no lunch break
	LunchEnd   string
}

func (w WorkingHours) WorksOn(d time.Weekday) bool {
	return w.Days[d]
}

func (w WorkingHours) HasLunch() bool {
	return w.LunchStart != "" && w.LunchEnd != ""
}

// TimeExclusion blocks a recurring window of the day, either on one weekday or
// every day (nil Weekday). It exists independently of any appointment.
type TimeExclusion struct {
	ID         string
	EntityID   string
	Weekday    *time.Weekday // nil = applies every day
	StartClock string        // "HH:MM"
	EndClock   string
	Active     bool
	Label      string
}

func (e TimeExclusion) Validate() error {
	if e.StartClock >= e.EndClock {
		return fmt.Errorf("exclusion start %q must be before end %q", e.StartClock, e.EndClock)
	}
	return nil
}

// AppliesOn reports whether the exclusion is in effect on the given weekday.
func (e TimeExclusion) AppliesOn(d time.Weekday) bool {
	if !e.Active {
		return false
	}
	return e.Weekday == nil || *e.Weekday == d
}

// Service is a bookable offering. Duration and price are frozen into the
// appointment at booking time.
type Service struct {
	ID              string
	ProviderID      string
	Name            string
	DurationMinutes int
	PriceCents      int64
	Active          bool
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}
