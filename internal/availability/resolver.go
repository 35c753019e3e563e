package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/fbmeirelles/horamarcada/internal/calendar"
	"github.com/fbmeirelles/horamarcada/internal/model"
)

// Resolver computes the slot grid for an entity-date pair.
type Resolver struct {
	schedule  ScheduleSource
	occupancy OccupancySource
	now       func() time.Time
}

func NewResolver(schedule ScheduleSource, occupancy OccupancySource) *Resolver {
	return &Resolver{schedule: schedule, occupancy: occupancy, now: time.Now}
}

// Resolve builds the availability picture for one entity on one date.
//
// Blocks are layered in a fixed precedence: a slot outside working hours is
// simply absent from the grid, then lunch, then exclusions, then bookings.
// A slot's reason reflects the first layer that claimed it. For today, slots
// whose start has already passed are dropped from the grid entirely.
func (r *Resolver) Resolve(ctx context.Context, entityID string, date time.Time, opts Options) (Day, error) {
	day := Day{Date: calendar.Midnight(date)}

	hours, err := r.schedule.WorkingHours(ctx, entityID)
	if err != nil {
		return Day{}, fmt.Errorf("load working hours: %w", err)
	}
	if !hours.WorksOn(day.Date.Weekday()) {
		return day, nil
	}
	day.Working = true

	exclusions, err := r.schedule.Exclusions(ctx, entityID)
	if err != nil {
		return Day{}, fmt.Errorf("load exclusions: %w", err)
	}
	busy, err := r.occupancy.BusyIntervals(ctx, entityID, day.Date)
	if err != nil {
		return Day{}, fmt.Errorf("load busy intervals: %w", err)
	}
	if opts.ExcludeAppointmentID != "" {
		kept := busy[:0]
		for _, iv := range busy {
			if iv.AppointmentID != opts.ExcludeAppointmentID {
				kept = append(kept, iv)
			}
		}
		busy = kept
	}

	dur := opts.ServiceDuration
	if dur <= 0 {
		dur = GridStep
	}

	now := r.now().UTC()
	today := calendar.SameDay(now, day.Date)

	for _, label := range calendar.SlotGrid(hours.StartHour, hours.EndHour, GridStep) {
		start := calendar.MustCombine(day.Date, label)
		if today && !start.After(now) {
			continue
		}
		end := start.Add(dur)
		slot := Slot{Label: label, Start: start, Available: true}

		if reason, warning := r.classify(hours, exclusions, busy, day.Date, start, end, opts); reason != "" {
			slot.Available = false
			slot.Reason = reason
		} else if warning != "" {
			slot.Warning = warning
		}
		day.Slots = append(day.Slots, slot)
	}
	return day, nil
}

// classify returns the blocking reason for a candidate interval, or an
// advisory warning when the only objection is an advisory lunch overlap.
func (r *Resolver) classify(hours model.WorkingHours, exclusions []model.TimeExclusion, busy []Interval, date, start, end time.Time, opts Options) (BlockReason, string) {
	if hours.HasLunch() {
		ls := calendar.MustCombine(date, hours.LunchStart)
		le := calendar.MustCombine(date, hours.LunchEnd)
		if calendar.Overlaps(start, end, ls, le) {
			if opts.AdvisoryLunch {
				return "", "overlaps lunch break"
			}
			return ReasonLunchBreak, ""
		}
	}
	for _, ex := range exclusions {
		if !ex.AppliesOn(date.Weekday()) {
			continue
		}
		es := calendar.MustCombine(date, ex.StartClock)
		ee := calendar.MustCombine(date, ex.EndClock)
		if calendar.Overlaps(start, end, es, ee) {
			return ReasonTimeExclusion, ""
		}
	}
	for _, iv := range busy {
		if calendar.Overlaps(start, end, iv.Start, iv.End) {
			return ReasonBooked, ""
		}
	}
	return "", ""
}
