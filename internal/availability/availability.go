// Package availability folds an entity's working hours, lunch break,
// recurring exclusions and existing bookings into the per-day slot grid
// shown to clients. The resolver is pure: it reads through two narrow
// source interfaces and never writes anything.
package availability

import (
	"context"
	"time"

	"github.com/fbmeirelles/horamarcada/internal/model"
)

// GridStep is the fixed slot granularity. Services longer than one step
// occupy several consecutive slots when booked, but the grid itself always
// advances in steps of this size.
const GridStep = 30 * time.Minute

// BlockReason classifies why a slot is unavailable.
type BlockReason string

const (
	ReasonLunchBreak    BlockReason = "lunch_break"
	ReasonTimeExclusion BlockReason = "time_exclusion"
	ReasonBooked        BlockReason = "booked"
)

// Interval is a half-open [Start, End) busy window on an entity's calendar.
type Interval struct {
	Start         time.Time
	End           time.Time
	AppointmentID string
}

// Slot is one grid position on a resolved day.
type Slot struct {
	Label     string
	Start     time.Time
	Available bool
	Reason    BlockReason // set only when !Available
	Warning   string      // advisory note on an otherwise bookable slot
}

// Day is the resolved picture of one entity-date pair.
type Day struct {
	Date    time.Time
	Working bool
	Slots   []Slot
}

// SlotAt returns the slot with the given start instant, if the grid has one.
func (d Day) SlotAt(start time.Time) (Slot, bool) {
	for _, s := range d.Slots {
		if s.Start.Equal(start) {
			return s, true
		}
	}
	return Slot{}, false
}

// ScheduleSource provides the recurring configuration of an entity. It is
// satisfied by the local store and by the remote schedule client alike.
type ScheduleSource interface {
	WorkingHours(ctx context.Context, entityID string) (model.WorkingHours, error)
	Exclusions(ctx context.Context, entityID string) ([]model.TimeExclusion, error)
}

// OccupancySource provides the committed bookings of an entity on a date.
// Cancelled appointments must not be reported.
type OccupancySource interface {
	BusyIntervals(ctx context.Context, entityID string, date time.Time) ([]Interval, error)
}

// Options tune a single resolution.
type Options struct {
	// ServiceDuration is the full length the caller intends to book. Zero
	// means one grid step.
	ServiceDuration time.Duration
	// ExcludeAppointmentID drops one appointment's own interval from the
	// occupancy, so a reschedule does not collide with itself.
	ExcludeAppointmentID string
	// AdvisoryLunch renders lunch slots as bookable with a warning instead
	// of blocking them outright.
	AdvisoryLunch bool
}
