package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fbmeirelles/horamarcada/internal/booking"
	"github.com/fbmeirelles/horamarcada/internal/model"
	"github.com/fbmeirelles/horamarcada/libs/db"
)

// ScheduleRepository serves the read-mostly reference data: providers,
// employees, services, working hours and exclusions.
type ScheduleRepository struct {
	pool *db.Pool
}

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

func (r *ScheduleRepository) Provider(ctx context.Context, id string) (model.Provider, error) {
	var p model.Provider
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, payment_required, auto_confirm, active
		FROM providers WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.PaymentRequired, &p.AutoConfirm, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Provider{}, booking.ErrNotFound
		}
		return model.Provider{}, fmt.Errorf("load provider: %w", err)
	}
	return p, nil
}

func (r *ScheduleRepository) Employee(ctx context.Context, id string) (model.Employee, error) {
	var e model.Employee
	err := r.pool.QueryRow(ctx, `
		SELECT id, provider_id, name, active
		FROM employees WHERE id = $1
	`, id).Scan(&e.ID, &e.ProviderID, &e.Name, &e.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Employee{}, booking.ErrNotFound
		}
		return model.Employee{}, fmt.Errorf("load employee: %w", err)
	}
	return e, nil
}

func (r *ScheduleRepository) Service(ctx context.Context, id string) (model.Service, error) {
	var s model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id, provider_id, name, duration_minutes, price_cents, active
		FROM services WHERE id = $1
	`, id).Scan(&s.ID, &s.ProviderID, &s.Name, &s.DurationMinutes, &s.PriceCents, &s.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Service{}, booking.ErrNotFound
		}
		return model.Service{}, fmt.Errorf("load service: %w", err)
	}
	return s, nil
}

// WorkingHours loads an entity's weekly schedule. An entity with no schedule
// row simply works no days, which the resolver renders as a non-working day
// rather than an error.
func (r *ScheduleRepository) WorkingHours(ctx context.Context, entityID string) (model.WorkingHours, error) {
	var days []int16
	hours := model.WorkingHours{EntityID: entityID, Days: make(map[time.Weekday]bool)}
	err := r.pool.QueryRow(ctx, `
		SELECT working_days, start_hour, end_hour,
		       COALESCE(lunch_start, ''), COALESCE(lunch_end, '')
		FROM schedules WHERE entity_id = $1
	`, entityID).Scan(&days, &hours.StartHour, &hours.EndHour, &hours.LunchStart, &hours.LunchEnd)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return hours, nil
		}
		return model.WorkingHours{}, fmt.Errorf("load working hours: %w", err)
	}
	for _, d := range days {
		if d >= 0 && d <= 6 {
			hours.Days[time.Weekday(d)] = true
		}
	}
	return hours, nil
}

func (r *ScheduleRepository) Exclusions(ctx context.Context, entityID string) ([]model.TimeExclusion, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, entity_id, weekday, start_clock, end_clock, active, COALESCE(label, '')
		FROM time_exclusions
		WHERE entity_id = $1 AND active
		ORDER BY start_clock
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("load exclusions: %w", err)
	}
	defer rows.Close()

	var out []model.TimeExclusion
	for rows.Next() {
		var ex model.TimeExclusion
		var weekday *int16
		if err := rows.Scan(&ex.ID, &ex.EntityID, &weekday, &ex.StartClock, &ex.EndClock, &ex.Active, &ex.Label); err != nil {
			return nil, err
		}
		if weekday != nil {
			d := time.Weekday(*weekday)
			ex.Weekday = &d
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}
