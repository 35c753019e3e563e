package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fbmeirelles/horamarcada/internal/availability"
	"github.com/fbmeirelles/horamarcada/internal/booking"
	"github.com/fbmeirelles/horamarcada/internal/model"
	"github.com/fbmeirelles/horamarcada/internal/outbox"
	"github.com/fbmeirelles/horamarcada/libs/db"
)

// AppointmentRepository implements the booking store and the availability
// occupancy source on Postgres.
type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, ob *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: ob}
}

const appointmentColumns = `
	id, provider_id, COALESCE(employee_id::text, ''), client_id, service_id,
	start_time, end_time, status, reschedule_count,
	COALESCE(cancel_reason, ''), cancelled_at, created_at
`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var status string
	err := row.Scan(
		&appt.ID, &appt.ProviderID, &appt.EmployeeID, &appt.ClientID, &appt.ServiceID,
		&appt.StartTime, &appt.EndTime, &status, &appt.RescheduleCount,
		&appt.CancelReason, &appt.CancelledAt, &appt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, booking.ErrNotFound
		}
		return model.Appointment{}, err
	}
	appt.Status = model.AppointmentStatus(status)
	return appt, nil
}

// Create inserts the appointment, its optional payment intent, and the
// lifecycle events in one transaction. The exclusion constraint decides
// overlap races; a violation surfaces as ErrOverlap.
func (r *AppointmentRepository) Create(ctx context.Context, appt model.Appointment, intent *model.PaymentIntent, events []outbox.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments (
			id, provider_id, employee_id, client_id, service_id, entity_id,
			start_time, end_time, status, reschedule_count, created_at
		)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		appt.ID, appt.ProviderID, appt.EmployeeID, appt.ClientID, appt.ServiceID,
		appt.EntityID(), appt.StartTime, appt.EndTime, string(appt.Status),
		appt.RescheduleCount, appt.CreatedAt,
	)
	if err != nil {
		if isOverlapViolation(err) {
			return booking.ErrOverlap
		}
		return fmt.Errorf("insert appointment: %w", err)
	}

	if intent != nil {
		if err := insertIntent(ctx, tx, *intent); err != nil {
			return err
		}
	}
	if err := r.outbox.Insert(ctx, tx, events...); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

// Move relocates an appointment, bumping its reschedule count, guarded by
// the count the caller read. A lost race on the count returns ErrStale; a
// collision with another booking returns ErrOverlap.
func (r *AppointmentRepository) Move(ctx context.Context, id string, newStart, newEnd time.Time, expectedCount int, newStatus model.AppointmentStatus, events []outbox.Event) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET start_time = $2, end_time = $3, status = $4,
		    reschedule_count = reschedule_count + 1,
		    cancel_reason = NULL, cancelled_at = NULL
		WHERE id = $1 AND reschedule_count = $5
		RETURNING `+appointmentColumns,
		id, newStart, newEnd, string(newStatus), expectedCount,
	)
	appt, err := scanAppointment(row)
	if err != nil {
		if isOverlapViolation(err) {
			return model.Appointment{}, booking.ErrOverlap
		}
		if errors.Is(err, booking.ErrNotFound) {
			return model.Appointment{}, r.staleOrMissing(ctx, id)
		}
		return model.Appointment{}, fmt.Errorf("move appointment: %w", err)
	}

	if err := r.outbox.Insert(ctx, tx, events...); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// SetStatus applies a transition guarded by the status the caller read.
func (r *AppointmentRepository) SetStatus(ctx context.Context, id string, from, to model.AppointmentStatus, reason string, events []outbox.Event) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
		    cancel_reason = CASE WHEN $3 = 'cancelled' THEN NULLIF($4, '') ELSE cancel_reason END,
		    cancelled_at = CASE WHEN $3 = 'cancelled' THEN now() ELSE cancelled_at END
		WHERE id = $1 AND status = $2
		RETURNING `+appointmentColumns,
		id, string(from), string(to), reason,
	)
	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return model.Appointment{}, r.staleOrMissing(ctx, id)
		}
		return model.Appointment{}, fmt.Errorf("update appointment status: %w", err)
	}

	if err := r.outbox.Insert(ctx, tx, events...); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// staleOrMissing disambiguates a guarded update that matched no rows.
func (r *AppointmentRepository) staleOrMissing(ctx context.Context, id string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check appointment existence: %w", err)
	}
	if exists {
		return booking.ErrStale
	}
	return booking.ErrNotFound
}

func (r *AppointmentRepository) ListForEntity(ctx context.Context, entityID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE entity_id = $1 AND start_time >= $2 AND start_time < $3
		ORDER BY start_time
	`, entityID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

// BusyIntervals serves the availability resolver: every non-cancelled
// interval of the entity touching the given UTC day.
func (r *AppointmentRepository) BusyIntervals(ctx context.Context, entityID string, date time.Time) ([]availability.Interval, error) {
	dayStart := date.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)
	rows, err := r.pool.Query(ctx, `
		SELECT id, start_time, end_time
		FROM appointments
		WHERE entity_id = $1 AND status <> 'cancelled'
		  AND start_time < $3 AND end_time > $2
		ORDER BY start_time
	`, entityID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("load busy intervals: %w", err)
	}
	defer rows.Close()

	var out []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.AppointmentID, &iv.Start, &iv.End); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}
