package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fbmeirelles/horamarcada/internal/booking"
	"github.com/fbmeirelles/horamarcada/internal/model"
	"github.com/fbmeirelles/horamarcada/internal/outbox"
	"github.com/fbmeirelles/horamarcada/internal/payment"
	"github.com/fbmeirelles/horamarcada/libs/db"
)

// PaymentRepository implements the payment store on Postgres.
type PaymentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewPaymentRepository(pool *db.Pool, ob *outbox.Repository) *PaymentRepository {
	return &PaymentRepository{pool: pool, outbox: ob}
}

const intentColumns = `
	id, appointment_id, reference, code, amount_cents, status,
	created_at, expires_at, resolved_at
`

func insertIntent(ctx context.Context, tx pgx.Tx, intent model.PaymentIntent) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO payment_intents (
			id, appointment_id, reference, code, amount_cents, status, created_at, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		intent.ID, intent.AppointmentID, intent.Reference, intent.Code,
		intent.AmountCents, string(intent.Status), intent.CreatedAt, intent.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment intent: %w", err)
	}
	return nil
}

func scanIntent(row pgx.Row) (model.PaymentIntent, error) {
	var intent model.PaymentIntent
	var status string
	err := row.Scan(
		&intent.ID, &intent.AppointmentID, &intent.Reference, &intent.Code,
		&intent.AmountCents, &status, &intent.CreatedAt, &intent.ExpiresAt, &intent.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PaymentIntent{}, booking.ErrNotFound
		}
		return model.PaymentIntent{}, err
	}
	intent.Status = model.PaymentStatus(status)
	return intent, nil
}

func (r *PaymentRepository) Intent(ctx context.Context, id string) (model.PaymentIntent, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+intentColumns+` FROM payment_intents WHERE id = $1`, id)
	return scanIntent(row)
}

func (r *PaymentRepository) LatestForAppointment(ctx context.Context, appointmentID string) (model.PaymentIntent, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+intentColumns+`
		FROM payment_intents
		WHERE appointment_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, appointmentID)
	return scanIntent(row)
}

func (r *PaymentRepository) PendingIntents(ctx context.Context) ([]model.PaymentIntent, error) {
	return r.listIntents(ctx, `
		SELECT `+intentColumns+` FROM payment_intents WHERE status = 'pending' ORDER BY created_at
	`)
}

func (r *PaymentRepository) OverdueIntents(ctx context.Context, asOf time.Time) ([]model.PaymentIntent, error) {
	return r.listIntents(ctx, `
		SELECT `+intentColumns+`
		FROM payment_intents
		WHERE status = 'pending' AND expires_at < $1
		ORDER BY created_at
	`, asOf)
}

func (r *PaymentRepository) listIntents(ctx context.Context, query string, args ...any) ([]model.PaymentIntent, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payment intents: %w", err)
	}
	defer rows.Close()

	var out []model.PaymentIntent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, intent)
	}
	return out, rows.Err()
}

// AddIntent attaches a fresh intent to an appointment still awaiting payment.
// The appointment row is locked so a concurrent confirmation or cancellation
// cannot slip between the check and the insert.
func (r *PaymentRepository) AddIntent(ctx context.Context, intent model.PaymentIntent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx, `
		SELECT status FROM appointments WHERE id = $1 FOR UPDATE
	`, intent.AppointmentID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return booking.ErrNotFound
		}
		return fmt.Errorf("lock appointment: %w", err)
	}
	if model.AppointmentStatus(status) != model.StatusPending {
		return booking.ErrStale
	}

	if err := insertIntent(ctx, tx, intent); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Resolve moves an intent out of pending and applies the appointment side
// effect in the same transaction. The row lock plus the pending check make
// concurrent countdown firings and poll observations collapse to exactly one
// applied resolution.
func (r *PaymentRepository) Resolve(ctx context.Context, intentID string, to model.PaymentStatus, res *payment.AppointmentResolution) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT `+intentColumns+` FROM payment_intents WHERE id = $1 FOR UPDATE
	`, intentID)
	intent, err := scanIntent(row)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return false, booking.ErrNotFound
		}
		return false, fmt.Errorf("lock payment intent: %w", err)
	}
	if intent.Status != model.PaymentPending {
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE payment_intents SET status = $2, resolved_at = now() WHERE id = $1
	`, intentID, string(to))
	if err != nil {
		return false, fmt.Errorf("update payment intent: %w", err)
	}

	if res != nil {
		if err := r.applyAppointmentResolution(ctx, tx, intent.AppointmentID, *res); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *PaymentRepository) applyAppointmentResolution(ctx context.Context, tx pgx.Tx, appointmentID string, res payment.AppointmentResolution) error {
	row := tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE
	`, appointmentID)
	appt, err := scanAppointment(row)
	if err != nil {
		return fmt.Errorf("lock appointment: %w", err)
	}
	// An appointment that already left its expected state is left alone;
	// the intent resolution itself still stands.
	if !model.ValidTransition(appt.Status, res.Status) {
		return nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
		    cancel_reason = CASE WHEN $2 = 'cancelled' THEN NULLIF($3, '') ELSE cancel_reason END,
		    cancelled_at = CASE WHEN $2 = 'cancelled' THEN now() ELSE cancelled_at END
		WHERE id = $1
	`, appointmentID, string(res.Status), res.CancelReason)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}

	appt.Status = res.Status
	appt.CancelReason = res.CancelReason
	ev, err := booking.NewAppointmentEvent(appt, res.EventTopic)
	if err != nil {
		return err
	}
	return r.outbox.Insert(ctx, tx, ev)
}
