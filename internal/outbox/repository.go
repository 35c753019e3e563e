package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/fbmeirelles/horamarcada/libs/db"
	"github.com/fbmeirelles/horamarcada/libs/otelx"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stages events inside the caller's transaction. The current trace
// context is persisted with each row so the publisher can continue the trace
// after the transaction commits.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, events ...Event) error {
	traceparent, _ := otelx.TraceContextStrings(ctx)
	for _, ev := range events {
		_, err := tx.Exec(ctx, `
			INSERT INTO outbox_events (id, topic, key, payload, traceparent)
			VALUES ($1, $2, $3, $4, $5)
		`, ev.ID, ev.Topic, ev.Key, ev.Payload, traceparent)
		if err != nil {
			return fmt.Errorf("insert outbox event %s: %w", ev.Topic, err)
		}
	}
	return nil
}

// FetchBatch claims up to limit unpublished events. SKIP LOCKED lets several
// publisher instances drain the table without stepping on each other; rows
// stay locked until the surrounding transaction ends.
func (r *Repository) FetchBatch(ctx context.Context, tx pgx.Tx, limit int) ([]Event, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, topic, key, payload, COALESCE(traceparent, ''), created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox batch: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Topic, &ev.Key, &ev.Payload, &ev.Traceparent, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events SET published_at = now() WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}
