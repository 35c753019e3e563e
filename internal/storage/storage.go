// Package storage is the Postgres persistence layer. The appointment table
// carries an exclusion constraint over (entity_id, [start_time, end_time))
// for non-cancelled rows, which is what actually serializes concurrent
// bookings across process instances; the repositories translate that
// constraint's violations into the domain's ErrOverlap.
package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// pgExclusionViolation is raised when an insert or update collides with the
// appointment overlap constraint.
const pgExclusionViolation = "23P01"

func isOverlapViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation
}
