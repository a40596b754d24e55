package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotwise/libs/db"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/schedule"
)

// BookingRepository persists appointments and booking idempotency keys. Methods that take a
// db.Querier run on whatever the caller passes, usually the reservation transaction.
type BookingRepository struct {
	pool *db.Pool
}

// IdempotencyRecord is the stored outcome of a booking request. AppointmentID is empty until
// the first request with the key completes.
type IdempotencyRecord struct {
	BusinessID      string
	IdempotencyKey  string
	AppointmentID   string
	StatusCode      int
	ResponsePayload []byte
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// LockBusinessDay serialises reservations for one business on one date until the
// transaction ends.
func (r *BookingRepository) LockBusinessDay(ctx context.Context, q db.Querier, businessID string, date schedule.Date) error {
	_, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, businessID+"/"+date.String())
	return err
}

// ClaimIdempotencyKey inserts the key if it is new and then row-locks it. seen reports whether
// the key existed before this call. A concurrent request with the same key blocks on the insert
// until the first one commits or rolls back.
func (r *BookingRepository) ClaimIdempotencyKey(ctx context.Context, q db.Querier, businessID, key string) (rec IdempotencyRecord, seen bool, err error) {
	tag, err := q.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (business_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (business_id, idempotency_key) DO NOTHING
	`, businessID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	var payload []byte
	err = q.QueryRow(ctx, `
		SELECT COALESCE(appointment_id::text, ''), COALESCE(status_code, 0), response_payload
		FROM booking_idempotency_keys
		WHERE business_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, businessID, key).Scan(&rec.AppointmentID, &rec.StatusCode, &payload)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	rec.BusinessID = businessID
	rec.IdempotencyKey = key
	rec.ResponsePayload = payload
	return rec, tag.RowsAffected() == 0, nil
}

// CompleteIdempotencyKey stores the response a replay of key should receive.
func (r *BookingRepository) CompleteIdempotencyKey(ctx context.Context, q db.Querier, businessID, key, appointmentID string, statusCode int, response []byte) error {
	_, err := q.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = $3, status_code = $4, response_payload = $5, updated_at = now()
		WHERE business_id = $1 AND idempotency_key = $2
	`, businessID, key, appointmentID, statusCode, response)
	return err
}

func (r *BookingRepository) InsertAppointment(ctx context.Context, q db.Querier, appt *model.Appointment) (id string, createdAt time.Time, err error) {
	err = q.QueryRow(ctx, `
		INSERT INTO appointments (
			business_id, service_id, customer_name, customer_email, customer_phone,
			appointment_date, start_minute, end_minute, status
		)
		VALUES ($1, $2, $3, $4, $5, $6::date, $7, $8, $9)
		RETURNING id::text, created_at
	`,
		appt.BusinessID, appt.ServiceID,
		appt.CustomerName, appt.CustomerEmail, appt.CustomerPhone,
		appt.Date.String(), int(appt.Start), int(appt.End), appt.Status,
	).Scan(&id, &createdAt)
	return id, createdAt, err
}

// LockAppointment loads one appointment of the business and row-locks it. It returns
// pgx.ErrNoRows when the id is unknown or belongs to another business.
func (r *BookingRepository) LockAppointment(ctx context.Context, q db.Querier, businessID, appointmentID string) (model.Appointment, error) {
	return scanAppointment(q.QueryRow(ctx, selectAppointments+`
		WHERE id = $1 AND business_id = $2
		FOR UPDATE
	`, appointmentID, businessID))
}

func (r *BookingRepository) MarkCancelled(ctx context.Context, q db.Querier, businessID, appointmentID, reason string) (time.Time, error) {
	var at time.Time
	err := q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3, cancelled_at = now(), cancellation_reason = NULLIF($4, '')
		WHERE id = $1 AND business_id = $2
		RETURNING cancelled_at
	`, appointmentID, businessID, model.StatusCancelled, reason).Scan(&at)
	return at, err
}

// BookedRanges returns the occupied ranges of live bookings on date, earliest first. A nil q
// reads from the pool; pass the transaction holding LockBusinessDay for a stable view.
func (r *BookingRepository) BookedRanges(ctx context.Context, q db.Querier, businessID string, date schedule.Date) ([]schedule.TimeRange, error) {
	if q == nil {
		q = r.pool
	}
	rows, err := q.Query(ctx, `
		SELECT start_minute, end_minute
		FROM appointments
		WHERE business_id = $1 AND appointment_date = $2::date AND status = $3
		ORDER BY start_minute
	`, businessID, date.String(), model.StatusBooked)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (schedule.TimeRange, error) {
		var start, end int
		err := row.Scan(&start, &end)
		return schedule.TimeRange{Start: schedule.Clock(start), End: schedule.Clock(end)}, err
	})
}

// ListAppointments pages through a business's appointments in calendar order, starting at
// from when it is set.
func (r *BookingRepository) ListAppointments(ctx context.Context, businessID string, from schedule.Date, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	var fromArg *string
	if !from.IsZero() {
		s := from.String()
		fromArg = &s
	}
	rows, err := r.pool.Query(ctx, selectAppointments+`
		WHERE business_id = $1 AND ($2::date IS NULL OR appointment_date >= $2::date)
		ORDER BY appointment_date, start_minute, created_at
		LIMIT $3
	`, businessID, fromArg, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Appointment, error) {
		return scanAppointment(row)
	})
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

const selectAppointments = `
	SELECT id::text, business_id, service_id, customer_name, customer_email, customer_phone,
		appointment_date, start_minute, end_minute, status, cancelled_at,
		COALESCE(cancellation_reason, ''), created_at
	FROM appointments
`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		a          model.Appointment
		day        time.Time
		start, end int
	)
	err := row.Scan(
		&a.ID, &a.BusinessID, &a.ServiceID,
		&a.CustomerName, &a.CustomerEmail, &a.CustomerPhone,
		&day, &start, &end, &a.Status, &a.CancelledAt, &a.CancelReason, &a.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Date = schedule.DateOf(day)
	a.Start = schedule.Clock(start)
	a.End = schedule.Clock(end)
	return a, nil
}
