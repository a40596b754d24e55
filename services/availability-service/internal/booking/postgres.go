package booking

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/outbox"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/schedule"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/storage"
)

type pgStore struct {
	repo   *storage.BookingRepository
	outbox *outbox.Repository
}

// NewPostgresStore backs Store with the Postgres booking and outbox repositories.
func NewPostgresStore(repo *storage.BookingRepository, outboxRepo *outbox.Repository) Store {
	return &pgStore{repo: repo, outbox: outboxRepo}
}

func (s *pgStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx, repo: s.repo, outbox: s.outbox}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *pgStore) BookedRanges(ctx context.Context, businessID string, date schedule.Date) ([]schedule.TimeRange, error) {
	return s.repo.BookedRanges(ctx, nil, businessID, date)
}

func (s *pgStore) ListAppointments(ctx context.Context, businessID string, from schedule.Date, limit int) ([]model.Appointment, error) {
	return s.repo.ListAppointments(ctx, businessID, from, limit)
}

type pgTx struct {
	tx     pgx.Tx
	repo   *storage.BookingRepository
	outbox *outbox.Repository
}

func (t *pgTx) ClaimIdempotencyKey(ctx context.Context, businessID, key string) (storage.IdempotencyRecord, bool, error) {
	return t.repo.ClaimIdempotencyKey(ctx, t.tx, businessID, key)
}

func (t *pgTx) CompleteIdempotencyKey(ctx context.Context, businessID, key, appointmentID string, statusCode int, response []byte) error {
	return t.repo.CompleteIdempotencyKey(ctx, t.tx, businessID, key, appointmentID, statusCode, response)
}

func (t *pgTx) LockBusinessDay(ctx context.Context, businessID string, date schedule.Date) error {
	return t.repo.LockBusinessDay(ctx, t.tx, businessID, date)
}

func (t *pgTx) BookedRanges(ctx context.Context, businessID string, date schedule.Date) ([]schedule.TimeRange, error) {
	return t.repo.BookedRanges(ctx, t.tx, businessID, date)
}

func (t *pgTx) InsertAppointment(ctx context.Context, appt *model.Appointment) (string, time.Time, error) {
	return t.repo.InsertAppointment(ctx, t.tx, appt)
}

func (t *pgTx) LockAppointment(ctx context.Context, businessID, appointmentID string) (model.Appointment, error) {
	appt, err := t.repo.LockAppointment(ctx, t.tx, businessID, appointmentID)
	if storage.IsNotFound(err) {
		return model.Appointment{}, ErrAppointmentNotFound
	}
	return appt, err
}

func (t *pgTx) MarkCancelled(ctx context.Context, businessID, appointmentID, reason string) (time.Time, error) {
	return t.repo.MarkCancelled(ctx, t.tx, businessID, appointmentID, reason)
}

func (t *pgTx) AppendEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}
