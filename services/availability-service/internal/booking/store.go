package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/outbox"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/schedule"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/storage"
)

// Store is the reservation store. InTx runs fn in one transaction that commits when fn
// returns nil.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
	BookedRanges(ctx context.Context, businessID string, date schedule.Date) ([]schedule.TimeRange, error)
	ListAppointments(ctx context.Context, businessID string, from schedule.Date, limit int) ([]model.Appointment, error)
}

// Tx is the set of operations available inside a reservation transaction.
type Tx interface {
	ClaimIdempotencyKey(ctx context.Context, businessID, key string) (storage.IdempotencyRecord, bool, error)
	CompleteIdempotencyKey(ctx context.Context, businessID, key, appointmentID string, statusCode int, response []byte) error
	LockBusinessDay(ctx context.Context, businessID string, date schedule.Date) error
	BookedRanges(ctx context.Context, businessID string, date schedule.Date) ([]schedule.TimeRange, error)
	InsertAppointment(ctx context.Context, appt *model.Appointment) (string, time.Time, error)
	LockAppointment(ctx context.Context, businessID, appointmentID string) (model.Appointment, error)
	MarkCancelled(ctx context.Context, businessID, appointmentID, reason string) (time.Time, error)
	AppendEvent(ctx context.Context, evt outbox.Event) error
}

// Durations resolves a service's length from the catalog mirror.
type Durations interface {
	Duration(ctx context.Context, businessID, serviceID string) (int, bool, error)
}

// SettingsLoader is satisfied by *settings.Service.
type SettingsLoader interface {
	Load(ctx context.Context, businessID string) (schedule.Settings, error)
}
