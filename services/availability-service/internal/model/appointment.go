package model

import (
	"time"

	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/schedule"
)

const (
	StatusBooked    = "booked"
	StatusCancelled = "cancelled"
)

// Appointment is a confirmed reservation. Times are wall-clock minutes on Date.
type Appointment struct {
	ID            string
	BusinessID    string
	ServiceID     string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Date          schedule.Date
	Start         schedule.Clock
	End           schedule.Clock
	Status        string
	CancelledAt   *time.Time
	CancelReason  string
	CreatedAt     time.Time
}

func (a Appointment) Range() schedule.TimeRange {
	return schedule.TimeRange{Start: a.Start, End: a.End}
}
