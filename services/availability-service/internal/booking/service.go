package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotwise/libs/metrics"
	otelx "github.com/md-rashed-zaman/slotwise/libs/otel"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/outbox"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/schedule"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrSlotUnavailable      = errors.New("requested time is not available")
	ErrOutsideBookingWindow = errors.New("requested time is outside the booking window")
	ErrUnknownService       = errors.New("unknown service")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrNotCancellable       = errors.New("appointment cannot be cancelled")
)

// SlotStatus explains an empty slot list as well as a full one.
type SlotStatus string

const (
	SlotsOpen          SlotStatus = "open"
	SlotsFullyBooked   SlotStatus = "fully_booked"
	SlotsClosed        SlotStatus = "closed"
	SlotsBlocked       SlotStatus = "blocked"
	SlotsOutsideWindow SlotStatus = "outside_window"
)

type SlotResult struct {
	Date            schedule.Date
	DurationMinutes int
	Status          SlotStatus
	Slots           []schedule.Clock
}

// SlotQuery names the duration directly or through a catalog service.
type SlotQuery struct {
	BusinessID      string
	Date            schedule.Date
	DurationMinutes int
	ServiceID       string
}

type CustomerInfo struct {
	Name  string
	Email string
	Phone string
}

type CreateBookingInput struct {
	BusinessID     string
	ServiceID      string
	Date           string
	Time           string
	Customer       CustomerInfo
	IdempotencyKey string
}

// Booking is the result of a successful CreateBooking. Replayed is set when an earlier
// request with the same idempotency key produced it.
type Booking struct {
	AppointmentID string `json:"appointment_id"`
	BusinessID    string `json:"business_id"`
	ServiceID     string `json:"service_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	Replayed      bool   `json:"-"`
}

type Service struct {
	store     Store
	settings  SettingsLoader
	durations Durations
	logger    *slog.Logger
	metrics   *metrics.Collector
	now       func() time.Time
	loc       *time.Location
	tracer    trace.Tracer
}

type Option func(*Service)

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the wall clock used to judge minimum notice and the booking horizon.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewService(store Store, settingsLoader SettingsLoader, durations Durations, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:     store,
		settings:  settingsLoader,
		durations: durations,
		logger:    logger,
		now:       time.Now,
		loc:       time.UTC,
		tracer:    otelx.Tracer("availability"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveDuration returns durationMinutes when positive, otherwise the catalog duration of
// serviceID.
func (s *Service) ResolveDuration(ctx context.Context, businessID, serviceID string, durationMinutes int) (int, error) {
	if durationMinutes > 0 {
		return durationMinutes, nil
	}
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return 0, &schedule.ValidationError{Fields: []string{"duration_minutes or service_id is required"}}
	}
	if s.durations == nil {
		return 0, ErrUnknownService
	}
	mins, ok, err := s.durations.Duration(ctx, businessID, serviceID)
	if err != nil {
		return 0, fmt.Errorf("lookup service duration: %w", err)
	}
	if !ok || mins <= 0 {
		return 0, ErrUnknownService
	}
	return mins, nil
}

type window struct {
	earliest time.Time
	today    schedule.Date
	last     schedule.Date
}

func (s *Service) windowFor(st schedule.Settings) window {
	now := s.now().In(s.loc)
	today := schedule.DateOf(now)
	notice := min(max(st.MinAdvanceHours, 0), schedule.MaxMinAdvanceHours)
	return window{
		earliest: now.Add(time.Duration(notice) * time.Hour),
		today:    today,
		last:     today.AddDays(min(st.AdvanceBookingDays, schedule.MaxAdvanceBookingDays)),
	}
}

func (w window) dateOK(d schedule.Date) bool {
	return !d.Before(w.today) && !d.After(w.last)
}

func (w window) startOK(d schedule.Date, c schedule.Clock, loc *time.Location) bool {
	return !d.At(c, loc).Before(w.earliest)
}

// GetAvailableTimeSlots lists bookable start times for a day, honouring existing bookings and
// the booking window. An error means settings or bookings could not be read; an empty result
// always carries a status saying why.
func (s *Service) GetAvailableTimeSlots(ctx context.Context, q SlotQuery) (SlotResult, error) {
	ctx, span := s.tracer.Start(ctx, "availability.slots", trace.WithAttributes(
		attribute.String("business_id", q.BusinessID),
		attribute.String("date", q.Date.String()),
	))
	defer span.End()

	duration, err := s.ResolveDuration(ctx, q.BusinessID, q.ServiceID, q.DurationMinutes)
	if err != nil {
		return SlotResult{}, err
	}
	st, err := s.settings.Load(ctx, q.BusinessID)
	if err != nil {
		span.RecordError(err)
		return SlotResult{}, err
	}
	res, err := s.slots(ctx, st, q.Date, duration)
	if err != nil {
		span.RecordError(err)
		return SlotResult{}, err
	}
	span.SetAttributes(attribute.String("status", string(res.Status)), attribute.Int("slots", len(res.Slots)))
	if s.metrics != nil {
		s.metrics.SlotQueriesTotal.WithLabelValues(string(res.Status)).Inc()
		s.metrics.SlotsReturned.Observe(float64(len(res.Slots)))
	}
	return res, nil
}

func (s *Service) slots(ctx context.Context, st schedule.Settings, date schedule.Date, duration int) (SlotResult, error) {
	res := SlotResult{Date: date, DurationMinutes: duration, Slots: []schedule.Clock{}}
	w := s.windowFor(st)
	if !w.dateOK(date) {
		res.Status = SlotsOutsideWindow
		return res, nil
	}

	switch availability.ResolveDaySchedule(st, date).Status {
	case availability.DayBlocked:
		res.Status = SlotsBlocked
		return res, nil
	case availability.DayClosed:
		res.Status = SlotsClosed
		return res, nil
	}

	booked, err := s.store.BookedRanges(ctx, st.BusinessID, date)
	if err != nil {
		return SlotResult{}, fmt.Errorf("list bookings: %w", err)
	}

	free := s.filterNotice(w, date, availability.Slots(st, date, duration, booked))
	if len(free) > 0 {
		res.Status = SlotsOpen
		res.Slots = free
		return res, nil
	}

	all := availability.Slots(st, date, duration, nil)
	switch {
	case len(all) == 0:
		res.Status = SlotsClosed
	case len(s.filterNotice(w, date, all)) == 0:
		res.Status = SlotsOutsideWindow
	default:
		res.Status = SlotsFullyBooked
	}
	return res, nil
}

func (s *Service) filterNotice(w window, date schedule.Date, slots []schedule.Clock) []schedule.Clock {
	out := make([]schedule.Clock, 0, len(slots))
	for _, c := range slots {
		if w.startOK(date, c, s.loc) {
			out = append(out, c)
		}
	}
	return out
}

// CheckAvailability reports whether at would be offered by GetAvailableTimeSlots.
func (s *Service) CheckAvailability(ctx context.Context, q SlotQuery, at schedule.Clock) (bool, SlotStatus, error) {
	res, err := s.GetAvailableTimeSlots(ctx, q)
	if err != nil {
		return false, "", err
	}
	for _, c := range res.Slots {
		if c == at {
			return true, res.Status, nil
		}
	}
	return false, res.Status, nil
}

func (in CreateBookingInput) validate() (schedule.Date, schedule.Clock, error) {
	var fields []string
	if strings.TrimSpace(in.BusinessID) == "" {
		fields = append(fields, "business_id is required")
	}
	if strings.TrimSpace(in.ServiceID) == "" {
		fields = append(fields, "service_id is required")
	}
	if strings.TrimSpace(in.Customer.Name) == "" {
		fields = append(fields, "customer.name is required")
	}
	date, err := schedule.ParseDate(strings.TrimSpace(in.Date))
	if err != nil {
		fields = append(fields, "date: "+err.Error())
	}
	at, err := schedule.ParseClock(strings.TrimSpace(in.Time))
	if err != nil {
		fields = append(fields, "time: "+err.Error())
	} else if at >= schedule.EndOfDay {
		fields = append(fields, "time: must be before 24:00")
	}
	if len(fields) > 0 {
		return schedule.Date{}, 0, &schedule.ValidationError{Fields: fields}
	}
	return date, at, nil
}

// CreateBooking re-validates the slot against current bookings while holding the
// business/day lock, so two requests can never both take the same time.
func (s *Service) CreateBooking(ctx context.Context, in CreateBookingInput) (Booking, error) {
	b, err := s.createBooking(ctx, in)
	if s.metrics != nil {
		s.metrics.BookingsTotal.WithLabelValues(bookingOutcome(b, err)).Inc()
	}
	return b, err
}

func (s *Service) createBooking(ctx context.Context, in CreateBookingInput) (Booking, error) {
	date, at, err := in.validate()
	if err != nil {
		return Booking{}, err
	}
	businessID := strings.TrimSpace(in.BusinessID)
	serviceID := strings.TrimSpace(in.ServiceID)

	ctx, span := s.tracer.Start(ctx, "availability.book", trace.WithAttributes(
		attribute.String("business_id", businessID),
		attribute.String("date", date.String()),
		attribute.String("time", at.String()),
	))
	defer span.End()

	duration, err := s.ResolveDuration(ctx, businessID, serviceID, 0)
	if err != nil {
		return Booking{}, err
	}
	st, err := s.settings.Load(ctx, businessID)
	if err != nil {
		return Booking{}, err
	}
	appt := &model.Appointment{
		BusinessID:    businessID,
		ServiceID:     serviceID,
		CustomerName:  strings.TrimSpace(in.Customer.Name),
		CustomerEmail: strings.TrimSpace(in.Customer.Email),
		CustomerPhone: strings.TrimSpace(in.Customer.Phone),
		Date:          date,
		Start:         at,
		End:           at.Add(duration),
		Status:        model.StatusBooked,
	}
	key := strings.TrimSpace(in.IdempotencyKey)

	var out Booking
	err = s.store.InTx(ctx, func(tx Tx) error {
		if key != "" {
			rec, exists, err := tx.ClaimIdempotencyKey(ctx, businessID, key)
			if err != nil {
				return fmt.Errorf("claim idempotency key: %w", err)
			}
			if exists && rec.AppointmentID != "" && len(rec.ResponsePayload) > 0 {
				if err := json.Unmarshal(rec.ResponsePayload, &out); err != nil {
					return fmt.Errorf("decode stored response: %w", err)
				}
				out.Replayed = true
				return nil
			}
		}

		// A stored result replays even after the start has moved inside the notice period.
		w := s.windowFor(st)
		if !w.dateOK(date) || !w.startOK(date, at, s.loc) {
			return ErrOutsideBookingWindow
		}

		if err := tx.LockBusinessDay(ctx, businessID, date); err != nil {
			return fmt.Errorf("lock business day: %w", err)
		}
		booked, err := tx.BookedRanges(ctx, businessID, date)
		if err != nil {
			return fmt.Errorf("list bookings: %w", err)
		}
		if !availability.IsSlotBookable(st, date, at, duration, booked) {
			return ErrSlotUnavailable
		}

		id, createdAt, err := tx.InsertAppointment(ctx, appt)
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		appt.ID = id
		out = bookingFrom(*appt)

		evt, err := outbox.NewEvent(outbox.AggregateAppointment, id, outbox.EventAppointmentBooked, outbox.AppointmentBooked{
			AppointmentID: id,
			BusinessID:    businessID,
			ServiceID:     serviceID,
			Date:          date.String(),
			StartTime:     appt.Start.String(),
			EndTime:       appt.End.String(),
			CustomerName:  appt.CustomerName,
			CustomerEmail: appt.CustomerEmail,
			CustomerPhone: appt.CustomerPhone,
			BookedAt:      createdAt,
		})
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, evt); err != nil {
			return fmt.Errorf("write outbox event: %w", err)
		}

		if key != "" {
			body, err := json.Marshal(out)
			if err != nil {
				return err
			}
			if err := tx.CompleteIdempotencyKey(ctx, businessID, key, id, http.StatusCreated, body); err != nil {
				return fmt.Errorf("complete idempotency key: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return Booking{}, err
	}

	if !out.Replayed {
		s.logger.Info("appointment booked",
			"appointment_id", out.AppointmentID,
			"business_id", businessID,
			"date", out.Date,
			"start", out.StartTime,
		)
	}
	return out, nil
}

func bookingFrom(a model.Appointment) Booking {
	return Booking{
		AppointmentID: a.ID,
		BusinessID:    a.BusinessID,
		ServiceID:     a.ServiceID,
		Date:          a.Date.String(),
		StartTime:     a.Start.String(),
		EndTime:       a.End.String(),
		Status:        a.Status,
	}
}

func bookingOutcome(b Booking, err error) string {
	switch {
	case err == nil && b.Replayed:
		return "replayed"
	case err == nil:
		return "booked"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrOutsideBookingWindow):
		return "outside_window"
	default:
		var verr *schedule.ValidationError
		if errors.As(err, &verr) || errors.Is(err, ErrUnknownService) {
			return "invalid"
		}
		return "error"
	}
}

// CancelBooking is idempotent: cancelling a cancelled appointment returns it unchanged.
func (s *Service) CancelBooking(ctx context.Context, businessID, appointmentID, reason string) (model.Appointment, error) {
	businessID = strings.TrimSpace(businessID)
	appointmentID = strings.TrimSpace(appointmentID)
	if businessID == "" || appointmentID == "" {
		return model.Appointment{}, &schedule.ValidationError{Fields: []string{"business_id and appointment_id are required"}}
	}
	if _, err := uuid.Parse(appointmentID); err != nil {
		return model.Appointment{}, ErrAppointmentNotFound
	}
	reason = strings.TrimSpace(reason)

	var out model.Appointment
	err := s.store.InTx(ctx, func(tx Tx) error {
		appt, err := tx.LockAppointment(ctx, businessID, appointmentID)
		if err != nil {
			return err
		}
		if appt.Status == model.StatusCancelled && appt.CancelledAt != nil {
			out = appt
			return nil
		}
		if appt.Status != model.StatusBooked {
			return ErrNotCancellable
		}

		cancelledAt, err := tx.MarkCancelled(ctx, businessID, appt.ID, reason)
		if err != nil {
			return fmt.Errorf("cancel appointment: %w", err)
		}
		evt, err := outbox.NewEvent(outbox.AggregateAppointment, appt.ID, outbox.EventAppointmentCancelled, outbox.AppointmentCancelled{
			AppointmentID: appt.ID,
			BusinessID:    businessID,
			Reason:        reason,
			CancelledAt:   cancelledAt,
		})
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, evt); err != nil {
			return fmt.Errorf("write outbox event: %w", err)
		}

		appt.Status = model.StatusCancelled
		appt.CancelledAt = &cancelledAt
		appt.CancelReason = reason
		out = appt
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return out, nil
}

func (s *Service) ListBookings(ctx context.Context, businessID string, from schedule.Date, limit int) ([]model.Appointment, error) {
	if strings.TrimSpace(businessID) == "" {
		return nil, &schedule.ValidationError{Fields: []string{"business_id is required"}}
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListAppointments(ctx, businessID, from, limit)
}
