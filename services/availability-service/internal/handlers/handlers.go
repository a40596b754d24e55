package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotwise/libs/httpx"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/booking"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/schedule"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/settings"
)

type SettingsService interface {
	GetAvailabilitySettings(ctx context.Context, businessID string) schedule.Settings
	SaveAvailabilitySettings(ctx context.Context, s schedule.Settings) error
}

type BookingService interface {
	GetAvailableTimeSlots(ctx context.Context, q booking.SlotQuery) (booking.SlotResult, error)
	CheckAvailability(ctx context.Context, q booking.SlotQuery, at schedule.Clock) (bool, booking.SlotStatus, error)
	CreateBooking(ctx context.Context, in booking.CreateBookingInput) (booking.Booking, error)
	CancelBooking(ctx context.Context, businessID, appointmentID, reason string) (model.Appointment, error)
	ListBookings(ctx context.Context, businessID string, from schedule.Date, limit int) ([]model.Appointment, error)
}

type Handler struct {
	settings SettingsService
	bookings BookingService
	logger   *slog.Logger
}

func New(settingsSvc SettingsService, bookings BookingService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{settings: settingsSvc, bookings: bookings, logger: logger}
}

// Register mounts every API route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/availability/settings", h.Settings)
	mux.HandleFunc("/api/v1/public/slots", h.Slots)
	mux.HandleFunc("/api/v1/public/availability", h.Availability)
	mux.HandleFunc("/api/v1/public/book", h.Book)
	mux.HandleFunc("/api/v1/appointments", h.List)
	mux.HandleFunc("/api/v1/appointments/cancel", h.Cancel)
}

func businessIDFromHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Business-Id"))
}

type validationResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields"`
}

// writeServiceError maps domain errors onto status codes. Unknown errors are logged and
// reported as 500 without detail.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *schedule.ValidationError
	if errors.As(err, &verr) {
		httpx.WriteJSON(w, http.StatusBadRequest, validationResponse{Error: "validation failed", Fields: verr.Fields})
		return
	}
	switch {
	case errors.Is(err, booking.ErrSlotUnavailable):
		httpx.WriteError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, booking.ErrNotCancellable):
		httpx.WriteError(w, http.StatusConflict, "not_cancellable", err.Error())
	case errors.Is(err, booking.ErrOutsideBookingWindow):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "outside_booking_window", err.Error())
	case errors.Is(err, booking.ErrUnknownService):
		httpx.WriteError(w, http.StatusNotFound, "unknown_service", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, settings.ErrSettingsUnavailable):
		httpx.WriteError(w, http.StatusServiceUnavailable, "settings_unavailable", "availability is temporarily unavailable")
	default:
		h.logger.Error("request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"err", err,
		)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	businessID := businessIDFromHeader(r)
	if businessID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "", "missing X-Business-Id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		httpx.WriteJSON(w, http.StatusOK, h.settings.GetAvailabilitySettings(r.Context(), businessID))
	case http.MethodPut:
		var s schedule.Settings
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			var verr *schedule.ValidationError
			if errors.As(err, &verr) {
				h.writeServiceError(w, r, err)
				return
			}
			httpx.WriteError(w, http.StatusBadRequest, "", "invalid json body")
			return
		}
		s.BusinessID = businessID
		if err := h.settings.SaveAvailabilitySettings(r.Context(), s); err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type slotsResponse struct {
	BusinessID      string   `json:"business_id"`
	Date            string   `json:"date"`
	DurationMinutes int      `json:"duration_minutes"`
	Status          string   `json:"status"`
	Slots           []string `json:"slots"`
}

// slotQuery reads business_id, date and either duration_minutes or service_id.
func slotQuery(r *http.Request) (booking.SlotQuery, error) {
	q := r.URL.Query()
	var fields []string
	out := booking.SlotQuery{
		BusinessID: strings.TrimSpace(q.Get("business_id")),
		ServiceID:  strings.TrimSpace(q.Get("service_id")),
	}
	if out.BusinessID == "" {
		fields = append(fields, "business_id is required")
	}
	d, err := schedule.ParseDate(strings.TrimSpace(q.Get("date")))
	if err != nil {
		fields = append(fields, "date: "+err.Error())
	}
	out.Date = d
	if raw := strings.TrimSpace(q.Get("duration_minutes")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > schedule.MinutesPerDay {
			fields = append(fields, "duration_minutes must be between 1 and 1440")
		}
		out.DurationMinutes = n
	} else if out.ServiceID == "" {
		fields = append(fields, "duration_minutes or service_id is required")
	}
	if len(fields) > 0 {
		return booking.SlotQuery{}, &schedule.ValidationError{Fields: fields}
	}
	return out, nil
}

func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q, err := slotQuery(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	res, err := h.bookings.GetAvailableTimeSlots(r.Context(), q)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, slotsResponse{
		BusinessID:      q.BusinessID,
		Date:            res.Date.String(),
		DurationMinutes: res.DurationMinutes,
		Status:          string(res.Status),
		Slots:           availability.Format(res.Slots),
	})
}

type availabilityResponse struct {
	BusinessID string `json:"business_id"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Available  bool   `json:"available"`
	Status     string `json:"status"`
}

func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q, err := slotQuery(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	at, err := schedule.ParseClock(strings.TrimSpace(r.URL.Query().Get("time")))
	if err != nil {
		h.writeServiceError(w, r, &schedule.ValidationError{Fields: []string{"time: " + err.Error()}})
		return
	}
	ok, status, err := h.bookings.CheckAvailability(r.Context(), q, at)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, availabilityResponse{
		BusinessID: q.BusinessID,
		Date:       q.Date.String(),
		Time:       at.String(),
		Available:  ok,
		Status:     string(status),
	})
}

type bookRequest struct {
	BusinessID string `json:"business_id"`
	ServiceID  string `json:"service_id"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Customer   struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"customer"`
}

func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "", "invalid json body")
		return
	}
	b, err := h.bookings.CreateBooking(r.Context(), booking.CreateBookingInput{
		BusinessID: req.BusinessID,
		ServiceID:  req.ServiceID,
		Date:       req.Date,
		Time:       req.Time,
		Customer: booking.CustomerInfo{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if b.Replayed {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	httpx.WriteJSON(w, http.StatusCreated, b)
}

type cancelRequest struct {
	BusinessID    string `json:"business_id"`
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type appointmentItem struct {
	AppointmentID string `json:"appointment_id"`
	ServiceID     string `json:"service_id"`
	CustomerName  string `json:"customer_name"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
}

func toItem(a model.Appointment) appointmentItem {
	item := appointmentItem{
		AppointmentID: a.ID,
		ServiceID:     a.ServiceID,
		CustomerName:  a.CustomerName,
		Date:          a.Date.String(),
		StartTime:     a.Start.String(),
		EndTime:       a.End.String(),
		Status:        a.Status,
	}
	if a.CancelledAt != nil {
		item.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	if !a.CreatedAt.IsZero() {
		item.CreatedAt = a.CreatedAt.UTC().Format(time.RFC3339)
	}
	return item
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "", "invalid json body")
		return
	}
	businessID := businessIDFromHeader(r)
	if businessID == "" {
		businessID = req.BusinessID
	}
	appt, err := h.bookings.CancelBooking(r.Context(), businessID, req.AppointmentID, req.Reason)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toItem(appt))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	businessID := businessIDFromHeader(r)
	if businessID == "" {
		businessID = strings.TrimSpace(r.URL.Query().Get("business_id"))
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	var from schedule.Date
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		d, err := schedule.ParseDate(raw)
		if err != nil {
			h.writeServiceError(w, r, &schedule.ValidationError{Fields: []string{"from: " + err.Error()}})
			return
		}
		from = d
	}

	appts, err := h.bookings.ListBookings(r.Context(), businessID, from, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toItem(a))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}
