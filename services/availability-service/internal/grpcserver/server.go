package grpcserver

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"

	availabilityv1 "github.com/md-rashed-zaman/slotwise/protos/availability/v1"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/booking"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/schedule"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/settings"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Slots is the part of booking.Service exposed over gRPC.
type Slots interface {
	GetAvailableTimeSlots(ctx context.Context, q booking.SlotQuery) (booking.SlotResult, error)
	CheckAvailability(ctx context.Context, q booking.SlotQuery, at schedule.Clock) (bool, booking.SlotStatus, error)
}

type server struct {
	slots  Slots
	logger *slog.Logger
}

// Register installs the availability service and the standard health service on s.
func Register(s *grpc.Server, slots Slots, logger *slog.Logger) *health.Server {
	if logger == nil {
		logger = slog.Default()
	}
	availabilityv1.RegisterAvailabilityServer(s, &server{slots: slots, logger: logger})

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(availabilityv1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return hs
}

func (s *server) GetAvailableTimeSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	q, err := queryFrom(req)
	if err != nil {
		return nil, s.toStatus(err)
	}
	res, err := s.slots.GetAvailableTimeSlots(ctx, q)
	if err != nil {
		return nil, s.toStatus(err)
	}
	slots := make([]any, 0, len(res.Slots))
	for _, c := range availability.Format(res.Slots) {
		slots = append(slots, c)
	}
	return structpb.NewStruct(map[string]any{
		"business_id":      q.BusinessID,
		"date":             res.Date.String(),
		"duration_minutes": res.DurationMinutes,
		"status":           string(res.Status),
		"slots":            slots,
	})
}

func (s *server) CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	q, err := queryFrom(req)
	if err != nil {
		return nil, s.toStatus(err)
	}
	at, err := schedule.ParseClock(stringField(req, "time"))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "time: "+err.Error())
	}
	ok, st, err := s.slots.CheckAvailability(ctx, q, at)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"business_id": q.BusinessID,
		"date":        q.Date.String(),
		"time":        at.String(),
		"available":   ok,
		"status":      string(st),
	})
}

func queryFrom(req *structpb.Struct) (booking.SlotQuery, error) {
	q := booking.SlotQuery{
		BusinessID: stringField(req, "business_id"),
		ServiceID:  stringField(req, "service_id"),
	}
	var fields []string
	if q.BusinessID == "" {
		fields = append(fields, "business_id is required")
	}
	d, err := schedule.ParseDate(stringField(req, "date"))
	if err != nil {
		fields = append(fields, "date: "+err.Error())
	}
	q.Date = d
	if v, ok := req.GetFields()["duration_minutes"]; ok {
		n := v.GetNumberValue()
		if n != math.Trunc(n) || n <= 0 || n > schedule.MinutesPerDay {
			fields = append(fields, "duration_minutes must be between 1 and 1440")
		}
		q.DurationMinutes = int(n)
	} else if q.ServiceID == "" {
		fields = append(fields, "duration_minutes or service_id is required")
	}
	if len(fields) > 0 {
		return booking.SlotQuery{}, &schedule.ValidationError{Fields: fields}
	}
	return q, nil
}

func stringField(s *structpb.Struct, key string) string {
	return strings.TrimSpace(s.GetFields()[key].GetStringValue())
}

func (s *server) toStatus(err error) error {
	var verr *schedule.ValidationError
	switch {
	case errors.As(err, &verr):
		return status.Error(codes.InvalidArgument, verr.Error())
	case errors.Is(err, booking.ErrUnknownService):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, settings.ErrSettingsUnavailable):
		return status.Error(codes.Unavailable, "availability is temporarily unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	s.logger.Error("grpc availability call failed", "err", err)
	return status.Error(codes.Internal, "internal error")
}
