package grpcserver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotwise/libs/grpcx"
	availabilityv1 "github.com/md-rashed-zaman/slotwise/protos/availability/v1"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/booking"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/schedule"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/settings"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

type fakeSlots struct {
	err  error
	last booking.SlotQuery
}

func (f *fakeSlots) GetAvailableTimeSlots(_ context.Context, q booking.SlotQuery) (booking.SlotResult, error) {
	f.last = q
	if f.err != nil {
		return booking.SlotResult{}, f.err
	}
	dur := q.DurationMinutes
	if dur == 0 {
		dur = 45
	}
	return booking.SlotResult{
		Date:            q.Date,
		DurationMinutes: dur,
		Status:          booking.SlotsOpen,
		Slots:           []schedule.Clock{schedule.MustParseClock("09:00"), schedule.MustParseClock("10:30")},
	}, nil
}

func (f *fakeSlots) CheckAvailability(_ context.Context, q booking.SlotQuery, at schedule.Clock) (bool, booking.SlotStatus, error) {
	f.last = q
	if f.err != nil {
		return false, "", f.err
	}
	return at == schedule.MustParseClock("09:00"), booking.SlotsOpen, nil
}

func startServer(t *testing.T, slots Slots) (*availabilityv1.AvailabilityServiceClient, *grpc.ClientConn) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := grpcx.NewServer(grpcx.UnaryServerLoggingInterceptor(logger))
	Register(srv, slots, logger)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpcx.Dial(lis.Addr().String(), grpcx.DialOptions{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return availabilityv1.NewAvailabilityServiceClient(conn), conn
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGetAvailableTimeSlots(t *testing.T) {
	fs := &fakeSlots{}
	client, _ := startServer(t, fs)

	reply, err := client.GetAvailableTimeSlots(testContext(t), availabilityv1.SlotsRequest{BusinessID: "biz-1", Date: "2024-01-16", DurationMinutes: 60})
	if err != nil {
		t.Fatalf("get slots: %v", err)
	}
	if reply.Status != "open" || strings.Join(reply.Slots, ",") != "09:00,10:30" || reply.DurationMinutes != 60 {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if fs.last.BusinessID != "biz-1" || fs.last.Date.String() != "2024-01-16" {
		t.Fatalf("unexpected query: %+v", fs.last)
	}
}

func TestGetAvailableTimeSlotsByService(t *testing.T) {
	fs := &fakeSlots{}
	client, _ := startServer(t, fs)

	reply, err := client.GetAvailableTimeSlots(testContext(t), availabilityv1.SlotsRequest{BusinessID: "biz-1", Date: "2024-01-16", ServiceID: "svc-1"})
	if err != nil {
		t.Fatalf("get slots: %v", err)
	}
	if fs.last.ServiceID != "svc-1" || fs.last.DurationMinutes != 0 {
		t.Fatalf("unexpected query: %+v", fs.last)
	}
	if reply.DurationMinutes != 45 {
		t.Fatalf("expected resolved duration, got %d", reply.DurationMinutes)
	}
}

func TestCheckAvailability(t *testing.T) {
	client, _ := startServer(t, &fakeSlots{})
	req := availabilityv1.SlotsRequest{BusinessID: "biz-1", Date: "2024-01-16", DurationMinutes: 60}

	got, err := client.CheckAvailability(testContext(t), req, "09:00")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !got.Available {
		t.Fatalf("expected 09:00 to be available")
	}
	got, err = client.CheckAvailability(testContext(t), req, "09:15")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if got.Available {
		t.Fatalf("expected 09:15 to be unavailable")
	}

	_, err = client.CheckAvailability(testContext(t), req, "9am")
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestErrorCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"unknown service", booking.ErrUnknownService, codes.NotFound},
		{"settings", settings.ErrSettingsUnavailable, codes.Unavailable},
		{"other", io.ErrUnexpectedEOF, codes.Internal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := startServer(t, &fakeSlots{err: tc.err})
			_, err := client.GetAvailableTimeSlots(testContext(t), availabilityv1.SlotsRequest{BusinessID: "biz-1", Date: "2024-01-16", DurationMinutes: 30})
			if status.Code(err) != tc.want {
				t.Fatalf("expected %s, got %v", tc.want, err)
			}
		})
	}
}

func TestValidation(t *testing.T) {
	client, _ := startServer(t, &fakeSlots{})
	_, err := client.GetAvailableTimeSlots(testContext(t), availabilityv1.SlotsRequest{Date: "2024-02-30", DurationMinutes: 30})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	_, err = client.GetAvailableTimeSlots(testContext(t), availabilityv1.SlotsRequest{BusinessID: "biz-1", Date: "2024-01-16"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument without duration, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	_, conn := startServer(t, &fakeSlots{})
	resp, err := healthpb.NewHealthClient(conn).Check(testContext(t), &healthpb.HealthCheckRequest{Service: availabilityv1.ServiceName})
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("unexpected status: %s", resp.GetStatus())
	}
}
