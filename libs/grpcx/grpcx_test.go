package grpcx

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/md-rashed-zaman/slotwise/libs/httpx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestServerInterceptorAdoptsIncomingID(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDMetadataKey, "req-123"))
	var seen string
	_, err := UnaryServerRequestIDInterceptor()(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/svc/M"}, func(ctx context.Context, _ any) (any, error) {
		seen = httpx.RequestIDFromContext(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if seen != "req-123" {
		t.Fatalf("expected adopted id, got %q", seen)
	}
}

func TestServerInterceptorMintsIDForOversizedValue(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDMetadataKey, strings.Repeat("x", 200)))
	var seen string
	_, _ = UnaryServerRequestIDInterceptor()(ctx, nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, _ any) (any, error) {
		seen = RequestIDFromContext(ctx)
		return nil, nil
	})
	if seen == "" || len(seen) > 128 {
		t.Fatalf("expected a fresh id, got %q", seen)
	}
}

func TestClientInterceptorForwardsID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-9")
	var got []string
	err := UnaryClientRequestIDInterceptor()(ctx, "/svc/M", nil, nil, nil, func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		got = md.Get(RequestIDMetadataKey)
		return nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if len(got) != 1 || got[0] != "req-9" {
		t.Fatalf("unexpected metadata: %v", got)
	}
}

func TestLoggingInterceptorRecoversPanics(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
	_, err := UnaryServerLoggingInterceptor(logger)(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/M"}, func(context.Context, any) (any, error) {
		panic("boom")
	})
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %v", err)
	}

	_, err = UnaryServerLoggingInterceptor(logger)(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/M"}, func(context.Context, any) (any, error) {
		return nil, errors.New("plain")
	})
	if err == nil || err.Error() != "plain" {
		t.Fatalf("expected handler error to pass through, got %v", err)
	}
}

func TestLevelFor(t *testing.T) {
	if levelFor(codes.OK) != slog.LevelInfo || levelFor(codes.Unavailable) != slog.LevelWarn || levelFor(codes.Internal) != slog.LevelError {
		t.Fatal("unexpected level mapping")
	}
}
