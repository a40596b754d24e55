package grpcx

import (
	"context"
	"strings"

	"github.com/md-rashed-zaman/slotwise/libs/httpx"
	"google.golang.org/grpc/metadata"
)

// RequestIDMetadataKey carries the request id over gRPC metadata.
const RequestIDMetadataKey = "x-request-id"

// Request ids share httpx's context key so code below either transport reads them the same way.

func RequestIDFromContext(ctx context.Context) string {
	return httpx.RequestIDFromContext(ctx)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return httpx.ContextWithRequestID(ctx, id)
}

// incomingRequestID returns the caller's id, or "" when it is missing or implausibly long.
func incomingRequestID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get(RequestIDMetadataKey)
	if len(vals) == 0 {
		return ""
	}
	id := strings.TrimSpace(vals[0])
	if len(id) > 128 {
		return ""
	}
	return id
}
