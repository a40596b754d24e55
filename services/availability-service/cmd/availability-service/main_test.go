package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := loadConfig(); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/slotwise")
	t.Setenv("BOOKING_TIMEZONE", "")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8085" || cfg.GRPCPort != "9095" {
		t.Fatalf("unexpected ports: %s %s", cfg.Port, cfg.GRPCPort)
	}
	if cfg.Location != time.UTC {
		t.Fatalf("expected UTC, got %s", cfg.Location)
	}
	if cfg.CatalogTopic != "catalog.service.upserted.v1" || cfg.ConsumerAttempts != 5 {
		t.Fatalf("unexpected kafka config: %+v", cfg)
	}
	if len(cfg.CORS.AllowedHeaders) != 4 {
		t.Fatalf("unexpected cors headers: %v", cfg.CORS.AllowedHeaders)
	}
}

func TestLoadConfigRejectsUnknownTimezone(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/slotwise")
	t.Setenv("BOOKING_TIMEZONE", "Mars/Olympus_Mons")
	if _, err := loadConfig(); err == nil {
		t.Fatalf("expected timezone error")
	}
}

func TestInMemoryLimiterWhenRedisMissing(t *testing.T) {
	cfg := serviceConfig{RateLimitPerMinute: 1}
	l := buildLimiter(cfg, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ok, _, err := l.Allow(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "client")
	if err != nil || !ok {
		t.Fatalf("first request should pass: ok=%v err=%v", ok, err)
	}
	ok, _, _ = l.Allow(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "client")
	if ok {
		t.Fatalf("second request should be limited")
	}
}
