package otelx

import (
	"context"
	"testing"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "0")
	t.Setenv("OTEL_SAMPLING_RATIO", "1.5")
	t.Setenv("DEPLOY_ENV", "staging")

	cfg := ConfigFromEnv("availability-service")
	if cfg.Enabled {
		t.Fatal("expected tracing disabled")
	}
	if cfg.SampleRatio != 1.0 {
		t.Fatalf("expected invalid ratio to be ignored, got %v", cfg.SampleRatio)
	}
	if cfg.Environment != "staging" {
		t.Fatalf("unexpected environment %q", cfg.Environment)
	}

	shutdown, err := Setup(context.Background(), cfg)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestTraceContextRoundTripEmpty(t *testing.T) {
	ctx := ContextWithTraceContext(context.Background(), "", "")
	if ctx != context.Background() {
		t.Fatal("expected unchanged context for empty trace context")
	}
}

func TestSetupRequiresEndpoint(t *testing.T) {
	_, err := Setup(context.Background(), Config{Enabled: true, ServiceName: "availability-service"})
	if err == nil {
		t.Fatal("expected error without endpoint")
	}
}

func TestSampleRatio(t *testing.T) {
	cases := map[string]float64{"0.25": 0.25, "0": 0, "-1": 1, "abc": 1, " 1 ": 1}
	for raw, want := range cases {
		if got := sampleRatio(raw); got != want {
			t.Fatalf("sampleRatio(%q) = %v, want %v", raw, got, want)
		}
	}
}
