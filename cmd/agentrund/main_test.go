package main

import (
	"testing"

	"github.com/haasonsaas/cortex/internal/config"
)

func TestLogFormat(t *testing.T) {
	if got := logFormat("console"); got != "text" {
		t.Fatalf("expected console to map to text, got %q", got)
	}
	if got := logFormat("json"); got != "json" {
		t.Fatalf("expected json to pass through unchanged, got %q", got)
	}
}

func TestTraceEndpointDisabledByDefault(t *testing.T) {
	cfg := &config.Config{Tracing: config.TracingConfig{Enabled: false, Endpoint: "localhost:4317"}}
	if got := traceEndpoint(cfg); got != "" {
		t.Fatalf("expected no endpoint when tracing is disabled, got %q", got)
	}

	cfg.Tracing.Enabled = true
	if got := traceEndpoint(cfg); got != "localhost:4317" {
		t.Fatalf("expected the configured endpoint, got %q", got)
	}
}

func TestOpenStoreFallsBackToMemory(t *testing.T) {
	cfg := &config.Config{}
	st, closeFunc, err := openStore(cfg)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer closeFunc()
	if st == nil {
		t.Fatal("expected a non-nil store for an empty database path")
	}
}
