package telemetry

import (
	"context"
	"testing"
)

func TestInitTracingDisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), "caption", "", " ")
	if err != nil {
		t.Fatalf("init tracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
