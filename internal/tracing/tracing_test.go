package tracing

import (
	"context"
	"errors"
	"testing"
)

func TestNewWithoutEndpointIsNoop(t *testing.T) {
	p, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.sdk != nil {
		t.Fatal("expected no-op provider to have nil sdk")
	}

	ctx, span := p.StartTask(context.Background(), "t1", "/v1/messages")
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}
	End(span, nil)

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestEndRecordsError(t *testing.T) {
	p, _ := New(Config{})
	_, span := p.StartExecute(context.Background(), "anthropic")
	End(span, errors.New("boom"))
}
