package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
)

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

type recordingComponent struct {
	name     string
	trace    *[]string
	startErr error
	stopErr  error
}

func (c *recordingComponent) Start() error {
	*c.trace = append(*c.trace, "start:"+c.name)
	return c.startErr
}

func (c *recordingComponent) Stop(context.Context) error {
	*c.trace = append(*c.trace, "stop:"+c.name)
	return c.stopErr
}

// stopOnlyComponent implements Stopper but not Starter, like tracing.Provider.
type stopOnlyComponent struct {
	name  string
	trace *[]string
}

func (c *stopOnlyComponent) Stop(context.Context) error {
	*c.trace = append(*c.trace, "stop:"+c.name)
	return nil
}

func TestAppStartsInOrderAndStopsInReverse(t *testing.T) {
	var buf bytes.Buffer
	var trace []string

	a := New(testLogger(&buf))
	a.Register("one", &recordingComponent{name: "one", trace: &trace})
	a.Register("two", &recordingComponent{name: "two", trace: &trace})
	a.Register("three", &recordingComponent{name: "three", trace: &trace})

	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	a.Stop()

	want := []string{"start:one", "start:two", "start:three", "stop:three", "stop:two", "stop:one"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace = %v, want %v", trace, want)
		}
	}
}

func TestAppStartFailureRollsBackStartedComponents(t *testing.T) {
	var buf bytes.Buffer
	var trace []string

	boom := errors.New("boom")
	a := New(testLogger(&buf))
	a.Register("one", &recordingComponent{name: "one", trace: &trace})
	a.Register("two", &recordingComponent{name: "two", trace: &trace, startErr: boom})
	a.Register("three", &recordingComponent{name: "three", trace: &trace})

	err := a.Start()
	if err == nil {
		t.Fatal("expected error from failing component")
	}
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapping %v", err, boom)
	}

	want := []string{"start:one", "start:two", "stop:one"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace = %v, want %v", trace, want)
		}
	}
}

func TestAppSkipsComponentsWithoutLifecycleMethods(t *testing.T) {
	var buf bytes.Buffer
	var trace []string

	a := New(testLogger(&buf))
	a.Register("stop-only", &stopOnlyComponent{name: "stop-only", trace: &trace})
	a.Register("full", &recordingComponent{name: "full", trace: &trace})

	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	a.Stop()

	want := []string{"start:full", "stop:full", "stop:stop-only"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace = %v, want %v", trace, want)
		}
	}
}

func TestAppStopIsIdempotentForUnstartedComponents(t *testing.T) {
	var buf bytes.Buffer
	var trace []string

	a := New(testLogger(&buf))
	a.Register("one", &recordingComponent{name: "one", trace: &trace})

	// Stop without Start: nothing should run since nothing was started.
	a.Stop()
	if len(trace) != 0 {
		t.Fatalf("trace = %v, want empty", trace)
	}
}
