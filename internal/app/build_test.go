package app

import (
	"bytes"
	"log/slog"
	"net/http"
	"testing"

	"github.com/inflaborg/ccrelay-sub001/internal/concurrency"
	"github.com/inflaborg/ccrelay-sub001/internal/config"
	"github.com/inflaborg/ccrelay-sub001/internal/relay"
)

func minimalResolved() *config.Resolved {
	return &config.Resolved{
		Providers: []relay.Provider{
			{ID: "primary", BaseURL: "https://example.test", Mode: relay.ModeInject, Type: relay.ProviderTypeAnthropic, Enabled: true},
		},
		CurrentProvider: "primary",
		DefaultQueue:    concurrency.Config{Name: "default", MaxConcurrency: 4, MaxQueueSize: 16},
		Queues: map[string]concurrency.Config{
			"background": {Name: "background", MaxConcurrency: 1, MaxQueueSize: 4},
		},
	}
}

func TestBuildWiresGatewayQueuesAndTracing(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	a, err := build(minimalResolved(), "127.0.0.1:0", logger)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(a.components) != 3 {
		t.Fatalf("components = %d, want 3", len(a.components))
	}

	names := []string{a.components[0].name, a.components[1].name, a.components[2].name}
	want := []string{"tracing", "queues", "gateway"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("components[%d].name = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestBuildRejectsUnknownProvider(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	resolved := minimalResolved()
	resolved.CurrentProvider = "does-not-exist"

	if _, err := build(resolved, "127.0.0.1:0", logger); err == nil {
		t.Fatal("expected error for unknown current provider")
	}
}

func TestQueuesComponentStopsEveryManager(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	a, err := build(minimalResolved(), "127.0.0.1:0", logger)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	a.Stop()

	for _, c := range a.components {
		qc, ok := c.component.(queuesComponent)
		if !ok {
			continue
		}
		for name, m := range qc.queues {
			if _, err := m.Submit(&relay.Task{ID: "probe", Sink: noopSink{}}); err == nil {
				t.Errorf("queue %q accepted work after shutdown", name)
			}
		}
	}
}

// noopSink satisfies relay.ResponseSink for tests that never inspect output.
type noopSink struct{}

func (noopSink) WriteHeader(int, http.Header) {}
func (noopSink) Write(p []byte) (int, error)  { return len(p), nil }
func (noopSink) Flush()                       {}
func (noopSink) ClientGone() <-chan struct{}  { return nil }
