package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/inflaborg/ccrelay-sub001/internal/concurrency"
	"github.com/inflaborg/ccrelay-sub001/internal/config"
	"github.com/inflaborg/ccrelay-sub001/internal/executor"
	"github.com/inflaborg/ccrelay-sub001/internal/gateway"
	"github.com/inflaborg/ccrelay-sub001/internal/metrics"
	"github.com/inflaborg/ccrelay-sub001/internal/routing"
	"github.com/inflaborg/ccrelay-sub001/internal/tracing"
)

const defaultQueueName = "default"

// Build loads and validates the config at path, wires every component it
// describes, and returns an App ready for Run. Nothing is started yet.
func Build(path string, logger *slog.Logger) (*App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	resolved, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	return build(resolved, cfg.Listen, logger)
}

func build(resolved *config.Resolved, listen string, logger *slog.Logger) (*App, error) {
	router, err := routing.NewRouter(resolved.Providers, resolved.CurrentProvider, resolved.Routes)
	if err != nil {
		return nil, fmt.Errorf("building router: %w", err)
	}
	selector := routing.NewQueueSelector(resolved.Bindings, defaultQueueName)

	// metrics.enabled in config gates the whole registry: when disabled, reg
	// stays nil and every consumer (gateway's /metrics route, the concurrency
	// managers' observers) skips it, matching tracing's own config-gated
	// no-op default below.
	var reg *metrics.Registry
	if resolved.MetricsEnabled {
		reg = metrics.New()
	}

	tracer, err := tracing.New(resolved.Tracing)
	if err != nil {
		return nil, fmt.Errorf("building tracer: %w", err)
	}

	exec := executor.New(executor.Config{}, executor.WithLogger(logger), executor.WithTracer(tracer))

	queues, err := buildQueues(resolved, exec, reg, logger)
	if err != nil {
		return nil, err
	}

	gw := gateway.New(
		gateway.Config{Listen: listen},
		router, selector, queues, defaultQueueName,
		reg, tracer,
		gateway.WithLogger(logger),
	)

	// Registered in the order they should stop, reversed: Stop runs in
	// reverse registration order, so the gateway stops first (no more new
	// connections), queues drain next, and tracing flushes last so spans
	// from draining tasks still get exported.
	a := New(logger)
	a.Register("tracing", tracerComponent{tracer})
	a.Register("queues", queuesComponent{queues})
	a.Register("gateway", gw)
	return a, nil
}

func buildQueues(resolved *config.Resolved, exec *executor.Executor, reg *metrics.Registry, logger *slog.Logger) (map[string]*concurrency.Manager, error) {
	queues := make(map[string]*concurrency.Manager, len(resolved.Queues)+1)

	defaultManager, err := concurrency.New(resolved.DefaultQueue, exec, queueOpts(reg, defaultQueueName, logger)...)
	if err != nil {
		return nil, fmt.Errorf("building default queue: %w", err)
	}
	queues[defaultQueueName] = defaultManager

	for name, qc := range resolved.Queues {
		m, err := concurrency.New(qc, exec, queueOpts(reg, name, logger)...)
		if err != nil {
			return nil, fmt.Errorf("building queue %q: %w", name, err)
		}
		queues[name] = m
	}

	return queues, nil
}

// queueOpts builds a manager's options, adding an observer only when a
// metrics registry is wired (metrics.enabled in config).
func queueOpts(reg *metrics.Registry, name string, logger *slog.Logger) []concurrency.Option {
	opts := []concurrency.Option{concurrency.WithLogger(logger)}
	if reg != nil {
		opts = append(opts, concurrency.WithObserver(reg.Observer(name)))
	}
	return opts
}

// tracerComponent adapts tracing.Provider's Shutdown(ctx) to the Stopper
// interface; tracing has nothing to start, only flush on exit.
type tracerComponent struct {
	tracer *tracing.Provider
}

func (t tracerComponent) Stop(ctx context.Context) error {
	return t.tracer.Shutdown(ctx)
}

// queuesComponent stops every concurrency.Manager on shutdown, draining
// their waiting queues after the gateway has already stopped accepting
// new connections.
type queuesComponent struct {
	queues map[string]*concurrency.Manager
}

func (q queuesComponent) Stop(_ context.Context) error {
	for _, m := range q.queues {
		m.Shutdown()
	}
	return nil
}
