// Package app assembles the fixed set of components a running ccrelay
// process needs — config, routing, admission pools, the executor, the
// HTTP front end, metrics, and tracing — and owns their start/stop order.
// Grounded on the teacher's internal/core.App (Start/Stop in declaration
// order / reverse order, bounded shutdown timeout, signal-driven Run),
// simplified from a dynamic module registry to a fixed component list:
// ccrelay has no plugin surface, so there is nothing to discover at
// runtime.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const defaultShutdownTimeout = 30 * time.Second

// Starter is implemented by components with background work to start.
type Starter interface {
	Start() error
}

// Stopper is implemented by components that need an orderly shutdown.
type Stopper interface {
	Stop(ctx context.Context) error
}

type namedComponent struct {
	name      string
	component any
	started   bool
}

// App owns an ordered list of components and their lifecycle. Start runs
// each component that implements Starter in registration order; Stop runs
// each started component that implements Stopper in reverse order, within
// a bounded timeout. A component without a Start method counts as started
// once Start has reached it.
type App struct {
	logger          *slog.Logger
	shutdownTimeout time.Duration
	components      []namedComponent
}

// New builds an empty App. Register components before calling Start.
func New(logger *slog.Logger) *App {
	return &App{logger: logger, shutdownTimeout: defaultShutdownTimeout}
}

// Register adds a component under name, in the order it should start.
func (a *App) Register(name string, component any) {
	a.components = append(a.components, namedComponent{name: name, component: component})
}

// Start starts every registered Starter in order. If one fails, every
// component started so far is stopped in reverse order before returning.
func (a *App) Start() error {
	for i := range a.components {
		c := &a.components[i]
		s, ok := c.component.(Starter)
		if !ok {
			// Nothing to start; it still counts as started so Stop reaches it.
			c.started = true
			continue
		}
		a.logger.Info("starting component", "component", c.name)
		if err := s.Start(); err != nil {
			a.logger.Error("component start failed", "component", c.name, "error", err)
			a.stopFrom(i - 1)
			return fmt.Errorf("starting %s: %w", c.name, err)
		}
		c.started = true
	}
	a.logger.Info("all components started")
	return nil
}

// Stop stops every started component in reverse order.
func (a *App) Stop() {
	a.stopFrom(len(a.components) - 1)
}

func (a *App) stopFrom(fromIndex int) {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	for i := fromIndex; i >= 0; i-- {
		c := &a.components[i]
		if !c.started {
			continue
		}
		if s, ok := c.component.(Stopper); ok {
			a.logger.Info("stopping component", "component", c.name)
			if err := s.Stop(ctx); err != nil {
				a.logger.Error("component stop error", "component", c.name, "error", err)
			}
		}
		c.started = false
	}
}

// Run starts every component and blocks until SIGINT or SIGTERM, then
// stops everything and returns.
func (a *App) Run() error {
	if err := a.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	a.logger.Info("shutdown signal received", "signal", sig.String())

	a.Stop()
	a.logger.Info("shutdown complete")
	return nil
}
