// Package gateway is the HTTP front end: it terminates client
// connections, consults internal/routing for the block/passthrough/proxy
// decision and model mapping, submits admitted requests to the
// appropriate internal/concurrency.Manager, and translates the result
// back into an HTTP response, including the status-code mapping for
// queue-full, queue-timeout, upstream failure, and client disconnect.
// Grounded on the teacher's internal/gateway/gateway.go and server.go
// (struct-held server/logger, buildRouter, listen-before-serve-goroutine,
// Shutdown(ctx) with a bounded timeout) with the management-API surface
// (admin, auth, webhook, status, node websocket) dropped — this spec has
// no dashboard or multi-process coordination.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/inflaborg/ccrelay-sub001/internal/concurrency"
	"github.com/inflaborg/ccrelay-sub001/internal/metrics"
	"github.com/inflaborg/ccrelay-sub001/internal/routing"
	"github.com/inflaborg/ccrelay-sub001/internal/tracing"
)

// nopHandler is a slog.Handler that discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// Gateway is the HTTP front end. Unlike the teacher's dynamically
// registered module, it is built with a plain constructor and wired
// explicitly by internal/app — there is no service registry to resolve
// dependencies from lazily.
type Gateway struct {
	cfg Config

	router       *routing.Router
	selector     *routing.QueueSelector
	queues       map[string]*concurrency.Manager
	defaultQueue string

	metrics *metrics.Registry
	tracer  *tracing.Provider
	logger  *slog.Logger

	server *http.Server
}

// Option configures optional Gateway dependencies.
type Option func(*Gateway)

// WithLogger overrides the default no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New builds a Gateway. queues must contain an entry named defaultName;
// router and selector must already reflect the resolved configuration.
func New(cfg Config, router *routing.Router, selector *routing.QueueSelector, queues map[string]*concurrency.Manager, defaultName string, reg *metrics.Registry, tracer *tracing.Provider, opts ...Option) *Gateway {
	g := &Gateway{
		cfg:          cfg,
		router:       router,
		selector:     selector,
		queues:       queues,
		defaultQueue: defaultName,
		metrics:      reg,
		tracer:       tracer,
		logger:       slog.New(nopHandler{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start builds the router, binds the listen address synchronously, and
// begins serving on a background goroutine. It returns once the socket is
// listening, not once the server stops.
func (g *Gateway) Start() error {
	g.server = &http.Server{
		Addr:        g.cfg.Listen,
		Handler:     g.buildRouter(),
		ReadTimeout: g.cfg.readTimeout(),
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.cfg.Listen)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.cfg.Listen)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the server down within the configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, g.cfg.shutdownTimeout())
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}

func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", g.handleHealthz)
	if g.metrics != nil {
		r.Handle("/metrics", g.metrics.Handler())
	}
	r.HandleFunc("/*", g.handleProxy)
	return r
}

func (g *Gateway) managerFor(path string) *concurrency.Manager {
	name := g.selector.Select(path)
	if m, ok := g.queues[name]; ok {
		return m
	}
	return g.queues[g.defaultQueue]
}
