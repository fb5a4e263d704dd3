package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/inflaborg/ccrelay-sub001/internal/concurrency"
	"github.com/inflaborg/ccrelay-sub001/internal/relay"
	"github.com/inflaborg/ccrelay-sub001/internal/routing"
	"github.com/inflaborg/ccrelay-sub001/internal/tracing"
)

// Resolved holds every immutable snapshot the running process needs,
// built once from a validated Config.
type Resolved struct {
	Providers       []relay.Provider
	CurrentProvider string
	Routes          []routing.RouteRule
	Bindings        []routing.QueueBinding
	DefaultQueue    concurrency.Config
	Queues          map[string]concurrency.Config

	// Tracing is passed straight to tracing.New. An empty Endpoint
	// (the TracingConfig zero value) yields the no-op provider.
	Tracing tracing.Config
	// MetricsEnabled gates whether the /metrics route and its Prometheus
	// registry are wired at all.
	MetricsEnabled bool
}

// Resolve compiles a validated Config into concrete domain types. Callers
// must run Validate first; Resolve assumes well-formed patterns and
// known provider ids.
func Resolve(cfg *Config) (*Resolved, error) {
	providers := make([]relay.Provider, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers = append(providers, relay.Provider{
			ID:         p.ID,
			Name:       p.Name,
			BaseURL:    p.BaseURL,
			Mode:       relay.ProviderMode(p.Mode),
			Type:       relay.ProviderType(p.Type),
			APIKey:     p.APIKey,
			AuthHeader: p.AuthHeader,
			ModelMap:   resolveModelMap(p.ModelMap),
			VLModelMap: resolveModelMap(p.VLModelMap),
			Headers:    p.Headers,
			Enabled:    p.EnabledOrDefault(),
		})
	}

	routes, err := resolveRoutes(cfg.Routes)
	if err != nil {
		return nil, err
	}

	bindings, err := resolveBindings(cfg.Bindings)
	if err != nil {
		return nil, err
	}

	queues := make(map[string]concurrency.Config, len(cfg.Queues))
	for name, qc := range cfg.Queues {
		queues[name] = resolveConcurrency(name, qc)
	}

	return &Resolved{
		Providers:       providers,
		CurrentProvider: cfg.CurrentProvider,
		Routes:          routes,
		Bindings:        bindings,
		DefaultQueue:    resolveConcurrency("default", cfg.DefaultQueue),
		Queues:          queues,
		Tracing: tracing.Config{
			Endpoint:    cfg.Tracing.Endpoint,
			Insecure:    cfg.Tracing.Insecure,
			ServiceName: cfg.Tracing.ServiceName,
		},
		MetricsEnabled: cfg.Metrics.Enabled,
	}, nil
}

func resolveModelMap(entries []ModelMapEntry) []relay.ModelMapEntry {
	out := make([]relay.ModelMapEntry, len(entries))
	for i, e := range entries {
		out[i] = relay.ModelMapEntry{Pattern: e.Pattern, Model: e.Model}
	}
	return out
}

func resolveRoutes(rules []RouteRuleConfig) ([]routing.RouteRule, error) {
	out := make([]routing.RouteRule, 0, len(rules))
	for i, r := range rules {
		pattern, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("config: routes[%d]: invalid pattern %q: %w", i, r.Pattern, err)
		}
		out = append(out, routing.RouteRule{
			Pattern:      pattern,
			Kind:         routing.RouteKind(r.Kind),
			Response:     r.Response,
			ResponseCode: r.ResponseCode,
		})
	}
	return out, nil
}

func resolveBindings(bindings []RouteQueueBindingConfig) ([]routing.QueueBinding, error) {
	out := make([]routing.QueueBinding, 0, len(bindings))
	for i, b := range bindings {
		pattern, err := regexp.Compile(b.Pattern)
		if err != nil {
			return nil, fmt.Errorf("config: bindings[%d]: invalid pattern %q: %w", i, b.Pattern, err)
		}
		out = append(out, routing.QueueBinding{Pattern: pattern, Name: b.Queue})
	}
	return out, nil
}

func resolveConcurrency(name string, qc ConcurrencyConfig) concurrency.Config {
	return concurrency.Config{
		Name:           name,
		MaxConcurrency: qc.MaxConcurrency,
		MaxQueueSize:   qc.MaxQueueSize,
		DefaultTimeout: time.Duration(qc.DefaultTimeoutMS) * time.Millisecond,
	}
}
