package config

import (
	"errors"
	"fmt"
	"regexp"
)

// Validate checks the structural validity of a Config: required fields,
// referential integrity between providers/routes/queues, and that every
// regex pattern compiles. It does not resolve concrete domain types —
// callers run Resolve afterward.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if cfg.Listen == "" {
		errs = append(errs, errors.New("config: listen address is required"))
	}

	if len(cfg.Providers) == 0 {
		errs = append(errs, errors.New("config: at least one provider must be configured"))
	}

	ids := make(map[string]bool, len(cfg.Providers))
	for i, p := range cfg.Providers {
		errs = append(errs, validateProvider(i, p)...)
		if p.ID != "" {
			if ids[p.ID] {
				errs = append(errs, fmt.Errorf("config: providers[%d]: duplicate id %q", i, p.ID))
			}
			ids[p.ID] = true
		}
	}

	if cfg.CurrentProvider != "" && !ids[cfg.CurrentProvider] {
		errs = append(errs, fmt.Errorf("config: current_provider references unknown provider %q", cfg.CurrentProvider))
	}

	for i, r := range cfg.Routes {
		errs = append(errs, validateRoute(i, r)...)
	}

	errs = append(errs, validateConcurrency("default_queue", cfg.DefaultQueue)...)
	for name, qc := range cfg.Queues {
		errs = append(errs, validateConcurrency(fmt.Sprintf("queues[%s]", name), qc)...)
	}

	for i, b := range cfg.Bindings {
		if b.Pattern == "" {
			errs = append(errs, fmt.Errorf("config: bindings[%d]: pattern is required", i))
		} else if _, err := regexp.Compile(b.Pattern); err != nil {
			errs = append(errs, fmt.Errorf("config: bindings[%d]: invalid pattern %q: %w", i, b.Pattern, err))
		}
		if b.Queue == "" {
			errs = append(errs, fmt.Errorf("config: bindings[%d]: queue is required", i))
		} else if _, ok := cfg.Queues[b.Queue]; !ok {
			errs = append(errs, fmt.Errorf("config: bindings[%d]: references unknown queue %q", i, b.Queue))
		}
	}

	return errors.Join(errs...)
}

func validateProvider(i int, p ProviderConfig) []error {
	var errs []error
	if p.ID == "" {
		errs = append(errs, fmt.Errorf("config: providers[%d]: id is required", i))
	}
	if p.BaseURL == "" {
		errs = append(errs, fmt.Errorf("config: providers[%d]: base_url is required", i))
	}
	switch p.Mode {
	case "inject", "passthrough":
	default:
		errs = append(errs, fmt.Errorf("config: providers[%d]: mode must be \"inject\" or \"passthrough\", got %q", i, p.Mode))
	}
	switch p.Type {
	case "anthropic", "openai":
	default:
		errs = append(errs, fmt.Errorf("config: providers[%d]: type must be \"anthropic\" or \"openai\", got %q", i, p.Type))
	}
	if p.Mode == "inject" && p.APIKey == "" {
		errs = append(errs, fmt.Errorf("config: providers[%d]: mode \"inject\" requires api_key", i))
	}
	for j, m := range p.ModelMap {
		if m.Pattern == "" {
			errs = append(errs, fmt.Errorf("config: providers[%d].model_map[%d]: pattern is required", i, j))
		}
	}
	return errs
}

func validateRoute(i int, r RouteRuleConfig) []error {
	var errs []error
	if r.Pattern == "" {
		errs = append(errs, fmt.Errorf("config: routes[%d]: pattern is required", i))
	} else if _, err := regexp.Compile(r.Pattern); err != nil {
		errs = append(errs, fmt.Errorf("config: routes[%d]: invalid pattern %q: %w", i, r.Pattern, err))
	}
	switch r.Kind {
	case "block", "passthrough", "proxy":
	default:
		errs = append(errs, fmt.Errorf("config: routes[%d]: kind must be \"block\", \"passthrough\", or \"proxy\", got %q", i, r.Kind))
	}
	if r.Kind == "block" && r.ResponseCode == 0 {
		errs = append(errs, fmt.Errorf("config: routes[%d]: kind \"block\" requires a non-zero response_code", i))
	}
	return errs
}

func validateConcurrency(label string, qc ConcurrencyConfig) []error {
	var errs []error
	if qc.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("config: %s: max_concurrency must be >= 1, got %d", label, qc.MaxConcurrency))
	}
	if qc.MaxQueueSize < 0 {
		errs = append(errs, fmt.Errorf("config: %s: max_queue_size must be >= 0, got %d", label, qc.MaxQueueSize))
	}
	if qc.DefaultTimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("config: %s: default_timeout_ms must be >= 0, got %d", label, qc.DefaultTimeoutMS))
	}
	return errs
}
