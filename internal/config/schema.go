// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for ccrelay. Configuration is read
// once at process start; hot reload and multi-process coordination are
// explicitly out of scope.
package config

// Config is the top-level configuration structure for ccrelay.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Listen is the address the HTTP front end binds, e.g. ":8787".
	Listen string `yaml:"listen"`

	// CurrentProvider is the id of the Providers entry selected as the
	// active upstream for proxy-action requests.
	CurrentProvider string `yaml:"current_provider"`

	// Providers lists every configured upstream, by id.
	Providers []ProviderConfig `yaml:"providers"`

	// Routes is the ordered list of path-pattern rules the router
	// evaluates to decide block/passthrough/proxy for a request.
	Routes []RouteRuleConfig `yaml:"routes,omitempty"`

	// Queues names the concurrency pools available beyond the implicit
	// default pool, and Bindings maps path patterns onto them.
	Queues   map[string]ConcurrencyConfig `yaml:"queues,omitempty"`
	Bindings []RouteQueueBindingConfig    `yaml:"bindings,omitempty"`

	// DefaultQueue is the ConcurrencyConfig applied to the implicit
	// default pool, used whenever no binding matches a request path.
	DefaultQueue ConcurrencyConfig `yaml:"default_queue"`

	// Tracing and Metrics are optional observability settings.
	Tracing TracingConfig `yaml:"tracing,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// ProviderConfig is the YAML shape of one upstream provider entry.
type ProviderConfig struct {
	ID         string            `yaml:"id"`
	Name       string            `yaml:"name,omitempty"`
	BaseURL    string            `yaml:"base_url"`
	Mode       string            `yaml:"mode"` // "inject" or "passthrough"
	Type       string            `yaml:"type"` // "anthropic" or "openai"
	APIKey     string            `yaml:"api_key,omitempty"`
	AuthHeader string            `yaml:"auth_header,omitempty"`
	ModelMap   []ModelMapEntry   `yaml:"model_map,omitempty"`
	VLModelMap []ModelMapEntry   `yaml:"vl_model_map,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`
	Enabled    *bool             `yaml:"enabled,omitempty"`
}

// ModelMapEntry is one glob-pattern-to-model substitution rule.
type ModelMapEntry struct {
	Pattern string `yaml:"pattern"`
	Model   string `yaml:"model"`
}

// RouteRuleConfig is one configured path-pattern route rule. A matching
// block rule wins over a matching passthrough rule regardless of order;
// among rules of one kind the first declared wins.
type RouteRuleConfig struct {
	Pattern      string `yaml:"pattern"`
	Kind         string `yaml:"kind"` // "block", "passthrough", or "proxy"
	Response     string `yaml:"response,omitempty"`
	ResponseCode int    `yaml:"response_code,omitempty"`
}

// RouteQueueBindingConfig maps requests whose path matches Pattern onto
// the named concurrency pool in Queues.
type RouteQueueBindingConfig struct {
	Pattern string `yaml:"pattern"`
	Queue   string `yaml:"queue"`
}

// ConcurrencyConfig configures one concurrency manager instance.
type ConcurrencyConfig struct {
	// MaxConcurrency is the number of tasks that may run at once. Must be >= 1.
	MaxConcurrency int `yaml:"max_concurrency"`
	// MaxQueueSize bounds the waiting queue length. 0 means the manager's
	// built-in default.
	MaxQueueSize int `yaml:"max_queue_size,omitempty"`
	// DefaultTimeoutMS is the queue-wait budget in milliseconds applied
	// when a task does not specify its own. 0 means wait indefinitely.
	DefaultTimeoutMS int `yaml:"default_timeout_ms,omitempty"`
}

// TracingConfig configures the OpenTelemetry exporter.
type TracingConfig struct {
	Endpoint    string `yaml:"endpoint,omitempty"`
	Insecure    bool   `yaml:"insecure,omitempty"`
	ServiceName string `yaml:"service_name,omitempty"`
}

// MetricsConfig controls the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
}

// EnabledOrDefault returns whether the provider is enabled, defaulting to
// true when unset.
func (p ProviderConfig) EnabledOrDefault() bool {
	if p.Enabled == nil {
		return true
	}
	return *p.Enabled
}
