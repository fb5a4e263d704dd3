package routing

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/inflaborg/ccrelay-sub001/internal/relay"
)

// RouteKind is the action a matched route rule selects.
type RouteKind string

const (
	// RouteProxy forwards to the current provider, with translation as
	// configured. It is also the implicit default when no rule matches.
	RouteProxy RouteKind = "proxy"
	// RoutePassthrough forwards the caller's auth headers untouched to
	// the official upstream endpoint, without model mapping or format
	// conversion.
	RoutePassthrough RouteKind = "passthrough"
	// RouteBlock short-circuits the pipeline with a canned response.
	RouteBlock RouteKind = "block"
)

// RouteRule is one configured path-pattern rule. Among the rules whose
// Pattern matches the request path, the first block rule wins over any
// passthrough rule regardless of order; see Router.Decide.
type RouteRule struct {
	Pattern      *regexp.Regexp
	Kind         RouteKind
	Response     string
	ResponseCode int
}

// Decision is the router's verdict for one inbound path.
type Decision struct {
	Kind         RouteKind
	Response     string
	ResponseCode int
}

type compiledModelEntry struct {
	glob  *Glob
	model string
}

type providerEntry struct {
	provider   relay.Provider
	modelMap   []compiledModelEntry
	vlModelMap []compiledModelEntry
}

// Router holds the configured set of providers and the currently
// selected one, plus the ordered route-rule list. Invariant: if
// currentID is non-empty it must key an enabled provider — enforced at
// construction and on every SetCurrent.
type Router struct {
	mu         sync.RWMutex
	providers  map[string]*providerEntry
	currentID  string
	rules      []RouteRule
}

// ErrUnknownProvider is returned by SetCurrent for an unregistered id.
var ErrUnknownProvider = fmt.Errorf("routing: unknown provider")

// ErrProviderDisabled is returned by SetCurrent for a disabled provider.
var ErrProviderDisabled = fmt.Errorf("routing: provider disabled")

// NewRouter builds a Router from a resolved provider list and rule list.
// currentID may be empty (no active provider configured yet); if
// non-empty it must name an enabled provider in providers.
func NewRouter(providers []relay.Provider, currentID string, rules []RouteRule) (*Router, error) {
	r := &Router{
		providers: make(map[string]*providerEntry, len(providers)),
		rules:     rules,
	}
	for _, p := range providers {
		r.providers[p.ID] = &providerEntry{
			provider:   p,
			modelMap:   compileEntries(p.ModelMap),
			vlModelMap: compileEntries(p.VLModelMap),
		}
	}
	if currentID != "" {
		if err := r.setCurrentLocked(currentID); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func compileEntries(entries []relay.ModelMapEntry) []compiledModelEntry {
	out := make([]compiledModelEntry, len(entries))
	for i, e := range entries {
		out[i] = compiledModelEntry{glob: CompileGlob(e.Pattern), model: e.Model}
	}
	return out
}

// SetCurrent changes the active provider. Fails if id is unknown or the
// provider is disabled, leaving the previous selection in place.
func (r *Router) SetCurrent(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setCurrentLocked(id)
}

func (r *Router) setCurrentLocked(id string) error {
	entry, ok := r.providers[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	if !entry.provider.Enabled {
		return fmt.Errorf("%w: %q", ErrProviderDisabled, id)
	}
	r.currentID = id
	return nil
}

// CurrentProvider returns the active provider snapshot, if one is set.
func (r *Router) CurrentProvider() (relay.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.currentID == "" {
		return relay.Provider{}, false
	}
	entry, ok := r.providers[r.currentID]
	if !ok {
		return relay.Provider{}, false
	}
	return entry.provider, true
}

// Provider looks up a provider snapshot by id.
func (r *Router) Provider(id string) (relay.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.providers[id]
	if !ok {
		return relay.Provider{}, false
	}
	return entry.provider, true
}

// Decide walks the configured route rules in declaration order and
// returns the first matching block rule if there is one, else
// RoutePassthrough if any passthrough rule matches, else RouteProxy.
// A matching proxy rule has the same effect as no match.
func (r *Router) Decide(path string) Decision {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var blockMatch, passthroughMatch *RouteRule
	for i := range r.rules {
		rule := &r.rules[i]
		if !rule.Pattern.MatchString(path) {
			continue
		}
		switch rule.Kind {
		case RouteBlock:
			if blockMatch == nil {
				blockMatch = rule
			}
		case RoutePassthrough:
			if passthroughMatch == nil {
				passthroughMatch = rule
			}
		}
	}

	if blockMatch != nil {
		return Decision{Kind: RouteBlock, Response: blockMatch.Response, ResponseCode: blockMatch.ResponseCode}
	}
	if passthroughMatch != nil {
		return Decision{Kind: RoutePassthrough}
	}
	return Decision{Kind: RouteProxy}
}

// ResolveModel applies a provider's modelMap (or vlModelMap when
// hasImage is true) to requested, returning the mapped model name and
// whether any entry matched. The first matching entry wins.
func (r *Router) ResolveModel(providerID, requested string, hasImage bool) (mapped string, matched bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.providers[providerID]
	if !ok {
		return requested, false
	}
	entries := entry.modelMap
	if hasImage {
		entries = entry.vlModelMap
	}
	for _, e := range entries {
		if e.glob.Match(requested) {
			return e.model, true
		}
	}
	return requested, false
}
