package routing

import (
	"regexp"
	"testing"

	"github.com/inflaborg/ccrelay-sub001/internal/relay"
)

func testProvider(id string, enabled bool) relay.Provider {
	return relay.Provider{
		ID:      id,
		Name:    id,
		Enabled: enabled,
		Type:    relay.ProviderTypeOpenAI,
		ModelMap: []relay.ModelMapEntry{
			{Pattern: "claude-3-5-*", Model: "gpt-4o"},
			{Pattern: "*", Model: "gpt-4o-mini"},
		},
	}
}

func TestNewRouterRejectsDisabledCurrent(t *testing.T) {
	_, err := NewRouter([]relay.Provider{testProvider("a", false)}, "a", nil)
	if err == nil {
		t.Fatal("expected error selecting a disabled provider as current")
	}
}

func TestSetCurrentUnknown(t *testing.T) {
	r, err := NewRouter([]relay.Provider{testProvider("a", true)}, "a", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.SetCurrent("missing"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
	// Previous selection must remain in place.
	p, ok := r.CurrentProvider()
	if !ok || p.ID != "a" {
		t.Fatalf("current provider changed unexpectedly: %+v", p)
	}
}

func TestResolveModelFirstMatchWins(t *testing.T) {
	r, err := NewRouter([]relay.Provider{testProvider("a", true)}, "a", nil)
	if err != nil {
		t.Fatal(err)
	}
	model, matched := r.ResolveModel("a", "claude-3-5-sonnet-20241022", false)
	if !matched || model != "gpt-4o" {
		t.Fatalf("got (%q, %v), want (gpt-4o, true)", model, matched)
	}

	model, matched = r.ResolveModel("a", "claude-3-opus", false)
	if !matched || model != "gpt-4o-mini" {
		t.Fatalf("fallback glob should match: got (%q, %v)", model, matched)
	}
}

func TestDecideBlockBeatsPassthrough(t *testing.T) {
	rules := []RouteRule{
		{Pattern: regexp.MustCompile(`^/v1/messages$`), Kind: RoutePassthrough},
		{Pattern: regexp.MustCompile(`^/v1/messages$`), Kind: RouteBlock, Response: "blocked", ResponseCode: 403},
	}
	r, err := NewRouter(nil, "", rules)
	if err != nil {
		t.Fatal(err)
	}
	d := r.Decide("/v1/messages")
	if d.Kind != RouteBlock || d.ResponseCode != 403 {
		t.Fatalf("got %+v, want block rule to win regardless of order", d)
	}
}

func TestDecideDefaultsToProxy(t *testing.T) {
	r, err := NewRouter(nil, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if d := r.Decide("/anything"); d.Kind != RouteProxy {
		t.Fatalf("got %+v, want proxy default", d)
	}
}

func TestQueueSelectorFirstMatchWins(t *testing.T) {
	sel := NewQueueSelector([]QueueBinding{
		{Pattern: regexp.MustCompile(`^/route/.*`), Name: "route-pool"},
	}, "default")

	if got := sel.Select("/route/messages"); got != "route-pool" {
		t.Fatalf("got %q, want route-pool", got)
	}
	if got := sel.Select("/v1/messages"); got != "default" {
		t.Fatalf("got %q, want default", got)
	}
}

func TestGlobCompileSingleWildcard(t *testing.T) {
	g := CompileGlob("claude-3-5-*")
	if !g.Match("claude-3-5-sonnet-20241022") {
		t.Fatal("expected prefix match")
	}
	if g.Match("claude-3-opus") {
		t.Fatal("unexpected match")
	}

	anything := CompileGlob("*")
	if !anything.Match("") || !anything.Match("anything") {
		t.Fatal("bare * should match everything including empty string")
	}
}
