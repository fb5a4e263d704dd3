package relay

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// ProviderMode controls how the executor rewrites authentication headers.
type ProviderMode string

const (
	// ModePassthrough forwards the caller's auth headers untouched.
	ModePassthrough ProviderMode = "passthrough"
	// ModeInject replaces the caller's auth with the provider's stored key.
	ModeInject ProviderMode = "inject"
)

// ProviderType selects which wire format the upstream speaks.
type ProviderType string

const (
	ProviderTypeAnthropic ProviderType = "anthropic"
	ProviderTypeOpenAI    ProviderType = "openai"
)

// Action is the executor behavior the router selected for a task (§4.4).
// It is distinct from ProviderMode, which only controls auth-header
// handling within ActionProxy.
type Action string

const (
	// ActionProxy forwards to the task's configured Provider, with model
	// mapping and wire-format translation as configured.
	ActionProxy Action = "proxy"
	// ActionPassthrough forwards unmodified to the official Anthropic
	// endpoint, bypassing provider selection, model mapping, and
	// conversion entirely.
	ActionPassthrough Action = "passthrough"
)

// ResponseSink is the client-facing write side of a task. The HTTP front
// end owns it until a task is submitted; ownership transfers to the
// executor for the task's run, and returns to the front end on terminal
// cleanup. Implementations must tolerate being written to from exactly
// one goroutine at a time.
type ResponseSink interface {
	// WriteHeader sends status and headers once, before any body bytes.
	WriteHeader(statusCode int, header http.Header)
	// Write streams body bytes to the client; safe to call repeatedly
	// for chunked/streamed responses.
	Write(p []byte) (int, error)
	// Flush pushes any buffered bytes to the client immediately, used
	// between SSE events.
	Flush()
	// ClientGone reports whether the inbound connection has been closed
	// by the client, used to detect disconnects during long streams.
	ClientGone() <-chan struct{}
}

// CancelHandle is a one-shot cancellation signal shared between the
// concurrency manager, the executor, and whatever observes client
// disconnects. Triggering it aborts in-flight upstream I/O and resolves
// the owning task with a cancelled result. Safe for concurrent use;
// Cancel is idempotent.
type CancelHandle struct {
	once   sync.Once
	ctx    context.Context
	cancel context.CancelFunc
	reason string
	mu     sync.Mutex
}

// NewCancelHandle creates a handle derived from parent, ready to be
// installed on a task before it starts running.
func NewCancelHandle(parent context.Context) *CancelHandle {
	ctx, cancel := context.WithCancel(parent)
	return &CancelHandle{ctx: ctx, cancel: cancel}
}

// Cancel triggers the handle with the given reason. Subsequent calls are
// no-ops so the first reason wins.
func (h *CancelHandle) Cancel(reason string) {
	h.once.Do(func() {
		h.mu.Lock()
		h.reason = reason
		h.mu.Unlock()
		h.cancel()
	})
}

// Context returns the context that is cancelled when Cancel is called.
func (h *CancelHandle) Context() context.Context { return h.ctx }

// Reason returns the cancellation reason, or "" if not yet cancelled.
func (h *CancelHandle) Reason() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reason
}

// Cancelled reports whether Cancel has been called.
func (h *CancelHandle) Cancelled() bool {
	select {
	case <-h.ctx.Done():
		return true
	default:
		return false
	}
}

// Provider is an immutable snapshot of one configured upstream, handed
// into tasks by value-safe reference. Nothing in the request pipeline
// ever mutates a Provider after it is loaded.
type Provider struct {
	ID           string
	Name         string
	BaseURL      string
	Mode         ProviderMode
	Type         ProviderType
	APIKey       string
	AuthHeader   string // default "authorization"
	ModelMap     []ModelMapEntry
	VLModelMap   []ModelMapEntry
	Headers      map[string]string
	Enabled      bool
}

// ModelMapEntry is one glob-pattern-to-model substitution rule.
type ModelMapEntry struct {
	Pattern string
	Model   string
}

// AuthHeaderOrDefault returns the configured auth header name, defaulting
// to "authorization".
func (p Provider) AuthHeaderOrDefault() string {
	if p.AuthHeader == "" {
		return "authorization"
	}
	return p.AuthHeader
}

// Task is one inbound request as seen by the core pipeline, from
// submission through resolution.
type Task struct {
	ID       string
	Method   string
	Path     string // original request path, opaque for routing
	Header   http.Header
	Body     []byte
	Provider Provider

	// Action selects the executor's behavior; see ActionProxy/ActionPassthrough.
	Action Action

	// OriginalModel is the model name as the client requested it, before
	// any provider model-name mapping, so a translated response's model
	// field can round-trip what the client asked for.
	OriginalModel string

	// Priority ranks admission order; higher runs first. Default 0.
	Priority int

	// Timeout overrides the queue's default queue-wait budget when > 0.
	Timeout time.Duration

	CreatedAt time.Time

	// Context carries the inbound request's tracing span, if any. The
	// concurrency manager derives the running task's Cancel context from
	// it so the executor's upstream attempt stays a child of the same
	// trace. Nil is equivalent to context.Background().
	Context context.Context

	// Sink is the back-channel to the client response. Opaque to the
	// converter; used only by the executor for streaming and disconnect
	// detection.
	Sink ResponseSink

	// Cancel is installed by the concurrency manager when the task
	// transitions to running. It is nil while the task is only queued.
	Cancel *CancelHandle

	mu               sync.Mutex
	cancelled        bool
	cancelledReason  string
}

// MarkCancelled flags a running task as cancelled without tearing down
// its cancel handle's context directly (callers trigger that via Cancel).
func (t *Task) MarkCancelled(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
	t.cancelledReason = reason
}

// Cancelled reports the flags set by MarkCancelled.
func (t *Task) Cancelled() (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled, t.cancelledReason
}

// ProxyResult is what the executor produces for one task, and what the
// concurrency manager resolves the task's future with on success.
type ProxyResult struct {
	StatusCode   int
	Header       http.Header
	Body         []byte // unset when Streamed is true
	Streamed     bool
	Duration     time.Duration
	Err          error
	ErrorMessage string
}
