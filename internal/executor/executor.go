// Package executor performs the single upstream HTTP attempt for an
// admitted task and turns the result into a relay.ProxyResult, handling
// auth-header rewriting, wire-format conversion, buffered and streaming
// response modes, and cancellation. Grounded on the teacher's
// modules/provider/openai_compatible/openai.go client setup (a
// *http.Transport with ResponseHeaderTimeout instead of a blanket client
// timeout) and its stream.go SSE scanning loop. Each attempt, including
// the reading of a streamed body, also runs under a context deadline of
// Config.SocketTimeout, so a stream still open when it expires is cut
// off. Requests are generalized here from SDK-typed requests
// to raw Anthropic/OpenAI wire JSON via internal/convert.
package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/inflaborg/ccrelay-sub001/internal/convert"
	"github.com/inflaborg/ccrelay-sub001/internal/relay"
	"github.com/inflaborg/ccrelay-sub001/internal/tracing"
)

// officialAnthropicBaseURL is the fixed upstream for relay.ActionPassthrough.
const officialAnthropicBaseURL = "https://api.anthropic.com"

// defaultSocketTimeout is the executor's own upstream deadline, distinct
// from the concurrency manager's queue-wait timeout.
const defaultSocketTimeout = 300 * time.Second

// nopHandler is a slog.Handler that discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// Config bounds the executor's HTTP behavior.
type Config struct {
	// SocketTimeout bounds one upstream attempt end-to-end. Zero means defaultSocketTimeout.
	SocketTimeout time.Duration
	// AnthropicBaseURL overrides officialAnthropicBaseURL, for tests.
	AnthropicBaseURL string
}

func (c Config) socketTimeout() time.Duration {
	if c.SocketTimeout <= 0 {
		return defaultSocketTimeout
	}
	return c.SocketTimeout
}

func (c Config) anthropicBaseURL() string {
	if c.AnthropicBaseURL != "" {
		return c.AnthropicBaseURL
	}
	return officialAnthropicBaseURL
}

// Executor is the concurrency.Executor implementation used in production.
type Executor struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
	tracer *tracing.Provider
}

// Option configures optional Executor dependencies.
type Option func(*Executor)

// WithLogger overrides the default no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithClient overrides the HTTP client, for tests.
func WithClient(c *http.Client) Option {
	return func(e *Executor) { e.client = c }
}

// WithTracer enables a child span around each upstream attempt, nested
// under the task span already carried on task.Context. Nil (the default)
// disables it.
func WithTracer(t *tracing.Provider) Option {
	return func(e *Executor) { e.tracer = t }
}

// New builds an Executor.
func New(cfg Config, opts ...Option) *Executor {
	e := &Executor{
		cfg:    cfg,
		logger: slog.New(nopHandler{}),
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: cfg.socketTimeout(),
				TLSHandshakeTimeout:   10 * time.Second,
				IdleConnTimeout:       90 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute performs the task's single upstream attempt, wrapped in a child
// trace span (if tracing is enabled) nested under the task's own span.
func (e *Executor) Execute(task *relay.Task) relay.ProxyResult {
	ctx := context.Background()
	if task.Cancel != nil {
		ctx = task.Cancel.Context()
	} else if task.Context != nil {
		ctx = task.Context
	}

	var span trace.Span
	if e.tracer != nil {
		ctx, span = e.tracer.StartExecute(ctx, string(task.Provider.Type))
	}

	result := e.execute(ctx, task)

	if span != nil {
		tracing.End(span, result.Err)
	}
	return result
}

func (e *Executor) execute(ctx context.Context, task *relay.Task) relay.ProxyResult {
	start := time.Now()

	upstreamURL, body, convertResponse, err := e.buildRequest(task)
	if err != nil {
		return failResult(start, relay.ErrConverterInvalid, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.socketTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, task.Method, upstreamURL, strings.NewReader(string(body)))
	if err != nil {
		return failResult(start, relay.ErrUpstreamNetwork, err.Error())
	}
	req.Header = buildHeaders(task)

	resp, err := e.client.Do(req)
	if err != nil {
		return e.classifyRequestError(start, task, ctx, err)
	}
	defer resp.Body.Close()
	e.logger.Debug("upstream responded", "task_id", task.ID, "status", resp.StatusCode, "content_type", resp.Header.Get("Content-Type"))

	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		return e.handleStream(start, task, resp, convertResponse)
	}
	return e.handleBuffered(start, resp, convertResponse)
}

// buildRequest resolves the upstream URL and request body for task,
// returning a converter to apply to the response (nil if none applies).
func (e *Executor) buildRequest(task *relay.Task) (upstreamURL string, body []byte, convertResp func([]byte) ([]byte, error), err error) {
	if task.Action == relay.ActionPassthrough {
		return e.cfg.anthropicBaseURL() + task.Path, task.Body, nil, nil
	}

	path := task.Path
	outBody := task.Body

	if task.Provider.Type == relay.ProviderTypeOpenAI {
		var anReq convert.Request
		if err := json.Unmarshal(task.Body, &anReq); err != nil {
			return "", nil, nil, fmt.Errorf("decode request: %w", err)
		}
		newPath, oaReq := convert.ConvertRequest(task.Path, anReq)
		path = newPath
		outBody, err = json.Marshal(oaReq)
		if err != nil {
			return "", nil, nil, fmt.Errorf("encode upstream request: %w", err)
		}
		convertResp = func(raw []byte) ([]byte, error) {
			var oaResp convert.OAIResponse
			if err := json.Unmarshal(raw, &oaResp); err != nil {
				return nil, err
			}
			return json.Marshal(convert.ConvertResponse(oaResp, task.OriginalModel))
		}
	}

	return task.Provider.BaseURL + path, outBody, convertResp, nil
}

// buildHeaders rewrites auth headers per the task's provider mode (inject
// vs passthrough), applies static provider headers, and always forces
// accept-encoding: identity.
func buildHeaders(task *relay.Task) http.Header {
	h := make(http.Header, len(task.Header)+4)
	for k, v := range task.Header {
		h[k] = v
	}
	h.Set("Accept-Encoding", "identity")

	if task.Action == relay.ActionPassthrough {
		return h
	}

	if task.Provider.Mode == relay.ModeInject {
		authHeader := task.Provider.AuthHeaderOrDefault()
		h.Del("Authorization")
		h.Del("X-Api-Key")
		h.Set(authHeader, task.Provider.APIKey)
	}
	for k, v := range task.Provider.Headers {
		h.Set(k, v)
	}
	return h
}

func (e *Executor) classifyRequestError(start time.Time, task *relay.Task, ctx context.Context, err error) relay.ProxyResult {
	if cancelled, reason := task.Cancelled(); cancelled {
		return failResult(start, relay.ErrCancelled, reason)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return failResult(start, relay.ErrUpstreamTimeout, "Proxy timeout")
	}
	if task.Cancel != nil && task.Cancel.Cancelled() {
		reason := task.Cancel.Reason()
		if reason == "" {
			reason = "cancelled"
		}
		return failResult(start, relay.ErrCancelled, reason)
	}
	return failResult(start, relay.ErrUpstreamNetwork, err.Error())
}

func (e *Executor) handleBuffered(start time.Time, resp *http.Response, convertResp func([]byte) ([]byte, error)) relay.ProxyResult {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return failResult(start, relay.ErrUpstreamNetwork, err.Error())
	}

	body := raw
	if resp.StatusCode < 300 && convertResp != nil {
		converted, err := convertResp(raw)
		if err != nil {
			return failResult(start, relay.ErrConverterInvalid, err.Error())
		}
		body = converted
	}

	return relay.ProxyResult{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Duration:   time.Since(start),
	}
}

func (e *Executor) handleStream(start time.Time, task *relay.Task, resp *http.Response, convertResp func([]byte) ([]byte, error)) relay.ProxyResult {
	sink := task.Sink
	sink.WriteHeader(resp.StatusCode, resp.Header)

	clientGone := sink.ClientGone()
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-clientGone:
			if task.Cancel != nil {
				task.Cancel.Cancel("client disconnected")
			}
		case <-done:
		}
	}()

	translate := task.Provider.Type == relay.ProviderTypeOpenAI && task.Action == relay.ActionProxy && resp.StatusCode < 300

	var streamErr error
	if translate {
		streamErr = e.pipeTranslated(resp.Body, sink, task.OriginalModel)
	} else {
		_, streamErr = io.Copy(sinkWriter{sink}, resp.Body)
	}

	select {
	case <-clientGone:
		return relay.ProxyResult{StatusCode: 499, ErrorMessage: "Client disconnected", Streamed: true, Duration: time.Since(start), Err: relay.ErrClientDisconnected}
	default:
	}

	if streamErr != nil && streamErr != io.EOF {
		return failResult(start, relay.ErrUpstreamNetwork, streamErr.Error())
	}

	return relay.ProxyResult{StatusCode: resp.StatusCode, Streamed: true, Duration: time.Since(start)}
}

// pipeTranslated scans an OpenAI SSE body and writes the translated
// Anthropic SSE events to sink as they arrive.
func (e *Executor) pipeTranslated(body io.Reader, sink relay.ResponseSink, originalModel string) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	conv := convert.NewStreamConverter(originalModel)
	writeEvents := func(events []convert.Event) error {
		for _, ev := range events {
			if _, err := sink.Write(ev.Encode()); err != nil {
				return err
			}
			sink.Flush()
		}
		return nil
	}

	err := convert.ScanOAISSE(scanner, func(chunk convert.OAIStreamChunk) error {
		return writeEvents(conv.Feed(chunk))
	})
	if err != nil {
		return err
	}
	return writeEvents(conv.Finish())
}

type sinkWriter struct{ sink relay.ResponseSink }

func (w sinkWriter) Write(p []byte) (int, error) {
	n, err := w.sink.Write(p)
	w.sink.Flush()
	return n, err
}

func failResult(start time.Time, sentinel error, message string) relay.ProxyResult {
	return relay.ProxyResult{
		Duration:     time.Since(start),
		Err:          fmt.Errorf("%w: %s", sentinel, message),
		ErrorMessage: message,
	}
}
