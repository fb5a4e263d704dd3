package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/inflaborg/ccrelay-sub001/internal/relay"
	"github.com/inflaborg/ccrelay-sub001/internal/routing"
	"github.com/inflaborg/ccrelay-sub001/internal/tracing"
)

// handleProxy is the catch-all route: every path not matched by /healthz
// or /metrics flows through here, regardless of which routing.RouteKind
// it ultimately resolves to.
func (g *Gateway) handleProxy(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	path := r.URL.Path

	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "failed to read request body")
		return
	}

	decision := g.router.Decide(path)
	if decision.Kind == routing.RouteBlock {
		g.handleBlock(w, path, decision, start)
		return
	}

	action, provider, originalModel, body, ok := g.prepareAction(w, decision, path, body, start)
	if !ok {
		return
	}

	manager := g.managerFor(path)
	sink := newHTTPSink(w, r)
	defer sink.release()

	taskID := uuid.NewString()

	ctx := r.Context()
	var span trace.Span
	if g.tracer != nil {
		ctx, span = g.tracer.StartTask(ctx, taskID, path)
	}

	task := &relay.Task{
		ID:            taskID,
		Method:        r.Method,
		Path:          path,
		Header:        r.Header.Clone(),
		Body:          body,
		Provider:      provider,
		Action:        action,
		OriginalModel: originalModel,
		CreatedAt:     time.Now(),
		Context:       ctx,
		Sink:          sink,
	}

	actionLabel := string(action)

	future, err := manager.Submit(task)
	if err != nil {
		status, code := classifyError(err)
		respondError(w, status, code, err.Error())
		g.recordRequest(path, actionLabel, status, start)
		if g.tracer != nil {
			tracing.End(span, err)
		}
		return
	}

	result, waitErr := future.Wait(ctx)

	if g.tracer != nil {
		tracing.End(span, waitErr)
	}

	if waitErr != nil && (errors.Is(waitErr, context.Canceled) || errors.Is(waitErr, context.DeadlineExceeded)) {
		// The caller gave up before the task settled. The streaming path
		// may already have written headers through the sink; either way
		// there is nothing left for this handler to send.
		manager.CancelTask(task.ID, "client disconnected")
		g.recordRequest(path, actionLabel, 499, start)
		return
	}

	status := g.writeResult(sink, result, waitErr)
	g.recordRequest(path, actionLabel, status, start)
}

// prepareAction resolves the executor action and, for proxy decisions,
// the current provider, the client's requested model, and any
// model-name mapping applied to the outgoing body. ok is false once a
// terminal response has already been written (no provider configured or
// the body could not be rewritten).
func (g *Gateway) prepareAction(w http.ResponseWriter, decision routing.Decision, path string, body []byte, start time.Time) (action relay.Action, provider relay.Provider, originalModel string, outBody []byte, ok bool) {
	if decision.Kind == routing.RoutePassthrough {
		return relay.ActionPassthrough, relay.Provider{}, "", body, true
	}

	provider, ok = g.router.CurrentProvider()
	if !ok {
		respondError(w, http.StatusBadGateway, "PROXY_ERROR", "no upstream provider configured")
		g.recordRequest(path, "proxy", http.StatusBadGateway, start)
		return "", relay.Provider{}, "", nil, false
	}

	peek := peekRequest(body)
	originalModel = peek.Model
	if mapped, matched := g.router.ResolveModel(provider.ID, peek.Model, peek.hasImage()); matched {
		rewritten, err := withModel(body, mapped)
		if err != nil {
			respondError(w, http.StatusBadGateway, "PROXY_ERROR", "failed to apply model mapping")
			g.recordRequest(path, "proxy", http.StatusBadGateway, start)
			return "", relay.Provider{}, "", nil, false
		}
		body = rewritten
	}

	return relay.ActionProxy, provider, originalModel, body, true
}

func (g *Gateway) handleBlock(w http.ResponseWriter, path string, decision routing.Decision, start time.Time) {
	code := decision.ResponseCode
	if code == 0 {
		code = http.StatusOK
	}
	w.WriteHeader(code)
	_, _ = w.Write([]byte(decision.Response))

	g.recordBlocked(path)
	g.recordRequest(path, "block", code, start)
}

// writeResult finishes the response for a settled task and returns the
// status code recorded for metrics. Streaming responses have already been
// written by the executor via the sink; buffered ones have not.
func (g *Gateway) writeResult(sink *httpSink, result relay.ProxyResult, err error) int {
	if err != nil {
		status, code := classifyError(err)
		if status == 499 {
			return 499
		}
		msg := result.ErrorMessage
		if msg == "" {
			msg = err.Error()
		}
		sink.WriteHeader(status, http.Header{"Content-Type": []string{"application/json"}})
		_, _ = sink.Write(envelopeBody(code, msg))
		return status
	}

	if result.Streamed {
		return result.StatusCode
	}

	sink.WriteHeader(result.StatusCode, result.Header)
	_, _ = sink.Write(result.Body)
	return result.StatusCode
}

func (g *Gateway) recordRequest(route, action string, status int, start time.Time) {
	if g.metrics == nil {
		return
	}
	g.metrics.RecordRequest(route, action, strconv.Itoa(status), time.Since(start))
}

func (g *Gateway) recordBlocked(route string) {
	if g.metrics == nil {
		return
	}
	g.metrics.RecordBlocked(route)
}
