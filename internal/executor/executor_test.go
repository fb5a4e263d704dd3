package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/inflaborg/ccrelay-sub001/internal/relay"
)

// fakeSink is a minimal relay.ResponseSink recorder for tests.
type fakeSink struct {
	mu      sync.Mutex
	status  int
	header  http.Header
	body    bytes.Buffer
	gone    chan struct{}
	flushes int
}

func newFakeSink() *fakeSink {
	return &fakeSink{gone: make(chan struct{})}
}

func (s *fakeSink) WriteHeader(statusCode int, header http.Header) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = statusCode
	s.header = header
}

func (s *fakeSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body.Write(p)
}

func (s *fakeSink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
}

func (s *fakeSink) ClientGone() <-chan struct{} { return s.gone }

func (s *fakeSink) written() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body.String()
}

func newTask(method, path string, body []byte, provider relay.Provider, action relay.Action) *relay.Task {
	return &relay.Task{
		ID:            "t1",
		Method:        method,
		Path:          path,
		Header:        http.Header{"Authorization": []string{"Bearer client-key"}},
		Body:          body,
		Provider:      provider,
		Action:        action,
		OriginalModel: "claude-3-5-sonnet-20241022",
		CreatedAt:     time.Now(),
		Sink:          newFakeSink(),
		Cancel:        relay.NewCancelHandle(context.Background()),
	}
}

func TestExecuteAnthropicProxyBuffered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Api-Key"); got != "upstream-secret" {
			t.Errorf("X-Api-Key = %q, want upstream-secret", got)
		}
		if got := r.Header.Get("Accept-Encoding"); got != "identity" {
			t.Errorf("Accept-Encoding = %q, want identity", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant"}`))
	}))
	defer srv.Close()

	provider := relay.Provider{
		ID: "p1", BaseURL: srv.URL, Mode: relay.ModeInject, Type: relay.ProviderTypeAnthropic,
		APIKey: "upstream-secret", AuthHeader: "x-api-key",
	}
	task := newTask(http.MethodPost, "/v1/messages", []byte(`{"model":"claude-3-5-sonnet-20241022"}`), provider, relay.ActionProxy)

	exec := New(Config{})
	result := exec.Execute(task)

	if result.Err != nil {
		t.Fatalf("Execute() error = %v", result.Err)
	}
	if result.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, want 200", result.StatusCode)
	}
	if !bytes.Contains(result.Body, []byte("msg_1")) {
		t.Fatalf("body = %s", result.Body)
	}
}

func TestExecutePassthroughUsesOfficialBaseURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer client-key" {
			t.Errorf("Authorization = %q, want untouched client header", got)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	task := newTask(http.MethodPost, "/v1/messages", []byte(`{}`), relay.Provider{}, relay.ActionPassthrough)

	exec := New(Config{AnthropicBaseURL: srv.URL})
	result := exec.Execute(task)

	if result.Err != nil {
		t.Fatalf("Execute() error = %v", result.Err)
	}
	if result.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d", result.StatusCode)
	}
}

func TestExecuteOpenAIProxyConvertsRequestAndResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		var oaReq map[string]any
		json.NewDecoder(r.Body).Decode(&oaReq)
		if oaReq["model"] != "gpt-4o" {
			t.Errorf("model = %v, want gpt-4o", oaReq["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id": "chatcmpl-1",
			"choices": []map[string]any{
				{"message": map[string]any{"content": "hi there"}, "finish_reason": "stop"},
			},
			"usage": map[string]any{"prompt_tokens": 3, "completion_tokens": 2},
		})
	}))
	defer srv.Close()

	provider := relay.Provider{ID: "p2", BaseURL: srv.URL, Mode: relay.ModeInject, Type: relay.ProviderTypeOpenAI, APIKey: "sk-test"}
	reqBody := []byte(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	task := newTask(http.MethodPost, "/v1/messages", reqBody, provider, relay.ActionProxy)

	exec := New(Config{})
	result := exec.Execute(task)

	if result.Err != nil {
		t.Fatalf("Execute() error = %v", result.Err)
	}
	var anResp map[string]any
	if err := json.Unmarshal(result.Body, &anResp); err != nil {
		t.Fatalf("unmarshal converted response: %v", err)
	}
	if anResp["model"] != "claude-3-5-sonnet-20241022" {
		t.Errorf("model = %v, want original model restored", anResp["model"])
	}
	if anResp["stop_reason"] != "end_turn" {
		t.Errorf("stop_reason = %v, want end_turn", anResp["stop_reason"])
	}
}

func TestExecuteUpstreamConnectionErrorMapsToUpstreamNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close() // closed server: connection refused

	provider := relay.Provider{ID: "p3", BaseURL: addr, Mode: relay.ModePassthrough, Type: relay.ProviderTypeAnthropic}
	task := newTask(http.MethodPost, "/v1/messages", []byte(`{}`), provider, relay.ActionProxy)

	exec := New(Config{})
	result := exec.Execute(task)

	if result.Err == nil {
		t.Fatal("expected error for connection refused")
	}
	if !bytes.Contains([]byte(result.Err.Error()), []byte("upstream")) {
		t.Fatalf("err = %v, want upstream network error", result.Err)
	}
}

func TestExecuteStreamingSSEPassthroughForAnthropicProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		w.Write([]byte("event: message_start\ndata: {}\n\n"))
		flusher.Flush()
		w.Write([]byte("event: message_stop\ndata: {}\n\n"))
		flusher.Flush()
	}))
	defer srv.Close()

	provider := relay.Provider{ID: "p4", BaseURL: srv.URL, Mode: relay.ModePassthrough, Type: relay.ProviderTypeAnthropic}
	task := newTask(http.MethodPost, "/v1/messages", []byte(`{"stream":true}`), provider, relay.ActionProxy)

	exec := New(Config{})
	result := exec.Execute(task)

	if result.Err != nil {
		t.Fatalf("Execute() error = %v", result.Err)
	}
	if !result.Streamed {
		t.Fatal("expected Streamed = true")
	}
	sink := task.Sink.(*fakeSink)
	if got := sink.written(); !bytes.Contains([]byte(got), []byte("message_start")) {
		t.Fatalf("sink body = %q, missing message_start", got)
	}
}

func TestExecuteClientDisconnectDuringStreamYields499(t *testing.T) {
	unblock := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		w.Write([]byte("event: message_start\ndata: {}\n\n"))
		flusher.Flush()
		<-unblock
	}))
	defer srv.Close()
	defer close(unblock)

	provider := relay.Provider{ID: "p5", BaseURL: srv.URL, Mode: relay.ModePassthrough, Type: relay.ProviderTypeAnthropic}
	task := newTask(http.MethodPost, "/v1/messages", []byte(`{"stream":true}`), provider, relay.ActionProxy)
	sink := task.Sink.(*fakeSink)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(sink.gone)
	}()

	exec := New(Config{SocketTimeout: 2 * time.Second})
	result := exec.Execute(task)

	if result.StatusCode != 499 {
		t.Fatalf("StatusCode = %d, want 499", result.StatusCode)
	}
}
