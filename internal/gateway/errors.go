package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/inflaborg/ccrelay-sub001/internal/relay"
)

// errorEnvelope is the JSON shape returned for every non-2xx response the
// gateway synthesizes itself (admission failures, upstream failures). It
// does not apply to bytes proxied straight from upstream, which keep
// whatever body the provider sent, nor to block-rule responses, which
// carry the rule's literal body and status code.
type errorEnvelope struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func envelopeBody(code, message string) []byte {
	b, _ := json.Marshal(errorEnvelope{Error: message, Code: code})
	return b
}

// classifyError maps a relay error kind to the HTTP status and error code
// the front end reports for it (§6). A status of 499 with an empty code
// signals that the client disconnected before a response was needed: the caller must not
// write anything.
func classifyError(err error) (status int, code string) {
	switch {
	case errors.Is(err, relay.ErrQueueFull), errors.Is(err, relay.ErrQueueTimeout):
		return http.StatusServiceUnavailable, "QUEUE_FULL_OR_TIMEOUT"
	case errors.Is(err, relay.ErrShuttingDown), errors.Is(err, relay.ErrQueueCleared):
		return http.StatusServiceUnavailable, "QUEUE_FULL_OR_TIMEOUT"
	case errors.Is(err, relay.ErrClientDisconnected):
		return 499, ""
	default:
		return http.StatusBadGateway, "PROXY_ERROR"
	}
}

// respondError writes a JSON error envelope directly to w, for failures
// that occur before a task (and its sink) ever exists.
func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(envelopeBody(code, message))
}
