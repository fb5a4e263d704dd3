package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/inflaborg/ccrelay-sub001/internal/concurrency"
)

func TestObserverMirrorsPoolStats(t *testing.T) {
	reg := New()
	obs := reg.Observer("default")
	obs.Observe(concurrency.Stats{
		QueueLength: 3, ActiveWorkers: 2, MaxConcurrency: 5,
		TotalProcessed: 10, TotalFailed: 1,
		AvgWaitTime: 50 * time.Millisecond, AvgProcessTime: 200 * time.Millisecond,
	})

	rr := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body := rr.Body.String()

	for _, want := range []string{
		`ccrelay_pool_queue_length{pool="default"} 3`,
		`ccrelay_pool_active_workers{pool="default"} 2`,
		`ccrelay_pool_max_concurrency{pool="default"} 5`,
		`ccrelay_pool_processed_total{pool="default"} 10`,
		`ccrelay_pool_failed_total{pool="default"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q\nfull output:\n%s", want, body)
		}
	}
}

func TestRecordRequestIncrementsCounterAndHistogram(t *testing.T) {
	reg := New()
	reg.RecordRequest("/v1/messages", "proxy", "200", 120*time.Millisecond)
	reg.RecordBlocked("/v1/internal")

	rr := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body := rr.Body.String()

	if !strings.Contains(body, `ccrelay_gateway_requests_total{action="proxy",route="/v1/messages",status="200"} 1`) {
		t.Errorf("requests_total missing, body:\n%s", body)
	}
	if !strings.Contains(body, `ccrelay_gateway_blocked_total{route="/v1/internal"} 1`) {
		t.Errorf("blocked_total missing, body:\n%s", body)
	}
	if !strings.Contains(body, "ccrelay_gateway_request_duration_seconds_bucket") {
		t.Errorf("request_duration histogram missing, body:\n%s", body)
	}
}
