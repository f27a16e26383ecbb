package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"voiced/pkg/types"
)

func TestMetricsEndpointServesCounters(t *testing.T) {
	r := New(&mockService{ready: true})

	// Generate some traffic first so the counters exist.
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status=%d", w.Code)
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "voiced_http_requests_total") {
		t.Fatalf("metrics output missing request counter")
	}
	if !strings.Contains(body, "voiced_http_request_duration_seconds") {
		t.Fatalf("metrics output missing duration histogram")
	}
}

func TestMetricsManagerCollector(t *testing.T) {
	mock := &mockService{status: types.StatusResponse{
		Models: []types.ModelStatus{
			{Key: "speech-to-text", State: "ready"},
			{Key: "text-generation", State: "ready", Fallback: true},
			{Key: "text-to-speech", State: "idle"},
		},
		Ranked:         []types.Capability{types.CapabilityPortable, types.CapabilityBaselineCPU},
		LoadsTotal:     7,
		FallbacksTotal: 2,
	}}
	SetMetricsSource(mock)
	defer SetMetricsSource(nil)

	r := New(mock)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"voiced_manager_loaded_models 2",
		"voiced_manager_fallback_active 1",
		"voiced_manager_capability_rank_size 2",
		"voiced_manager_loads_total 7",
		"voiced_manager_fallbacks_total 2",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMetricsManagerSeriesAbsentWithoutSource(t *testing.T) {
	SetMetricsSource(nil)

	r := New(&mockService{ready: true})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", w.Code)
	}
	if strings.Contains(w.Body.String(), "voiced_manager_loaded_models") {
		t.Fatalf("manager series present without a source")
	}
}

func TestStatusRecorderCapturesCode(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, status: 200}
	sr.WriteHeader(http.StatusConflict)
	if sr.status != http.StatusConflict || rec.Code != http.StatusConflict {
		t.Fatalf("status=%d rec=%d", sr.status, rec.Code)
	}
}

func TestStatusRecorderFlushPassesThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, status: 200}
	sr.Flush()
	if !rec.Flushed {
		t.Fatalf("flush did not reach underlying writer")
	}
}

func TestRoutePatternFallsBackToPath(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/v1/odd/path", nil)
	if got := routePatternOrPath(r); got != "/v1/odd/path" {
		t.Fatalf("got %q", got)
	}
}

func TestItoa(t *testing.T) {
	cases := map[int]string{0: "0", 200: "200", 404: "404", 1000: "1000"}
	for n, want := range cases {
		if got := itoa(n); got != want {
			t.Errorf("itoa(%d)=%q want %q", n, got, want)
		}
	}
}
