package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"voiced/internal/manager"
	"voiced/pkg/types"
)

func TestSwitchBackendReturnsStatus(t *testing.T) {
	var gotName string
	svc := &mockService{
		switchFn: func(ctx context.Context, name string) error {
			gotName = name
			return nil
		},
		status: types.StatusResponse{State: "ready", Override: types.CapabilityBaselineCPU},
	}
	w := postJSON(t, New(svc), "/v1/backend", `{"backend":"baseline-cpu"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if gotName != "baseline-cpu" {
		t.Fatalf("name=%q", gotName)
	}
	var body types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Override != types.CapabilityBaselineCPU {
		t.Fatalf("body=%+v", body)
	}
}

func TestSwitchBackendEmptyTagAllowed(t *testing.T) {
	var gotName string
	called := false
	svc := &mockService{
		switchFn: func(ctx context.Context, name string) error {
			called, gotName = true, name
			return nil
		},
	}
	w := postJSON(t, New(svc), "/v1/backend", `{"backend":""}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if !called || gotName != "" {
		t.Fatalf("called=%v name=%q", called, gotName)
	}
}

func TestSwitchBackendUnknownConflict(t *testing.T) {
	svc := &mockService{
		switchFn: func(ctx context.Context, name string) error {
			return manager.ErrCapabilityUnavailable(name)
		},
	}
	w := postJSON(t, New(svc), "/v1/backend", `{"backend":"quantum-fpga"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "quantum-fpga") {
		t.Fatalf("body=%q", w.Body.String())
	}
}

func TestBenchReturnsStats(t *testing.T) {
	var gotKey string
	var gotIters int
	svc := &mockService{
		benchFn: func(ctx context.Context, key string, iterations int) (types.BenchmarkStats, error) {
			gotKey, gotIters = key, iterations
			return types.BenchmarkStats{
				RunID:      "run-1",
				Model:      key,
				Iterations: iterations,
				Succeeded:  iterations,
				SampleMS:   []float64{1.5, 2.5, 2.0},
				AvgMS:      2.0, MinMS: 1.5, MaxMS: 2.5,
			}, nil
		},
	}
	w := postJSON(t, New(svc), "/v1/bench", `{"model":"text-generation","iterations":3}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if gotKey != "text-generation" || gotIters != 3 {
		t.Fatalf("service call key=%q iters=%d", gotKey, gotIters)
	}
	if !strings.Contains(w.Body.String(), `"run_id":"run-1"`) {
		t.Fatalf("body=%q", w.Body.String())
	}
}

func TestBenchRequiresModel(t *testing.T) {
	w := postJSON(t, New(&mockService{}), "/v1/bench", `{"iterations":3}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestBenchUnknownModelNotFound(t *testing.T) {
	svc := &mockService{
		benchFn: func(ctx context.Context, key string, iterations int) (types.BenchmarkStats, error) {
			return types.BenchmarkStats{}, manager.ErrUnknownModel(key)
		},
	}
	w := postJSON(t, New(svc), "/v1/bench", `{"model":"ghost"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
}
