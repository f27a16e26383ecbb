package httpapi

import (
	"net/http"
	"strings"
	"time"

	"voiced/pkg/types"
)

// handleSwitchBackend forces subsequent loads onto one backend, or
// restores automatic selection when the tag is empty. Every loaded model
// is invalidated first, so the new status in the response already shows
// the models unloaded.
//
//	@Summary  Switch execution backend
//	@Tags     backend
//	@Accept   json
//	@Produce  json
//	@Param    request body types.SwitchRequest true "backend tag, empty for automatic"
//	@Success  200 {object} types.StatusResponse
//	@Failure  409 {object} types.ErrorResponse
//	@Router   /v1/backend [post]
func handleSwitchBackend(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.SwitchRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		ctx, cancel := requestContext(r)
		defer cancel()
		if err := svc.SwitchBackend(ctx, req.Backend); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, svc.Status())
		logRequest(r, requestLogLevel(r), "backend switched", map[string]string{
			"backend": req.Backend,
		})
	}
}

// handleBench runs a sequential latency benchmark against one logical
// model and returns the aggregated stats.
//
//	@Summary  Benchmark a model
//	@Tags     backend
//	@Accept   json
//	@Produce  json
//	@Param    request body types.BenchRequest true "benchmark request"
//	@Success  200 {object} types.BenchmarkStats
//	@Failure  404 {object} types.ErrorResponse
//	@Router   /v1/bench [post]
func handleBench(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.BenchRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Model) == "" {
			writeJSONError(w, http.StatusBadRequest, "model is required")
			return
		}

		ctx, cancel := requestContext(r)
		defer cancel()
		start := time.Now()
		stats, err := svc.Benchmark(ctx, req.Model, req.Iterations)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, stats)
		logRequest(r, requestLogLevel(r), "benchmark complete", map[string]string{
			"model": req.Model,
			"dur":   time.Since(start).String(),
		})
	}
}
