package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"voiced/pkg/types"
)

// handleLoad loads a logical model and streams progress as NDJSON. Each
// line is a types.LoadProgress; the stream ends with a done line on
// success or an error line on failure. Errors before the first progress
// line use the plain JSON error envelope instead.
//
//	@Summary  Load a model with progress stream
//	@Tags     models
//	@Accept   json
//	@Produce  json
//	@Param    request body types.LoadRequest true "model to load"
//	@Success  200 {object} types.LoadProgress
//	@Failure  404 {object} types.ErrorResponse
//	@Failure  502 {object} types.ErrorResponse
//	@Router   /v1/load [post]
func handleLoad(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.LoadRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Model) == "" {
			writeJSONError(w, http.StatusBadRequest, "model is required")
			return
		}

		lvl := requestLogLevel(r)
		var out io.Writer = w
		if lvl >= LevelDebug {
			out = io.MultiWriter(w, &loggingLineWriter{stream: "load"})
		}
		enc := json.NewEncoder(out)
		flush := func() {}
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}

		// The first line switches the response into NDJSON mode; until
		// then errors can still use the JSON envelope. Progress calls are
		// serialized by the loader, so streamed needs no lock.
		streamed := false
		writeLine := func(p types.LoadProgress) {
			if !streamed {
				streamed = true
				w.Header().Set("Content-Type", "application/x-ndjson")
				countStream("load")
			}
			_ = enc.Encode(p)
			flush()
		}

		ctx, cancel := requestContext(r)
		defer cancel()
		start := time.Now()
		err := svc.Load(ctx, req.Model, func(percent int, status string) {
			writeLine(types.LoadProgress{Percent: percent, Status: status})
		})
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			if !streamed {
				writeServiceError(w, err)
				return
			}
			writeLine(types.LoadProgress{Percent: -1, Status: "failed", Error: err.Error()})
			logRequest(r, lvl, "load failed", map[string]string{"model": req.Model, "error": err.Error()})
			return
		}

		term := types.LoadProgress{Percent: 100, Status: "ready", Done: true}
		if p, ok := svc.Progress(req.Model); ok {
			term.Backend = p.Backend
		}
		writeLine(term)
		logRequest(r, lvl, "load complete", map[string]string{
			"model": req.Model,
			"dur":   time.Since(start).String(),
		})
	}
}
