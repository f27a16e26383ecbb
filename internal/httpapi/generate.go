package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"voiced/internal/manager"
	"voiced/pkg/types"
)

func generateOptions(req types.GenerateRequest) manager.GenerateOptions {
	return manager.GenerateOptions{
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
		Seed:        req.Seed,
		Stop:        req.Stop,
	}
}

// handleGenerate runs text generation. With "stream":true the response is
// NDJSON of types.StreamEvent lines, otherwise a single JSON object.
//
//	@Summary  Generate text
//	@Tags     inference
//	@Accept   json
//	@Produce  json
//	@Param    request body types.GenerateRequest true "generation request"
//	@Success  200 {object} types.GenerateResponse
//	@Failure  409 {object} types.ErrorResponse
//	@Failure  502 {object} types.ErrorResponse
//	@Router   /v1/generate [post]
func handleGenerate(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.GenerateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			writeJSONError(w, http.StatusBadRequest, "prompt is required")
			return
		}
		if req.Model == "" {
			req.Model = defaultGenModel
		}

		ctx, cancel := requestContext(r)
		defer cancel()
		lvl := requestLogLevel(r)
		start := time.Now()
		opts := generateOptions(req)

		if !req.Stream {
			text, err := svc.Generate(ctx, req.Model, req.Prompt, opts)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			var used types.Capability
			if p, ok := svc.Progress(req.Model); ok {
				used = p.Backend
			}
			writeJSON(w, types.GenerateResponse{Text: text, Backend: used})
			logRequest(r, lvl, "generate complete", map[string]string{
				"model": req.Model,
				"dur":   time.Since(start).String(),
			})
			return
		}

		var out io.Writer = w
		if lvl >= LevelDebug {
			out = io.MultiWriter(w, &loggingLineWriter{stream: "generate"})
		}
		enc := json.NewEncoder(out)
		flush := func() {}
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}

		streamed := false
		opts.OnEvent = func(ev types.StreamEvent) {
			if !streamed {
				streamed = true
				w.Header().Set("Content-Type", "application/x-ndjson")
				countStream("generate")
			}
			_ = enc.Encode(ev)
			flush()
		}
		if _, err := svc.Generate(ctx, req.Model, req.Prompt, opts); err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			if !streamed {
				writeServiceError(w, err)
				return
			}
			_ = enc.Encode(types.ErrorResponse{Error: err.Error(), Code: statusFor(err)})
			flush()
			return
		}
		logRequest(r, lvl, "generate stream complete", map[string]string{
			"model": req.Model,
			"dur":   time.Since(start).String(),
		})
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks are left to the deployment; the API carries no
	// cookies, so cross-origin reads leak nothing a direct request
	// would not.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleGenerateWS streams generation over a websocket: the client sends
// one types.GenerateRequest frame, the server answers with StreamEvent
// frames and closes after the complete event. Errors arrive as a
// types.ErrorResponse frame.
//
//	@Summary  Generate text over websocket
//	@Tags     inference
//	@Success  101 {string} string "switching protocols"
//	@Router   /v1/generate/ws [get]
func handleGenerateWS(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the failure response.
			return
		}
		defer conn.Close()
		countStream("websocket")

		var req types.GenerateRequest
		if err := conn.ReadJSON(&req); err != nil {
			_ = conn.WriteJSON(types.ErrorResponse{Error: "invalid request frame", Code: http.StatusBadRequest})
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			_ = conn.WriteJSON(types.ErrorResponse{Error: "prompt is required", Code: http.StatusBadRequest})
			return
		}
		if req.Model == "" {
			req.Model = defaultGenModel
		}

		ctx, cancel := requestContext(r)
		defer cancel()

		opts := generateOptions(req)
		opts.OnEvent = func(ev types.StreamEvent) {
			_ = conn.WriteJSON(ev)
		}
		if _, err := svc.Generate(ctx, req.Model, req.Prompt, opts); err != nil {
			_ = conn.WriteJSON(types.ErrorResponse{Error: err.Error(), Code: statusFor(err)})
			return
		}
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	}
}
