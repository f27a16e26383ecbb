package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voiced/internal/audio"
	"voiced/internal/backend"
	"voiced/internal/manager"
	"voiced/pkg/types"
)

// Default logical model keys used when a request omits the model field.
// They match the built-in catalog, where keys are named after tasks.
const (
	defaultGenModel = "text-generation"
	defaultSTTModel = "speech-to-text"
	defaultTTSModel = "text-to-speech"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Models() []types.ModelStatus
	Status() types.StatusResponse
	Ready() bool
	Load(ctx context.Context, key string, onProgress backend.ProgressFunc) error
	Progress(key string) (types.LoadProgress, bool)
	Generate(ctx context.Context, key, prompt string, opts manager.GenerateOptions) (string, error)
	Transcribe(ctx context.Context, key string, buf audio.Buffer) (string, error)
	Speak(ctx context.Context, key, text, voice string) (audio.Buffer, error)
	Reply(ctx context.Context, in audio.Buffer, opts manager.ReplyOptions) (manager.ReplyResult, error)
	SwitchBackend(ctx context.Context, name string) error
	Benchmark(ctx context.Context, key string, iterations int) (types.BenchmarkStats, error)
}

// eventSource feeds GET /v1/events. Optional; unset means the endpoint
// returns an empty list.
var eventSource *manager.MemoryPublisher

// SetEventSource installs the event buffer served by /v1/events.
func SetEventSource(p *manager.MemoryPublisher) { eventSource = p }

// New builds the HTTP handler for a voiced service.
func New(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(corsOptions()))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/models", handleModels(svc))
		r.Get("/status", handleStatus(svc))
		r.Post("/load", handleLoad(svc))
		r.Post("/generate", handleGenerate(svc))
		r.Get("/generate/ws", handleGenerateWS(svc))
		r.Post("/transcribe", handleTranscribe(svc))
		r.Post("/speak", handleSpeak(svc))
		r.Post("/reply", handleReply(svc))
		r.Post("/backend", handleSwitchBackend(svc))
		r.Post("/bench", handleBench(svc))
		r.Get("/events", handleEvents())
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("starting"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

func corsOptions() cors.Options {
	opts := cors.Options{
		AllowedOrigins: corsAllowedOrigins,
		AllowedMethods: corsAllowedMethods,
		AllowedHeaders: corsAllowedHeaders,
		MaxAge:         300,
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if len(opts.AllowedMethods) == 0 {
		opts.AllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	if len(opts.AllowedHeaders) == 0 {
		opts.AllowedHeaders = []string{"Accept", "Content-Type", "X-Log-Level"}
	}
	return opts
}

// handleModels returns the catalog with per-model load state.
//
//	@Summary  List logical models
//	@Tags     models
//	@Produce  json
//	@Success  200 {object} types.ModelsResponse
//	@Router   /v1/models [get]
func handleModels(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, types.ModelsResponse{Models: svc.Models()})
	}
}

// handleStatus returns the full daemon status.
//
//	@Summary  Daemon status
//	@Tags     status
//	@Produce  json
//	@Success  200 {object} types.StatusResponse
//	@Router   /v1/status [get]
func handleStatus(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Status())
	}
}

// handleEvents returns recent manager events, newest last.
//
//	@Summary  Recent events
//	@Tags     status
//	@Produce  json
//	@Success  200 {object} map[string][]manager.Event
//	@Router   /v1/events [get]
func handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events := []manager.Event{}
		if eventSource != nil {
			events = eventSource.Events()
		}
		writeJSON(w, map[string]any{"events": events})
	}
}

// writeJSON writes v as a JSON response body.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON enforces content type and body size, then decodes into dst.
// On failure it writes the error response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
