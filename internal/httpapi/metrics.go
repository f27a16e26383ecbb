package httpapi

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voiced",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "voiced",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	httpInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "voiced",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests",
		},
		[]string{"path"},
	)

	streamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voiced",
			Subsystem: "http",
			Name:      "streams_total",
			Help:      "Streaming responses started, by kind",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpInflight, streamsTotal, newManagerCollector())
}

// managerSource feeds the manager-level collector. Optional; unset means
// those series are absent from /metrics.
var managerSource Service

// SetMetricsSource installs the service whose Status is snapshotted on
// each scrape.
func SetMetricsSource(svc Service) { managerSource = svc }

// managerCollector exports manager state without keeping counters of its
// own: every scrape reads a fresh Status snapshot.
type managerCollector struct {
	loadedModels   *prometheus.Desc
	fallbackActive *prometheus.Desc
	rankSize       *prometheus.Desc
	loadsTotal     *prometheus.Desc
	fallbacksTotal *prometheus.Desc
}

func newManagerCollector() *managerCollector {
	return &managerCollector{
		loadedModels: prometheus.NewDesc(
			prometheus.BuildFQName("voiced", "manager", "loaded_models"),
			"Logical models with a ready handle", nil, nil,
		),
		fallbackActive: prometheus.NewDesc(
			prometheus.BuildFQName("voiced", "manager", "fallback_active"),
			"Logical models currently served by a fallback identifier", nil, nil,
		),
		rankSize: prometheus.NewDesc(
			prometheus.BuildFQName("voiced", "manager", "capability_rank_size"),
			"Device capabilities in the ranked list", nil, nil,
		),
		loadsTotal: prometheus.NewDesc(
			prometheus.BuildFQName("voiced", "manager", "loads_total"),
			"Total successful model loads", nil, nil,
		),
		fallbacksTotal: prometheus.NewDesc(
			prometheus.BuildFQName("voiced", "manager", "fallbacks_total"),
			"Total loads that succeeded via the fallback plan", nil, nil,
		),
	}
}

func (c *managerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.loadedModels
	ch <- c.fallbackActive
	ch <- c.rankSize
	ch <- c.loadsTotal
	ch <- c.fallbacksTotal
}

func (c *managerCollector) Collect(ch chan<- prometheus.Metric) {
	svc := managerSource
	if svc == nil {
		return
	}
	st := svc.Status()
	ready, fallback := 0, 0
	for _, ms := range st.Models {
		if ms.State == "ready" {
			ready++
		}
		if ms.Fallback {
			fallback++
		}
	}
	ch <- prometheus.MustNewConstMetric(c.loadedModels, prometheus.GaugeValue, float64(ready))
	ch <- prometheus.MustNewConstMetric(c.fallbackActive, prometheus.GaugeValue, float64(fallback))
	ch <- prometheus.MustNewConstMetric(c.rankSize, prometheus.GaugeValue, float64(len(st.Ranked)))
	ch <- prometheus.MustNewConstMetric(c.loadsTotal, prometheus.CounterValue, float64(st.LoadsTotal))
	ch <- prometheus.MustNewConstMetric(c.fallbacksTotal, prometheus.CounterValue, float64(st.FallbacksTotal))
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
// Flush and Hijack pass through so NDJSON streaming and websocket
// upgrades keep working behind the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// MetricsMiddleware instruments requests for Prometheus.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := routePatternOrPath(r)
		method := r.Method
		httpInflight.WithLabelValues(path).Inc()
		defer httpInflight.WithLabelValues(path).Dec()

		sr := &statusRecorder{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(sr, r)
		statusLabel := itoa(sr.status)
		dur := time.Since(start).Seconds()
		httpRequestsTotal.WithLabelValues(path, method, statusLabel).Inc()
		httpRequestDuration.WithLabelValues(path, method, statusLabel).Observe(dur)
	})
}

// routePatternOrPath returns the chi route pattern if available, otherwise
// falls back to URL path. This avoids high-cardinality label values.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// countStream is called when a streaming response (NDJSON or websocket)
// begins.
func countStream(kind string) {
	streamsTotal.WithLabelValues(kind).Inc()
}

// fast integer to ascii for small set of status codes
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [4]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
