package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	askRequestsTotal      *prometheus.CounterVec
	askDuration           *prometheus.HistogramVec
	askBranchTotal        *prometheus.CounterVec
	askFindingsTotal      *prometheus.CounterVec
	guardrailBlockedTotal *prometheus.CounterVec
	resolvedEntities      *prometheus.HistogramVec
	retrievedSources      *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eqc",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eqc",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "eqc",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	askRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eqc",
			Subsystem: "ask",
			Name:      "requests_total",
			Help:      "Total answered ask requests by routed intent.",
		},
		[]string{"service", "intent", "company_specific"},
	)
	askDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eqc",
			Subsystem: "ask",
			Name:      "duration_seconds",
			Help:      "Ask pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "intent"},
	)
	askBranchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eqc",
			Subsystem: "ask",
			Name:      "branch_total",
			Help:      "Branch executions by outcome.",
		},
		[]string{"service", "branch", "outcome"},
	)
	askFindingsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eqc",
			Subsystem: "ask",
			Name:      "findings_total",
			Help:      "Structured pipeline findings by code.",
		},
		[]string{"service", "code"},
	)
	guardrailBlockedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eqc",
			Subsystem: "sql",
			Name:      "guardrail_blocked_total",
			Help:      "Candidate SQL statements rejected by the guardrail.",
		},
		[]string{"service", "error_code"},
	)
	resolvedEntities := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eqc",
			Subsystem: "ask",
			Name:      "resolved_entities",
			Help:      "Distribution of resolved entities per request.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		},
		[]string{"service"},
	)
	retrievedSources := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eqc",
			Subsystem: "rag",
			Name:      "sources_returned",
			Help:      "Distribution of returned sources per answered request.",
			Buckets:   []float64{0, 1, 2, 3},
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		askRequestsTotal,
		askDuration,
		askBranchTotal,
		askFindingsTotal,
		guardrailBlockedTotal,
		resolvedEntities,
		retrievedSources,
	)

	return &HTTPServerMetrics{
		registry:              registry,
		requestTotal:          requestTotal,
		requestDuration:       requestDuration,
		requestInFlight:       requestInFlight,
		askRequestsTotal:      askRequestsTotal,
		askDuration:           askDuration,
		askBranchTotal:        askBranchTotal,
		askFindingsTotal:      askFindingsTotal,
		guardrailBlockedTotal: guardrailBlockedTotal,
		resolvedEntities:      resolvedEntities,
		retrievedSources:      retrievedSources,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := r.URL.Path
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func (m *HTTPServerMetrics) RecordAskObservation(service, intent string, companySpecific bool, entityCount, sourceCount int, duration time.Duration) {
	if intent == "" {
		intent = "unknown"
	}
	m.askRequestsTotal.WithLabelValues(service, intent, strconv.FormatBool(companySpecific)).Inc()
	m.askDuration.WithLabelValues(service, intent).Observe(duration.Seconds())
	m.resolvedEntities.WithLabelValues(service).Observe(float64(entityCount))
	m.retrievedSources.WithLabelValues(service).Observe(float64(sourceCount))
}

func (m *HTTPServerMetrics) RecordBranchOutcome(service, branch string, success bool) {
	outcome := "degraded"
	if success {
		outcome = "ok"
	}
	m.askBranchTotal.WithLabelValues(service, branch, outcome).Inc()
}

func (m *HTTPServerMetrics) RecordFinding(service, code string) {
	if code == "" {
		code = "unknown"
	}
	m.askFindingsTotal.WithLabelValues(service, code).Inc()
}

func (m *HTTPServerMetrics) RecordGuardrailBlock(service, errorCode string) {
	if errorCode == "" {
		errorCode = "unknown"
	}
	m.guardrailBlockedTotal.WithLabelValues(service, errorCode).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
