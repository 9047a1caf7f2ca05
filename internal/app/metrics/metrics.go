package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the bridge-layer Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bridge_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridge_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bridge_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	bridgesInitiated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridge_layer",
			Subsystem: "bridge",
			Name:      "initiated_total",
			Help:      "Total number of bridge initiations.",
		},
		[]string{"target_chain", "result"},
	)

	bridgesCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bridge_layer",
			Subsystem: "bridge",
			Name:      "completed_total",
			Help:      "Total number of bridge requests confirmed complete.",
		},
	)

	bridgeFees = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bridge_layer",
			Subsystem: "bridge",
			Name:      "fee_paid",
			Help:      "Fee attached to accepted bridge initiations, in base units.",
			Buckets:   prometheus.ExponentialBuckets(1000, 10, 8),
		},
	)

	messagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridge_layer",
			Subsystem: "messages",
			Name:      "processed_total",
			Help:      "Total number of inbound deliveries by outcome.",
		},
		[]string{"outcome"},
	)

	messageDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bridge_layer",
			Subsystem: "messages",
			Name:      "processing_duration_seconds",
			Help:      "Duration of inbound message processing.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	locksHeld = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bridge_layer",
			Subsystem: "registry",
			Name:      "locks_held",
			Help:      "Current number of locked assets.",
		},
	)

	retryBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bridge_layer",
			Subsystem: "messages",
			Name:      "retry_backlog",
			Help:      "Failed deliveries awaiting retry.",
		},
	)

	pendingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bridge_layer",
			Subsystem: "bridge",
			Name:      "pending_requests",
			Help:      "Bridge requests awaiting remote confirmation.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		bridgesInitiated,
		bridgesCompleted,
		bridgeFees,
		messagesProcessed,
		messageDuration,
		locksHeld,
		retryBacklog,
		pendingRequests,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordBridgeInitiated records one bridge initiation attempt.
func RecordBridgeInitiated(targetChain string, fee int64, err error) {
	result := "accepted"
	if err != nil {
		result = "rejected"
	}
	bridgesInitiated.WithLabelValues(targetChain, result).Inc()
	if err == nil {
		bridgeFees.Observe(float64(fee))
	}
}

// RecordBridgeCompleted records one confirmed bridge completion.
func RecordBridgeCompleted() {
	bridgesCompleted.Inc()
}

// RecordMessage records one inbound delivery with its outcome
// (processed, deduped, failed, retried).
func RecordMessage(outcome string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	messagesProcessed.WithLabelValues(outcome).Inc()
	messageDuration.Observe(duration.Seconds())
}

// SetLocksHeld updates the locked-asset gauge.
func SetLocksHeld(n int) {
	locksHeld.Set(float64(n))
}

// SetRetryBacklog updates the retry backlog gauge.
func SetRetryBacklog(n int) {
	retryBacklog.Set(float64(n))
}

// SetPendingRequests updates the pending-request gauge.
func SetPendingRequests(n int) {
	pendingRequests.Set(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "bridge":
		if len(parts) >= 2 && parts[1] == "requests" {
			if len(parts) == 2 {
				return "/bridge/requests"
			}
			return "/bridge/requests/:id"
		}
		return "/bridge"
	case "registry":
		if len(parts) >= 2 {
			return "/registry/" + parts[1]
		}
		return "/registry"
	case "messages":
		if len(parts) >= 2 {
			return "/messages/" + parts[1]
		}
		return "/messages"
	default:
		return "/" + parts[0]
	}
}
