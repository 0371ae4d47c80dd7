package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coinflip",
			Name:      "requests_total",
			Help:      "Total number of RPC requests.",
		},
		[]string{"op", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coinflip",
			Name:      "request_duration_seconds",
			Help:      "Latency of RPC requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 13),
		},
		[]string{"op"},
	)

	RoundsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coinflip",
			Name:      "rounds_total",
			Help:      "Consensus rounds executed across all local agents.",
		},
	)

	VotesCollected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coinflip",
			Name:      "votes_collected_total",
			Help:      "Peer opinions that entered a round tally.",
		},
	)

	VotesDiscarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coinflip",
			Name:      "votes_discarded_total",
			Help:      "Peer queries discarded for timeout, error or null opinion.",
		},
	)

	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coinflip",
			Name:      "decisions_total",
			Help:      "Local decisions reached, by value.",
		},
		[]string{"value"},
	)

	BroadcastFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coinflip",
			Name:      "broadcast_failures_total",
			Help:      "Peers that could not be reached after retry exhaustion.",
		},
	)

	UpdatesApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coinflip",
			Name:      "updates_applied_total",
			Help:      "Inbound peer updates adopted into local state.",
		},
	)

	UpdatesIgnored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coinflip",
			Name:      "updates_ignored_total",
			Help:      "Inbound peer updates dropped as equal-or-older than the local round.",
		},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "coinflip",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		RequestsTotal, RequestDuration,
		RoundsTotal, VotesCollected, VotesDiscarded,
		DecisionsTotal, BroadcastFailures,
		UpdatesApplied, UpdatesIgnored,
		uptime,
	)
}

// MetricsHandler exposes the registry; mount it on /metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps an http.Handler to record request metrics under the
// provided "op" label.
func Instrument(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()

		next.ServeHTTP(sw, r)

		class := strconv.Itoa(sw.status/100) + "xx"
		RequestsTotal.WithLabelValues(op, class).Inc()
		RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	})
}
