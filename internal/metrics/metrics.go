// Package metrics defines Prometheus gauges and counters for the job queue
// and capture pipeline, plus a Server exposing them on /metrics via
// promhttp.Handler. No other package in this module updates these metrics
// or starts the Server, and the CLI has no flag for a metrics address.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ternarybob/arbor"
)

var (
	JobsPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "netwatch_jobs_pending",
		Help: "Number of jobs currently PENDING in the job queue.",
	})

	JobsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "netwatch_jobs_running",
		Help: "Number of jobs currently RUNNING in the job queue.",
	})

	JobsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netwatch_jobs_completed_total",
		Help: "Total number of jobs that reached COMPLETED.",
	})

	JobsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netwatch_jobs_failed_total",
		Help: "Total number of jobs that reached FAILED.",
	})

	JobsDeadLetteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netwatch_jobs_dead_lettered_total",
		Help: "Total number of jobs migrated to the dead-letter table.",
	})

	CaptureDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "netwatch_capture_duration_seconds",
		Help:    "Wall-clock duration of one CaptureService run, state entry to COMPLETE/FAILED.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	CapturesBlockedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netwatch_captures_blocked_total",
		Help: "Total number of captures the Validator classified as blocked, by reason.",
	}, []string{"reason"})

	DomainLearnerSamplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netwatch_domain_learner_samples_total",
		Help: "Total number of Thompson Sampling draws, by domain and outcome.",
	}, []string{"domain", "success"})
)

// ObserveCapture records the duration of one finished capture.
func ObserveCapture(d time.Duration) {
	CaptureDurationSeconds.Observe(d.Seconds())
}

// Server wraps an HTTP listener exposing /metrics via promhttp.
type Server struct {
	httpServer *http.Server
	logger     arbor.ILogger
}

// NewServer constructs a metrics HTTP server bound to addr. It does not
// start listening until Start is called.
func NewServer(addr string, logger arbor.ILogger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		logger:     logger,
	}
}

// Start runs the metrics server in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("metrics http server starting")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Warn().Err(err).Msg("metrics http server error")
		}
	}()
}

// Shutdown gracefully stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
