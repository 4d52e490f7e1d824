// Package metrics exports store operation metrics to Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements store.MetricsRecorder on a Prometheus registry.
type Recorder struct {
	reg      *prometheus.Registry
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
	retries  *prometheus.CounterVec
}

// New registers the lifecycle collectors on reg. A nil reg gets a fresh
// registry, which keeps tests independent of the global default.
func New(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		ops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lifecycle",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Store operations by outcome. result is ok or the lowercased error code.",
		}, []string{"operation", "result"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lifecycle",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Store operation latency including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"operation"}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lifecycle",
			Subsystem: "store",
			Name:      "retries_total",
			Help:      "Atomic units retried after losing a write or identifier race.",
		}, []string{"reason"}),
	}
}

// ObserveOperation records one finished store operation.
func (r *Recorder) ObserveOperation(op, result string, d time.Duration) {
	r.ops.WithLabelValues(op, result).Inc()
	r.duration.WithLabelValues(op).Observe(d.Seconds())
}

// IncRetry counts one retried unit.
func (r *Recorder) IncRetry(reason string) {
	r.retries.WithLabelValues(reason).Inc()
}

// Registry returns the registry the collectors live on.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	logger.Info("metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
