// Package metrics exposes Prometheus collectors for backup runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/semmidev/dumpvault/internal/domain"
)

type Metrics struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	artifactBytes *prometheus.GaugeVec
	uploadsTotal  *prometheus.CounterVec
	evictedTotal  *prometheus.CounterVec
	rejectedTotal prometheus.Counter
	nextRun       prometheus.Gauge
}

// New registers every collector on a fresh registry, so several instances
// can coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dumpvault_backup_runs_total",
			Help: "Backup runs by database and outcome",
		}, []string{"database", "status"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dumpvault_backup_duration_seconds",
			Help:    "Duration of single-database backup runs",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200},
		}, []string{"database"}),
		artifactBytes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dumpvault_last_artifact_bytes",
			Help: "Size of the most recent artifact per database",
		}, []string{"database"}),
		uploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dumpvault_uploads_total",
			Help: "Artifact uploads by target and outcome",
		}, []string{"target", "status"}),
		evictedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dumpvault_evicted_artifacts_total",
			Help: "Artifacts removed by retention",
		}, []string{"database"}),
		rejectedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "dumpvault_rejected_runs_total",
			Help: "Triggers rejected because a backup was already in progress",
		}),
		nextRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dumpvault_scheduler_next_run_timestamp_seconds",
			Help: "Unix time of the next scheduled run, 0 when not scheduled",
		}),
	}
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// ObserveResult records one finished single-database run.
func (m *Metrics) ObserveResult(result *domain.BackupResult) {
	m.runsTotal.WithLabelValues(result.Database, status(result.Success)).Inc()
	m.runDuration.WithLabelValues(result.Database).Observe(result.Duration.Seconds())

	if result.Artifact != nil {
		m.artifactBytes.WithLabelValues(result.Database).Set(float64(result.Artifact.Size))
	}
	for target, ok := range result.Uploads {
		m.uploadsTotal.WithLabelValues(target, status(ok)).Inc()
	}
	if result.Evicted > 0 {
		m.evictedTotal.WithLabelValues(result.Database).Add(float64(result.Evicted))
	}
}

func (m *Metrics) ObserveRejected() {
	m.rejectedTotal.Inc()
}

func (m *Metrics) SetNextRun(t time.Time) {
	if t.IsZero() {
		m.nextRun.Set(0)
		return
	}
	m.nextRun.Set(float64(t.Unix()))
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger domain.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Metrics listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
