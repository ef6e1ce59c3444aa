package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/chazu/shockwave/pkg/slicer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics publishes carve progress to a private Prometheus registry. It
// implements slicer.Observer.
type Metrics struct {
	steps        *prometheus.CounterVec
	slices       prometheus.Counter
	slicedVolume prometheus.Counter
	stepDuration prometheus.Histogram
	progress     prometheus.Gauge
	runs         *prometheus.CounterVec

	registry *prometheus.Registry
}

var _ slicer.Observer = (*Metrics)(nil)

// NewMetrics creates the collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "carve_steps_total",
				Help:      "Total number of carve steps by resulting status",
			},
			[]string{"status"},
		),
		slices: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "slices_total",
				Help:      "Total number of slices emitted",
			},
		),
		slicedVolume: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sliced_volume_mm3_total",
				Help:      "Total volume emitted as slices in cubic millimetres",
			},
		),
		stepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "carve_step_duration_seconds",
				Help:      "Duration of carve steps in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
			},
		),
		progress: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "carve_progress_ratio",
				Help:      "Printed fraction of the input volume in the current run",
			},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "carve_runs_total",
				Help:      "Total number of finished carve runs by terminal status",
			},
			[]string{"status"},
		),
	}
	registry.MustRegister(m.steps, m.slices, m.slicedVolume, m.stepDuration, m.progress, m.runs)
	return m
}

// StepCompleted records one carve step.
func (m *Metrics) StepCompleted(r slicer.StepReport) {
	m.steps.WithLabelValues(r.Status.String()).Inc()
	m.stepDuration.Observe(r.Duration.Seconds())
	m.progress.Set(r.Progress)
	if r.SliceVolume > 0 {
		m.slices.Inc()
		m.slicedVolume.Add(r.SliceVolume)
	}
}

// CarveFinished records the terminal status of a run.
func (m *Metrics) CarveFinished(res *slicer.Result) {
	m.runs.WithLabelValues(res.Status.String()).Inc()
	m.progress.Set(res.Progress())
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
