// Package metrics provides Prometheus metrics for a packaging run.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/gaps"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/repair"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "grid_timeseries"

// Metrics holds all Prometheus metrics of a run.
type Metrics struct {
	registry *prometheus.Registry

	// Source metrics
	FilesRead    *prometheus.CounterVec
	FilesSkipped *prometheus.CounterVec
	SourceErrors *prometheus.CounterVec

	// Dataset metrics
	Series     *prometheus.GaugeVec
	GridLength *prometheus.GaugeVec

	// Gap metrics
	GapRuns       *prometheus.CounterVec
	GapLength     *prometheus.HistogramVec
	RunsPatched   *prometheus.CounterVec
	RunsUnpatched *prometheus.CounterVec

	// Output metrics
	OutputBytes *prometheus.GaugeVec

	// Timing metrics
	StageDuration *prometheus.HistogramVec
	RunDuration   prometheus.Gauge
	LastSuccess   prometheus.Gauge
}

// Config holds metrics configuration.
type Config struct {
	Enabled  bool
	Address  string // address for the scrape server, e.g. ":9090"
	Textfile string // node exporter textfile written at the end of the run
}

// New registers all metrics on a fresh registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		FilesRead: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_read_total",
				Help:      "Total number of raw files read",
			},
			[]string{"source"},
		),
		FilesSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_skipped_total",
				Help:      "Total number of raw files skipped as too small",
			},
			[]string{"source"},
		),
		SourceErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_errors_total",
				Help:      "Total number of raw file read errors",
			},
			[]string{"source"},
		),
		Series: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "series",
				Help:      "Number of series per resolution",
			},
			[]string{"resolution"},
		),
		GridLength: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "grid_length",
				Help:      "Number of timestamps per resolution",
			},
			[]string{"resolution"},
		),
		GapRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gap_runs_total",
				Help:      "Total number of gap runs detected",
			},
			[]string{"resolution", "pass"},
		),
		GapLength: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gap_run_steps",
				Help:      "Length of gap runs in grid steps",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1 to ~8k steps
			},
			[]string{"resolution", "pass"},
		),
		RunsPatched: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_patched_total",
				Help:      "Total number of gap runs patched",
			},
			[]string{"resolution", "strategy"},
		),
		RunsUnpatched: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_unpatched_total",
				Help:      "Total number of gap runs left missing",
			},
			[]string{"resolution", "reason"},
		),
		OutputBytes: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "output_bytes",
				Help:      "Size of published outputs in bytes",
			},
			[]string{"key"},
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Time spent per pipeline stage",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~160s
			},
			[]string{"stage"},
		),
		RunDuration: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of the last run",
			},
		),
		LastSuccess: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful run",
			},
		),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveDataset sets the size gauges of ds.
func (m *Metrics) ObserveDataset(ds *timeseries.Dataset) {
	res := string(ds.Resolution)
	m.Series.WithLabelValues(res).Set(float64(ds.Len()))
	m.GridLength.WithLabelValues(res).Set(float64(ds.Grid().Len))
}

// ObserveReport counts the runs of a gap report.
func (m *Metrics) ObserveReport(r *gaps.Report) {
	res, pass := string(r.Resolution), string(r.Pass)
	runs := m.GapRuns.WithLabelValues(res, pass)
	length := m.GapLength.WithLabelValues(res, pass)
	for _, l := range r.Labels() {
		for _, run := range r.Runs(l) {
			runs.Inc()
			length.Observe(float64(run.Length))
		}
	}
}

// Record counts a repair outcome.
func (m *Metrics) Record(_ context.Context, o repair.Outcome) error {
	res := string(o.Resolution)
	if o.Patched {
		m.RunsPatched.WithLabelValues(res, string(o.Strategy)).Inc()
	} else {
		m.RunsUnpatched.WithLabelValues(res, o.Reason).Inc()
	}
	return nil
}

// ObserveStage records the duration of a pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Finish records the run duration and, on success, its completion time.
func (m *Metrics) Finish(d time.Duration, ok bool) {
	m.RunDuration.Set(d.Seconds())
	if ok {
		m.LastSuccess.SetToCurrentTime()
	}
}

// WriteTextfile writes all metrics to path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// Handler returns the scrape handler of the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs an HTTP server for Prometheus scraping until ctx is done.
func (m *Metrics) Serve(ctx context.Context, address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
