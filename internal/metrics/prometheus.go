// Package metrics records what the service does: Prometheus collectors for
// live telemetry and a SQLite activity log for the dashboard stats.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

// Recorder exports store, preparation and batch metrics. A nil *Recorder
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	storeDuration   *prometheus.HistogramVec
	storeErrors     *prometheus.CounterVec
	uploadedBytes   prometheus.Counter
	prepareDuration *prometheus.HistogramVec
	prepareErrors   prometheus.Counter
	runs            *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	lateReports     *prometheus.CounterVec
}

// NewRecorder registers all collectors on reg. A nil reg gets a fresh
// registry with the Go and process collectors.
func NewRecorder(reg *prometheus.Registry) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	r := &Recorder{
		registry: reg,
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "objectstore",
			Name:      "operation_duration_seconds",
			Help:      "Latency of object store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "objectstore",
			Name:      "operation_errors_total",
			Help:      "Failed object store operations.",
		}, []string{"operation"}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "objectstore",
			Name:      "uploaded_bytes_total",
			Help:      "Bytes successfully written to the object store.",
		}),
		prepareDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "preparer",
			Name:      "duration_seconds",
			Help:      "Time to normalize one photo.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"cached"}),
		prepareErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "preparer",
			Name:      "errors_total",
			Help:      "Photos that failed to normalize.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submitter",
			Name:      "runs_total",
			Help:      "Finished batch runs by kind and outcome.",
		}, []string{"kind", "outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "submitter",
			Name:      "run_duration_seconds",
			Help:      "Time from issuing a batch to its resolution.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		lateReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submitter",
			Name:      "late_reports_total",
			Help:      "Operation reports observed after a run already failed.",
		}, []string{"kind"}),
	}

	errs := []error{
		register(reg, &r.storeDuration),
		register(reg, &r.storeErrors),
		register(reg, &r.uploadedBytes),
		register(reg, &r.prepareDuration),
		register(reg, &r.prepareErrors),
		register(reg, &r.runs),
		register(reg, &r.runDuration),
		register(reg, &r.lateReports),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r, nil
}

// register adds *c to reg, adopting the existing collector when an identical
// one is already registered.
func register[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	err := reg.Register(*c)
	if err == nil {
		return nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			*c = existing
			return nil
		}
	}
	return fmt.Errorf("register metric: %w", err)
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) RecordPut(d time.Duration, sizeBytes int, err error) {
	if r == nil {
		return
	}
	r.recordStore("put", d, err)
	if err == nil {
		r.uploadedBytes.Add(float64(sizeBytes))
	}
}

func (r *Recorder) RecordGet(d time.Duration, err error) {
	if r == nil {
		return
	}
	r.recordStore("get", d, err)
}

func (r *Recorder) RecordDelete(d time.Duration, err error) {
	if r == nil {
		return
	}
	r.recordStore("delete", d, err)
}

func (r *Recorder) recordStore(op string, d time.Duration, err error) {
	r.storeDuration.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		r.storeErrors.WithLabelValues(op).Inc()
	}
}

func (r *Recorder) RecordPrepare(d time.Duration, cached bool, err error) {
	if r == nil {
		return
	}
	label := "false"
	if cached {
		label = "true"
	}
	r.prepareDuration.WithLabelValues(label).Observe(d.Seconds())
	if err != nil {
		r.prepareErrors.Inc()
	}
}

// RecordRun tracks one resolved batch. late is the number of reports that
// arrived after a failure resolution.
func (r *Recorder) RecordRun(kind string, d time.Duration, success bool, late int) {
	if r == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	r.runs.WithLabelValues(kind, outcome).Inc()
	r.runDuration.WithLabelValues(kind).Observe(d.Seconds())
	if late > 0 {
		r.lateReports.WithLabelValues(kind).Add(float64(late))
	}
}
