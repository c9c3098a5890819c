// Package metrics records reconciliation and mutation outcomes as
// Prometheus metrics on a private registry.
package metrics

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Result labels.
const (
	ResultOK           = "ok"
	ResultError        = "error"
	ResultPartial      = "partial"
	ResultInconsistent = "inconsistent"
	ResultRejected     = "rejected"
	ResultConfirmed    = "confirmed"
	ResultReverted     = "reverted"
)

// Recorder holds the curator collectors. A nil *Recorder records nothing,
// so callers never need to check.
type Recorder struct {
	registry   *prometheus.Registry
	batches    *prometheus.CounterVec
	operations *prometheus.CounterVec
	mutations  *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// New creates a Recorder with its collectors registered on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "curator_batches_total",
			Help: "Operation batches executed, by batch kind and result.",
		}, []string{"kind", "result"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "curator_operations_total",
			Help: "Store operations executed, by operation kind and result.",
		}, []string{"kind", "result"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "curator_mutations_total",
			Help: "Optimistic mutations settled, by field and result.",
		}, []string{"field", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "curator_batch_duration_seconds",
			Help:    "Wall time of batch execution.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	r.registry.MustRegister(r.batches, r.operations, r.mutations, r.duration)
	return r
}

// Registry returns the registry holding the collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveBatch records one executed batch.
func (r *Recorder) ObserveBatch(kind, result string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.batches.WithLabelValues(kind, result).Inc()
	r.duration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveOperation records one store operation.
func (r *Recorder) ObserveOperation(kind string, err error) {
	if r == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	r.operations.WithLabelValues(kind, result).Inc()
}

// ObserveMutation records one settled optimistic mutation.
func (r *Recorder) ObserveMutation(field, result string) {
	if r == nil {
		return
	}
	r.mutations.WithLabelValues(field, result).Inc()
}

// WriteText writes every collected metric family in the Prometheus text
// exposition format.
func (r *Recorder) WriteText(w io.Writer) error {
	if r == nil {
		return nil
	}
	families, err := r.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
