package jsondoc

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation results used as the "result" label.
const (
	resultOK       = "ok"
	resultNotFound = "not_found"
	resultInvalid  = "invalid"
	resultRejected = "rejected"
	resultError    = "error"
)

// Metrics records store activity. A nil *Metrics records nothing.
type Metrics struct {
	ops      *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	lockWait *prometheus.HistogramVec
	records  *prometheus.GaugeVec
}

// NewMetrics creates the store collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jsondoc",
			Name:      "operations_total",
			Help:      "Record store operations by document, operation and result.",
		}, []string{"document", "op", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jsondoc",
			Name:      "operation_duration_seconds",
			Help:      "Record store operation latency, lock wait included.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"document", "op"}),
		lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jsondoc",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the document file lock.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"document", "mode"}),
		records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "jsondoc",
			Name:      "records",
			Help:      "Number of records seen in the document by the last operation.",
		}, []string{"document"}),
	}
	if reg != nil {
		reg.MustRegister(m.ops, m.latency, m.lockWait, m.records)
	}
	return m
}

func (m *Metrics) observeOp(doc, op string, start time.Time, err error, found bool) {
	if m == nil {
		return
	}
	result := resultOK
	switch {
	case errors.Is(err, ErrInvalidRecord):
		result = resultInvalid
	case errors.Is(err, errRejected):
		result = resultRejected
	case err != nil:
		result = resultError
	case !found:
		result = resultNotFound
	}
	m.ops.WithLabelValues(doc, op, result).Inc()
	m.latency.WithLabelValues(doc, op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) observeLockWait(doc string, mode lockMode, d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.WithLabelValues(doc, mode.String()).Observe(d.Seconds())
}

func (m *Metrics) setRecords(doc string, n int) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(doc).Set(float64(n))
}
