package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the metrics collaborator injected into handler.Handler and
// stmt.Stmt. Implementations must tolerate a nil receiver so callers that
// do not want metrics can pass a nil *PromMetrics without a type switch,
// mirroring the nil-receiver-safe pattern used throughout the sampled
// sources' own Prometheus collaborators.
type Metrics interface {
	MessageDecoded(msgType string)
	BindError(reason string)
	RowsStreamed(n int)
	QueryOutcome(outcome string) // "partial" or "done"
}

// PromMetrics is the default Metrics, registering counters under the
// "sqlited_" prefix. All methods handle a nil receiver gracefully, so a
// nil *PromMetrics acts as a no-op collaborator.
type PromMetrics struct {
	MessagesDecoded *prometheus.CounterVec
	BindErrors      *prometheus.CounterVec
	RowsStreamed    prometheus.Counter
	QueryOutcomes   *prometheus.CounterVec
}

var (
	promMetricsOnce     sync.Once
	promMetricsInstance *PromMetrics
)

// NewPromMetrics creates and registers the default metrics. If
// registerer is nil, prometheus.DefaultRegisterer is used. Idempotent:
// repeated calls return the same registered instance.
func NewPromMetrics(registerer prometheus.Registerer) *PromMetrics {
	promMetricsOnce.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}
		m := &PromMetrics{
			MessagesDecoded: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sqlited_messages_decoded_total",
					Help: "Total messages decoded by type",
				},
				[]string{"type"},
			),
			BindErrors: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sqlited_bind_errors_total",
					Help: "Total parameter bind failures by reason",
				},
				[]string{"reason"},
			),
			RowsStreamed: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "sqlited_rows_streamed_total",
					Help: "Total row records written to the wire",
				},
			),
			QueryOutcomes: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sqlited_query_outcomes_total",
					Help: "Total Stmt.Query outcomes by kind (partial, done)",
				},
				[]string{"outcome"},
			),
		}
		registerer.MustRegister(m.MessagesDecoded, m.BindErrors, m.RowsStreamed, m.QueryOutcomes)
		promMetricsInstance = m
	})
	return promMetricsInstance
}

// MessageDecoded records a successfully decoded message by its type name.
func (m *PromMetrics) MessageDecoded(msgType string) {
	if m == nil {
		return
	}
	m.MessagesDecoded.WithLabelValues(msgType).Inc()
}

// BindError records a parameter bind failure by reason.
func (m *PromMetrics) BindError(reason string) {
	if m == nil {
		return
	}
	m.BindErrors.WithLabelValues(reason).Inc()
}

// RowsStreamed records n row records written to the wire.
func (m *PromMetrics) RowsStreamed(n int) {
	if m == nil {
		return
	}
	m.RowsStreamed.Add(float64(n))
}

// QueryOutcome records a Stmt.Query outcome ("partial" or "done").
func (m *PromMetrics) QueryOutcome(outcome string) {
	if m == nil {
		return
	}
	m.QueryOutcomes.WithLabelValues(outcome).Inc()
}
