package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени заняла операция целиком (включая ожидание апрува)
	OperationDuration *prometheus.HistogramVec

	// Traffic: общее кол-во операций через шлюз
	TotalOperations *prometheus.CounterVec

	// Итоги HITL-контура: APPROVED / DENIED / EXPIRED / TIMEOUT
	ApprovalOutcomes *prometheus.CounterVec

	// Сигналы authority на опросах (granted, pending, congested, denied, expired)
	PollSignals *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker к authority (0 - ок, 1 - выбило)
	CircuitBreakerState prometheus.Gauge

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		OperationDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tag_operation_duration_seconds",
			Help:    "Histogram of end-to-end operation latencies.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"kind", "outcome"}),

		TotalOperations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "tag_operations_total",
			Help: "Total number of processed treasury operations.",
		}, []string{"kind"}),

		ApprovalOutcomes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "tag_approval_outcomes_total",
			Help: "Terminal outcomes of approval waits by type.",
		}, []string{"outcome"}), // APPROVED, DENIED, EXPIRED, TIMEOUT

		PollSignals: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "tag_backchannel_poll_signals_total",
			Help: "Signals returned by the backchannel authority on polls.",
		}, []string{"signal"}),

		CircuitBreakerState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "tag_backchannel_circuit_breaker_state",
			Help: "Current state of the authority circuit breaker (0=closed, 1=open).",
		}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "tag_audit_buffer_utilization",
			Help: "Current number of events in audit buffer.",
		}),
	}
}
