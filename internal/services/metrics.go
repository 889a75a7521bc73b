package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// WebSocket metrics
	WebSocketConnections prometheus.Gauge

	// Ingest pipeline metrics
	RecordsIngested prometheus.Counter
	IngestDuration  prometheus.Histogram
	ParsesByTier    *prometheus.CounterVec
	ParseFailures   prometheus.Counter

	// Reconciliation metrics
	ReconciliationConflicts prometheus.Counter
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	metrics := &Metrics{
		// WebSocket active connections (gauge - can go up and down)
		WebSocketConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "timeagent_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		}),

		// Ingested records counter
		RecordsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "timeagent_records_ingested_total",
			Help: "Total number of time records created from free-text input",
		}),

		// Ingest pipeline latency histogram
		IngestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "timeagent_ingest_duration_seconds",
			Help:    "End-to-end ingest latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30}, // up to 30s for LLM fallback
		}),

		// Successful parses by tier (rules / llm)
		ParsesByTier: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "timeagent_parses_total",
			Help: "Total number of successful parses by parser tier",
		}, []string{"tier"}),

		// Inputs neither tier could parse
		ParseFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "timeagent_parse_failures_total",
			Help: "Total number of inputs no parser tier could handle",
		}),

		// Reconciliation lock waits that timed out
		ReconciliationConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "timeagent_reconciliation_conflicts_total",
			Help: "Total number of operations rejected on goal lock contention",
		}),
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}

// RecordWebSocketConnect records a new WebSocket connection
func (m *Metrics) RecordWebSocketConnect() {
	m.WebSocketConnections.Inc()
}

// RecordWebSocketDisconnect records a WebSocket disconnection
func (m *Metrics) RecordWebSocketDisconnect() {
	m.WebSocketConnections.Dec()
}
