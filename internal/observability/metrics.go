// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// All Record* methods are safe on a nil receiver.
type Metrics struct {
	// Pipeline metrics
	PipelineRunsTotal  *prometheus.CounterVec
	PipelineDuration   *prometheus.HistogramVec
	RecordsNormalized  prometheus.Counter
	RecordsDropped     prometheus.Counter
	ModelAccuracy      *prometheus.GaugeVec
	TrainingSamples    prometheus.Gauge
	ReportsGenerated   prometheus.Counter
	PredictionsServed  *prometheus.CounterVec
	SnapshotsPublished prometheus.Counter

	// Data source metrics
	SourceCallLatency *prometheus.HistogramVec
	SourceErrors      *prometheus.CounterVec
	LatestBlockSeen   prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Dashboard metrics
	WSClients prometheus.Gauge

	// Health metrics
	LastSuccessfulRefresh prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "defi_risk_lab"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		// Pipeline metrics
		PipelineRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline phase executions by status",
		}, []string{"phase", "status"}),
		PipelineDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Pipeline phase duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"phase"}),
		RecordsNormalized: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "records_normalized_total",
			Help:      "Total number of records that passed normalization",
		}),
		RecordsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "records_dropped_total",
			Help:      "Total number of malformed records dropped by normalization",
		}),
		ModelAccuracy: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "accuracy",
			Help:      "Accuracy of the latest trained model by evaluation mode",
		}, []string{"evaluation"}),
		TrainingSamples: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "training_samples",
			Help:      "Number of samples the latest model was fit on",
		}),
		ReportsGenerated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "reports_generated_total",
			Help:      "Total number of reports generated",
		}),
		PredictionsServed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "predictions_total",
			Help:      "Total number of predictions served by label",
		}, []string{"label"}),
		SnapshotsPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "snapshots_published_total",
			Help:      "Total number of snapshots published to the dashboard",
		}),

		// Data source metrics
		SourceCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "datasource",
			Name:      "call_latency_seconds",
			Help:      "Data source call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		SourceErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "datasource",
			Name:      "errors_total",
			Help:      "Total number of data source errors",
		}, []string{"source"}),
		LatestBlockSeen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "latest_block",
			Help:      "Latest Ethereum block number observed",
		}),

		// Database metrics
		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Dashboard metrics
		WSClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "ws_clients",
			Help:      "Number of connected websocket clients",
		}),

		// Health metrics
		LastSuccessfulRefresh: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_refresh_timestamp",
			Help:      "Unix timestamp of last successful pipeline refresh",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordPipelineRun records one phase execution.
func (m *Metrics) RecordPipelineRun(phase, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.PipelineRunsTotal.WithLabelValues(phase, status).Inc()
	m.PipelineDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordNormalization records normalization outcome counts.
func (m *Metrics) RecordNormalization(kept, dropped int) {
	if m == nil {
		return
	}
	m.RecordsNormalized.Add(float64(kept))
	m.RecordsDropped.Add(float64(dropped))
}

// RecordModel records the latest trained model.
func (m *Metrics) RecordModel(evaluation string, accuracy float64, samples int) {
	if m == nil {
		return
	}
	m.ModelAccuracy.WithLabelValues(evaluation).Set(accuracy)
	m.TrainingSamples.Set(float64(samples))
}

// RecordPrediction increments the prediction counter for label.
func (m *Metrics) RecordPrediction(label string) {
	if m == nil {
		return
	}
	m.PredictionsServed.WithLabelValues(label).Inc()
}

// RecordSourceCall records data source latency and errors.
func (m *Metrics) RecordSourceCall(source string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.SourceCallLatency.WithLabelValues(source).Observe(d.Seconds())
	if err != nil {
		m.SourceErrors.WithLabelValues(source).Inc()
	}
}

// RecordBlock updates the latest block gauge.
func (m *Metrics) RecordBlock(number uint64) {
	if m == nil {
		return
	}
	m.LatestBlockSeen.Set(float64(number))
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(d.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordRefresh marks a successful refresh at t.
func (m *Metrics) RecordRefresh(t time.Time) {
	if m == nil {
		return
	}
	m.SnapshotsPublished.Inc()
	m.LastSuccessfulRefresh.Set(float64(t.Unix()))
}

// RecordReport increments the reports generated counter.
func (m *Metrics) RecordReport() {
	if m == nil {
		return
	}
	m.ReportsGenerated.Inc()
}

// SetWSClients sets the connected websocket client gauge.
func (m *Metrics) SetWSClients(n int) {
	if m == nil {
		return
	}
	m.WSClients.Set(float64(n))
}

// RecordDBQuery records database query metrics on DefaultMetrics.
func RecordDBQuery(database, operation string, d time.Duration, err error) {
	DefaultMetrics.RecordDBQuery(database, operation, d, err)
}

// RecordSourceCall records data source metrics on DefaultMetrics.
func RecordSourceCall(source string, d time.Duration, err error) {
	DefaultMetrics.RecordSourceCall(source, d, err)
}
