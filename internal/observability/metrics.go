package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "climate_features"

// Metrics holds the Prometheus counters, histograms, and gauges for the prediction service.
type Metrics struct {
	RequestsConsumed    prometheus.Counter
	PredictionsProduced prometheus.Counter
	TransformErrors     prometheus.Counter
	PipelineRunning     prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Feature synthesis and prediction metrics.
	AlignmentErrors    prometheus.Counter
	SynthesisGaps      *prometheus.CounterVec // labels: feature
	PredictionOutcomes *prometheus.CounterVec // labels: label={favorable,unfavorable}

	// Schema metrics.
	SchemaFeatures   prometheus.Gauge
	SchemaLoads      *prometheus.CounterVec // labels: result={hit,miss,error}
	SchemaRejections prometheus.Counter     // version differs from the model's

	// Recorder metrics.
	RecorderErrors prometheus.Counter
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		RequestsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_consumed_total",
			Help:      help("Total inference requests read from the source topic."),
		}),
		PredictionsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_produced_total",
			Help:      help("Total predictions written to the sink topic."),
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      help("Total requests that could not be turned into a prediction."),
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      help("1 when the pipeline is active, 0 when shut down."),
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      help("Number of requests per batch extracted from Kafka."),
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      help("Duration of a complete batch extract-predict-load cycle."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		AlignmentErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alignment_errors_total",
			Help:      help("Requests rejected because the vector did not match the model's schema."),
		}),
		SynthesisGaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_gaps_total",
			Help:      help("Schema entries zero-filled during synthesis, by feature."),
		}, []string{"feature"}),
		PredictionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_outcomes_total",
			Help:      help("Predictions by label."),
		}, []string{"label"}),
		SchemaFeatures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "schema_features",
			Help:      help("Number of features in the current schema."),
		}),
		SchemaLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_loads_total",
			Help:      help("Schema lookups by result."),
		}, []string{"result"}),
		SchemaRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_rejections_total",
			Help:      help("Loaded schemas not served because their version differs from the model's."),
		}),
		RecorderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recorder_errors_total",
			Help:      help("Predictions that could not be recorded."),
		}),
	}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.RequestsConsumed,
		m.PredictionsProduced,
		m.TransformErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.AlignmentErrors,
		m.SynthesisGaps,
		m.PredictionOutcomes,
		m.SchemaFeatures,
		m.SchemaLoads,
		m.SchemaRejections,
		m.RecorderErrors,
	)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}
