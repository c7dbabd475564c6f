// Package metrics provides a telemetry sink for the ingestion and
// categorization services. Components receive a Recorder by reference
// instead of emitting events themselves.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the telemetry sink interface passed to services.
type Recorder interface {
	RecordIngestedRecord(status string)
	RecordIngestDuration(d time.Duration)
	RecordCategorization(source string)
	RecordCategorizeBatch(d time.Duration, llmUsed int)
	RecordLLMFailure(reason string)
}

// PrometheusRecorder implements Recorder on top of prometheus collectors.
type PrometheusRecorder struct {
	ingestedRecords	*prometheus.CounterVec
	ingestDuration	prometheus.Histogram
	categorizations	*prometheus.CounterVec
	categorizeBatch	prometheus.Histogram
	llmCalls	prometheus.Counter
	llmFailures	*prometheus.CounterVec
}

// NewPrometheusRecorder registers collectors on the default registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		ingestedRecords: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_records_total",
				Help: "Total raw records processed by the ingestion pipeline",
			},
			[]string{"status"},
		),
		ingestDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_duration_milliseconds",
				Help:    "Duration of a whole-file ingestion run in milliseconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 14),
			},
		),
		categorizations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "categorizations_total",
				Help: "Total categorization decisions by source",
			},
			[]string{"source"},
		),
		categorizeBatch: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "categorize_batch_duration_milliseconds",
				Help:    "Duration of a categorization batch in milliseconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 14),
			},
		),
		llmCalls: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "llm_classification_calls_total",
				Help: "Total LLM classification calls attempted",
			},
		),
		llmFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_classification_failures_total",
				Help: "Total LLM classification failures by reason",
			},
			[]string{"reason"},
		),
	}
}

func (r *PrometheusRecorder) RecordIngestedRecord(status string) {
	r.ingestedRecords.WithLabelValues(status).Inc()
}

func (r *PrometheusRecorder) RecordIngestDuration(d time.Duration) {
	r.ingestDuration.Observe(float64(d.Milliseconds()))
}

func (r *PrometheusRecorder) RecordCategorization(source string) {
	r.categorizations.WithLabelValues(source).Inc()
}

func (r *PrometheusRecorder) RecordCategorizeBatch(d time.Duration, llmUsed int) {
	r.categorizeBatch.Observe(float64(d.Milliseconds()))
	if llmUsed > 0 {
		r.llmCalls.Add(float64(llmUsed))
	}
}

func (r *PrometheusRecorder) RecordLLMFailure(reason string) {
	r.llmFailures.WithLabelValues(reason).Inc()
}

// Noop is a Recorder that discards everything. Used in tests and as the
// default when metrics are disabled.
type Noop struct{}

func (Noop) RecordIngestedRecord(string)		{}
func (Noop) RecordIngestDuration(time.Duration)		{}
func (Noop) RecordCategorization(string)		{}
func (Noop) RecordCategorizeBatch(time.Duration, int)	{}
func (Noop) RecordLLMFailure(string)			{}
