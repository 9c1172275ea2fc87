// Package metrics exposes engine counters and histograms through Prometheus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chainsignal"

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	predictionsGenerated *prometheus.CounterVec
	predictionConfidence *prometheus.HistogramVec
	predictionsResolved  *prometheus.CounterVec
	alertsTotal          *prometheus.CounterVec
	errorsTotal          *prometheus.CounterVec
	latency              *prometheus.HistogramVec
}

// New registers the recorder's collectors on reg. A nil reg means the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		predictionsGenerated: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "predictions_generated_total",
				Help:      "Predictions created per target and timeframe",
			},
			[]string{"target", "timeframe"},
		),
		predictionConfidence: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "prediction_confidence",
				Help:      "Confidence of generated predictions",
				Buckets:   prometheus.LinearBuckets(15, 10, 8),
			},
			[]string{"target"},
		),
		predictionsResolved: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "predictions_resolved_total",
				Help:      "Resolved predictions by outcome",
			},
			[]string{"target", "accurate"},
		),
		alertsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_total",
				Help:      "Alerts emitted by the rule engine",
			},
			[]string{"category", "severity"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Errors by kind",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordPredictionGenerated(target, timeframe string, confidence int) {
	r.predictionsGenerated.WithLabelValues(target, timeframe).Inc()
	r.predictionConfidence.WithLabelValues(target).Observe(float64(confidence))
}

func (r *Recorder) RecordPredictionResolved(target string, accurate bool) {
	r.predictionsResolved.WithLabelValues(target, strconv.FormatBool(accurate)).Inc()
}

func (r *Recorder) RecordAlert(category, severity string) {
	r.alertsTotal.WithLabelValues(category, severity).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
