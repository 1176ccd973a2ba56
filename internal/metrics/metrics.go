// Package metrics exposes prometheus collectors for the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "leaf"

var (
	// PredictionsTotal counts predictions by request source and outcome.
	PredictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "predictions_total",
		Help:      "Number of prediction requests by source and outcome.",
	}, []string{"source", "outcome"})

	// PredictionDuration observes end-to-end pipeline latency.
	PredictionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "prediction_duration_seconds",
		Help:      "Time spent classifying one image.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"source"})

	// TopLabelTotal counts the highest ranked label of successful predictions.
	TopLabelTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "top_label_total",
		Help:      "Number of predictions whose first-ranked class was the label.",
	}, []string{"label"})

	// FlagsTotal counts stored flags by option.
	FlagsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "flags_total",
		Help:      "Number of flagged predictions by option.",
	}, []string{"option"})
)

// ObservePrediction records one pipeline call.
func ObservePrediction(source, outcome, topLabel string, elapsed time.Duration) {
	PredictionsTotal.WithLabelValues(source, outcome).Inc()
	PredictionDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	if topLabel != "" {
		TopLabelTotal.WithLabelValues(topLabel).Inc()
	}
}
