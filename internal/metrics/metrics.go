// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "groundedqa"

// Question outcomes.
const (
	OutcomeAnswered = "answered"
	OutcomeFallback = "fallback"
	OutcomeGreeting = "greeting"
	OutcomeError    = "error"
)

// Query stages timed by StageDuration.
const (
	StageLoad     = "load"
	StageRetrieve = "retrieve"
	StageGenerate = "generate"
)

// Metrics holds the collectors shared by the query service and HTTP layer.
type Metrics struct {
	Questions     *prometheus.CounterVec
	Errors        *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	TopScore      prometheus.Histogram
	IndexChunks   prometheus.Gauge

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Questions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "questions_total",
				Help:      "Total number of questions by outcome",
			},
			[]string{"outcome"}, // answered, fallback, greeting, error
		),
		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of failed questions by error kind",
			},
			[]string{"kind"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of query stages",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		TopScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrieval_top_score",
				Help:      "Cosine similarity of the best retrieved chunk",
				Buckets:   prometheus.LinearBuckets(-0.2, 0.1, 13),
			},
		),
		IndexChunks: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "index_chunks",
				Help:      "Number of chunks in the loaded index",
			},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}
