package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DatasetFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "specdist_dataset_fetches_total",
			Help: "Total dataset bundle fetch attempts",
		},
		[]string{"source", "status"},
	)

	DatasetFetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "specdist_dataset_fetch_latency_seconds",
			Help:    "Dataset bundle fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	EstimatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "specdist_density_estimates_total",
			Help: "Total per-species density estimations performed",
		},
		[]string{"estimator"},
	)

	EstimateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "specdist_density_estimate_duration_seconds",
			Help:    "Time to fit and score one species density model",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)

	RendersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "specdist_figure_renders_total",
			Help: "Total density figures rendered",
		},
	)

	PublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "specdist_figure_publishes_total",
			Help: "Total figure publish attempts",
		},
		[]string{"status"},
	)
)
