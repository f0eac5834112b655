package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetches counts page acquisitions by winning strategy and outcome.
var Fetches = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pagesift",
	Name:      "fetches_total",
	Help:      "Page fetches by strategy and outcome.",
}, []string{"strategy", "outcome"})

// LLMRequests counts language-model calls by operation and outcome.
var LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pagesift",
	Name:      "llm_requests_total",
	Help:      "Language model requests by operation and outcome.",
}, []string{"operation", "outcome"})

// ImageDownloads counts image acquisitions by outcome.
var ImageDownloads = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pagesift",
	Name:      "image_downloads_total",
	Help:      "Image downloads by outcome.",
}, []string{"outcome"})

// OperationDuration observes end-to-end pipeline latency per operation.
var OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "pagesift",
	Name:      "operation_duration_seconds",
	Help:      "End to end duration of pipeline operations.",
	Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
}, []string{"operation"})
