package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tileRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapgen",
		Subsystem: "fetch",
		Name:      "tile_requests_total",
		Help:      "Elevation tile requests by source and outcome.",
	}, []string{"source", "outcome"})

	tileRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mapgen",
		Subsystem: "fetch",
		Name:      "tile_request_duration_seconds",
		Help:      "Elevation tile request latency by source.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"source"})

	tileBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapgen",
		Subsystem: "fetch",
		Name:      "tile_bytes_total",
		Help:      "Bytes downloaded per elevation source.",
	}, []string{"source"})
)
