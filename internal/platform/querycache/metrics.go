package querycache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookupsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "querycache",
			Name:      "lookups_total",
			Help:      "Remote data cache lookups by outcome.",
		},
		[]string{"cache", "result"}, // result: fresh, stale, miss, error
	)

	cacheRetriesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "querycache",
			Name:      "retries_total",
			Help:      "Retried backend requests.",
		},
		[]string{"cache", "kind"}, // kind: query, mutation
	)

	cacheLoadDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "querycache",
			Name:      "load_duration_seconds",
			Help:      "Duration of loader calls including retries.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"cache"},
	)
)
