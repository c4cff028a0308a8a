package guard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var decisionsCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_guard_decisions_total",
		Help: "Guard decisions that blocked or deferred a route, by guard kind and state.",
	},
	[]string{"kind", "state"},
)
