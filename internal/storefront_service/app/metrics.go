package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionTransitionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_session_transitions_total",
			Help: "Session state transitions by kind and outcome.",
		},
		[]string{"transition", "result"},
	)
	cartMutationsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_mutations_total",
			Help: "Cart and wishlist mutations by operation and outcome.",
		},
		[]string{"op", "result"},
	)
	enrichmentCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_enrichment_total",
			Help: "Cart line enrichment attempts by outcome.",
		},
		[]string{"result"}, // fresh, kept, discarded
	)
	activeClientsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_active_clients",
		Help: "Browser clients currently held in memory.",
	})
)

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
