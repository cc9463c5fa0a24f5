package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OrdersPlaced counts successfully committed order placements.
	OrdersPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Number of orders placed successfully.",
	})

	// EventsPublished counts order events published, by status.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_events_published_total",
		Help: "Number of order events published to the broker.",
	}, []string{"status"})

	// EventsConsumed counts reconciler deliveries, by event kind and outcome.
	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_events_consumed_total",
		Help: "Number of order events handled by the inventory reconciler.",
	}, []string{"kind", "outcome"})
)

// Handler serves the default prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
