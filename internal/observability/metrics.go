package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	routesCreatedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bikeroutes",
		Subsystem: "ingestion",
		Name:      "routes_created_total",
		Help:      "Number of routes persisted to Postgres.",
	})
	coordinatesAcceptedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bikeroutes",
		Subsystem: "ingestion",
		Name:      "coordinates_accepted_total",
		Help:      "Number of coordinate samples that passed normalization and were persisted.",
	})
	coordinatesDroppedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bikeroutes",
		Subsystem: "ingestion",
		Name:      "coordinates_dropped_total",
		Help:      "Number of coordinate samples skipped during ingestion, labeled by reason.",
	}, []string{"reason"})
	routePersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "bikeroutes",
		Subsystem: "ingestion",
		Name:      "last_route_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent route persisted to Postgres.",
	})
)

func init() {
	prometheus.MustRegister(routesCreatedCounter, coordinatesAcceptedCounter, coordinatesDroppedCounter, routePersistGauge)
}

// RecordRouteCreated counts a persisted route and updates the watermark gauge.
func RecordRouteCreated(ts time.Time) {
	routesCreatedCounter.Inc()
	if ts.IsZero() {
		return
	}
	routePersistGauge.Set(float64(ts.Unix()))
}

// RecordCoordinateAccepted counts a persisted coordinate sample.
func RecordCoordinateAccepted() {
	coordinatesAcceptedCounter.Inc()
}

// RecordCoordinateDropped counts a skipped coordinate sample.
func RecordCoordinateDropped(reason string) {
	coordinatesDroppedCounter.WithLabelValues(reason).Inc()
}
