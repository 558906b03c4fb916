package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var roundTripMetric = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "datachat_cache_round_trips_total",
	Help: "Backing store round trips issued by the chat cache, by operation",
}, []string{"op"})

var anomalyMetric = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "datachat_cache_record_anomalies_total",
	Help: "Stored records skipped because they were malformed or did not match their index",
}, []string{"kind"})

func observe(op string) {
	roundTripMetric.WithLabelValues(op).Inc()
}
