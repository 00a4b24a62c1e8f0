package fanout

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatcore_fanout_events_dispatched_total",
		Help: "Events delivered to subscriber channels.",
	})
	droppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatcore_fanout_events_dropped_total",
		Help: "Events dropped because a subscriber channel was full.",
	})
	subscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatcore_fanout_subscriptions",
		Help: "Currently attached subscriptions.",
	})
)
