package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var msgWrites = promauto.NewCounter(prometheus.CounterOpts{
	Name: "chatcore_store_message_writes_total",
	Help: "Message log writes committed to the store.",
})
