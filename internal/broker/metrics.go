package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "hoot"

var (
	registrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "broker",
		Name:      "registrations_total",
		Help:      "Total number of endpoints added to a routing table",
	})

	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "broker",
		Name:      "deliveries_total",
		Help:      "Total number of SEND_MESSAGE envelopes handed to the transport",
	}, []string{"mode"})

	closedSkipsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "broker",
		Name:      "closed_skips_total",
		Help:      "Total number of deliveries skipped because the endpoint's context was closed",
	})

	routeMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "broker",
		Name:      "route_misses_total",
		Help:      "Total number of unicast messages addressed to a name nobody registered",
	})

	sendFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "broker",
		Name:      "send_failures_total",
		Help:      "Total number of envelopes the transport refused",
	})
)

const (
	modeUnicast   = "unicast"
	modeMulticast = "multicast"
)
