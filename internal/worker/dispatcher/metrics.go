// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "turnwatch_dispatcher"

const (
	outcomeDelivered = "delivered"
	outcomeFailed    = "failed"
)

// Collector is a prometheus.Collector that collects metrics about
// notification delivery.
type Collector struct {
	notifications *prometheus.CounterVec
	turnChanges   prometheus.Counter
	deliveryTime  prometheus.Histogram
}

// NewMetricsCollector returns a new Collector.
func NewMetricsCollector() *Collector {
	return &Collector{
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "notifications_total",
				Help:      "The number of notifications by delivery outcome.",
			}, []string{"outcome"},
		),
		turnChanges: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "turn_changes_total",
				Help:      "The number of turn changes dispatched.",
			},
		),
		deliveryTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "delivery_duration_seconds",
				Help:      "The time taken to hand a notification to the deliverer.",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.notifications.Describe(ch)
	c.turnChanges.Describe(ch)
	c.deliveryTime.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.notifications.Collect(ch)
	c.turnChanges.Collect(ch)
	c.deliveryTime.Collect(ch)
}
