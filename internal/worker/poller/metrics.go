// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package poller

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "turnwatch_poller"

const (
	outcomeOK         = "ok"
	outcomeFetchError = "fetch-error"
	outcomeInvalid    = "invalid"
)

// Collector is a prometheus.Collector that collects metrics about
// the poller worker.
type Collector struct {
	fetchDuration prometheus.Histogram
	results       *prometheus.CounterVec
	inFlight      prometheus.Gauge
}

// NewMetricsCollector returns a new Collector.
func NewMetricsCollector() *Collector {
	return &Collector{
		fetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "fetch_duration_seconds",
				Help:      "The time taken to fetch the status of a game server.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		),
		results: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "polls_total",
				Help:      "The number of polls by outcome.",
			}, []string{"outcome"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "fetches_in_flight",
				Help:      "The number of fetches currently running.",
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.fetchDuration.Describe(ch)
	c.results.Describe(ch)
	c.inFlight.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.fetchDuration.Collect(ch)
	c.results.Collect(ch)
	c.inFlight.Collect(ch)
}
