// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package gamemetrics exposes the state of every polled game as
// prometheus metrics, fed by the state cache's hub topics.
package gamemetrics

import (
	"github.com/juju/errors"
	"github.com/juju/pubsub/v2"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/tomb.v2"

	"github.com/turnwatch/turnwatch/core/game"
	"github.com/turnwatch/turnwatch/core/logger"
	"github.com/turnwatch/turnwatch/internal/worker/statecache"
)

const metricsNamespace = "turnwatch_game"

// Config holds the configuration for the metrics collector.
type Config struct {
	Hub    *pubsub.SimpleHub
	Logger logger.Logger
}

// Validate ensures that the config values are valid.
func (c Config) Validate() error {
	if c.Hub == nil {
		return errors.NotValidf("nil Hub")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

// Collector is a prometheus.Collector and a worker. It listens for cache
// updates for as long as it is alive.
type Collector struct {
	tomb   tomb.Tomb
	config Config

	turn         *prometheus.GaugeVec
	reachable    *prometheus.GaugeVec
	participants *prometheus.GaugeVec
	turnChanges  *prometheus.CounterVec
}

// NewCollector returns a Collector subscribed to config.Hub.
func NewCollector(config Config) (*Collector, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	c := &Collector{
		config: config,
		turn: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "turn",
				Help:      "The current turn of each game.",
			}, []string{"label"},
		),
		reachable: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "reachable",
				Help:      "Whether the latest poll of each server succeeded.",
			}, []string{"label"},
		),
		participants: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "participants",
				Help:      "The number of participants in each game by status.",
			}, []string{"label", "status"},
		),
		turnChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "turn_changes_total",
				Help:      "The number of turn changes seen on each server.",
			}, []string{"label"},
		),
	}

	unsubUpdated := config.Hub.Subscribe(statecache.UpdatedTopic, c.onUpdated)
	unsubChanged := config.Hub.Subscribe(statecache.TurnChangedTopic, c.onTurnChanged)
	c.tomb.Go(func() error {
		<-c.tomb.Dying()
		unsubUpdated()
		unsubChanged()
		return tomb.ErrDying
	})
	return c, nil
}

// Kill is part of the worker.Worker interface.
func (c *Collector) Kill() {
	c.tomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (c *Collector) Wait() error {
	return c.tomb.Wait()
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.turn.Describe(ch)
	c.reachable.Describe(ch)
	c.participants.Describe(ch)
	c.turnChanges.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.turn.Collect(ch)
	c.reachable.Collect(ch)
	c.participants.Collect(ch)
	c.turnChanges.Collect(ch)
}

func (c *Collector) onUpdated(topic string, data interface{}) {
	update, ok := data.(statecache.Update)
	if !ok {
		c.config.Logger.Errorf("unexpected %T on %s", data, topic)
		return
	}
	label := update.Label
	if !update.Entry.OK() {
		c.reachable.WithLabelValues(label).Set(0)
		return
	}

	state := update.Entry.State
	counts := make(map[game.Status]int)
	for _, p := range state.Participants() {
		if p.Status.Present() {
			counts[p.Status]++
		}
	}
	c.participants.DeletePartialMatch(prometheus.Labels{"label": label})
	for status, n := range counts {
		c.participants.WithLabelValues(label, status.String()).Set(float64(n))
	}
	c.turn.WithLabelValues(label).Set(float64(state.Turn()))

	// Set last, readers wait on it.
	c.reachable.WithLabelValues(label).Set(1)
}

func (c *Collector) onTurnChanged(topic string, data interface{}) {
	diff, ok := data.(game.DiffResult)
	if !ok {
		c.config.Logger.Errorf("unexpected %T on %s", data, topic)
		return
	}
	c.turnChanges.WithLabelValues(diff.Label).Inc()
}
