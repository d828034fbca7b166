// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/pubsub/v2"
	"github.com/juju/worker/v4"
	"github.com/juju/worker/v4/catacomb"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/turnwatch/turnwatch/core/game"
	corelogger "github.com/turnwatch/turnwatch/core/logger"
	"github.com/turnwatch/turnwatch/domain/registry/state"
	"github.com/turnwatch/turnwatch/internal/client"
	"github.com/turnwatch/turnwatch/internal/delivery"
	"github.com/turnwatch/turnwatch/internal/gamemetrics"
	"github.com/turnwatch/turnwatch/internal/statusapi"
	"github.com/turnwatch/turnwatch/internal/worker/dispatcher"
	"github.com/turnwatch/turnwatch/internal/worker/poller"
	"github.com/turnwatch/turnwatch/internal/worker/statecache"
)

// openState opens the registry database and loads the configured
// servers and registrations into it.
func openState(ctx context.Context, cfg Config) (*sql.DB, *state.State, error) {
	db, err := sql.Open("sqlite3", cfg.Database)
	if err != nil {
		return nil, nil, errors.Annotatef(err, "opening %s", cfg.Database)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	st := state.NewState(db)
	if err := seed(ctx, st, cfg); err != nil {
		_ = db.Close()
		return nil, nil, errors.Trace(err)
	}
	return db, st, nil
}

func seed(ctx context.Context, st *state.State, cfg Config) error {
	if err := st.EnsureSchema(ctx); err != nil {
		return errors.Trace(err)
	}
	for _, srv := range cfg.Servers {
		if err := st.AddServer(ctx, srv.server()); err != nil {
			return errors.Trace(err)
		}
	}
	for _, reg := range cfg.Registrations {
		if err := st.AddRegistration(ctx, reg.registration()); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// daemon owns every long running worker. If any of them fails, all of
// them are stopped.
type daemon struct {
	catacomb catacomb.Catacomb

	config   Config
	state    *state.State
	listener net.Listener
	clock    clock.Clock
}

func newDaemon(cfg Config, st *state.State, listener net.Listener, clk clock.Clock) (*daemon, error) {
	d := &daemon{
		config:   cfg,
		state:    st,
		listener: listener,
		clock:    clk,
	}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &d.catacomb,
		Work: d.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return d, nil
}

// Kill is part of the worker.Worker interface.
func (d *daemon) Kill() {
	d.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (d *daemon) Wait() error {
	return d.catacomb.Wait()
}

func (d *daemon) loop() error {
	if err := d.startWorkers(); err != nil {
		_ = d.listener.Close()
		return errors.Trace(err)
	}
	<-d.catacomb.Dying()
	return d.catacomb.ErrDying()
}

func (d *daemon) startWorkers() error {
	cfg := d.config
	hub := pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
		Logger: loggo.GetLogger("turnwatch.hub"),
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	fetcher, err := client.New(client.Config{
		Timeout: cfg.FetchTimeout,
		Logger:  corelogger.GetLogger("client"),
	})
	if err != nil {
		return errors.Trace(err)
	}

	deliverer, err := newDeliverer(cfg, d.clock)
	if err != nil {
		return errors.Trace(err)
	}

	results := make(chan game.PollResult, cfg.ResultsBuffer)
	diffs := make(chan game.DiffResult, cfg.DiffBuffer)

	cache, err := statecache.NewWorker(statecache.Config{
		Results:    results,
		Diffs:      diffs,
		Recipients: d.state,
		Turns:      d.state,
		Hub:        hub,
		Logger:     corelogger.GetLogger("statecache"),
	})
	if err := d.add(cache, err); err != nil {
		return errors.Annotate(err, "starting state cache")
	}

	gameMetrics, err := gamemetrics.NewCollector(gamemetrics.Config{
		Hub:    hub,
		Logger: corelogger.GetLogger("gamemetrics"),
	})
	if err := d.add(gameMetrics, err); err != nil {
		return errors.Annotate(err, "starting game metrics")
	}

	pollerMetrics := poller.NewMetricsCollector()
	dispatcherMetrics := dispatcher.NewMetricsCollector()
	registry.MustRegister(gameMetrics, pollerMetrics, dispatcherMetrics)

	w, err := dispatcher.NewWorker(dispatcher.Config{
		Diffs:     diffs,
		Deliverer: deliverer,
		RateLimit: rate.Limit(cfg.DeliveryRate),
		Burst:     cfg.DeliveryBurst,
		NewID:     uuid.NewString,
		Clock:     d.clock,
		Logger:    corelogger.GetLogger("dispatcher"),
		Metrics:   dispatcherMetrics,
	})
	if err := d.add(w, err); err != nil {
		return errors.Annotate(err, "starting dispatcher")
	}

	w, err = statusapi.NewWorker(statusapi.Config{
		Listener: d.listener,
		Cache:    cache,
		Gatherer: registry,
		Hub:      hub,
		Clock:    d.clock,
		Logger:   corelogger.GetLogger("statusapi"),
	})
	if err := d.add(w, err); err != nil {
		return errors.Annotate(err, "starting status api")
	}

	w, err = poller.NewWorker(poller.Config{
		Registry:             d.state,
		Fetcher:              fetcher,
		Augmenter:            registryAugmenter{names: d.state},
		Results:              results,
		Interval:             cfg.PollInterval,
		MaxConcurrentFetches: cfg.MaxConcurrentFetches,
		Clock:                d.clock,
		Logger:               corelogger.GetLogger("poller"),
		Metrics:              pollerMetrics,
	})
	if err := d.add(w, err); err != nil {
		return errors.Annotate(err, "starting poller")
	}
	return nil
}

func (d *daemon) add(w worker.Worker, err error) error {
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(d.catacomb.Add(w))
}

func newDeliverer(cfg Config, clk clock.Clock) (dispatcher.Deliverer, error) {
	if cfg.WebhookURL == "" {
		return delivery.LogDeliverer{Logger: corelogger.GetLogger("delivery")}, nil
	}
	d, err := delivery.NewWebhookDeliverer(delivery.WebhookConfig{
		URL:      cfg.WebhookURL,
		Client:   &http.Client{Timeout: cfg.FetchTimeout},
		Attempts: delivery.DefaultAttempts,
		Delay:    delivery.DefaultDelay,
		Clock:    clk,
		Logger:   corelogger.GetLogger("delivery"),
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return d, nil
}
