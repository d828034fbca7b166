// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package statusapi serves the contents of the state cache over HTTP.
package statusapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/naturalsort"
	"github.com/juju/worker/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/tomb.v2"

	"github.com/turnwatch/turnwatch/core/game"
	"github.com/turnwatch/turnwatch/core/logger"
	"github.com/turnwatch/turnwatch/internal/worker/statecache"
)

const shutdownTimeout = 5 * time.Second

// Hub is the subscription side of the cache's pub/sub hub.
type Hub interface {
	Subscribe(topic string, handler func(string, interface{})) func()
}

// Config holds the configuration for the status API worker.
type Config struct {
	Listener net.Listener
	Cache    statecache.Reader
	Gatherer prometheus.Gatherer
	Hub      Hub
	Clock    clock.Clock
	Logger   logger.Logger
}

// Validate ensures that the config values are valid.
func (c Config) Validate() error {
	if c.Listener == nil {
		return errors.NotValidf("nil Listener")
	}
	if c.Cache == nil {
		return errors.NotValidf("nil Cache")
	}
	if c.Gatherer == nil {
		return errors.NotValidf("nil Gatherer")
	}
	if c.Hub == nil {
		return errors.NotValidf("nil Hub")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

type apiWorker struct {
	tomb   tomb.Tomb
	config Config

	// watchers tracks hijacked /watch connections, which Shutdown
	// does not wait for.
	watchers sync.WaitGroup
}

// NewWorker returns a worker serving the status API on config.Listener.
// The listener is closed when the worker stops.
func NewWorker(config Config) (worker.Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	w := &apiWorker{config: config}
	w.tomb.Go(w.loop)
	return w, nil
}

// Kill is part of the worker.Worker interface.
func (w *apiWorker) Kill() {
	w.tomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *apiWorker) Wait() error {
	return w.tomb.Wait()
}

func (w *apiWorker) loop() error {
	srv := &http.Server{
		Handler:           w.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(w.config.Listener)
	}()
	w.config.Logger.Infof("status api listening on %s", w.config.Listener.Addr())

	select {
	case <-w.tomb.Dying():
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return errors.Annotate(err, "shutting down status api")
		}
		<-served
		w.watchers.Wait()
		return tomb.ErrDying
	case err := <-served:
		return errors.Annotate(err, "serving status api")
	}
}

func (w *apiWorker) router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/servers", w.listServers).Methods(http.MethodGet)
	r.HandleFunc("/servers/{label}", w.getServer).Methods(http.MethodGet)
	r.HandleFunc("/watch", w.watch).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(w.config.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

func (w *apiWorker) listServers(rw http.ResponseWriter, _ *http.Request) {
	now := w.config.Clock.Now()
	snapshot := w.config.Cache.Snapshot()

	labels := make([]string, 0, len(snapshot))
	for label := range snapshot {
		labels = append(labels, label)
	}
	servers := make([]ServerStatus, 0, len(snapshot))
	for _, label := range naturalsort.Sort(labels) {
		entry := snapshot[label]
		lookup := game.Available
		if !entry.OK() {
			lookup = game.Unreachable
		}
		servers = append(servers, serverStatus(entry, lookup, now))
	}
	w.writeJSON(rw, http.StatusOK, servers)
}

func (w *apiWorker) getServer(rw http.ResponseWriter, req *http.Request) {
	label := mux.Vars(req)["label"]
	entry, lookup := w.config.Cache.Entry(label)
	if lookup == game.NeverPolled {
		w.writeJSON(rw, http.StatusNotFound, ErrorResponse{Error: label + " " + lookup.String()})
		return
	}
	w.writeJSON(rw, http.StatusOK, serverStatus(entry, lookup, w.config.Clock.Now()))
}

func (w *apiWorker) writeJSON(rw http.ResponseWriter, code int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		w.config.Logger.Debugf("writing response: %v", err)
	}
}
