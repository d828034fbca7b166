// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package poller

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/worker/v4"
	"github.com/juju/worker/v4/catacomb"
	"golang.org/x/sync/semaphore"

	"github.com/turnwatch/turnwatch/core/game"
	"github.com/turnwatch/turnwatch/core/logger"
	"github.com/turnwatch/turnwatch/internal/mapper"
	"github.com/turnwatch/turnwatch/internal/wire"
)

const (
	// DefaultInterval is the time between two polls of every server.
	DefaultInterval = time.Minute

	// DefaultMaxConcurrentFetches caps the connections open at once.
	DefaultMaxConcurrentFetches = 64
)

// ServerRegistry lists the servers to poll.
type ServerRegistry interface {
	Servers(ctx context.Context) ([]game.Server, error)
}

// Fetcher reads the status record of one server.
type Fetcher interface {
	Fetch(ctx context.Context, label, address string) (wire.RawRecord, error)
}

// Augmenter adds third party information to a freshly polled state.
type Augmenter interface {
	Augment(ctx context.Context, state game.State) (*game.Augmentation, error)
}

// Config holds configuration required to run the poller worker.
type Config struct {
	Registry ServerRegistry
	Fetcher  Fetcher

	// Augmenter is optional.
	Augmenter Augmenter

	// Results receives one PollResult per server per tick. Sends block
	// until the receiver is ready.
	Results chan<- game.PollResult

	Interval             time.Duration
	MaxConcurrentFetches int

	Clock   clock.Clock
	Logger  logger.Logger
	Metrics *Collector
}

// Validate ensures that the configuration is
// correctly populated for worker operation.
func (config Config) Validate() error {
	if config.Registry == nil {
		return errors.NotValidf("nil Registry")
	}
	if config.Fetcher == nil {
		return errors.NotValidf("nil Fetcher")
	}
	if config.Results == nil {
		return errors.NotValidf("nil Results")
	}
	if config.Interval <= 0 {
		return errors.NotValidf("non-positive Interval")
	}
	if config.MaxConcurrentFetches <= 0 {
		return errors.NotValidf("non-positive MaxConcurrentFetches")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if config.Metrics == nil {
		return errors.NotValidf("nil Metrics")
	}
	return nil
}

type pollWorker struct {
	catacomb catacomb.Catacomb
	config   Config

	sem   *semaphore.Weighted
	tasks sync.WaitGroup
}

// NewWorker starts a worker that polls every registered server once per
// interval, starting immediately.
func NewWorker(config Config) (worker.Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	w := &pollWorker{
		config: config,
		sem:    semaphore.NewWeighted(int64(config.MaxConcurrentFetches)),
	}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &w.catacomb,
		Work: w.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return w, nil
}

// Kill is part of the worker.Worker interface.
func (w *pollWorker) Kill() {
	w.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *pollWorker) Wait() error {
	return w.catacomb.Wait()
}

func (w *pollWorker) loop() error {
	ctx := w.catacomb.Context(context.Background())

	// Fetches see the cancelled context once we are dying; wait for them
	// so none outlive the worker.
	defer w.tasks.Wait()

	w.tick(ctx)

	timer := w.config.Clock.NewTimer(w.config.Interval)
	defer timer.Stop()

	for {
		select {
		case <-w.catacomb.Dying():
			return w.catacomb.ErrDying()
		case <-timer.Chan():
			w.tick(ctx)
			timer.Reset(w.config.Interval)
		}
	}
}

// tick starts one fetch per registered server without waiting for any
// of them.
func (w *pollWorker) tick(ctx context.Context) {
	issuedAt := w.config.Clock.Now()

	servers, err := w.config.Registry.Servers(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.config.Logger.Errorf("listing servers: %v", err)
		}
		return
	}
	w.config.Logger.Debugf("polling %d servers", len(servers))

	for _, srv := range servers {
		w.tasks.Add(1)
		go func(srv game.Server) {
			defer w.tasks.Done()
			w.poll(ctx, srv, issuedAt)
		}(srv)
	}
}

func (w *pollWorker) poll(ctx context.Context, srv game.Server, issuedAt time.Time) {
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return
	}
	result := w.fetch(ctx, srv, issuedAt)
	w.sem.Release(1)

	select {
	case w.config.Results <- result:
	case <-ctx.Done():
	}
}

func (w *pollWorker) fetch(ctx context.Context, srv game.Server, issuedAt time.Time) game.PollResult {
	metrics := w.config.Metrics
	metrics.inFlight.Inc()
	defer metrics.inFlight.Dec()

	start := w.config.Clock.Now()
	rec, err := w.config.Fetcher.Fetch(ctx, srv.Label, srv.Address)
	metrics.fetchDuration.Observe(w.config.Clock.Now().Sub(start).Seconds())
	if err != nil {
		metrics.results.WithLabelValues(outcomeFetchError).Inc()
		w.config.Logger.Warningf("polling %s: %v", srv.Label, err)
		return game.Failed(srv.Label, issuedAt, err)
	}

	state, err := mapper.Map(srv.Label, rec, w.config.Clock.Now())
	if err != nil {
		metrics.results.WithLabelValues(outcomeInvalid).Inc()
		w.config.Logger.Warningf("polling %s: %v", srv.Label, err)
		return game.Failed(srv.Label, issuedAt, err)
	}

	var aug *game.Augmentation
	if w.config.Augmenter != nil {
		if aug, err = w.config.Augmenter.Augment(ctx, state); err != nil {
			w.config.Logger.Debugf("augmenting %s: %v", srv.Label, err)
			aug = nil
		}
	}

	metrics.results.WithLabelValues(outcomeOK).Inc()
	return game.Succeeded(issuedAt, state, aug)
}
