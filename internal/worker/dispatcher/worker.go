// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package dispatcher turns detected turn changes into notifications and
// hands them to a delivery sink.
package dispatcher

import (
	"context"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/worker/v4"
	"golang.org/x/time/rate"
	"gopkg.in/tomb.v2"

	"github.com/turnwatch/turnwatch/core/game"
	"github.com/turnwatch/turnwatch/core/logger"
)

const (
	// DefaultRateLimit is the default number of notifications delivered
	// per second.
	DefaultRateLimit rate.Limit = 5

	// DefaultBurst is the default number of notifications that may be
	// delivered back to back.
	DefaultBurst = 10
)

// Deliverer sends a notification to its recipient.
type Deliverer interface {
	Deliver(ctx context.Context, n game.Notification) error
}

// Config holds the configuration for the dispatcher worker.
type Config struct {
	Diffs     <-chan game.DiffResult
	Deliverer Deliverer
	RateLimit rate.Limit
	Burst     int
	NewID     func() string
	Clock     clock.Clock
	Logger    logger.Logger
	Metrics   *Collector
}

// Validate ensures that the config values are valid.
func (c Config) Validate() error {
	if c.Diffs == nil {
		return errors.NotValidf("nil Diffs")
	}
	if c.Deliverer == nil {
		return errors.NotValidf("nil Deliverer")
	}
	if c.RateLimit <= 0 {
		return errors.NotValidf("non-positive RateLimit")
	}
	if c.Burst <= 0 {
		return errors.NotValidf("non-positive Burst")
	}
	if c.NewID == nil {
		return errors.NotValidf("nil NewID")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if c.Metrics == nil {
		return errors.NotValidf("nil Metrics")
	}
	return nil
}

type dispatchWorker struct {
	tomb    tomb.Tomb
	config  Config
	limiter *rate.Limiter
}

// NewWorker returns a worker that notifies recipients of every turn
// change received on config.Diffs.
func NewWorker(config Config) (worker.Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	w := &dispatchWorker{
		config:  config,
		limiter: rate.NewLimiter(config.RateLimit, config.Burst),
	}
	w.tomb.Go(w.loop)
	return w, nil
}

// Kill is part of the worker.Worker interface.
func (w *dispatchWorker) Kill() {
	w.tomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *dispatchWorker) Wait() error {
	return w.tomb.Wait()
}

func (w *dispatchWorker) loop() error {
	ctx := w.tomb.Context(context.Background())
	for {
		select {
		case <-w.tomb.Dying():
			return tomb.ErrDying
		case diff, ok := <-w.config.Diffs:
			if !ok {
				return errors.Annotate(game.ErrChannelClosed, "turn changes")
			}
			if err := w.dispatch(ctx, diff); err != nil {
				return errors.Trace(err)
			}
		}
	}
}

func (w *dispatchWorker) dispatch(ctx context.Context, diff game.DiffResult) error {
	w.config.Metrics.turnChanges.Inc()
	if len(diff.Obligations) == 0 {
		w.config.Logger.Debugf("nobody to notify about %s turn %d", diff.Label, diff.Turn)
		return nil
	}

	for _, ob := range diff.Obligations {
		if err := w.limiter.Wait(ctx); err != nil {
			select {
			case <-w.tomb.Dying():
				return tomb.ErrDying
			default:
				return errors.Annotate(err, "waiting to deliver")
			}
		}

		n := game.Notification{
			ID:        w.config.NewID(),
			Recipient: ob.Recipient.ID,
			Label:     diff.Label,
			Text:      Message(diff, ob, w.config.Clock.Now()),
		}

		start := w.config.Clock.Now()
		err := w.config.Deliverer.Deliver(ctx, n)
		w.config.Metrics.deliveryTime.Observe(w.config.Clock.Now().Sub(start).Seconds())
		if err != nil {
			w.config.Metrics.notifications.WithLabelValues(outcomeFailed).Inc()
			w.config.Logger.Errorf("delivering %s to %q about %s: %v", n.ID, n.Recipient, diff.Label, err)
			continue
		}
		w.config.Metrics.notifications.WithLabelValues(outcomeDelivered).Inc()
		w.config.Logger.Tracef("delivered %s to %q", n.ID, n.Recipient)
	}
	return nil
}
