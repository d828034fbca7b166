// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package statecache holds the last known state of every polled server.
// A single worker owns the cache: it consumes poll results, replaces
// entries, works out what changed and hands turn changes on for
// notification. Readers get immutable snapshots and never contend with
// the writer.
package statecache

import (
	"context"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/juju/pubsub/v2"
	"github.com/juju/worker/v4/catacomb"

	"github.com/turnwatch/turnwatch/core/game"
	"github.com/turnwatch/turnwatch/core/logger"
)

const (
	// UpdatedTopic is published with an Update each time an entry is
	// replaced.
	UpdatedTopic = "statecache.updated"

	// TurnChangedTopic is published with a game.DiffResult for every
	// detected turn change.
	TurnChangedTopic = "statecache.turn-changed"
)

// Update is the payload of UpdatedTopic.
type Update struct {
	Label string
	Entry game.Entry
}

// RecipientRegistry finds who to notify about a participant.
type RecipientRegistry interface {
	Recipients(ctx context.Context, label string, participantID int) ([]game.Recipient, error)
}

// TurnRecorder persists the last turn seen on each server, so a restart
// does not repeat notifications for a turn already reported.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, label string, turn int) error
	LastTurns(ctx context.Context) (map[string]int, error)
}

// Reader is the read side of the cache.
type Reader interface {
	Snapshot() map[string]game.Entry
	Entry(label string) (game.Entry, game.Lookup)
}

var _ Reader = (*Worker)(nil)

// Config holds configuration required to run the cache worker.
type Config struct {
	Results    <-chan game.PollResult
	Diffs      chan<- game.DiffResult
	Recipients RecipientRegistry
	Turns      TurnRecorder
	Hub        *pubsub.SimpleHub
	Logger     logger.Logger
}

// Validate ensures that the configuration is
// correctly populated for worker operation.
func (config Config) Validate() error {
	if config.Results == nil {
		return errors.NotValidf("nil Results")
	}
	if config.Diffs == nil {
		return errors.NotValidf("nil Diffs")
	}
	if config.Recipients == nil {
		return errors.NotValidf("nil Recipients")
	}
	if config.Turns == nil {
		return errors.NotValidf("nil Turns")
	}
	if config.Hub == nil {
		return errors.NotValidf("nil Hub")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

// Worker owns the cache.
type Worker struct {
	catacomb catacomb.Catacomb
	config   Config

	// entries and lastTurns are only touched by the loop goroutine.
	entries   map[string]game.Entry
	lastTurns map[string]int

	snapshot atomic.Pointer[map[string]game.Entry]
}

// NewWorker starts the cache worker.
func NewWorker(config Config) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	w := &Worker{
		config:    config,
		entries:   make(map[string]game.Entry),
		lastTurns: make(map[string]int),
	}
	empty := make(map[string]game.Entry)
	w.snapshot.Store(&empty)

	if err := catacomb.Invoke(catacomb.Plan{
		Site: &w.catacomb,
		Work: w.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return w, nil
}

// Kill is part of the worker.Worker interface.
func (w *Worker) Kill() {
	w.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *Worker) Wait() error {
	return w.catacomb.Wait()
}

// Snapshot returns every cached entry as of now. The map is the caller's.
func (w *Worker) Snapshot() map[string]game.Entry {
	current := *w.snapshot.Load()
	out := make(map[string]game.Entry, len(current))
	for label, entry := range current {
		out[label] = entry.Clone()
	}
	return out
}

// Entry returns the cached entry for label and what kind of entry it is.
func (w *Worker) Entry(label string) (game.Entry, game.Lookup) {
	entry, ok := (*w.snapshot.Load())[label]
	switch {
	case !ok:
		return game.Entry{}, game.NeverPolled
	case !entry.OK():
		return entry.Clone(), game.Unreachable
	}
	return entry.Clone(), game.Available
}

func (w *Worker) loop() error {
	ctx := w.catacomb.Context(context.Background())

	lastTurns, err := w.config.Turns.LastTurns(ctx)
	if err != nil {
		w.config.Logger.Warningf("loading last seen turns: %v", err)
	}
	for label, turn := range lastTurns {
		w.lastTurns[label] = turn
	}

	for {
		select {
		case <-w.catacomb.Dying():
			return w.catacomb.ErrDying()
		case result, ok := <-w.config.Results:
			if !ok {
				return errors.Annotate(game.ErrChannelClosed, "poll results")
			}
			if err := w.handle(ctx, result); err != nil {
				return errors.Trace(err)
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, result game.PollResult) error {
	label := result.Label
	prev, seen := w.entries[label]

	// Fetches finish in any order; never let an older poll overwrite a
	// newer one.
	if seen && result.IssuedAt.Before(prev.IssuedAt) {
		w.config.Logger.Debugf("discarding stale result for %s issued at %v", label, result.IssuedAt)
		return nil
	}

	entry := game.NewEntry(result)
	w.replace(label, entry)
	_ = w.config.Hub.Publish(UpdatedTopic, Update{Label: label, Entry: entry.Clone()})

	if !result.OK() {
		w.config.Logger.Debugf("cached failure for %s: %v", label, result.Err)
		return nil
	}

	var diff game.DiffResult
	if seen && prev.OK() {
		var changed bool
		if diff, changed = Diff(prev.State, result.State); !changed {
			return nil
		}
	} else {
		if last, ok := w.lastTurns[label]; ok && last == result.State.Turn() {
			w.config.Logger.Debugf("%s still on turn %d, already reported", label, last)
			return nil
		}
		diff = Initial(result.State)
	}
	w.config.Logger.Infof("%s is now on turn %d", label, diff.Turn)

	diff.Obligations = w.obligations(ctx, result.State)
	w.recordTurn(ctx, label, diff.Turn)
	_ = w.config.Hub.Publish(TurnChangedTopic, diff)

	select {
	case <-w.catacomb.Dying():
		return w.catacomb.ErrDying()
	case w.config.Diffs <- diff:
	}
	return nil
}

// replace swaps in a new snapshot containing entry. This is the only
// place the cache changes.
func (w *Worker) replace(label string, entry game.Entry) {
	w.entries[label] = entry

	next := make(map[string]game.Entry, len(w.entries))
	for l, e := range w.entries {
		next[l] = e
	}
	w.snapshot.Store(&next)
}

func (w *Worker) obligations(ctx context.Context, state game.State) []game.Obligation {
	var obligations []game.Obligation
	for _, notice := range Notices(state) {
		recipients, err := w.config.Recipients.Recipients(ctx, state.Label(), notice.ParticipantID)
		if err != nil {
			w.config.Logger.Errorf("looking up recipients for %s participant %d: %v",
				state.Label(), notice.ParticipantID, err)
			continue
		}
		for _, r := range recipients {
			obligations = append(obligations, game.Obligation{
				Recipient:     r,
				ParticipantID: notice.ParticipantID,
				Reason:        notice.Reason,
			})
		}
	}
	return obligations
}

func (w *Worker) recordTurn(ctx context.Context, label string, turn int) {
	w.lastTurns[label] = turn
	if err := w.config.Turns.RecordTurn(ctx, label, turn); err != nil {
		w.config.Logger.Warningf("recording turn %d for %s: %v", turn, label, err)
	}
}
