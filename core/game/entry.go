// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package game

import "time"

// Augmentation is extra status information from a third party source,
// attached to a successful poll.
type Augmentation struct {
	Source string
	Notes  map[int]string
}

// Clone returns a deep copy of the augmentation.
func (a *Augmentation) Clone() *Augmentation {
	if a == nil {
		return nil
	}
	notes := make(map[int]string, len(a.Notes))
	for k, v := range a.Notes {
		notes[k] = v
	}
	return &Augmentation{Source: a.Source, Notes: notes}
}

// PollResult is the outcome of one fetch of one server. Exactly one of
// State and Err is meaningful: Err is nil for a success.
type PollResult struct {
	Label string

	// IssuedAt is the time of the tick that started the fetch. It is used
	// to discard results that complete out of order.
	IssuedAt time.Time

	State        State
	Augmentation *Augmentation
	Err          error
}

// Succeeded returns a successful PollResult.
func Succeeded(issuedAt time.Time, state State, aug *Augmentation) PollResult {
	return PollResult{
		Label:        state.Label(),
		IssuedAt:     issuedAt,
		State:        state,
		Augmentation: aug,
	}
}

// Failed returns a PollResult recording a fetch failure.
func Failed(label string, issuedAt time.Time, err error) PollResult {
	return PollResult{
		Label:    label,
		IssuedAt: issuedAt,
		Err:      err,
	}
}

// OK reports whether the poll succeeded.
func (r PollResult) OK() bool { return r.Err == nil }

// Entry is the cached outcome of the latest poll of a server. A failed
// poll replaces a previous good entry, so an entry always reflects what
// the server looked like on the most recent attempt.
type Entry struct {
	Label        string
	IssuedAt     time.Time
	State        State
	Augmentation *Augmentation

	// Reason is the failure message when the latest poll failed, and
	// empty otherwise.
	Reason string
	err    error
}

// NewEntry converts a poll result into a cache entry.
func NewEntry(r PollResult) Entry {
	e := Entry{
		Label:    r.Label,
		IssuedAt: r.IssuedAt,
		err:      r.Err,
	}
	if r.Err != nil {
		e.Reason = r.Err.Error()
		return e
	}
	e.State = r.State
	e.Augmentation = r.Augmentation.Clone()
	return e
}

// OK reports whether the entry holds a game state.
func (e Entry) OK() bool { return e.err == nil }

// Err returns the failure that produced this entry, if any.
func (e Entry) Err() error { return e.err }

// Clone returns a copy of the entry that shares nothing mutable with it.
func (e Entry) Clone() Entry {
	e.Augmentation = e.Augmentation.Clone()
	return e
}

// Lookup describes what a reader found in the cache for a label.
type Lookup int

const (
	// NeverPolled means no poll of the server has completed yet.
	NeverPolled Lookup = iota

	// Unreachable means the latest poll failed.
	Unreachable

	// Available means the latest poll succeeded.
	Available
)

// String returns the user facing description of the lookup.
func (l Lookup) String() string {
	switch l {
	case NeverPolled:
		return "never yet polled"
	case Unreachable:
		return "could not reach server"
	case Available:
		return "available"
	}
	return "unknown"
}
