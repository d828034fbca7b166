// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package game

import "time"

// Participant is one occupied slot of a game.
type Participant struct {
	// ID is the slot index minus one. The offset comes from the wire
	// format and is kept as-is so ids line up with what the server and
	// its players use.
	ID         int
	Status     Status
	Submission Submission
	Connected  bool
}

// IsHuman reports whether a player controls the participant.
func (p Participant) IsHuman() bool {
	return p.Status == StatusHuman
}

// AwaitingOrders reports whether the participant is human and has not
// sent anything this turn.
func (p Participant) AwaitingOrders() bool {
	return p.IsHuman() && p.Submission.State == NotSubmitted
}

// StateParams holds the values used to build a State.
type StateParams struct {
	Label        string
	Name         string
	Participants []Participant
	Turn         int
	Remaining    time.Duration
	Deadline     time.Time
	FetchedAt    time.Time
}

// State is the semantic view of one poll of a game server. It is never
// modified after construction; accessors hand out copies.
type State struct {
	label        string
	name         string
	participants []Participant
	turn         int
	remaining    time.Duration
	deadline     time.Time
	fetchedAt    time.Time
}

// NewState builds a State, taking its own copy of the participants.
func NewState(p StateParams) State {
	participants := make([]Participant, len(p.Participants))
	copy(participants, p.Participants)
	return State{
		label:        p.Label,
		name:         p.Name,
		participants: participants,
		turn:         p.Turn,
		remaining:    p.Remaining,
		deadline:     p.Deadline,
		fetchedAt:    p.FetchedAt,
	}
}

// Label is the name the server is tracked under.
func (s State) Label() string { return s.label }

// Name is the game name reported by the server.
func (s State) Name() string { return s.name }

// Turn is the current turn. Negative values mean the game is still in
// the pretender upload phase.
func (s State) Turn() int { return s.turn }

// InUploadPhase reports whether the game has not started yet.
func (s State) InUploadPhase() bool { return s.turn < 0 }

// Remaining is the countdown the server reported at fetch time.
func (s State) Remaining() time.Duration { return s.remaining }

// Deadline is the absolute time the turn is due to roll over.
func (s State) Deadline() time.Time { return s.deadline }

// HasDeadline reports whether the server had a turn timer running.
func (s State) HasDeadline() bool { return !s.deadline.IsZero() }

// FetchedAt is when the state was read from the server.
func (s State) FetchedAt() time.Time { return s.fetchedAt }

// Participants returns a copy of the participant list, in slot order.
func (s State) Participants() []Participant {
	out := make([]Participant, len(s.participants))
	copy(out, s.participants)
	return out
}

// Participant returns the participant with the given id.
func (s State) Participant(id int) (Participant, bool) {
	for _, p := range s.participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}
