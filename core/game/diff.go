// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package game

// Reason says why a recipient is being notified.
type Reason int

const (
	// ReasonTurnPending means the participant has not sent orders for the
	// new turn.
	ReasonTurnPending Reason = iota + 1

	// ReasonDefeated means the participant was eliminated this turn.
	ReasonDefeated
)

// String returns a string representation of the Reason.
func (r Reason) String() string {
	switch r {
	case ReasonTurnPending:
		return "turn-pending"
	case ReasonDefeated:
		return "defeated"
	}
	return "unknown"
}

// Recipient is someone registered to hear about a participant.
type Recipient struct {
	// ID is the delivery address, as understood by the delivery sink.
	ID string

	// DisplayName is how the recipient's participant should be named in
	// messages.
	DisplayName string
}

// Obligation is one notification that must be sent.
type Obligation struct {
	Recipient     Recipient
	ParticipantID int
	Reason        Reason
}

// DiffResult describes a detected turn change on one server.
type DiffResult struct {
	Label string
	Turn  int

	// AI holds participants that were AI before and after the rollover.
	AI []int

	// Defeated holds participants defeated during the turn.
	Defeated []int

	// PossibleStalls holds human participants that still owed orders when
	// the previous turn was about to expire.
	PossibleStalls []int

	Obligations []Obligation

	// State is the game state the result was computed against.
	State State
}

// Notification is a formatted message ready for delivery.
type Notification struct {
	ID        string
	Recipient string
	Label     string
	Text      string
}
