// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package game

import "fmt"

// Status is the control state of a participant slot, as reported by the
// game server.
type Status uint8

const (
	// StatusEmpty marks an unused slot.
	StatusEmpty Status = 0

	// StatusHuman is a slot controlled by a player.
	StatusHuman Status = 1

	// StatusAI is a slot the server has handed over to the computer.
	StatusAI Status = 2

	// StatusIndependent is an unclaimed slot left to the independents.
	StatusIndependent Status = 3

	// StatusClosed is a slot closed by the host.
	StatusClosed Status = 253

	// StatusDefeatedThisTurn is a participant eliminated during the turn
	// that just resolved.
	StatusDefeatedThisTurn Status = 254

	// StatusDefeated is a participant eliminated in an earlier turn.
	StatusDefeated Status = 255
)

// ParseStatus converts a wire status code into a Status. Unrecognised
// codes are an error, since everything downstream depends on the status.
func ParseStatus(code uint8) (Status, error) {
	switch s := Status(code); s {
	case StatusEmpty, StatusHuman, StatusAI, StatusIndependent,
		StatusClosed, StatusDefeatedThisTurn, StatusDefeated:
		return s, nil
	}
	return 0, &UnknownStatusError{Code: code}
}

// Present reports whether a slot with this status belongs in the
// participant list.
func (s Status) Present() bool {
	return s != StatusEmpty && s != StatusIndependent
}

// String returns a string representation of the Status.
func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusHuman:
		return "human"
	case StatusAI:
		return "ai"
	case StatusIndependent:
		return "independent"
	case StatusClosed:
		return "closed"
	case StatusDefeatedThisTurn:
		return "defeated-this-turn"
	case StatusDefeated:
		return "defeated"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// SubmissionState describes how far a participant got with their orders
// for the current turn.
type SubmissionState uint8

const (
	// NotSubmitted means no orders have been received.
	NotSubmitted SubmissionState = iota

	// PartiallySubmitted means orders were saved but not confirmed.
	PartiallySubmitted

	// Submitted means the turn is done.
	Submitted

	// SubmissionUnknown covers codes we have not seen before. The raw code
	// is kept alongside in Submission.
	SubmissionUnknown
)

// Submission pairs a SubmissionState with the raw code it came from.
type Submission struct {
	State SubmissionState
	Code  uint8
}

// ParseSubmission converts a wire submission code. Submission status is
// advisory, so unknown codes are represented rather than rejected.
func ParseSubmission(code uint8) Submission {
	switch code {
	case 0:
		return Submission{State: NotSubmitted, Code: code}
	case 1:
		return Submission{State: PartiallySubmitted, Code: code}
	case 2:
		return Submission{State: Submitted, Code: code}
	}
	return Submission{State: SubmissionUnknown, Code: code}
}

// Pending reports whether the participant still owes orders.
func (s Submission) Pending() bool {
	return s.State == NotSubmitted || s.State == PartiallySubmitted
}

// String returns a string representation of the Submission.
func (s Submission) String() string {
	switch s.State {
	case NotSubmitted:
		return "not-submitted"
	case PartiallySubmitted:
		return "partially-submitted"
	case Submitted:
		return "submitted"
	}
	return fmt.Sprintf("unknown(%d)", s.Code)
}
