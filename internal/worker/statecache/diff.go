// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package statecache

import (
	"time"

	"github.com/juju/collections/set"

	"github.com/turnwatch/turnwatch/core/game"
)

// StallWindow is how close to its deadline a turn must have been for
// participants who had not finished to count as possibly stalled.
const StallWindow = 60 * time.Second

// Notice is a participant that needs telling about a turn, before the
// recipients are known.
type Notice struct {
	ParticipantID int
	Reason        game.Reason
}

// Diff compares two successive successful polls of the same server. It
// returns false when the turn has not changed, in which case there is
// nothing to report.
func Diff(prev, next game.State) (game.DiffResult, bool) {
	if prev.Turn() == next.Turn() {
		return game.DiffResult{}, false
	}

	wasAI := set.NewInts()
	for _, p := range prev.Participants() {
		if p.Status == game.StatusAI {
			wasAI.Add(p.ID)
		}
	}
	ai := set.NewInts()
	for _, p := range next.Participants() {
		if p.Status == game.StatusAI && wasAI.Contains(p.ID) {
			ai.Add(p.ID)
		}
	}

	stalls := set.NewInts()
	if next.Turn() == prev.Turn()+1 && prev.HasDeadline() && prev.Remaining() <= StallWindow {
		for _, p := range prev.Participants() {
			if p.IsHuman() && p.Submission.Pending() {
				stalls.Add(p.ID)
			}
		}
	}

	result := Initial(next)
	result.AI = ai.SortedValues()
	result.PossibleStalls = stalls.SortedValues()
	return result, true
}

// Initial describes a state seen without a previous one to compare
// against. Only the fields that do not depend on the previous turn are
// filled in.
func Initial(next game.State) game.DiffResult {
	defeated := set.NewInts()
	for _, p := range next.Participants() {
		if p.Status == game.StatusDefeatedThisTurn {
			defeated.Add(p.ID)
		}
	}
	return game.DiffResult{
		Label:    next.Label(),
		Turn:     next.Turn(),
		Defeated: defeated.SortedValues(),
		State:    next,
	}
}

// Notices lists the participants of state that someone should hear
// about: humans yet to send orders, and anyone defeated this turn.
func Notices(state game.State) []Notice {
	var notices []Notice
	for _, p := range state.Participants() {
		switch {
		case p.AwaitingOrders():
			notices = append(notices, Notice{ParticipantID: p.ID, Reason: game.ReasonTurnPending})
		case p.Status == game.StatusDefeatedThisTurn:
			notices = append(notices, Notice{ParticipantID: p.ID, Reason: game.ReasonDefeated})
		}
	}
	return notices
}
