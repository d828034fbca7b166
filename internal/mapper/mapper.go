// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package mapper turns raw status records into game states.
package mapper

import (
	"math"
	"time"

	"github.com/juju/errors"

	"github.com/turnwatch/turnwatch/core/game"
	"github.com/turnwatch/turnwatch/internal/wire"
)

// Map converts rec, fetched at now for the server tracked as label, into
// a game state.
func Map(label string, rec wire.RawRecord, now time.Time) (game.State, error) {
	participants, err := Participants(rec)
	if err != nil {
		return game.State{}, errors.Annotatef(err, "mapping %q", label)
	}

	remaining := time.Duration(rec.Countdown) * time.Millisecond
	var deadline time.Time
	if rec.Countdown >= 0 {
		if deadline, err = addDeadline(now, remaining); err != nil {
			return game.State{}, errors.Annotatef(err, "mapping %q", label)
		}
	}

	return game.NewState(game.StateParams{
		Label:        label,
		Name:         rec.Name,
		Participants: participants,
		Turn:         int(int32(rec.Turn)),
		Remaining:    remaining,
		Deadline:     deadline,
		FetchedAt:    now,
	}), nil
}

// Participants returns the occupied slots of rec in slot order.
func Participants(rec wire.RawRecord) ([]game.Participant, error) {
	var participants []game.Participant
	for i := 0; i < wire.SlotCount; i++ {
		status, err := game.ParseStatus(rec.StatusCode(i))
		if err != nil {
			return nil, errors.Annotatef(err, "slot %d", i)
		}
		if !status.Present() {
			continue
		}
		participants = append(participants, game.Participant{
			// Ids are one behind the slot index; nothing in the protocol
			// explains why, but it is what servers and players use.
			ID:         i - 1,
			Status:     status,
			Submission: game.ParseSubmission(rec.SubmissionCode(i)),
			Connected:  rec.Connected(i),
		})
	}
	return participants, nil
}

func addDeadline(now time.Time, d time.Duration) (time.Time, error) {
	// Deadlines are kept within the range of Unix nanoseconds.
	if now.UnixNano() > math.MaxInt64-int64(d) {
		return time.Time{}, errors.Annotatef(game.ErrTimeOverflow, "%v after %v", d, now)
	}
	deadline := now.Add(d)
	if deadline.Before(now) {
		return time.Time{}, errors.Annotatef(game.ErrTimeOverflow, "%v after %v", d, now)
	}
	return deadline, nil
}
