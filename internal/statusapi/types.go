// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package statusapi

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/turnwatch/turnwatch/core/game"
)

// ServerStatus is the JSON form of a cache entry.
type ServerStatus struct {
	Label     string      `json:"label"`
	Status    string      `json:"status"`
	Reachable bool        `json:"reachable"`
	Reason    string      `json:"reason,omitempty"`
	PolledAt  time.Time   `json:"polled-at"`
	Game      *GameStatus `json:"game,omitempty"`
}

// GameStatus is the JSON form of a game state.
type GameStatus struct {
	Name         string              `json:"name"`
	Turn         int                 `json:"turn"`
	UploadPhase  bool                `json:"upload-phase,omitempty"`
	Deadline     *time.Time          `json:"deadline,omitempty"`
	DeadlineIn   string              `json:"deadline-in,omitempty"`
	Source       string              `json:"source,omitempty"`
	Participants []ParticipantStatus `json:"participants"`
}

// ParticipantStatus is the JSON form of a participant.
type ParticipantStatus struct {
	ID         int    `json:"id"`
	Status     string `json:"status"`
	Submission string `json:"submission"`
	Connected  bool   `json:"connected"`
	Note       string `json:"note,omitempty"`
}

// ErrorResponse is returned with every non 2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func serverStatus(entry game.Entry, lookup game.Lookup, now time.Time) ServerStatus {
	out := ServerStatus{
		Label:     entry.Label,
		Status:    lookup.String(),
		Reachable: lookup == game.Available,
		Reason:    entry.Reason,
		PolledAt:  entry.IssuedAt,
	}
	if lookup != game.Available {
		return out
	}

	state := entry.State
	gs := &GameStatus{
		Name:        state.Name(),
		Turn:        state.Turn(),
		UploadPhase: state.InUploadPhase(),
	}
	if state.HasDeadline() {
		deadline := state.Deadline()
		gs.Deadline = &deadline
		gs.DeadlineIn = humanize.RelTime(deadline, now, "ago", "from now")
	}

	var notes map[int]string
	if entry.Augmentation != nil {
		gs.Source = entry.Augmentation.Source
		notes = entry.Augmentation.Notes
	}
	gs.Participants = make([]ParticipantStatus, 0)
	for _, p := range state.Participants() {
		gs.Participants = append(gs.Participants, ParticipantStatus{
			ID:         p.ID,
			Status:     p.Status.String(),
			Submission: p.Submission.String(),
			Connected:  p.Connected,
			Note:       notes[p.ID],
		})
	}
	out.Game = gs
	return out
}
