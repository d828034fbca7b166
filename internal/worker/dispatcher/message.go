// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package dispatcher

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/turnwatch/turnwatch/core/game"
)

// Message renders the text sent to a recipient for one obligation.
func Message(diff game.DiffResult, ob game.Obligation, now time.Time) string {
	var b strings.Builder

	name := ob.Recipient.DisplayName
	if name == "" {
		name = fmt.Sprintf("Participant %d", ob.ParticipantID)
	}

	switch ob.Reason {
	case game.ReasonDefeated:
		fmt.Fprintf(&b, "%s was defeated on %s in turn %d.", name, diff.Label, diff.Turn)
	default:
		fmt.Fprintf(&b, "%s: %s is now on turn %d. ", name, diff.Label, diff.Turn)
		b.WriteString(deadline(diff.State, now))
	}

	if len(diff.AI) > 0 {
		fmt.Fprintf(&b, "\nStill under AI control: %s.", joinIDs(diff.AI))
	}
	if len(diff.Defeated) > 0 {
		fmt.Fprintf(&b, "\nDefeated this turn: %s.", joinIDs(diff.Defeated))
	}
	if len(diff.PossibleStalls) > 0 {
		fmt.Fprintf(&b, "\nPossibly stalled last turn: %s.", joinIDs(diff.PossibleStalls))
	}
	return b.String()
}

func deadline(state game.State, now time.Time) string {
	if !state.HasDeadline() {
		return "There is no turn timer."
	}
	when := state.Deadline()
	if !when.After(now) {
		return "Orders were due " + humanize.RelTime(when, now, "ago", "from now") + "."
	}
	return fmt.Sprintf("Orders are due %s (%s).",
		humanize.RelTime(when, now, "ago", "from now"),
		when.UTC().Format("Mon 15:04 MST"))
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}
