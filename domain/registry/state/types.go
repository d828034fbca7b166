// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package state

type serverRow struct {
	Label   string `db:"label"`
	Address string `db:"address"`
}

type registrationRow struct {
	Label           string `db:"label"`
	ParticipantID   int    `db:"participant_id"`
	Recipient       string `db:"recipient"`
	ParticipantName string `db:"participant_name"`
}

type turnRow struct {
	Label string `db:"label"`
	Turn  int    `db:"turn"`
}
