// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package registry describes the servers turnwatch polls and who is told
// about each participant.
package registry

import "github.com/juju/errors"

const (
	// ServerNotFound describes an error that occurs when a server label
	// is not registered.
	ServerNotFound = errors.ConstError("server not found")
)

// Registration links a recipient to a participant on a server.
type Registration struct {
	Label           string
	ParticipantID   int
	Recipient       string
	ParticipantName string
}

// Validate ensures the registration is complete.
func (r Registration) Validate() error {
	if r.Label == "" {
		return errors.NotValidf("empty label")
	}
	if r.ParticipantID < 0 {
		return errors.NotValidf("participant id %d", r.ParticipantID)
	}
	if r.Recipient == "" {
		return errors.NotValidf("empty recipient")
	}
	return nil
}
