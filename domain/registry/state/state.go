// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package state persists the server registry, recipient registrations
// and the last turn reported for each server in SQLite.
package state

import (
	"context"
	"database/sql"

	"github.com/canonical/sqlair"
	"github.com/juju/errors"

	"github.com/turnwatch/turnwatch/core/game"
	"github.com/turnwatch/turnwatch/domain/registry"
)

// State provides access to the registry database.
type State struct {
	raw *sql.DB
	db  *sqlair.DB
}

// NewState returns a State backed by db.
func NewState(db *sql.DB) *State {
	return &State{
		raw: db,
		db:  sqlair.NewDB(db),
	}
}

// EnsureSchema creates any missing tables.
func (s *State) EnsureSchema(ctx context.Context) error {
	tx, err := s.raw.BeginTx(ctx, nil)
	if err != nil {
		return errors.Trace(err)
	}
	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return errors.Annotate(err, "applying schema")
		}
	}
	return errors.Trace(tx.Commit())
}

// AddServer registers a server, replacing the address of an existing
// server with the same label.
func (s *State) AddServer(ctx context.Context, server game.Server) error {
	if server.Label == "" {
		return errors.NotValidf("empty label")
	}
	if server.Address == "" {
		return errors.NotValidf("empty address for %q", server.Label)
	}

	row := serverRow{Label: server.Label, Address: server.Address}
	stmt, err := sqlair.Prepare(`
INSERT INTO server (label, address)
VALUES ($serverRow.label, $serverRow.address)
ON CONFLICT (label) DO UPDATE SET address = excluded.address`, row)
	if err != nil {
		return errors.Annotate(err, "preparing insert server statement")
	}

	err = s.txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		return tx.Query(ctx, stmt, row).Run()
	})
	return errors.Annotatef(err, "adding server %q", server.Label)
}

// RemoveServer removes a server along with its registrations and turn
// history. It returns an error satisfying [registry.ServerNotFound] if
// the label is unknown.
func (s *State) RemoveServer(ctx context.Context, label string) error {
	row := serverRow{Label: label}
	deleteServer, err := sqlair.Prepare(`DELETE FROM server WHERE label = $serverRow.label`, row)
	if err != nil {
		return errors.Annotate(err, "preparing delete server statement")
	}
	deleteRegistrations, err := sqlair.Prepare(`DELETE FROM registration WHERE label = $serverRow.label`, row)
	if err != nil {
		return errors.Annotate(err, "preparing delete registrations statement")
	}
	deleteTurn, err := sqlair.Prepare(`DELETE FROM last_turn WHERE label = $serverRow.label`, row)
	if err != nil {
		return errors.Annotate(err, "preparing delete last turn statement")
	}

	err = s.txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		var outcome sqlair.Outcome
		if err := tx.Query(ctx, deleteServer, row).Get(&outcome); err != nil {
			return errors.Trace(err)
		}
		if affected, err := outcome.Result().RowsAffected(); err != nil {
			return errors.Trace(err)
		} else if affected == 0 {
			return errors.Annotatef(registry.ServerNotFound, "%q", label)
		}
		if err := tx.Query(ctx, deleteRegistrations, row).Run(); err != nil {
			return errors.Trace(err)
		}
		return tx.Query(ctx, deleteTurn, row).Run()
	})
	return errors.Annotate(err, "removing server")
}

// Servers returns every registered server ordered by label.
func (s *State) Servers(ctx context.Context) ([]game.Server, error) {
	stmt, err := sqlair.Prepare(`SELECT &serverRow.* FROM server ORDER BY label`, serverRow{})
	if err != nil {
		return nil, errors.Annotate(err, "preparing select servers statement")
	}

	var rows []serverRow
	err = s.txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		err := tx.Query(ctx, stmt).GetAll(&rows)
		if errors.Is(err, sqlair.ErrNoRows) {
			return nil
		}
		return errors.Trace(err)
	})
	if err != nil {
		return nil, errors.Annotate(err, "listing servers")
	}

	servers := make([]game.Server, len(rows))
	for i, row := range rows {
		servers[i] = game.Server{Label: row.Label, Address: row.Address}
	}
	return servers, nil
}

// AddRegistration records that a recipient wants to hear about a
// participant. The server must already be registered.
func (s *State) AddRegistration(ctx context.Context, reg registry.Registration) error {
	if err := reg.Validate(); err != nil {
		return errors.Trace(err)
	}

	server := serverRow{Label: reg.Label}
	selectServer, err := sqlair.Prepare(`SELECT &serverRow.* FROM server WHERE label = $serverRow.label`, server)
	if err != nil {
		return errors.Annotate(err, "preparing select server statement")
	}
	row := registrationRow{
		Label:           reg.Label,
		ParticipantID:   reg.ParticipantID,
		Recipient:       reg.Recipient,
		ParticipantName: reg.ParticipantName,
	}
	insert, err := sqlair.Prepare(`
INSERT INTO registration (label, participant_id, recipient, participant_name)
VALUES ($registrationRow.label, $registrationRow.participant_id,
        $registrationRow.recipient, $registrationRow.participant_name)
ON CONFLICT (label, participant_id, recipient)
DO UPDATE SET participant_name = excluded.participant_name`, row)
	if err != nil {
		return errors.Annotate(err, "preparing insert registration statement")
	}

	err = s.txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		err := tx.Query(ctx, selectServer, server).Get(&server)
		if errors.Is(err, sqlair.ErrNoRows) {
			return errors.Annotatef(registry.ServerNotFound, "%q", reg.Label)
		} else if err != nil {
			return errors.Trace(err)
		}
		return tx.Query(ctx, insert, row).Run()
	})
	return errors.Annotatef(err, "registering %q for %s participant %d", reg.Recipient, reg.Label, reg.ParticipantID)
}

// Recipients returns who is registered for a participant, ordered by
// recipient.
func (s *State) Recipients(ctx context.Context, label string, participantID int) ([]game.Recipient, error) {
	arg := registrationRow{Label: label, ParticipantID: participantID}
	stmt, err := sqlair.Prepare(`
SELECT &registrationRow.*
FROM   registration
WHERE  label = $registrationRow.label
AND    participant_id = $registrationRow.participant_id
ORDER BY recipient`, arg)
	if err != nil {
		return nil, errors.Annotate(err, "preparing select recipients statement")
	}

	var rows []registrationRow
	err = s.txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		err := tx.Query(ctx, stmt, arg).GetAll(&rows)
		if errors.Is(err, sqlair.ErrNoRows) {
			return nil
		}
		return errors.Trace(err)
	})
	if err != nil {
		return nil, errors.Annotatef(err, "listing recipients for %s participant %d", label, participantID)
	}

	recipients := make([]game.Recipient, len(rows))
	for i, row := range rows {
		recipients[i] = game.Recipient{ID: row.Recipient, DisplayName: row.ParticipantName}
	}
	return recipients, nil
}

// ParticipantNames returns the registered name of each named
// participant on a server.
func (s *State) ParticipantNames(ctx context.Context, label string) (map[int]string, error) {
	arg := registrationRow{Label: label}
	stmt, err := sqlair.Prepare(`
SELECT DISTINCT &registrationRow.participant_id, &registrationRow.participant_name
FROM   registration
WHERE  label = $registrationRow.label
AND    participant_name != ''`, arg)
	if err != nil {
		return nil, errors.Annotate(err, "preparing select participant names statement")
	}

	var rows []registrationRow
	err = s.txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		err := tx.Query(ctx, stmt, arg).GetAll(&rows)
		if errors.Is(err, sqlair.ErrNoRows) {
			return nil
		}
		return errors.Trace(err)
	})
	if err != nil {
		return nil, errors.Annotatef(err, "listing participant names for %s", label)
	}

	names := make(map[int]string, len(rows))
	for _, row := range rows {
		names[row.ParticipantID] = row.ParticipantName
	}
	return names, nil
}

// RecordTurn stores the last turn reported for a server.
func (s *State) RecordTurn(ctx context.Context, label string, turn int) error {
	row := turnRow{Label: label, Turn: turn}
	stmt, err := sqlair.Prepare(`
INSERT INTO last_turn (label, turn)
VALUES ($turnRow.label, $turnRow.turn)
ON CONFLICT (label) DO UPDATE SET turn = excluded.turn`, row)
	if err != nil {
		return errors.Annotate(err, "preparing record turn statement")
	}

	err = s.txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		return tx.Query(ctx, stmt, row).Run()
	})
	return errors.Annotatef(err, "recording turn %d for %s", turn, label)
}

// LastTurns returns the last turn reported for every server.
func (s *State) LastTurns(ctx context.Context) (map[string]int, error) {
	stmt, err := sqlair.Prepare(`SELECT &turnRow.* FROM last_turn`, turnRow{})
	if err != nil {
		return nil, errors.Annotate(err, "preparing select last turns statement")
	}

	var rows []turnRow
	err = s.txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		err := tx.Query(ctx, stmt).GetAll(&rows)
		if errors.Is(err, sqlair.ErrNoRows) {
			return nil
		}
		return errors.Trace(err)
	})
	if err != nil {
		return nil, errors.Annotate(err, "listing last turns")
	}

	turns := make(map[string]int, len(rows))
	for _, row := range rows {
		turns[row.Label] = row.Turn
	}
	return turns, nil
}

func (s *State) txn(ctx context.Context, fn func(context.Context, *sqlair.TX) error) error {
	tx, err := s.db.Begin(ctx, nil)
	if err != nil {
		return errors.Trace(err)
	}
	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Annotatef(err, "rolling back: %v", rbErr)
		}
		return errors.Trace(err)
	}
	return errors.Trace(tx.Commit())
}
