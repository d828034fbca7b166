// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package state

var schema = []string{`
CREATE TABLE IF NOT EXISTS server (
    label   TEXT NOT NULL PRIMARY KEY,
    address TEXT NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS registration (
    label            TEXT NOT NULL,
    participant_id   INT NOT NULL,
    recipient        TEXT NOT NULL,
    participant_name TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (label, participant_id, recipient)
);`, `
CREATE INDEX IF NOT EXISTS idx_registration_participant
ON registration (label, participant_id);`, `
CREATE TABLE IF NOT EXISTS last_turn (
    label TEXT NOT NULL PRIMARY KEY,
    turn  INT NOT NULL
);`,
}
