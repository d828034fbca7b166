// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"
	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/turnwatch/turnwatch/core/game"
	"github.com/turnwatch/turnwatch/internal/mapper"
	"github.com/turnwatch/turnwatch/internal/wire"
)

// recordFetcher fetches the raw status record of one server.
type recordFetcher interface {
	Fetch(ctx context.Context, label, address string) (wire.RawRecord, error)
}

type queryResult struct {
	Address      string             `yaml:"address" json:"address"`
	Name         string             `yaml:"name" json:"name"`
	Turn         int                `yaml:"turn" json:"turn"`
	UploadPhase  bool               `yaml:"upload-phase,omitempty" json:"upload-phase,omitempty"`
	Deadline     string             `yaml:"deadline,omitempty" json:"deadline,omitempty"`
	Era          uint32             `yaml:"era" json:"era"`
	Participants []queryParticipant `yaml:"participants" json:"participants"`
}

type queryParticipant struct {
	ID         int    `yaml:"id" json:"id"`
	Status     string `yaml:"status" json:"status"`
	Submission string `yaml:"submission" json:"submission"`
	Connected  bool   `yaml:"connected,omitempty" json:"connected,omitempty"`
}

// queryFormatters adds a tabular view to the default formats.
var queryFormatters = map[string]Formatter{
	"yaml":    formatYaml,
	"json":    formatJSON,
	"tabular": formatQueryTabular,
}

func formatQueryTabular(value interface{}) ([]byte, error) {
	result, ok := value.(queryResult)
	if !ok {
		return nil, errors.Errorf("expected value of type %T, got %T", result, value)
	}
	deadline := result.Deadline
	if deadline == "" {
		deadline = "-"
	}

	var out bytes.Buffer
	table := uitable.New()
	table.MaxColWidth = 50
	table.Wrap = true
	table.AddRow("Game", "Turn", "Era", "Deadline", "Address")
	table.AddRow(result.Name, result.Turn, result.Era, deadline, result.Address)
	fmt.Fprintln(&out, table)
	fmt.Fprintln(&out)

	table = uitable.New()
	table.RightAlign(0)
	table.AddRow("ID", "Status", "Orders", "Connected")
	for _, p := range result.Participants {
		connected := "no"
		if p.Connected {
			connected = "yes"
		}
		table.AddRow(p.ID, p.Status, p.Submission, connected)
	}
	fmt.Fprintln(&out, table)
	return out.Bytes(), nil
}

type queryCommand struct {
	fetcher recordFetcher
	clock   clock.Clock
	out     *Output
	dump    bool
}

// run fetches one server and writes either its decoded state or, when
// dumping, the response frame re-encoded without compression.
func (q queryCommand) run(ctx context.Context, stdout io.Writer, address string) error {
	rec, err := q.fetcher.Fetch(ctx, address, address)
	if err != nil {
		return errors.Trace(err)
	}

	if q.dump {
		frame, err := wire.EncodeResponse(rec, false)
		if err != nil {
			return errors.Trace(err)
		}
		return q.out.WriteRaw(stdout, frame)
	}

	now := q.clock.Now()
	state, err := mapper.Map(address, rec, now)
	if err != nil {
		return errors.Trace(err)
	}
	return q.out.Write(stdout, newQueryResult(address, rec, state, now))
}

func newQueryResult(address string, rec wire.RawRecord, state game.State, now time.Time) queryResult {
	result := queryResult{
		Address:      address,
		Name:         state.Name(),
		Turn:         state.Turn(),
		UploadPhase:  state.InUploadPhase(),
		Era:          rec.Era,
		Participants: make([]queryParticipant, 0),
	}
	if state.HasDeadline() {
		result.Deadline = humanize.RelTime(state.Deadline(), now, "ago", "from now")
	}
	for _, p := range state.Participants() {
		result.Participants = append(result.Participants, queryParticipant{
			ID:         p.ID,
			Status:     p.Status.String(),
			Submission: p.Submission.String(),
			Connected:  p.Connected,
		})
	}
	return result
}
