// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"

	"github.com/juju/errors"

	"github.com/turnwatch/turnwatch/core/game"
)

const registrySource = "registry"

// participantNamer looks up registered participant names.
type participantNamer interface {
	ParticipantNames(ctx context.Context, label string) (map[int]string, error)
}

// registryAugmenter attaches registered participant names to each
// polled state.
type registryAugmenter struct {
	names participantNamer
}

// Augment is part of the poller.Augmenter interface.
func (a registryAugmenter) Augment(ctx context.Context, state game.State) (*game.Augmentation, error) {
	names, err := a.names.ParticipantNames(ctx, state.Label())
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(names) == 0 {
		return nil, nil
	}
	return &game.Augmentation{Source: registrySource, Notes: names}, nil
}
