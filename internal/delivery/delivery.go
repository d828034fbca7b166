// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package delivery provides the sinks notifications are handed to.
package delivery

import (
	"context"

	"github.com/turnwatch/turnwatch/core/game"
	"github.com/turnwatch/turnwatch/core/logger"
)

// LogDeliverer writes notifications to a logger. It is used when no
// webhook is configured.
type LogDeliverer struct {
	Logger logger.Logger
}

// Deliver logs the notification.
func (d LogDeliverer) Deliver(_ context.Context, n game.Notification) error {
	d.Logger.Infof("notify %q about %s [%s]: %s", n.Recipient, n.Label, n.ID, n.Text)
	return nil
}
