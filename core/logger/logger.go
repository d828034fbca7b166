// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package logger

import "github.com/juju/loggo/v2"

// Logger is the logging interface handed to workers through their config.
// A loggo.Logger satisfies it.
type Logger interface {
	Criticalf(message string, args ...any)
	Errorf(message string, args ...any)
	Warningf(message string, args ...any)
	Infof(message string, args ...any)
	Debugf(message string, args ...any)
	Tracef(message string, args ...any)
}

// GetLogger returns the named loggo logger, rooted under "turnwatch".
func GetLogger(name string) Logger {
	return loggo.GetLogger("turnwatch." + name)
}

var _ Logger = loggo.Logger{}
