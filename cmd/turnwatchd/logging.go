// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/lumberjack/v2"
)

const logFileWriter = "logfile"

// setupLogging applies the logging config and, when a log file is
// configured, adds a rotating file writer alongside stderr. The
// returned func removes the writer again.
func setupLogging(cfg Config) (func(), error) {
	if err := loggo.ConfigureLoggers(cfg.LoggingConfig); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.LogFile == "" {
		return func() {}, nil
	}

	ljLogger := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogFileMaxSize,
		MaxBackups: cfg.LogFileMaxBackups,
		Compress:   true,
	}
	writer := loggo.NewSimpleWriter(ljLogger, loggo.DefaultFormatter)
	if err := loggo.RegisterWriter(logFileWriter, writer); err != nil {
		_ = ljLogger.Close()
		return nil, errors.Annotatef(err, "logging to %s", cfg.LogFile)
	}
	return func() {
		_, _ = loggo.RemoveWriter(logFileWriter)
		_ = ljLogger.Close()
	}, nil
}
