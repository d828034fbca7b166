// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Command turnwatchd polls game servers for turn changes and notifies
// registered players.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"

	"github.com/turnwatch/turnwatch/internal/client"
)

var logger = loggo.GetLogger("turnwatch.cmd.turnwatchd")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(Main(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type flags struct {
	configPath string
	query      string
	dump       bool
	output     Output
}

func parseFlags(args []string, stderr io.Writer) (flags, error) {
	var f flags
	fs := gnuflag.NewFlagSet("turnwatchd", gnuflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configPath, "config", "", "path to the YAML configuration file")
	fs.StringVar(&f.query, "query", "", "fetch the status of one server address and exit")
	fs.BoolVar(&f.dump, "dump", false, "with --query, write the raw response frame instead")
	f.output.AddFlags(fs, "yaml", queryFormatters)
	if err := fs.Parse(true, args); err != nil {
		return flags{}, errors.Trace(err)
	}
	if len(fs.Args()) > 0 {
		return flags{}, errors.Errorf("unexpected arguments %q", fs.Args())
	}
	if f.dump && f.query == "" {
		return flags{}, errors.New("--dump requires --query")
	}
	return f, nil
}

// Main runs the command and returns its exit code.
func Main(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	f, err := parseFlags(args, stderr)
	if errors.Is(err, gnuflag.ErrHelp) {
		return 0
	} else if err != nil {
		fmt.Fprintf(stderr, "ERROR %v\n", err)
		return 2
	}

	cfg, err := loadConfig(f.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR %v\n", err)
		return 2
	}
	closeLog, err := setupLogging(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR configuring logging: %v\n", err)
		return 2
	}
	defer closeLog()

	if f.query != "" {
		err = runQuery(ctx, cfg, f, stdout)
	} else {
		err = run(ctx, cfg)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR %v\n", err)
		return 1
	}
	return 0
}

func loadConfig(path string) (Config, error) {
	if path == "" {
		return ReadConfig(strings.NewReader(""))
	}
	file, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Trace(err)
	}
	defer file.Close()
	cfg, err := ReadConfig(file)
	return cfg, errors.Annotatef(err, "reading %s", path)
}

func runQuery(ctx context.Context, cfg Config, f flags, stdout io.Writer) error {
	c, err := client.New(client.Config{
		Timeout: cfg.FetchTimeout,
		Logger:  logger,
	})
	if err != nil {
		return errors.Trace(err)
	}
	q := queryCommand{
		fetcher: c,
		clock:   clock.WallClock,
		out:     &f.output,
		dump:    f.dump,
	}
	return errors.Annotatef(q.run(ctx, stdout, f.query), "querying %s", f.query)
}

func run(ctx context.Context, cfg Config) error {
	db, st, err := openState(ctx, cfg)
	if err != nil {
		return errors.Trace(err)
	}
	defer db.Close()

	listener, err := net.Listen("tcp", cfg.HTTPAddress)
	if err != nil {
		return errors.Annotate(err, "listening for status api")
	}

	d, err := newDaemon(cfg, st, listener, clock.WallClock)
	if err != nil {
		_ = listener.Close()
		return errors.Trace(err)
	}
	logger.Infof("watching %d configured servers, status on %s", len(cfg.Servers), listener.Addr())

	go func() {
		select {
		case <-ctx.Done():
			logger.Infof("shutting down")
			d.Kill()
		case <-d.catacomb.Dying():
		}
	}()
	return errors.Trace(d.Wait())
}
