// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package client fetches status records from game servers.
package client

import (
	"context"
	"net"
	"time"

	"github.com/juju/errors"

	"github.com/turnwatch/turnwatch/core/logger"
	"github.com/turnwatch/turnwatch/internal/wire"
)

// DefaultTimeout bounds a whole fetch: connect, exchange and close.
const DefaultTimeout = 5 * time.Second

// Dialer opens connections to game servers.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config holds the dependencies of a Client.
type Config struct {
	// Dialer opens connections. If nil, a net.Dialer is used.
	Dialer Dialer

	// Timeout bounds each fetch. If zero, DefaultTimeout is used.
	Timeout time.Duration

	Logger logger.Logger
}

// Validate ensures that the configuration is
// correctly populated for use.
func (config Config) Validate() error {
	if config.Timeout < 0 {
		return errors.NotValidf("negative Timeout")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

// Client performs one request/response exchange per Fetch. Connections
// are never reused.
type Client struct {
	dialer  Dialer
	timeout time.Duration
	logger  logger.Logger
}

// New returns a Client for the given configuration.
func New(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	c := &Client{
		dialer:  config.Dialer,
		timeout: config.Timeout,
		logger:  config.Logger,
	}
	if c.dialer == nil {
		c.dialer = &net.Dialer{}
	}
	if c.timeout == 0 {
		c.timeout = DefaultTimeout
	}
	return c, nil
}

// Fetch connects to address, asks for the game status and returns the
// decoded record. label names the server in errors and logs. Every
// failure is a *FetchError; Fetch never retries.
func (c *Client) Fetch(ctx context.Context, label, address string) (wire.RawRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rec, err := c.exchange(ctx, label, address)
	if err != nil {
		return wire.RawRecord{}, &FetchError{
			Label:   label,
			Address: address,
			Kind:    classify(ctx, err),
			Err:     err,
		}
	}
	return rec, nil
}

func (c *Client) exchange(ctx context.Context, label, address string) (wire.RawRecord, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return wire.RawRecord{}, errors.Annotate(err, "connecting")
	}
	defer func() { _ = conn.Close() }()

	// Unblock any pending read or write as soon as the context ends.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return wire.RawRecord{}, errors.Annotate(err, "setting deadline")
		}
	}

	if _, err := conn.Write(wire.QueryFrame()); err != nil {
		return wire.RawRecord{}, errors.Annotate(err, "sending query")
	}
	rec, err := wire.Decode(conn)
	if err != nil {
		return wire.RawRecord{}, errors.Annotate(err, "reading status")
	}

	if _, err := conn.Write(wire.CloseFrame()); err != nil {
		c.logger.Warningf("sending close to %s (%s): %v", label, address, err)
	}
	c.logger.Tracef("fetched %s (%s): %q turn %d", label, address, rec.Name, int32(rec.Turn))
	return rec, nil
}

// classify picks the kind of a fetch failure. Protocol errors keep their
// own identity and get no kind.
func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrConnectTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrConnectTimeout
	}
	for _, protocolErr := range []error{
		wire.ErrFrameTruncated,
		wire.ErrFrameTooLarge,
		wire.ErrDecompressionFailed,
		wire.ErrMalformedName,
		wire.ErrTrailingData,
	} {
		if errors.Is(err, protocolErr) {
			return nil
		}
	}
	return ErrIO
}
