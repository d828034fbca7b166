// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package client

import (
	"fmt"

	"github.com/juju/errors"
)

const (
	// ErrConnectTimeout is matched by fetches that ran out of time.
	ErrConnectTimeout = errors.ConstError("connect timeout")

	// ErrIO is matched by fetches that failed on the socket.
	ErrIO = errors.ConstError("i/o error")
)

// FetchError is the single error type returned by Fetch. It matches its
// kind (ErrConnectTimeout or ErrIO) when there is one, and the underlying
// cause, which may be a wire protocol error.
type FetchError struct {
	Label   string
	Address string
	Kind    error
	Err     error
}

// Error implements error.
func (e *FetchError) Error() string {
	if e.Kind != nil {
		return fmt.Sprintf("fetching %s (%s): %v: %v", e.Label, e.Address, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetching %s (%s): %v", e.Label, e.Address, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *FetchError) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}
	return []error{e.Kind, e.Err}
}
