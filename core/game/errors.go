// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package game

import (
	"fmt"

	"github.com/juju/errors"
)

const (
	// ErrUnknownStatus is matched by every UnknownStatusError.
	ErrUnknownStatus = errors.ConstError("unknown participant status")

	// ErrTimeOverflow is returned when a countdown cannot be turned into
	// an absolute deadline.
	ErrTimeOverflow = errors.ConstError("deadline overflows time")

	// ErrChannelClosed is returned by workers whose input channel was
	// closed underneath them.
	ErrChannelClosed = errors.ConstError("channel closed")
)

// UnknownStatusError reports a status code outside the known set.
type UnknownStatusError struct {
	Code uint8
}

// Error implements error.
func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("%s %d", ErrUnknownStatus, e.Code)
}

// Is allows errors.Is(err, ErrUnknownStatus).
func (e *UnknownStatusError) Is(target error) bool {
	return target == ErrUnknownStatus
}
