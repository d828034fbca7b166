// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package wire

import "github.com/juju/errors"

const (
	// ErrFrameTruncated is returned when a frame or record ends before
	// the layout says it should.
	ErrFrameTruncated = errors.ConstError("frame truncated")

	// ErrFrameTooLarge is returned when a header declares a body longer
	// than MaxBodyLength.
	ErrFrameTooLarge = errors.ConstError("frame too large")

	// ErrDecompressionFailed is returned when a compressed body cannot be
	// inflated.
	ErrDecompressionFailed = errors.ConstError("decompression failed")

	// ErrMalformedName is returned when the game name has no terminator.
	ErrMalformedName = errors.ConstError("malformed game name")

	// ErrTrailingData is returned when a record is longer than its layout.
	ErrTrailingData = errors.ConstError("unexpected trailing data")
)
