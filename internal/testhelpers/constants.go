// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package testhelpers

import (
	"time"
)

// ShortWait is how long to block waiting for something that should not
// happen. Tests really do wait this long.
const ShortWait = 50 * time.Millisecond

// LongWait is how long to wait for something that should already have
// happened. Passing tests never wait this long.
const LongWait = 10 * time.Second
