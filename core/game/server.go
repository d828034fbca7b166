// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package game

// Server is a tracked game server.
type Server struct {
	// Label is the alias the server is tracked under.
	Label string

	// Address is the host:port the server answers status queries on.
	Address string
}
