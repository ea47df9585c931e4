// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package conn implements the connection layer: blocking and
// cooperative stream connections to the server, the capability
// handshake, a health-checking connection pool, and the
// exponential-backoff retry wrapper. The pool, retry wrapper, and
// package session are written against the Conn interface so that the
// two transport flavors share all of that code.
package conn

import (
	"context"
	"log"

	"github.com/qdb-client/qdb/wire"
)

// State describes a connection's lifecycle position. Only a Ready
// connection accepts Send/Receive; a Broken connection is never
// returned to a pool's idle queue.
type State int32

const (
	Closed State = iota
	Opening
	Ready
	Broken
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Opening:
		return "opening"
	case Ready:
		return "ready"
	case Broken:
		return "broken"
	}
	return "unknown"
}

// Conn is a single stream connection to the server. Implementations
// are not safe for concurrent use: within one connection, requests are
// strictly serialized, and the caller must not issue a second Send
// before the prior Receive completes. The pool enforces this by
// handing out exclusive ownership between Acquire and Release.
type Conn interface {
	// Open dials, optionally wraps TLS, and performs the credential
	// handshake. Any failure closes the socket before returning.
	Open(ctx context.Context) error

	// Close releases the socket. Close is idempotent.
	Close() error

	// Send serializes v and writes one framed message.
	Send(ctx context.Context, t wire.MsgType, v wire.Value) error

	// Receive reads one framed message, decompressing if the header's
	// compressed flag is set, and decodes the body.
	Receive(ctx context.Context) (wire.MsgType, wire.Value, error)

	// Query is the synchronous send-receive round trip. A decoded
	// error value surfaces as a *werr.RemoteError.
	Query(ctx context.Context, v wire.Value) (wire.Value, error)

	// Ping sends a trivially-true expression and reports whether the
	// round trip succeeded; it never returns an error.
	Ping(ctx context.Context) bool

	// IsOpen reports whether the connection is Ready.
	IsOpen() bool

	// State returns the connection's current state.
	State() State
}

// Logger receives connection lifecycle diagnostics (handshake results,
// pool replacement, retry backoff). It defaults to log.Default; set it
// to a *log.Logger writing to io.Discard to silence the package.
var Logger = log.Default()
