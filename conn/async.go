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

package conn

import (
	"context"

	"github.com/qdb-client/qdb/connspec"
	"github.com/qdb-client/qdb/internal/werr"
	"github.com/qdb-client/qdb/wire"
)

// AsyncConn is the cooperative transport: every operation is a
// suspension point that honors context cancellation, so a caller
// multiplexing many connections on few goroutines never blocks on a
// stalled peer. I/O runs on an internal goroutine per call; on
// cancellation the socket is closed, which unblocks the syscall, and
// the connection is left Broken (or Closed, if the cancelled
// operation was Open) rather than half-open.
//
// Like SyncConn, an AsyncConn is owned by one caller at a time;
// concurrent callers on the same connection are undefined.
type AsyncConn struct {
	inner *SyncConn
}

// NewAsync returns an unopened async connection for spec.
func NewAsync(spec connspec.ConnSpec) *AsyncConn {
	return &AsyncConn{inner: NewSync(spec)}
}

// SetCompressLevel sets the compression level hint used by Send.
func (c *AsyncConn) SetCompressLevel(level int) { c.inner.CompressLevel = level }

// State returns the connection's current state.
func (c *AsyncConn) State() State { return c.inner.State() }

// IsOpen reports whether the connection is Ready.
func (c *AsyncConn) IsOpen() bool { return c.inner.IsOpen() }

// await runs op on its own goroutine and waits for either completion
// or cancellation. On cancellation, onCancel must force op to return
// promptly (closing the socket does this for every blocking syscall);
// the goroutine is then drained so no socket use continues past the
// return.
func (c *AsyncConn) await(ctx context.Context, op func() error, onCancel func()) error {
	done := make(chan error, 1)
	go func() { done <- op() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		onCancel()
		<-done
		return werr.NewConnectionError(c.inner.Spec.Addr(), ctx.Err())
	}
}

// Open dials, wraps TLS if configured, and performs the handshake.
// Cancellation mid-open closes the socket instead of leaking it.
func (c *AsyncConn) Open(ctx context.Context) error {
	return c.await(ctx, func() error { return c.inner.Open(ctx) }, func() {
		c.inner.Close()
	})
}

// Close releases the socket. It is idempotent.
func (c *AsyncConn) Close() error { return c.inner.Close() }

// Send serializes v and writes one framed message. Cancellation
// leaves the connection Broken.
func (c *AsyncConn) Send(ctx context.Context, t wire.MsgType, v wire.Value) error {
	return c.await(ctx, func() error { return c.inner.Send(ctx, t, v) }, c.inner.breakConn)
}

// Receive reads and decodes one framed message. Cancellation leaves
// the connection Broken.
func (c *AsyncConn) Receive(ctx context.Context) (wire.MsgType, wire.Value, error) {
	var mt wire.MsgType
	var val wire.Value
	err := c.await(ctx, func() error {
		var err error
		mt, val, err = c.inner.Receive(ctx)
		return err
	}, c.inner.breakConn)
	return mt, val, err
}

// Query is the send-receive round trip.
func (c *AsyncConn) Query(ctx context.Context, v wire.Value) (wire.Value, error) {
	if err := c.Send(ctx, wire.MsgSync, v); err != nil {
		return wire.Value{}, err
	}
	_, resp, err := c.Receive(ctx)
	if err != nil {
		return wire.Value{}, err
	}
	if resp.Kind == wire.KindError {
		return wire.Value{}, &werr.RemoteError{Text: resp.ErrText}
	}
	return resp, nil
}

// Ping sends a trivially-true expression and reports success without
// raising.
func (c *AsyncConn) Ping(ctx context.Context) bool {
	v, err := c.Query(ctx, wire.NewString("1b"))
	return err == nil && v.Truthy()
}
