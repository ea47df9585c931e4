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
	"crypto/tls"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/qdb-client/qdb/compress"
	"github.com/qdb-client/qdb/connspec"
	"github.com/qdb-client/qdb/internal/werr"
	"github.com/qdb-client/qdb/wire"
)

// SyncConn is the blocking-syscall transport: one socket, owned by one
// caller at a time. The serializer and deserializer scratch buffers
// are owned exclusively by the connection for the duration of a call.
type SyncConn struct {
	Spec connspec.ConnSpec

	// CompressLevel > 0 enables payload compression for messages
	// above the size threshold, provided the negotiated capability
	// permits it.
	CompressLevel int

	// sockmu guards sock's assignment during Open so that a
	// concurrent Close (async cancellation) can reach the socket;
	// Send/Receive access is exclusive by ownership.
	sockmu     sync.Mutex
	sock       net.Conn
	state      atomic.Int32
	capability byte
	ser        *wire.Serializer
	des        *wire.Deserializer
}

// NewSync returns an unopened sync connection for spec.
func NewSync(spec connspec.ConnSpec) *SyncConn {
	return &SyncConn{
		Spec: spec,
		ser:  wire.NewSerializer(),
		des:  wire.NewDeserializer(),
	}
}

// State returns the connection's current state.
func (c *SyncConn) State() State { return State(c.state.Load()) }

// IsOpen reports whether the connection is Ready.
func (c *SyncConn) IsOpen() bool { return c.State() == Ready }

func (c *SyncConn) setState(s State) { c.state.Store(int32(s)) }

// Open dials the server, optionally wraps the socket in TLS with the
// caller-supplied configuration, and performs the handshake. Any
// failure closes the socket and propagates.
func (c *SyncConn) Open(ctx context.Context) error {
	if c.IsOpen() {
		return nil
	}
	c.setState(Opening)
	addr := c.Spec.Addr()

	d := net.Dialer{Timeout: c.Spec.Timeout}
	sock, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.setState(Closed)
		return werr.NewConnectionError(addr, err)
	}
	if tcp, ok := sock.(*net.TCPConn); ok {
		setSockOpts(tcp)
	}
	// publish the socket before the handshake so that a concurrent
	// Close (async cancellation) can unblock it
	c.setSock(sock)
	if c.Spec.TLS != nil {
		tc := tls.Client(sock, c.Spec.TLS)
		if err := tc.HandshakeContext(ctx); err != nil {
			c.Close()
			return werr.NewConnectionError(addr, err)
		}
		c.setSock(tc)
	}
	c.applyDeadline(ctx)
	hs := c.currentSock()
	if hs == nil {
		return werr.NewConnectionError(addr, errNotOpen)
	}
	level, err := handshake(hs, addr, c.Spec.User, c.Spec.Password)
	if err != nil {
		c.Close()
		return err
	}
	hs.SetDeadline(time.Time{})
	c.capability = level
	c.setState(Ready)
	return nil
}

func (c *SyncConn) currentSock() net.Conn {
	c.sockmu.Lock()
	defer c.sockmu.Unlock()
	return c.sock
}

func (c *SyncConn) setSock(s net.Conn) {
	c.sockmu.Lock()
	c.sock = s
	c.sockmu.Unlock()
}

// Close releases the socket. It is idempotent.
func (c *SyncConn) Close() error {
	c.setState(Closed)
	c.sockmu.Lock()
	sock := c.sock
	c.sock = nil
	c.sockmu.Unlock()
	if sock == nil {
		return nil
	}
	return sock.Close()
}

// breakConn marks the connection Broken and closes the socket; used
// after any I/O failure so the pool never re-queues it.
func (c *SyncConn) breakConn() {
	c.setState(Broken)
	if s := c.currentSock(); s != nil {
		s.Close()
	}
}

func (c *SyncConn) applyDeadline(ctx context.Context) {
	s := c.currentSock()
	if s == nil {
		return
	}
	if dl, ok := ctx.Deadline(); ok {
		s.SetDeadline(dl)
	} else {
		s.SetDeadline(time.Time{})
	}
}

// Send serializes v and writes the framed (and, when enabled and
// profitable, compressed) message to the socket.
func (c *SyncConn) Send(ctx context.Context, t wire.MsgType, v wire.Value) error {
	if !c.IsOpen() {
		return werr.NewConnectionError(c.Spec.Addr(), errNotOpen)
	}
	frame, err := c.ser.Serialize(t, v)
	if err != nil {
		return err
	}
	out := c.maybeCompress(frame)
	c.applyDeadline(ctx)
	sock := c.currentSock()
	if sock == nil {
		return werr.NewConnectionError(c.Spec.Addr(), errNotOpen)
	}
	if _, err := sock.Write(out); err != nil {
		c.breakConn()
		return werr.NewConnectionError(c.Spec.Addr(), err)
	}
	return nil
}

// maybeCompress returns frame, or a recompressed copy of it when the
// compression level, negotiated capability, and size threshold permit.
func (c *SyncConn) maybeCompress(frame []byte) []byte {
	if c.CompressLevel <= 0 || c.capability < capabilityRequest {
		return frame
	}
	var hdr [wire.HeaderLen]byte
	copy(hdr[:], frame[:wire.HeaderLen])
	body, ok := compress.Compress(hdr, frame[wire.HeaderLen:], c.CompressLevel)
	if !ok {
		return frame
	}
	out := make([]byte, wire.HeaderLen+len(body))
	copy(out, hdr[:])
	out[2] = 1 // compressed flag
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)))
	copy(out[wire.HeaderLen:], body)
	return out
}

// Receive reads one framed message: 8 header bytes, then
// total_length-8 payload bytes, decompressing when the compressed
// flag is set, then decodes the body.
func (c *SyncConn) Receive(ctx context.Context) (wire.MsgType, wire.Value, error) {
	if !c.IsOpen() {
		return 0, wire.Value{}, werr.NewConnectionError(c.Spec.Addr(), errNotOpen)
	}
	c.applyDeadline(ctx)
	sock := c.currentSock()
	if sock == nil {
		return 0, wire.Value{}, werr.NewConnectionError(c.Spec.Addr(), errNotOpen)
	}
	frame, err := readFrame(sock)
	if err != nil {
		c.breakConn()
		return 0, wire.Value{}, wrapReadError(c.Spec.Addr(), err)
	}
	t, v, err := c.des.Deserialize(frame)
	if err != nil {
		return 0, wire.Value{}, err
	}
	return t, v, nil
}

var (
	errNotOpen    = errors.New("connection is not open")
	errPeerClosed = errors.New("Connection closed by peer")
)

// wrapReadError maps short reads on a closed peer to the dedicated
// peer-closed connection error.
func wrapReadError(addr string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return werr.NewConnectionError(addr, errPeerClosed)
	}
	var de *werr.DeserializationError
	if errors.As(err, &de) {
		return err
	}
	return werr.NewConnectionError(addr, err)
}

// readFrame reads one full wire frame from r and returns it
// decompressed: header (with the compressed flag cleared) followed by
// the tagged payload.
func readFrame(r io.Reader) ([]byte, error) {
	var hdr [wire.HeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	_, _, compressed, total, err := wire.UnpackHeader(hdr[:])
	if err != nil {
		return nil, err
	}
	payload := make([]byte, int(total)-wire.HeaderLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	if !compressed {
		frame := make([]byte, 0, int(total))
		frame = append(frame, hdr[:]...)
		return append(frame, payload...), nil
	}
	if len(payload) < 8 {
		return nil, &werr.DeserializationError{Reason: "truncated compression sub-header"}
	}
	// rebuild the uncompressed header the decompressor pre-fills its
	// output with: same endian and msg_type, flag cleared, and the
	// uncompressed total length from the sub-header
	var orig [wire.HeaderLen]byte
	copy(orig[:], hdr[:])
	orig[2] = 0
	binary.LittleEndian.PutUint32(orig[4:8], binary.LittleEndian.Uint32(payload[0:4]))
	body, err := compress.Decompress(orig, payload)
	if err != nil {
		return nil, &werr.DeserializationError{Reason: err.Error()}
	}
	frame := make([]byte, 0, wire.HeaderLen+len(body))
	frame = append(frame, orig[:]...)
	return append(frame, body...), nil
}

// Query is the synchronous send-receive round trip. A reply carrying
// the server's error tag surfaces as a *werr.RemoteError.
func (c *SyncConn) Query(ctx context.Context, v wire.Value) (wire.Value, error) {
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
func (c *SyncConn) Ping(ctx context.Context) bool {
	v, err := c.Query(ctx, wire.NewString("1b"))
	return err == nil && v.Truthy()
}
