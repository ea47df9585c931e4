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
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/qdb-client/qdb/connspec"
	"github.com/qdb-client/qdb/internal/werr"
	"github.com/qdb-client/qdb/wire"
)

// serverHandshake performs the server side of the credential
// exchange: read until the zero terminator, reply with one
// capability byte.
func serverHandshake(c net.Conn) error {
	r := bufio.NewReader(c)
	if _, err := r.ReadBytes(0); err != nil {
		return err
	}
	_, err := c.Write([]byte{3})
	return err
}

// readRawFrame reads one wire frame (header + payload) verbatim.
func readRawFrame(c net.Conn) ([]byte, error) {
	hdr := make([]byte, wire.HeaderLen)
	if _, err := io.ReadFull(c, hdr); err != nil {
		return nil, err
	}
	total := binary.LittleEndian.Uint32(hdr[4:8])
	frame := make([]byte, total)
	copy(frame, hdr)
	if _, err := io.ReadFull(c, frame[wire.HeaderLen:]); err != nil {
		return nil, err
	}
	return frame, nil
}

// startServer runs handler for every accepted connection and returns
// a spec pointing at it.
func startServer(t *testing.T, handler func(net.Conn)) connspec.ConnSpec {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go handler(c)
		}
	}()
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return connspec.ConnSpec{Host: "127.0.0.1", Port: port, Timeout: 2 * time.Second}
}

// echoHandler echoes every received frame back with the response
// message type, leaving the payload (compressed or not) untouched.
func echoHandler(c net.Conn) {
	defer c.Close()
	if err := serverHandshake(c); err != nil {
		return
	}
	for {
		frame, err := readRawFrame(c)
		if err != nil {
			return
		}
		frame[1] = byte(wire.MsgResp)
		if _, err := c.Write(frame); err != nil {
			return
		}
	}
}

func TestSyncQueryRoundTrip(t *testing.T) {
	spec := startServer(t, echoHandler)
	c := NewSync(spec)
	ctx := context.Background()
	if err := c.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()
	if c.State() != Ready {
		t.Fatalf("state = %v, want ready", c.State())
	}

	want := wire.NewList(wire.NewSymbol("trade"), wire.NewInt(42))
	got, err := c.Query(ctx, want)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("echo mismatch: got %+v", got)
	}
}

func TestSyncCompressedRoundTrip(t *testing.T) {
	spec := startServer(t, echoHandler)
	c := NewSync(spec)
	c.CompressLevel = 1
	ctx := context.Background()
	if err := c.Open(ctx); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	// a long homogeneous vector compresses well past the threshold
	items := make([]wire.Value, 512)
	for i := range items {
		items[i] = wire.NewInt(7)
	}
	want := wire.NewVector(wire.CodeLong, items...)
	got, err := c.Query(ctx, want)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !got.Equal(want) {
		t.Fatal("compressed round trip mismatch")
	}
}

func TestAuthenticationRefused(t *testing.T) {
	spec := startServer(t, func(c net.Conn) {
		// read the credential line, then hang up without a capability
		// byte: the protocol's authentication refusal
		r := bufio.NewReader(c)
		r.ReadBytes(0)
		c.Close()
	})
	spec.User = "nobody"
	c := NewSync(spec)
	err := c.Open(context.Background())
	var auth *werr.AuthenticationError
	if !errors.As(err, &auth) {
		t.Fatalf("got %v, want AuthenticationError", err)
	}
	if c.State() != Closed {
		t.Fatalf("state after failed open = %v, want closed", c.State())
	}
}

func TestReceivePeerClosed(t *testing.T) {
	spec := startServer(t, func(c net.Conn) {
		serverHandshake(c)
		readRawFrame(c)
		c.Close()
	})
	c := NewSync(spec)
	ctx := context.Background()
	if err := c.Open(ctx); err != nil {
		t.Fatal(err)
	}
	_, err := c.Query(ctx, wire.NewInt(1))
	var ce *werr.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("got %v, want ConnectionError", err)
	}
	if !errors.Is(err, errPeerClosed) {
		t.Fatalf("got %v, want peer-closed cause", err)
	}
	if c.State() != Broken {
		t.Fatalf("state = %v, want broken", c.State())
	}
}

func TestPingReportsFailure(t *testing.T) {
	spec := startServer(t, echoHandler)
	c := NewSync(spec)
	ctx := context.Background()
	if c.Ping(ctx) {
		t.Fatal("ping on unopened connection must fail, not panic")
	}
	if err := c.Open(ctx); err != nil {
		t.Fatal(err)
	}
	if !c.Ping(ctx) {
		t.Fatal("ping against echo server should succeed")
	}
	c.Close()
	if c.Ping(ctx) {
		t.Fatal("ping after close must fail")
	}
}

func TestAsyncQueryAndCancellation(t *testing.T) {
	block := make(chan struct{})
	spec := startServer(t, func(c net.Conn) {
		defer c.Close()
		if err := serverHandshake(c); err != nil {
			return
		}
		for {
			frame, err := readRawFrame(c)
			if err != nil {
				return
			}
			// stall instead of answering once the test asks for it
			select {
			case <-block:
				time.Sleep(time.Second)
				return
			default:
			}
			frame[1] = byte(wire.MsgResp)
			c.Write(frame)
		}
	})

	ctx := context.Background()
	a := NewAsync(spec)
	if err := a.Open(ctx); err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	want := wire.NewSymbol("ok")
	got, err := a.Query(ctx, want)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(want) {
		t.Fatal("echo mismatch")
	}

	// now make the server stall and cancel mid-receive; the connection
	// must come back broken, not half-open
	close(block)
	cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = a.Query(cctx, wire.NewSymbol("stall"))
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if a.State() != Broken && a.State() != Closed {
		t.Fatalf("state after cancel = %v", a.State())
	}
}

func TestOpenCancelledClosesSocket(t *testing.T) {
	spec := startServer(t, func(c net.Conn) {
		// accept and never answer the handshake
		buf := make([]byte, 64)
		c.Read(buf)
		time.Sleep(time.Second)
		c.Close()
	})
	a := NewAsync(spec)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := a.Open(ctx); err == nil {
		t.Fatal("expected open to fail on cancellation")
	}
	if a.State() == Ready {
		t.Fatal("cancelled open must not leave connection ready")
	}
}
