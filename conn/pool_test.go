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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/qdb-client/qdb/internal/werr"
	"github.com/qdb-client/qdb/wire"
)

// fakeConn is an in-memory Conn whose state the tests steer directly.
type fakeConn struct {
	state atomic.Int32
}

func (f *fakeConn) Open(context.Context) error {
	f.state.Store(int32(Ready))
	return nil
}
func (f *fakeConn) Close() error {
	f.state.Store(int32(Closed))
	return nil
}
func (f *fakeConn) Send(context.Context, wire.MsgType, wire.Value) error { return nil }
func (f *fakeConn) Receive(context.Context) (wire.MsgType, wire.Value, error) {
	return wire.MsgResp, wire.NewBool(true), nil
}
func (f *fakeConn) Query(context.Context, wire.Value) (wire.Value, error) {
	return wire.NewBool(true), nil
}
func (f *fakeConn) Ping(context.Context) bool { return f.IsOpen() }
func (f *fakeConn) IsOpen() bool              { return f.State() == Ready }
func (f *fakeConn) State() State              { return State(f.state.Load()) }

func fakeDialer() (Dialer, *atomic.Int32) {
	var dials atomic.Int32
	return func() Conn {
		dials.Add(1)
		return &fakeConn{}
	}, &dials
}

func TestPoolCountNeverExceedsMax(t *testing.T) {
	dial, _ := fakeDialer()
	p, err := NewPool(dial, 0, 2, 20*time.Millisecond, false)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	ctx := context.Background()

	a, err := p.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if p.Size() != 2 {
		t.Fatalf("size = %d, want 2", p.Size())
	}
	_, err = p.Acquire(ctx)
	var exhausted *werr.PoolExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("got %v, want PoolExhaustedError", err)
	}
	if p.Size() != 2 {
		t.Fatalf("size after exhaustion = %d, want 2", p.Size())
	}
	p.Release(a)
	p.Release(b)
}

// TestPoolWaiterGetsReleasedConn is the three-concurrent-acquires
// scenario: with max=2 the first two succeed, the third blocks until
// a release hands it a usable connection within the acquire timeout.
func TestPoolWaiterGetsReleasedConn(t *testing.T) {
	dial, _ := fakeDialer()
	p, err := NewPool(dial, 1, 2, time.Second, false)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	ctx := context.Background()
	if err := p.Warm(ctx); err != nil {
		t.Fatal(err)
	}

	a, err := p.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}

	got := make(chan Conn, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c, err := p.Acquire(ctx)
		if err != nil {
			t.Errorf("third acquire: %v", err)
			return
		}
		got <- c
	}()

	time.Sleep(10 * time.Millisecond) // let the third caller block
	p.Release(a)
	wg.Wait()
	select {
	case c := <-got:
		if !c.IsOpen() {
			t.Fatal("third caller received an unusable connection")
		}
		p.Release(c)
	default:
		t.Fatal("third caller did not get a connection")
	}
	p.Release(b)
}

func TestPoolBrokenNeverRequeued(t *testing.T) {
	dial, dials := fakeDialer()
	p, err := NewPool(dial, 0, 2, 20*time.Millisecond, false)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	ctx := context.Background()

	c, err := p.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	c.(*fakeConn).state.Store(int32(Broken))
	p.Release(c)
	if p.Size() != 0 {
		t.Fatalf("size after releasing broken conn = %d, want 0", p.Size())
	}
	// the freed slot lets a future acquire dial a replacement
	c2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if c2.State() != Ready {
		t.Fatal("replacement not ready")
	}
	if dials.Load() != 2 {
		t.Fatalf("dial count = %d, want 2", dials.Load())
	}
	p.Release(c2)
}

func TestPoolCheckOnAcquireReplaces(t *testing.T) {
	dial, dials := fakeDialer()
	p, err := NewPool(dial, 0, 2, 20*time.Millisecond, true)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	ctx := context.Background()

	c, err := p.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	p.Release(c)
	// the idle connection dies while queued
	c.(*fakeConn).state.Store(int32(Broken))

	c2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if c2 == c {
		t.Fatal("acquire returned the dead connection")
	}
	if c2.State() != Ready {
		t.Fatal("replacement not ready")
	}
	if dials.Load() != 2 {
		t.Fatalf("dial count = %d, want 2", dials.Load())
	}
	if p.Size() != 1 {
		t.Fatalf("size = %d, want 1 (replacement reuses the slot)", p.Size())
	}
	p.Release(c2)
}

func TestPoolCloseIdempotentAndFailsAcquire(t *testing.T) {
	dial, _ := fakeDialer()
	p, err := NewPool(dial, 0, 2, 20*time.Millisecond, false)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	c, err := p.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	p.Release(c)

	done := make(chan struct{})
	go func() {
		p.Close() // close from another goroutine
		close(done)
	}()
	<-done
	p.Close() // idempotent

	if _, err := p.Acquire(ctx); err == nil {
		t.Fatal("acquire after close must fail")
	}
	var pe *werr.PoolError
	_, err = p.Acquire(ctx)
	if !errors.As(err, &pe) {
		t.Fatalf("got %v, want PoolError", err)
	}
	if c.State() != Closed {
		t.Fatal("idle connection not closed by pool close")
	}
	// releasing into a closed pool closes the connection
	c2 := &fakeConn{}
	c2.state.Store(int32(Ready))
	p.Release(c2)
	if c2.State() != Closed {
		t.Fatal("release into closed pool must close the connection")
	}
}

func TestPoolConcurrentAcquireRelease(t *testing.T) {
	dial, _ := fakeDialer()
	const max = 4
	p, err := NewPool(dial, 0, max, time.Second, true)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c, err := p.Acquire(ctx)
				if err != nil {
					t.Errorf("acquire: %v", err)
					return
				}
				if p.Size() > max {
					t.Errorf("size %d exceeds max %d", p.Size(), max)
				}
				p.Release(c)
			}
		}()
	}
	wg.Wait()
	if p.Size() > max {
		t.Fatalf("final size %d exceeds max %d", p.Size(), max)
	}
}
