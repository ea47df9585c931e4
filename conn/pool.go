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
	"fmt"
	"sync"
	"time"

	"github.com/qdb-client/qdb/internal/werr"
)

// Dialer constructs a fresh, unopened connection. The pool calls it
// under its size accounting and then opens the result.
type Dialer func() Conn

// Pool is a bounded pool of connections shared by concurrent callers.
// Each connection is exclusively owned between Acquire and Release.
// Invariants: the live count never exceeds max, and every connection
// in the idle queue was Ready at the moment it was enqueued.
type Pool struct {
	dial           Dialer
	min, max       int
	acquireTimeout time.Duration
	checkOnAcquire bool

	mu     sync.Mutex
	count  int
	closed bool
	idle   chan Conn
}

// NewPool builds a pool that dials connections with dial, holding at
// most max live connections and pre-opening min of them on Warm.
// Acquire waits at most acquireTimeout for a free connection before
// failing. When checkOnAcquire is set, a connection handed out from
// the idle queue is health-checked first and replaced if not Ready.
func NewPool(dial Dialer, min, max int, acquireTimeout time.Duration, checkOnAcquire bool) (*Pool, error) {
	if max <= 0 || min < 0 || min > max {
		return nil, &werr.PoolError{Reason: fmt.Sprintf("invalid sizing min=%d max=%d", min, max)}
	}
	return &Pool{
		dial:           dial,
		min:            min,
		max:            max,
		acquireTimeout: acquireTimeout,
		checkOnAcquire: checkOnAcquire,
		idle:           make(chan Conn, max),
	}, nil
}

// Warm opens the pool's min connections up front so the first callers
// do not pay connect latency. Failures are returned but leave the
// pool usable; Acquire will keep dialing on demand.
func (p *Pool) Warm(ctx context.Context) error {
	for i := 0; i < p.min; i++ {
		c, err := p.open(ctx)
		if err != nil {
			return err
		}
		p.Release(c)
	}
	return nil
}

// Size returns the number of live connections (idle plus handed out).
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// open reserves a slot in the count and dials a new connection,
// releasing the slot again if the open fails.
func (p *Pool) open(ctx context.Context) (Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, &werr.PoolError{Reason: "pool is closed"}
	}
	if p.count >= p.max {
		p.mu.Unlock()
		return nil, nil
	}
	p.count++
	p.mu.Unlock()

	c := p.dial()
	if err := c.Open(ctx); err != nil {
		p.mu.Lock()
		p.count--
		p.mu.Unlock()
		return nil, err
	}
	return c, nil
}

// replace dials a substitute for a connection that is already counted
// but no longer usable. The broken connection is closed; on dial
// failure the slot is freed.
func (p *Pool) replace(ctx context.Context, dead Conn) (Conn, error) {
	dead.Close()
	Logger.Printf("qdb: pool replacing dead connection")
	c := p.dial()
	if err := c.Open(ctx); err != nil {
		p.mu.Lock()
		p.count--
		p.mu.Unlock()
		return nil, err
	}
	return c, nil
}

// Acquire returns a connection for exclusive use, dialing a fresh one
// if the pool is below max, or waiting up to the acquire timeout for
// a Release. A candidate from the idle queue that fails the
// check-on-acquire health check is closed and transparently replaced.
func (p *Pool) Acquire(ctx context.Context) (Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, &werr.PoolError{Reason: "pool is closed"}
	}
	p.mu.Unlock()

	select {
	case c := <-p.idle:
		return p.vet(ctx, c)
	default:
	}

	c, err := p.open(ctx)
	if err != nil {
		return nil, err
	}
	if c != nil {
		return c, nil
	}

	// at capacity: wait for a release
	timeout := p.acquireTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case c := <-p.idle:
		return p.vet(ctx, c)
	case <-ctx.Done():
		return nil, &werr.PoolError{Reason: ctx.Err().Error()}
	case <-t.C:
		return nil, &werr.PoolExhaustedError{Timeout: timeout.String()}
	}
}

// vet applies the check-on-acquire policy to a connection taken from
// the idle queue.
func (p *Pool) vet(ctx context.Context, c Conn) (Conn, error) {
	if !p.checkOnAcquire || c.State() == Ready {
		return c, nil
	}
	return p.replace(ctx, c)
}

// Release returns a connection to the pool. A connection that is no
// longer Ready is closed and its slot freed so a future Acquire may
// create a replacement; a Ready connection on a closed pool is simply
// closed.
func (p *Pool) Release(c Conn) {
	if c == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		c.Close()
		return
	}
	if c.State() != Ready {
		p.count--
		p.mu.Unlock()
		c.Close()
		return
	}
	p.mu.Unlock()
	select {
	case p.idle <- c:
	default:
		// queue full: excess connection, drop it
		p.mu.Lock()
		p.count--
		p.mu.Unlock()
		c.Close()
	}
}

// Close marks the pool closed, closes every idle connection, and
// zeroes the count. It is idempotent and safe to call concurrently
// with Acquire/Release from other goroutines; subsequent Acquires
// fail.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.count = 0
	p.mu.Unlock()
	for {
		select {
		case c := <-p.idle:
			c.Close()
		default:
			return
		}
	}
}
