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
	"fmt"
	"testing"
	"time"

	"github.com/qdb-client/qdb/connspec"
	"github.com/qdb-client/qdb/internal/werr"
)

func fastPolicy() *connspec.RetryPolicy {
	return &connspec.RetryPolicy{
		MaxRetries:    3,
		BaseDelay:     time.Microsecond,
		MaxDelay:      time.Millisecond,
		BackoffFactor: 2,
	}
}

func TestRetrySucceedsOnThirdAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(), nil, func() error {
		calls++
		if calls < 3 {
			return werr.NewConnectionError("x:1", errors.New("flaky"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("got %v, want success", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustsAfterFourAttempts(t *testing.T) {
	calls := 0
	base := werr.NewConnectionError("x:1", errors.New("down"))
	err := Retry(context.Background(), fastPolicy(), nil, func() error {
		calls++
		return base
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 4 {
		t.Fatalf("calls = %d, want 4 (1 + 3 retries)", calls)
	}
	// the last underlying error is preserved in the chain
	var ce *werr.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("cause chain lost: %v", err)
	}
}

func TestRetryNonRetryablePassesThrough(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(), nil, func() error {
		calls++
		return fmt.Errorf("semantic failure")
	})
	if err == nil || calls != 1 {
		t.Fatalf("calls = %d err = %v, want 1 call and pass-through", calls, err)
	}
}

func TestRetryAuthNotRetried(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(), nil, func() error {
		calls++
		return &werr.AuthenticationError{Addr: "x:1", User: "u"}
	})
	if err == nil || calls != 1 {
		t.Fatalf("authentication refusal must not be retried (calls=%d)", calls)
	}
}

func TestRetryCallsReconnectHook(t *testing.T) {
	recon := 0
	calls := 0
	err := Retry(context.Background(), fastPolicy(), func(context.Context) error {
		recon++
		return nil
	}, func() error {
		calls++
		if calls == 1 {
			return werr.NewConnectionError("x:1", errors.New("first"))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if recon != 1 {
		t.Fatalf("reconnect called %d times, want 1", recon)
	}
}

func TestDelayArithmetic(t *testing.T) {
	p := &connspec.RetryPolicy{
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2,
	}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second}, // capped
		{10, time.Second},
	}
	for _, c := range cases {
		if got := p.Delay(c.attempt); got != c.want {
			t.Errorf("Delay(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &connspec.RetryPolicy{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour, BackoffFactor: 1}
	calls := 0
	err := Retry(ctx, p, nil, func() error {
		calls++
		return werr.NewConnectionError("x:1", errors.New("down"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("cancelled context must stop retrying after the first attempt, got %d", calls)
	}
}
