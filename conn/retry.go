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
	"time"

	"github.com/qdb-client/qdb/connspec"
	"github.com/qdb-client/qdb/internal/werr"
)

// Retryable is the default predicate for which errors the retry
// wrapper swallows: connection-level failures (including handshake
// failures), but never an authentication refusal, which repeating
// cannot fix.
func Retryable(err error) bool {
	var auth *werr.AuthenticationError
	if errors.As(err, &auth) {
		return false
	}
	var ce *werr.ConnectionError
	var he *werr.HandshakeError
	return errors.As(err, &ce) || errors.As(err, &he)
}

// Retry invokes fn, and on a retryable error calls reconnect (if
// non-nil), sleeps the policy's backoff delay, and tries again, up to
// policy.MaxRetries additional attempts. Non-retryable errors pass
// through on first occurrence. When the budget is exhausted the last
// underlying error is preserved in the returned error's chain.
//
// Sleeping honors ctx, so the same wrapper serves both the blocking
// and the cooperative transport.
func Retry(ctx context.Context, policy *connspec.RetryPolicy, reconnect func(context.Context) error, fn func() error) error {
	if policy == nil {
		return fn()
	}
	retryable := policy.Retryable
	if retryable == nil {
		retryable = Retryable
	}
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !retryable(err) {
			return err
		}
		if attempt >= policy.MaxRetries {
			break
		}
		delay := policy.Delay(attempt)
		Logger.Printf("qdb: retrying after %v (attempt %d/%d): %v", delay, attempt+1, policy.MaxRetries, err)
		if reconnect != nil {
			if rerr := reconnect(ctx); rerr != nil {
				Logger.Printf("qdb: reconnect failed: %v", rerr)
			}
		}
		if serr := sleep(ctx, delay); serr != nil {
			return fmt.Errorf("retry interrupted: %w", err)
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", policy.MaxRetries+1, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
