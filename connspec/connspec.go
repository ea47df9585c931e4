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

// Package connspec describes how to reach a server: host, port,
// optional credentials, and the handful of knobs (timeout, TLS
// context, retry policy) a connection or pool needs to open one. It
// deliberately does not read configuration files; loading and merging
// config sources is a separate concern layered on top.
package connspec

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// ConnSpec carries everything needed to open one connection.
type ConnSpec struct {
	Host     string
	Port     int
	User     string
	Password string

	// Timeout bounds the overall connect (TCP + TLS + handshake)
	// operation. Zero means no timeout.
	Timeout time.Duration

	// TLS is a caller-supplied TLS client configuration. A nil value
	// means "plain TCP"; the client never constructs its own TLS
	// policy.
	TLS *tls.Config

	// Retry is the retry policy applied by a Session built from this
	// spec. A nil value disables retrying.
	Retry *RetryPolicy
}

// Addr returns the "host:port" dial address for s.
func (s ConnSpec) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Parse builds a ConnSpec from a DSN of the shape
// scheme://[user[:pass]@]host:port, where scheme is "plain" or "tls".
// A "tls" scheme sets TLS to a minimal default config the caller may
// replace; Parse never loads certificates.
func Parse(dsn string) (ConnSpec, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return ConnSpec{}, fmt.Errorf("connspec: invalid DSN %q: %w", dsn, err)
	}
	var spec ConnSpec
	switch u.Scheme {
	case "plain", "":
		// no TLS
	case "tls":
		spec.TLS = &tls.Config{ServerName: u.Hostname()}
	default:
		return ConnSpec{}, fmt.Errorf("connspec: unknown scheme %q", u.Scheme)
	}
	if u.User != nil {
		spec.User = u.User.Username()
		spec.Password, _ = u.User.Password()
	}
	host := u.Hostname()
	if host == "" {
		return ConnSpec{}, fmt.Errorf("connspec: DSN %q has no host", dsn)
	}
	spec.Host = host
	portStr := u.Port()
	if portStr == "" {
		return ConnSpec{}, fmt.Errorf("connspec: DSN %q has no port", dsn)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return ConnSpec{}, fmt.Errorf("connspec: invalid port in DSN %q: %w", dsn, err)
	}
	spec.Port = port
	return spec, nil
}

// RetryPolicy is a record of the parameters an exponential-backoff
// retry wrapper needs.
type RetryPolicy struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64

	// Retryable reports whether err should be retried. A nil value
	// defaults to retrying connection-level errors only.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns a conservative policy: 3 retries, 100ms
// base delay, 2x backoff, capped at 5s.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:    3,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2,
	}
}

// Delay returns the backoff delay for the given zero-indexed attempt.
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= p.BackoffFactor
	}
	max := float64(p.MaxDelay)
	if d > max {
		d = max
	}
	return time.Duration(d)
}
