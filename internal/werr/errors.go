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

// Package werr defines the client's error taxonomy as concrete types
// implementing the error interface, so that callers can use errors.As
// to distinguish failure kinds instead of matching on message text.
package werr

import "fmt"

// ConnectionError indicates a TCP/TLS failure, a peer close, or a
// connection that is otherwise no longer usable. Retryable by default.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("connection error: %v", e.Err)
	}
	return fmt.Sprintf("connection error (%s): %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// NewConnectionError wraps err as a ConnectionError for addr.
func NewConnectionError(addr string, err error) *ConnectionError {
	return &ConnectionError{Addr: addr, Err: err}
}

// HandshakeError indicates a malformed capability response during
// connection setup. It is a ConnectionError.
type HandshakeError struct {
	Addr string
	Err  error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake error (%s): %v", e.Addr, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// As lets errors.As match a HandshakeError as a *ConnectionError.
func (e *HandshakeError) As(target interface{}) bool {
	if t, ok := target.(**ConnectionError); ok {
		*t = &ConnectionError{Addr: e.Addr, Err: e}
		return true
	}
	return false
}

// AuthenticationError indicates the server refused the supplied
// credentials (an empty capability reply). It is a HandshakeError.
type AuthenticationError struct {
	Addr string
	User string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication refused for user %q at %s", e.User, e.Addr)
}

// As lets errors.As match an AuthenticationError as a *HandshakeError
// or a *ConnectionError.
func (e *AuthenticationError) As(target interface{}) bool {
	switch t := target.(type) {
	case **HandshakeError:
		*t = &HandshakeError{Addr: e.Addr, Err: e}
		return true
	case **ConnectionError:
		*t = &ConnectionError{Addr: e.Addr, Err: e}
		return true
	}
	return false
}

// SerializationError indicates a host value could not be represented
// on the wire.
type SerializationError struct {
	HostType string
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("cannot serialize value of type %s", e.HostType)
}

// DeserializationError indicates an unknown tag, a truncated frame, or
// inconsistent element counts while decoding a message.
type DeserializationError struct {
	Reason string
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("deserialization error: %s", e.Reason)
}

// QueryError is the caller-visible base for query failures.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// RemoteError wraps the error tag decoded from a server reply, with
// the server-supplied message preserved verbatim. It is a QueryError.
type RemoteError struct {
	Text string
}

func (e *RemoteError) Error() string { return e.Text }

// As lets errors.As match a RemoteError as a *QueryError.
func (e *RemoteError) As(target interface{}) bool {
	if t, ok := target.(**QueryError); ok {
		*t = &QueryError{Err: e}
		return true
	}
	return false
}

// SchemaError indicates a DDL-level failure reported by the caller layer.
type SchemaError struct {
	Table string
	Err   error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error for %q: %v", e.Table, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// PoolError indicates the pool is closed or otherwise unusable.
type PoolError struct {
	Reason string
}

func (e *PoolError) Error() string { return fmt.Sprintf("pool error: %s", e.Reason) }

// PoolExhaustedError indicates acquire timed out waiting for a free
// connection. It is a PoolError.
type PoolExhaustedError struct {
	Timeout string
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("pool exhausted: no connection available within %s", e.Timeout)
}

// As lets errors.As match a PoolExhaustedError as a *PoolError.
func (e *PoolExhaustedError) As(target interface{}) bool {
	if t, ok := target.(**PoolError); ok {
		*t = &PoolError{Reason: e.Error()}
		return true
	}
	return false
}

// ReflectionError indicates a malformed `meta` result.
type ReflectionError struct {
	Table string
	Err   error
}

func (e *ReflectionError) Error() string {
	return fmt.Sprintf("reflection failed for %q: %v", e.Table, e.Err)
}

func (e *ReflectionError) Unwrap() error { return e.Err }
