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

// Package session is the high-level request/reply surface: it wraps
// one connection and an optional retry policy, lowers query builders
// to strings, maps table replies into column-oriented result sets,
// and exposes the reflection and DDL verbs that are defined purely in
// terms of server queries. A Session is not safe for concurrent use;
// use one session per goroutine, or a pool underneath.
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdb-client/qdb/conn"
	"github.com/qdb-client/qdb/connspec"
	"github.com/qdb-client/qdb/internal/werr"
	"github.com/qdb-client/qdb/wire"
)

// Compiler is anything that lowers to a query string: query.Query,
// query.Update, query.Delete, query.Insert, and query.Join all
// qualify.
type Compiler interface {
	Compile() (string, error)
}

// Session wraps one connection and an optional retry policy. On each
// retryable failure the broken connection is closed and a fresh one
// opened before the operation is reattempted.
type Session struct {
	Spec connspec.ConnSpec

	// Transport builds the underlying connection; it defaults to the
	// blocking transport. Swap in conn.NewAsync (via NewAsync below)
	// for the cooperative one.
	Transport func(connspec.ConnSpec) conn.Conn

	cur conn.Conn
}

// New returns a session over the blocking transport.
func New(spec connspec.ConnSpec) *Session {
	return &Session{
		Spec: spec,
		Transport: func(s connspec.ConnSpec) conn.Conn {
			return conn.NewSync(s)
		},
	}
}

// NewAsync returns a session over the cooperative transport: every
// operation is cancellable at its suspension points.
func NewAsync(spec connspec.ConnSpec) *Session {
	return &Session{
		Spec: spec,
		Transport: func(s connspec.ConnSpec) conn.Conn {
			return conn.NewAsync(s)
		},
	}
}

// Open establishes the session's connection.
func (s *Session) Open(ctx context.Context) error {
	if s.cur != nil && s.cur.IsOpen() {
		return nil
	}
	c := s.Transport(s.Spec)
	if err := c.Open(ctx); err != nil {
		return err
	}
	s.cur = c
	return nil
}

// Close releases the session's connection.
func (s *Session) Close() error {
	if s.cur == nil {
		return nil
	}
	err := s.cur.Close()
	s.cur = nil
	return err
}

// reconnect discards the current (broken) connection and opens a
// fresh one; used as the retry wrapper's hook.
func (s *Session) reconnect(ctx context.Context) error {
	if s.cur != nil {
		s.cur.Close()
		s.cur = nil
	}
	return s.Open(ctx)
}

// withRetry runs fn under the session's retry policy, reconnecting
// between attempts.
func (s *Session) withRetry(ctx context.Context, fn func() error) error {
	return conn.Retry(ctx, s.Spec.Retry, s.reconnect, fn)
}

// Raw evaluates a query string on the server. Trailing args turn the
// request into the list form [expression, args...], which the server
// applies as a function call.
func (s *Session) Raw(ctx context.Context, query string, args ...wire.Value) (wire.Value, error) {
	var out wire.Value
	err := s.withRetry(ctx, func() error {
		if err := s.Open(ctx); err != nil {
			return err
		}
		req := wire.NewString(query)
		if len(args) > 0 {
			items := append([]wire.Value{req}, args...)
			req = wire.NewList(items...)
		}
		v, err := s.cur.Query(ctx, req)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return wire.Value{}, err
	}
	return out, nil
}

// Exec compiles q and evaluates it, mapping a table reply into a
// column-oriented Result.
func (s *Session) Exec(ctx context.Context, q Compiler) (*Result, error) {
	text, err := q.Compile()
	if err != nil {
		return nil, err
	}
	v, err := s.Raw(ctx, text)
	if err != nil {
		return nil, &werr.QueryError{Query: text, Err: err}
	}
	return AsResult(v)
}

// Call invokes a named server-side function with the given arguments.
func (s *Session) Call(ctx context.Context, fname string, args ...wire.Value) (wire.Value, error) {
	return s.Raw(ctx, fname, args...)
}

// ColumnDef declares one column for CreateTable: a name and the
// server's type name (e.g. "symbol", "float", "timestamp").
type ColumnDef struct {
	Name string
	Type string
}

// CreateTable creates an empty table with the given typed columns.
func (s *Session) CreateTable(ctx context.Context, name string, cols []ColumnDef) error {
	if len(cols) == 0 {
		return &werr.SchemaError{Table: name, Err: fmt.Errorf("no columns")}
	}
	var b strings.Builder
	b.WriteString(name)
	b.WriteString(":([]")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(";")
		}
		b.WriteString(c.Name)
		b.WriteString(":`")
		b.WriteString(c.Type)
		b.WriteString("$()")
	}
	b.WriteString(")")
	if _, err := s.Raw(ctx, b.String()); err != nil {
		return &werr.SchemaError{Table: name, Err: err}
	}
	return nil
}

// DropTable removes the named table from the root namespace.
func (s *Session) DropTable(ctx context.Context, name string) error {
	if _, err := s.Raw(ctx, fmt.Sprintf("![`.;();0b;enlist`%s]", name)); err != nil {
		return &werr.SchemaError{Table: name, Err: err}
	}
	return nil
}

// TableExists reports whether the named table exists.
func (s *Session) TableExists(ctx context.Context, name string) (bool, error) {
	tables, err := s.Tables(ctx)
	if err != nil {
		return false, err
	}
	for _, t := range tables {
		if t == name {
			return true, nil
		}
	}
	return false, nil
}

// Tables lists the tables in the server's root namespace.
func (s *Session) Tables(ctx context.Context) ([]string, error) {
	v, err := s.Raw(ctx, "tables[]")
	if err != nil {
		return nil, err
	}
	return symbolSlice(v)
}

func symbolSlice(v wire.Value) ([]string, error) {
	switch v.Kind {
	case wire.KindTypedVec:
		out := make([]string, len(v.Vec))
		for i, s := range v.Vec {
			out[i] = s.Sym
		}
		return out, nil
	case wire.KindSymbol:
		return []string{v.Sym}, nil
	case wire.KindList:
		out := make([]string, len(v.List))
		for i, s := range v.List {
			if s.Kind != wire.KindSymbol {
				return nil, &werr.DeserializationError{Reason: "expected symbol list"}
			}
			out[i] = s.Sym
		}
		return out, nil
	default:
		return nil, &werr.DeserializationError{Reason: "expected symbol vector"}
	}
}
