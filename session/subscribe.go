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

package session

import (
	"context"

	"github.com/qdb-client/qdb/conn"
	"github.com/qdb-client/qdb/wire"
)

// Push is one server-initiated message: an optional function name
// (usually "upd"), the table it applies to, and the payload.
type Push struct {
	Func    string
	Table   string
	Payload wire.Value
}

// Listen loops on the session's connection decoding server-push
// messages (msg_type 0) whose body is the list
// [function_name?, table_name, payload] and invokes fn for each. It
// returns when ctx is cancelled, the connection fails, or fn returns
// a non-nil error. Messages that are not pushes are ignored. This is
// the thin listener the subscription surface consists of; broker
// semantics live on the server.
func (s *Session) Listen(ctx context.Context, fn func(Push) error) error {
	if err := s.Open(ctx); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		t, v, err := s.cur.Receive(ctx)
		if err != nil {
			return err
		}
		if t != wire.MsgAsync {
			continue
		}
		p, ok := parsePush(v)
		if !ok {
			continue
		}
		if err := fn(p); err != nil {
			return err
		}
	}
}

func parsePush(v wire.Value) (Push, bool) {
	if v.Kind != wire.KindList || len(v.List) < 2 {
		return Push{}, false
	}
	items := v.List
	var p Push
	// leading function-name symbol is optional
	if items[0].Kind == wire.KindSymbol && len(items) >= 3 {
		p.Func = items[0].Sym
		items = items[1:]
	}
	if items[0].Kind != wire.KindSymbol {
		return Push{}, false
	}
	p.Table = items[0].Sym
	p.Payload = items[1]
	return p, true
}

// Subscribe issues the conventional subscription request for a table
// and then invokes Listen. The server's pub/sub configuration decides
// what gets pushed; the client only reuses the codec.
func (s *Session) Subscribe(ctx context.Context, table string, fn func(Push) error) error {
	if err := s.Open(ctx); err != nil {
		return err
	}
	if err := s.cur.Send(ctx, wire.MsgSync, wire.NewString(".u.sub[`"+table+";`]")); err != nil {
		return err
	}
	if _, _, err := s.cur.Receive(ctx); err != nil {
		return err
	}
	conn.Logger.Printf("qdb: subscribed to %s", table)
	return s.Listen(ctx, fn)
}
