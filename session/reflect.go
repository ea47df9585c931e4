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
	"fmt"

	"github.com/qdb-client/qdb/internal/werr"
	"github.com/qdb-client/qdb/wire"
)

// ColumnMeta is one parsed row of the server's `meta` result: a
// column name, the server's one-character type code, and whether the
// column is part of the table's key.
type ColumnMeta struct {
	Name     string
	TypeChar byte
	Keyed    bool
}

// TableMeta is the reflected shape of one table, handed to the
// external schema builder.
type TableMeta struct {
	Name    string
	Columns []ColumnMeta
}

// Reflect queries `meta name` (plus `keys name`) and parses the
// column/type-char pairs.
func (s *Session) Reflect(ctx context.Context, name string) (*TableMeta, error) {
	v, err := s.Raw(ctx, "meta "+name)
	if err != nil {
		return nil, &werr.ReflectionError{Table: name, Err: err}
	}
	cols, err := parseMeta(v)
	if err != nil {
		return nil, &werr.ReflectionError{Table: name, Err: err}
	}
	keys, err := s.Raw(ctx, "keys `"+name)
	if err == nil {
		if keyNames, kerr := symbolSlice(keys); kerr == nil {
			for i := range cols {
				for _, k := range keyNames {
					if cols[i].Name == k {
						cols[i].Keyed = true
					}
				}
			}
		}
	}
	return &TableMeta{Name: name, Columns: cols}, nil
}

// ReflectAll reflects every table the server reports.
func (s *Session) ReflectAll(ctx context.Context) ([]*TableMeta, error) {
	names, err := s.Tables(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*TableMeta, 0, len(names))
	for _, n := range names {
		m, err := s.Reflect(ctx, n)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// parseMeta extracts the (column name, type char) pairs from a `meta`
// reply: a keyed table whose key table holds column `c` (names) and
// whose value table holds column `t` (type chars).
func parseMeta(v wire.Value) ([]ColumnMeta, error) {
	res, err := AsResult(v)
	if err != nil {
		return nil, err
	}
	nameCol, ok := res.Column("c")
	if !ok {
		return nil, fmt.Errorf("meta result has no `c column")
	}
	typeCol, ok := res.Column("t")
	if !ok {
		return nil, fmt.Errorf("meta result has no `t column")
	}
	names, err := symbolSlice(nameCol)
	if err != nil {
		return nil, err
	}
	var chars string
	switch typeCol.Kind {
	case wire.KindString:
		chars = typeCol.Str
	case wire.KindTypedVec:
		for _, c := range typeCol.Vec {
			chars += string(byte(c.Int))
		}
	default:
		return nil, fmt.Errorf("meta `t column is not a char vector")
	}
	if len(chars) != len(names) {
		return nil, fmt.Errorf("meta column/type count mismatch: %d vs %d", len(names), len(chars))
	}
	cols := make([]ColumnMeta, len(names))
	for i := range names {
		cols[i] = ColumnMeta{Name: names[i], TypeChar: chars[i]}
	}
	return cols, nil
}
