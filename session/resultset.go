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
	"github.com/qdb-client/qdb/internal/werr"
	"github.com/qdb-client/qdb/wire"
)

// Result is a column-oriented result set. Column access returns the
// stored vectors unchanged; row iteration materializes one record at
// a time.
type Result struct {
	names []string
	cols  []wire.Value
	rows  int

	// Scalar holds the reply verbatim when it was not a table (an
	// atom, vector, or dict); names/cols are empty in that case.
	Scalar wire.Value
}

// Row is an anonymous record: column name to the value at one row.
type Row map[string]wire.Value

// AsResult maps a decoded reply into a Result. Tables (and keyed
// tables, whose key and value tables are merged left-to-right) become
// column-oriented results; any other value is carried in Scalar.
func AsResult(v wire.Value) (*Result, error) {
	r := &Result{}
	switch v.Kind {
	case wire.KindTable:
		if err := r.addTable(v); err != nil {
			return nil, err
		}
	case wire.KindDict:
		// keyed table: both sides are tables
		if v.DictKeys.Kind == wire.KindTable && v.DictVals.Kind == wire.KindTable {
			if err := r.addTable(*v.DictKeys); err != nil {
				return nil, err
			}
			if err := r.addTable(*v.DictVals); err != nil {
				return nil, err
			}
		} else {
			r.Scalar = v
		}
	default:
		r.Scalar = v
	}
	return r, nil
}

func (r *Result) addTable(t wire.Value) error {
	names := t.TableName
	cols := t.TableCols
	if names.Kind != wire.KindTypedVec && names.Kind != wire.KindList {
		return &werr.DeserializationError{Reason: "table column names are not a vector"}
	}
	nameVals := names.Vec
	if names.Kind == wire.KindList {
		nameVals = names.List
	}
	colVals := cols.List
	if cols.Kind == wire.KindTypedVec {
		colVals = cols.Vec
	}
	if len(nameVals) != len(colVals) {
		return &werr.DeserializationError{Reason: "table name/column count mismatch"}
	}
	for i, n := range nameVals {
		col := colVals[i]
		r.names = append(r.names, n.Sym)
		r.cols = append(r.cols, col)
		if n := colLen(col); n > r.rows {
			r.rows = n
		}
	}
	return nil
}

func colLen(v wire.Value) int {
	switch v.Kind {
	case wire.KindTypedVec:
		return len(v.Vec)
	case wire.KindList:
		return len(v.List)
	case wire.KindString:
		return len(v.Str)
	default:
		return 1
	}
}

// Len returns the number of rows.
func (r *Result) Len() int { return r.rows }

// Columns returns the column names in table order.
func (r *Result) Columns() []string { return r.names }

// Column returns the stored column vector for name, unchanged.
func (r *Result) Column(name string) (wire.Value, bool) {
	for i, n := range r.names {
		if n == name {
			return r.cols[i], true
		}
	}
	return wire.Value{}, false
}

// at returns the i'th element of a column vector.
func at(col wire.Value, i int) wire.Value {
	switch col.Kind {
	case wire.KindTypedVec:
		if i < len(col.Vec) {
			return col.Vec[i]
		}
	case wire.KindList:
		if i < len(col.List) {
			return col.List[i]
		}
	case wire.KindString:
		if i < len(col.Str) {
			return wire.NewString(col.Str[i : i+1])
		}
	default:
		return col
	}
	return wire.Value{}
}

// Row materializes row i as an anonymous record.
func (r *Result) Row(i int) Row {
	row := make(Row, len(r.names))
	for c, name := range r.names {
		row[name] = at(r.cols[c], i)
	}
	return row
}

// Each invokes fn for every row in order, stopping early if fn
// returns false. Callers that want their own row type scan the Row
// record into it (the caller-supplied row constructor).
func (r *Result) Each(fn func(i int, row Row) bool) {
	for i := 0; i < r.rows; i++ {
		if !fn(i, r.Row(i)) {
			return
		}
	}
}
