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

package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/qdb-client/qdb/expr"
	"github.com/qdb-client/qdb/internal/werr"
	"github.com/qdb-client/qdb/wire"
)

// Insert transposes row-oriented input into per-column vector
// literals and emits the server's insert statement.
type Insert struct {
	table string
	rows  [][]wire.Value
}

// InsertInto starts an insert against the named table.
func InsertInto(table string) Insert { return Insert{table: table} }

// Rows appends rows. Every row must have the same number of columns.
func (i Insert) Rows(rows ...[]wire.Value) Insert {
	i.rows = append(i.rows[:len(i.rows):len(i.rows)], rows...)
	return i
}

// Compile emits `table insert (col1;col2;...), each column rendered
// as a type-appropriate vector literal.
func (i Insert) Compile() (string, error) {
	if i.table == "" {
		return "", &werr.QueryError{Err: fmt.Errorf("insert has no table")}
	}
	if len(i.rows) == 0 {
		return "", &werr.QueryError{Err: fmt.Errorf("insert has no rows")}
	}
	width := len(i.rows[0])
	if width == 0 {
		return "", &werr.QueryError{Err: fmt.Errorf("insert rows are empty")}
	}
	for r, row := range i.rows {
		if len(row) != width {
			return "", &werr.QueryError{Err: fmt.Errorf("row %d has %d columns, want %d", r, len(row), width)}
		}
	}
	cols := make([]string, width)
	for c := 0; c < width; c++ {
		col := make([]wire.Value, len(i.rows))
		for r := range i.rows {
			col[r] = i.rows[r][c]
		}
		lit, err := columnLiteral(col)
		if err != nil {
			return "", err
		}
		cols[c] = lit
	}
	return "`" + i.table + " insert (" + strings.Join(cols, ";") + ")", nil
}

// columnKind returns the value whose kind governs a column's literal
// syntax: the first non-null value, or the first typed null when the
// whole column is null.
func columnKind(col []wire.Value) wire.Value {
	for _, v := range col {
		if !v.IsNull() {
			return v
		}
	}
	return col[0]
}

func columnLiteral(col []wire.Value) (string, error) {
	lead := columnKind(col)
	switch lead.Kind {
	case wire.KindSymbol:
		var b strings.Builder
		for _, v := range col {
			b.WriteString("`")
			if !v.IsNull() {
				b.WriteString(v.Sym)
			}
		}
		return b.String(), nil
	case wire.KindBool:
		var b strings.Builder
		for _, v := range col {
			if v.Bool {
				b.WriteString("1")
			} else {
				b.WriteString("0")
			}
		}
		b.WriteString("b")
		return b.String(), nil
	case wire.KindInt64:
		parts := make([]string, len(col))
		for i, v := range col {
			parts[i] = intToken(v)
		}
		return strings.Join(parts, " "), nil
	case wire.KindFloat64:
		parts := make([]string, len(col))
		for i, v := range col {
			if v.IsNull() {
				parts[i] = "0Nf"
			} else {
				parts[i] = strconv.FormatFloat(v.Float, 'g', -1, 64)
			}
		}
		return strings.Join(parts, " "), nil
	case wire.KindString:
		single := true
		for _, v := range col {
			if len(v.Str) != 1 {
				single = false
				break
			}
		}
		if single {
			var b strings.Builder
			b.WriteString("\"")
			for _, v := range col {
				b.WriteString(v.Str)
			}
			b.WriteString("\"")
			return b.String(), nil
		}
		parts := make([]string, len(col))
		for i, v := range col {
			parts[i] = "\"" + v.Str + "\""
		}
		return "(" + strings.Join(parts, ";") + ")", nil
	case wire.KindTemporal:
		parts := make([]string, len(col))
		for i, v := range col {
			if v.IsNull() {
				parts[i] = nullTemporalToken(lead.TemporalCode)
			} else {
				parts[i] = expr.Text(expr.Lit(v), false)
			}
		}
		return "(" + strings.Join(parts, ";") + ")", nil
	case wire.KindGUID:
		parts := make([]string, len(col))
		for i, v := range col {
			parts[i] = "\"G\"$\"" + v.GUID.String() + "\""
		}
		return "(" + strings.Join(parts, ";") + ")", nil
	case wire.KindNull:
		// whole column of typed nulls
		parts := make([]string, len(col))
		for i, v := range col {
			parts[i] = intToken(v)
		}
		return strings.Join(parts, " "), nil
	default:
		return "", &werr.QueryError{Err: fmt.Errorf("cannot build insert literal for kind %d", lead.Kind)}
	}
}

func intToken(v wire.Value) string {
	if !v.IsNull() {
		return strconv.FormatInt(v.Int, 10)
	}
	switch v.NullCode {
	case wire.CodeShort:
		return "0Nh"
	case wire.CodeInt:
		return "0Ni"
	case wire.CodeFloat, wire.CodeReal:
		return "0Nf"
	default:
		return "0N"
	}
}

func nullTemporalToken(c wire.Code) string {
	switch c {
	case wire.CodeDate:
		return "0Nd"
	case wire.CodeTimespan:
		return "0Nn"
	case wire.CodeTimestamp:
		return "0Np"
	default:
		return "0N"
	}
}
