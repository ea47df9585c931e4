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
	"strings"

	"github.com/qdb-client/qdb/internal/werr"
)

// Join is a compiled-on-demand join of two table expressions. The
// left/right operands are table names or already-compiled subquery
// strings.
type Join struct {
	kind    string
	cols    []string
	left    string
	right   string
	windows [2]int64
	aggs    []WindowAgg
}

// WindowAgg pairs an aggregate function name with the column it is
// applied to inside a window join.
type WindowAgg struct {
	Func   string
	Column string
}

// AsOf builds an as-of join on cols: aj[`c1`c2...;left;right].
func AsOf(cols []string, left, right string) Join {
	return Join{kind: "aj", cols: cols, left: left, right: right}
}

// Left builds a left join keyed on cols: left lj cols xkey right.
func Left(cols []string, left, right string) Join {
	return Join{kind: "lj", cols: cols, left: left, right: right}
}

// Inner builds an inner join keyed on cols: left ij cols xkey right.
func Inner(cols []string, left, right string) Join {
	return Join{kind: "ij", cols: cols, left: left, right: right}
}

// Window builds a window join: each left row is joined against the
// right rows whose last join column falls within [lo;hi] of it, and
// aggs are applied to those rows.
func Window(lo, hi int64, cols []string, left, right string, aggs []WindowAgg) Join {
	return Join{kind: "wj", windows: [2]int64{lo, hi}, cols: cols, left: left, right: right, aggs: aggs}
}

func backtickJoin(cols []string) string {
	var b strings.Builder
	for _, c := range cols {
		b.WriteString("`")
		b.WriteString(c)
	}
	return b.String()
}

// Compile emits the join in the server's notation.
func (j Join) Compile() (string, error) {
	if len(j.cols) == 0 {
		return "", &werr.QueryError{Err: fmt.Errorf("%s join has no columns", j.kind)}
	}
	if j.left == "" || j.right == "" {
		return "", &werr.QueryError{Err: fmt.Errorf("%s join is missing a table", j.kind)}
	}
	syms := backtickJoin(j.cols)
	switch j.kind {
	case "aj":
		return fmt.Sprintf("aj[%s;%s;%s]", syms, j.left, j.right), nil
	case "lj", "ij":
		return fmt.Sprintf("%s %s %s xkey %s", j.left, j.kind, syms, j.right), nil
	case "wj":
		if len(j.aggs) == 0 {
			return "", &werr.QueryError{Err: fmt.Errorf("window join has no aggregates")}
		}
		timeCol := j.cols[len(j.cols)-1]
		pairs := make([]string, len(j.aggs))
		for i, a := range j.aggs {
			pairs[i] = fmt.Sprintf("(%s;`%s)", a.Func, a.Column)
		}
		return fmt.Sprintf("wj[%d %d+%s.%s;%s;%s;(%s;%s)]",
			j.windows[0], j.windows[1], j.left, timeCol, syms, j.left, j.right, strings.Join(pairs, ";")), nil
	default:
		return "", &werr.QueryError{Err: fmt.Errorf("unknown join kind %q", j.kind)}
	}
}
