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

// Package query lowers expression trees into the server's functional
// query notation: the four-tuple forms ?[t;c;b;a] (select/exec) and
// ![t;c;b;a] (update/delete), plus insert statements and join
// builders. One dialect is used throughout: WHERE clauses and value
// expressions are emitted infix, exactly as package expr renders
// them.
package query

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/qdb-client/qdb/expr"
	"github.com/qdb-client/qdb/internal/werr"
	"github.com/qdb-client/qdb/wire"
)

// Selection is one named entry in a SELECT or BY dictionary.
type Selection struct {
	Name string
	Node expr.Node
}

// As names a select/group expression explicitly.
func As(name string, n expr.Node) Selection { return Selection{Name: name, Node: n} }

// Sel wraps n with a best-effort inferred name: bare columns keep
// their name, aggregates without an alias become <agg>_<column>,
// calls take the function's name.
func Sel(n expr.Node) Selection { return Selection{Name: inferName(n), Node: n} }

func inferName(n expr.Node) string {
	switch t := n.(type) {
	case expr.Column:
		return t.Name
	case expr.Agg:
		if len(t.Args) == 1 {
			if c, ok := t.Args[0].(expr.Column); ok {
				return t.Op + "_" + c.Name
			}
		}
		return t.Op
	case expr.Call:
		return t.Func
	case expr.Fby:
		return inferName(t.Agg)
	default:
		return "x"
	}
}

// Query is the builder state for a SELECT/EXEC against one table.
// Every combinator copies the builder, so intermediate states can be
// shared and extended independently.
type Query struct {
	table    string
	selects  []Selection
	wheres   []expr.Node
	bys      []Selection
	limit  *int64
	offset *int64
}

// From starts a query against the named table.
func From(table string) Query { return Query{table: table} }

func (q Query) clone() Query {
	q.selects = slices.Clone(q.selects)
	q.wheres = slices.Clone(q.wheres)
	q.bys = slices.Clone(q.bys)
	return q
}

// Select appends result columns. Plain expr.Node arguments may be
// passed through Sel; explicit aliases through As.
func (q Query) Select(cols ...Selection) Query {
	q = q.clone()
	q.selects = append(q.selects, cols...)
	return q
}

// Where appends conjuncts to the WHERE clause list.
func (q Query) Where(preds ...expr.Node) Query {
	q = q.clone()
	q.wheres = append(q.wheres, preds...)
	return q
}

// By appends grouping expressions.
func (q Query) By(cols ...Selection) Query {
	q = q.clone()
	q.bys = append(q.bys, cols...)
	return q
}

// Limit caps the result at n rows (the server's "take" operator).
func (q Query) Limit(n int64) Query {
	q = q.clone()
	q.limit = &n
	return q
}

// Offset drops the first k rows (the server's "drop" operator).
// Limit and Offset compose.
func (q Query) Offset(k int64) Query {
	q = q.clone()
	q.offset = &k
	return q
}

// Compile lowers the query to the functional SELECT form.
func (q Query) Compile() (string, error) {
	return q.compile(false)
}

// CompileExec lowers the query to the EXEC form: the same four-tuple,
// but a single unaliased column collapses the result dictionary to an
// atom symbol, so the server returns a vector rather than a table.
func (q Query) CompileExec() (string, error) {
	return q.compile(true)
}

// Explain returns the compiled form with every literal redacted, for
// safe logging of query shapes.
func (q Query) Explain() string {
	red := q.clone()
	for i, w := range red.wheres {
		red.wheres[i] = expr.Sent(expr.Text(lower(w), true))
	}
	for i, s := range red.selects {
		red.selects[i].Node = expr.Sent(expr.Text(lower(s.Node), true))
	}
	for i, s := range red.bys {
		red.bys[i].Node = expr.Sent(expr.Text(lower(s.Node), true))
	}
	s, err := red.compile(false)
	if err != nil {
		return fmt.Sprintf("<invalid query: %v>", err)
	}
	return s
}

func (q Query) compile(exec bool) (string, error) {
	if q.table == "" {
		return "", &werr.QueryError{Err: fmt.Errorf("query has no table")}
	}
	var b strings.Builder
	b.WriteString("?[")
	b.WriteString(q.table)
	b.WriteString(";")
	b.WriteString(compileWhere(q.wheres))
	b.WriteString(";")
	b.WriteString(compileDict(q.bys, "0b"))
	b.WriteString(";")
	if exec && len(q.selects) == 1 && isBareColumn(q.selects[0]) {
		b.WriteString("`" + q.selects[0].Name)
	} else {
		b.WriteString(compileDict(q.selects, "()"))
	}
	b.WriteString("]")
	return wrapTakeDrop(b.String(), q.limit, q.offset), nil
}

func isBareColumn(s Selection) bool {
	c, ok := s.Node.(expr.Column)
	return ok && c.Name == s.Name
}

// compileWhere renders the WHERE conjunct list: () when empty, the
// enlist form for a single clause, and a parenthesised list otherwise.
// Conjunction is commutative, so clauses are emitted in sorted order;
// two queries that differ only in the order Where was called compile
// to the same string.
func compileWhere(preds []expr.Node) string {
	switch len(preds) {
	case 0:
		return "()"
	case 1:
		return "enlist " + expr.Text(lower(preds[0]), false)
	default:
		parts := make([]string, len(preds))
		for i, p := range preds {
			parts[i] = expr.Text(lower(p), false)
		}
		slices.Sort(parts)
		return "(" + strings.Join(parts, ";") + ")"
	}
}

// compileDict renders a name->expression dictionary for the BY and
// SELECT positions. A single-entry dictionary uses the enlist form on
// both sides; empty yields the given zero form (0b for BY, () for
// SELECT meaning "select all").
func compileDict(sels []Selection, zero string) string {
	switch len(sels) {
	case 0:
		return zero
	case 1:
		return "(enlist`" + sels[0].Name + ")!enlist " + expr.Text(lower(sels[0].Node), false)
	default:
		var keys, vals strings.Builder
		vals.WriteString("(")
		for i, s := range sels {
			keys.WriteString("`")
			keys.WriteString(s.Name)
			if i > 0 {
				vals.WriteString(";")
			}
			vals.WriteString(expr.Text(lower(s.Node), false))
		}
		vals.WriteString(")")
		return "(" + keys.String() + ")!" + vals.String()
	}
}

func wrapTakeDrop(s string, limit, offset *int64) string {
	if offset != nil {
		s = fmt.Sprintf("%d _ %s", *offset, s)
	}
	if limit != nil {
		s = fmt.Sprintf("%d # %s", *limit, s)
	}
	return s
}

// Update is the builder state for a functional UPDATE.
type Update struct {
	table  string
	sets   []Selection
	wheres []expr.Node
}

// UpdateTable starts an update against the named table.
func UpdateTable(table string) Update { return Update{table: table} }

// Set assigns an expression to a column.
func (u Update) Set(col string, n expr.Node) Update {
	u.sets = append(slices.Clone(u.sets), Selection{Name: col, Node: n})
	return u
}

// Where appends conjuncts restricting the updated rows.
func (u Update) Where(preds ...expr.Node) Update {
	u.wheres = append(slices.Clone(u.wheres), preds...)
	return u
}

// Compile lowers the update to ![t;c;0b;a].
func (u Update) Compile() (string, error) {
	if u.table == "" {
		return "", &werr.QueryError{Err: fmt.Errorf("update has no table")}
	}
	if len(u.sets) == 0 {
		return "", &werr.QueryError{Err: fmt.Errorf("update has no assignments")}
	}
	return "![" + u.table + ";" + compileWhere(u.wheres) + ";0b;" + compileDict(u.sets, "()") + "]", nil
}

// Delete is the builder state for a functional DELETE: either rows
// matching a WHERE list, or whole columns.
type Delete struct {
	table  string
	wheres []expr.Node
	cols   []string
}

// DeleteFrom starts a delete against the named table.
func DeleteFrom(table string) Delete { return Delete{table: table} }

// Where appends conjuncts selecting the rows to drop.
func (d Delete) Where(preds ...expr.Node) Delete {
	d.wheres = append(slices.Clone(d.wheres), preds...)
	return d
}

// Columns names whole columns to drop instead of rows.
func (d Delete) Columns(cols ...string) Delete {
	d.cols = append(slices.Clone(d.cols), cols...)
	return d
}

// Compile lowers the delete to ![t;c;0b;a], where a is a symbol list
// of column names (drop columns) or the empty symbol vector (drop
// matching rows).
func (d Delete) Compile() (string, error) {
	if d.table == "" {
		return "", &werr.QueryError{Err: fmt.Errorf("delete has no table")}
	}
	if len(d.cols) > 0 && len(d.wheres) > 0 {
		return "", &werr.QueryError{Err: fmt.Errorf("delete cannot drop both rows and columns")}
	}
	a := "`$()"
	if len(d.cols) > 0 {
		var b strings.Builder
		for _, c := range d.cols {
			b.WriteString("`")
			b.WriteString(c)
		}
		a = b.String()
	}
	return "![" + d.table + ";" + compileWhere(d.wheres) + ";0b;" + a + "]", nil
}

var (
	datePattern      = regexp.MustCompile(`^\d{4}\.\d{2}\.\d{2}$`)
	timestampPattern = regexp.MustCompile(`^\d{4}\.\d{2}\.\d{2}D\d{2}:\d{2}:\d{2}(\.\d+)?$`)
	timePattern      = regexp.MustCompile(`^\d{2}:\d{2}(:\d{2}(\.\d+)?)?$`)
	timespanPattern  = regexp.MustCompile(`^-?\d+D\d{2}:\d{2}:\d{2}(\.\d+)?$`)
	identPattern     = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.]*$`)
)

// stringLowering rewrites string literals per the compiler's rules:
// strings matching the server's temporal literal syntax pass through
// unchanged, identifier-like strings become symbols, and everything
// else stays a double-quoted char vector.
type stringLowering struct{}

func (stringLowering) Walk(expr.Node) expr.Rewriter { return stringLowering{} }

func (stringLowering) Rewrite(n expr.Node) expr.Node {
	lit, ok := n.(expr.Literal)
	if !ok || lit.Value.Kind != wire.KindString {
		return n
	}
	s := lit.Value.Str
	switch {
	case datePattern.MatchString(s), timestampPattern.MatchString(s),
		timePattern.MatchString(s), timespanPattern.MatchString(s):
		return expr.Sent(s)
	case identPattern.MatchString(s):
		return expr.Sent("`" + s)
	default:
		return n
	}
}

// lower applies the compiler's literal rules to a caller expression
// before rendering.
func lower(n expr.Node) expr.Node { return expr.Rewrite(stringLowering{}, n) }
