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

// Package expr is the host-side expression tree used to build queries:
// column references, literals, operators, function calls, and
// aggregates, composed client-side and lowered into the server's
// functional four-tuple form by package query. Construction never
// fails, and trees are not validated, neither when built nor when
// the compiler lowers them.
package expr

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/qdb-client/qdb/internal/epoch"
	"github.com/qdb-client/qdb/wire"
)

// Node is any expression tree element. Every concrete type in this
// package implements it.
type Node interface {
	// text renders the node into its wire representation, appending to
	// dst. redact suppresses literal values (used by logging, which
	// must never print query parameters verbatim).
	text(dst *strings.Builder, redact bool)

	// Equals reports whether n and o are structurally identical.
	Equals(o Node) bool

	walk(w Visitor)
	rewrite(r Rewriter) Node
}

// Visitor is invoked for each node encountered by Walk. If the
// returned Visitor w is non-nil, Walk visits each child with w.
type Visitor interface {
	Visit(Node) Visitor
}

// Rewriter rewrites nodes in depth-first order.
type Rewriter interface {
	// Rewrite is applied to a node after its children have been
	// rewritten (or immediately, for leaves).
	Rewrite(Node) Node
	// Walk returns the Rewriter used for a node's children; a nil
	// result stops descent into that node.
	Walk(Node) Rewriter
}

// Walk traverses n in depth-first order, calling v.Visit for n and
// (if the result is non-nil) recursively for n's children.
func Walk(v Visitor, n Node) {
	w := v.Visit(n)
	if w != nil {
		n.walk(w)
	}
}

// Rewrite recursively applies r to n in depth-first order.
func Rewrite(r Rewriter, n Node) Node {
	if n == nil {
		return nil
	}
	if w := r.Walk(n); w != nil {
		n = n.rewrite(w)
	}
	return r.Rewrite(n)
}

// Text renders n into its wire-protocol textual form (the form the
// compiler embeds into a function body). redact=true replaces every
// literal with a placeholder, for safe logging.
func Text(n Node, redact bool) string {
	var b strings.Builder
	n.text(&b, redact)
	return b.String()
}

// Column references a table column by name.
type Column struct {
	Name string
}

func Col(name string) Column { return Column{Name: name} }

func (c Column) text(dst *strings.Builder, redact bool) { dst.WriteString(c.Name) }
func (c Column) Equals(o Node) bool {
	oc, ok := o.(Column)
	return ok && oc.Name == c.Name
}
func (c Column) walk(Visitor)         {}
func (c Column) rewrite(Rewriter) Node { return c }

// Literal wraps a constant wire.Value.
type Literal struct {
	Value wire.Value
}

func Lit(v wire.Value) Literal { return Literal{Value: v} }

func (l Literal) text(dst *strings.Builder, redact bool) {
	if redact {
		dst.WriteString("?")
		return
	}
	dst.WriteString(literalText(l.Value))
}
func (l Literal) Equals(o Node) bool {
	ol, ok := o.(Literal)
	return ok && ol.Value.Equal(l.Value)
}
func (l Literal) walk(Visitor)          {}
func (l Literal) rewrite(Rewriter) Node { return l }

func literalText(v wire.Value) string {
	switch v.Kind {
	case wire.KindString:
		return "\"" + v.Str + "\""
	case wire.KindSymbol:
		return "`" + v.Sym
	case wire.KindInt64:
		return fmt.Sprintf("%d", v.Int)
	case wire.KindFloat64:
		return floatText(v.Float)
	case wire.KindBool:
		if v.Bool {
			return "1b"
		}
		return "0b"
	case wire.KindBytes:
		return "0x" + hex.EncodeToString(v.Bytes)
	case wire.KindGUID:
		return "\"G\"$\"" + v.GUID.String() + "\""
	case wire.KindTemporal:
		return temporalText(v.TemporalCode, v.Temporal)
	case wire.KindNull:
		return nullText(v.NullCode)
	case wire.KindList, wire.KindTypedVec:
		var b strings.Builder
		b.WriteString("(")
		items := v.List
		if v.Kind == wire.KindTypedVec {
			items = v.Vec
		}
		for i, it := range items {
			if i > 0 {
				b.WriteString(";")
			}
			b.WriteString(literalText(it))
		}
		b.WriteString(")")
		return b.String()
	default:
		return fmt.Sprintf("%+v", v)
	}
}

func floatText(f float64) string {
	switch {
	case math.IsNaN(f):
		return "0n"
	case math.IsInf(f, 1):
		return "0w"
	case math.IsInf(f, -1):
		return "-0w"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	// a bare integer-looking float still needs to parse as a float
	if !strings.ContainsAny(s, ".e") {
		s += "f"
	}
	return s
}

func nullText(c wire.Code) string {
	switch c {
	case wire.CodeFloat, wire.CodeReal:
		return "0n"
	case wire.CodeShort:
		return "0Nh"
	case wire.CodeInt:
		return "0Ni"
	case wire.CodeLong:
		return "0N"
	case wire.CodeSymbol:
		return "`"
	case wire.CodeDate:
		return "0Nd"
	case wire.CodeTimestamp:
		return "0Np"
	case wire.CodeTimespan:
		return "0Nn"
	default:
		return "0N"
	}
}

func temporalText(c wire.Code, t time.Time) string {
	t = t.UTC()
	switch c {
	case wire.CodeDate:
		return t.Format("2006.01.02")
	case wire.CodeMonth:
		return t.Format("2006.01") + "m"
	case wire.CodeTimestamp:
		return fmt.Sprintf("%s.%09d", t.Format("2006.01.02D15:04:05"), t.Nanosecond())
	case wire.CodeDatetime:
		return t.Format("2006.01.02T15:04:05.000")
	case wire.CodeTimespan:
		d := t.Sub(epoch.Origin)
		neg := ""
		if d < 0 {
			neg = "-"
			d = -d
		}
		days := int64(d / (24 * time.Hour))
		d -= time.Duration(days) * 24 * time.Hour
		return fmt.Sprintf("%s%dD%02d:%02d:%02d.%09d", neg,
			days, int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60, d.Nanoseconds()%1000000000)
	case wire.CodeMinute:
		return t.Format("15:04")
	case wire.CodeSecond:
		return t.Format("15:04:05")
	case wire.CodeTime:
		return t.Format("15:04:05.000")
	default:
		return t.Format(time.RFC3339)
	}
}

// BinOp is a binary operator application.
type BinOp struct {
	Op          string
	Left, Right Node
}

func Bin(op string, l, r Node) BinOp { return BinOp{Op: op, Left: l, Right: r} }

func (b BinOp) text(dst *strings.Builder, redact bool) {
	dst.WriteString("(")
	b.Left.text(dst, redact)
	dst.WriteString(b.Op)
	b.Right.text(dst, redact)
	dst.WriteString(")")
}
func (b BinOp) Equals(o Node) bool {
	ob, ok := o.(BinOp)
	return ok && ob.Op == b.Op && ob.Left.Equals(b.Left) && ob.Right.Equals(b.Right)
}
func (b BinOp) walk(w Visitor) {
	Walk(w, b.Left)
	Walk(w, b.Right)
}
func (b BinOp) rewrite(r Rewriter) Node {
	b.Left = Rewrite(r, b.Left)
	b.Right = Rewrite(r, b.Right)
	return b
}

// UnaryOp is a prefix unary operator application.
type UnaryOp struct {
	Op   string
	Expr Node
}

func Unary(op string, e Node) UnaryOp { return UnaryOp{Op: op, Expr: e} }

func (u UnaryOp) text(dst *strings.Builder, redact bool) {
	dst.WriteString(u.Op)
	u.Expr.text(dst, redact)
}
func (u UnaryOp) Equals(o Node) bool {
	ou, ok := o.(UnaryOp)
	return ok && ou.Op == u.Op && ou.Expr.Equals(u.Expr)
}
func (u UnaryOp) walk(w Visitor) { Walk(w, u.Expr) }
func (u UnaryOp) rewrite(r Rewriter) Node {
	u.Expr = Rewrite(r, u.Expr)
	return u
}

// Call is a named function application: Func[Args[0];Args[1];...].
type Call struct {
	Func string
	Args []Node
}

func Fn(name string, args ...Node) Call { return Call{Func: name, Args: args} }

func (c Call) text(dst *strings.Builder, redact bool) {
	dst.WriteString(c.Func)
	dst.WriteString("[")
	for i, a := range c.Args {
		if i > 0 {
			dst.WriteString(";")
		}
		a.text(dst, redact)
	}
	dst.WriteString("]")
}
func (c Call) Equals(o Node) bool {
	oc, ok := o.(Call)
	if !ok || oc.Func != c.Func || len(oc.Args) != len(c.Args) {
		return false
	}
	for i := range c.Args {
		if !oc.Args[i].Equals(c.Args[i]) {
			return false
		}
	}
	return true
}
func (c Call) walk(w Visitor) {
	for _, a := range c.Args {
		Walk(w, a)
	}
}
func (c Call) rewrite(r Rewriter) Node {
	args := make([]Node, len(c.Args))
	for i, a := range c.Args {
		args[i] = Rewrite(r, a)
	}
	c.Args = args
	return c
}

// Sentinel is a bare wire-level identifier not otherwise modeled: a
// reserved word such as a temporal sentinel (.z.d, .z.p) or a raw
// column wildcard.
type Sentinel struct {
	Name string
}

func Sent(name string) Sentinel { return Sentinel{Name: name} }

func (s Sentinel) text(dst *strings.Builder, redact bool) { dst.WriteString(s.Name) }
func (s Sentinel) Equals(o Node) bool {
	os, ok := o.(Sentinel)
	return ok && os.Name == s.Name
}
func (s Sentinel) walk(Visitor)          {}
func (s Sentinel) rewrite(Rewriter) Node { return s }

// Now and Today are the two temporal sentinels exposed to callers.
func Now() Sentinel   { return Sent(".z.p") }
func Today() Sentinel { return Sent(".z.d") }
