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

package expr

import "strings"

// Agg is an aggregate function application: Op(Args...), e.g.
// avg(price) or wavg(size;price).
type Agg struct {
	Op   string
	Args []Node
}

func (a Agg) text(dst *strings.Builder, redact bool) {
	dst.WriteString(a.Op)
	dst.WriteString("(")
	for i, arg := range a.Args {
		if i > 0 {
			dst.WriteString(";")
		}
		arg.text(dst, redact)
	}
	dst.WriteString(")")
}
func (a Agg) Equals(o Node) bool {
	oa, ok := o.(Agg)
	if !ok || oa.Op != a.Op || len(oa.Args) != len(a.Args) {
		return false
	}
	for i := range a.Args {
		if !oa.Args[i].Equals(a.Args[i]) {
			return false
		}
	}
	return true
}
func (a Agg) walk(w Visitor) {
	for _, arg := range a.Args {
		Walk(w, arg)
	}
}
func (a Agg) rewrite(r Rewriter) Node {
	args := make([]Node, len(a.Args))
	for i, arg := range a.Args {
		args[i] = Rewrite(r, arg)
	}
	a.Args = args
	return a
}

func agg(op string, args ...Node) Agg { return Agg{Op: op, Args: args} }

// Count, Sum, Avg, Min, Max, First, Last, Med, Dev, Var build the
// corresponding single-argument aggregate.
func Count(n Node) Agg { return agg("count", n) }
func Sum(n Node) Agg   { return agg("sum", n) }
func Avg(n Node) Agg   { return agg("avg", n) }
func Min(n Node) Agg   { return agg("min", n) }
func Max(n Node) Agg   { return agg("max", n) }
func First(n Node) Agg { return agg("first", n) }
func Last(n Node) Agg  { return agg("last", n) }
func Med(n Node) Agg   { return agg("med", n) }
func Dev(n Node) Agg   { return agg("dev", n) }
func Var(n Node) Agg   { return agg("var", n) }

// WAvg builds a weighted average: wavg(weight;value).
func WAvg(weight, value Node) Agg { return agg("wavg", weight, value) }

// Fby applies agg within groups defined by by, broadcasting the
// per-group result back to every row of that group rather than
// collapsing rows (the "(f;x) fby g" idiom), unlike a plain group-by
// aggregate which collapses each group to one row.
type Fby struct {
	Agg Agg
	By  Node
}

func (f Fby) text(dst *strings.Builder, redact bool) {
	dst.WriteString("(")
	f.Agg.text(dst, redact)
	dst.WriteString(") fby ")
	f.By.text(dst, redact)
}
func (f Fby) Equals(o Node) bool {
	of, ok := o.(Fby)
	return ok && of.Agg.Equals(f.Agg) && of.By.Equals(f.By)
}
func (f Fby) walk(w Visitor) {
	Walk(w, f.Agg)
	Walk(w, f.By)
}
func (f Fby) rewrite(r Rewriter) Node {
	f.Agg = Rewrite(r, f.Agg).(Agg)
	f.By = Rewrite(r, f.By)
	return f
}

// FbyOf builds a Fby applying agg per distinct value of by.
func FbyOf(agg Agg, by Node) Fby { return Fby{Agg: agg, By: by} }

// Each applies fn element-wise over its arguments (the "fn each x"
// idiom); Peach requests the server evaluate it in parallel.
type Each struct {
	Func     Node
	Parallel bool
}

func (e Each) text(dst *strings.Builder, redact bool) {
	e.Func.text(dst, redact)
	if e.Parallel {
		dst.WriteString(" peach")
	} else {
		dst.WriteString(" each")
	}
}
func (e Each) Equals(o Node) bool {
	oe, ok := o.(Each)
	return ok && oe.Parallel == e.Parallel && oe.Func.Equals(e.Func)
}
func (e Each) walk(w Visitor)       { Walk(w, e.Func) }
func (e Each) rewrite(r Rewriter) Node {
	e.Func = Rewrite(r, e.Func)
	return e
}

// EachOf and PeachOf wrap fn for element-wise (optionally parallel)
// application.
func EachOf(fn Node) Each  { return Each{Func: fn} }
func PeachOf(fn Node) Each { return Each{Func: fn, Parallel: true} }
