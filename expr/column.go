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

// Asc and Desc build a sorted projection of c.
func (c Column) Asc() Call  { return Fn("asc", c) }
func (c Column) Desc() Call { return Fn("desc", c) }

// Eq, Lt, Gt, Le, Ge, Ne build a comparison predicate against c.
func (c Column) Eq(v Node) BinOp { return Bin("=", c, v) }
func (c Column) Lt(v Node) BinOp { return Bin("<", c, v) }
func (c Column) Gt(v Node) BinOp { return Bin(">", c, v) }
func (c Column) Le(v Node) BinOp { return Bin("<=", c, v) }
func (c Column) Ge(v Node) BinOp { return Bin(">=", c, v) }
func (c Column) Ne(v Node) BinOp { return Bin("<>", c, v) }

// Within builds the predicate "lo <= c <= hi", expressed with the
// two-element within[] builtin.
func (c Column) Within(lo, hi Node) Call { return Fn("within", c, Bin(",", lo, hi)) }

// Like builds a pattern-match predicate using the like[] builtin.
func (c Column) Like(pattern string) Call { return Fn("like", c, Lit(stringValue(pattern))) }

// In builds a set-membership predicate using the in[] builtin.
func (c Column) In(vals ...Node) Call {
	args := make([]Node, 0, len(vals)+1)
	args = append(args, c)
	args = append(args, vals...)
	return Fn("in", args...)
}

// XBar buckets c into fixed-width bins of the given size, using the
// xbar[] builtin (e.g. 5-minute time buckets: c.XBar(Lit(...)) with a
// timespan literal).
func (c Column) XBar(size Node) Call { return Fn("xbar", size, c) }
