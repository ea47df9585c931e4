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

import "testing"

func TestTextRendersBinOp(t *testing.T) {
	n := Bin("=", Col("sym"), Sym("AAPL"))
	got := Text(n, false)
	want := "(sym=`AAPL)"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTextRedactsLiterals(t *testing.T) {
	n := Col("price").Gt(Float(100))
	got := Text(n, true)
	want := "(price>?)"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCallRendersArgs(t *testing.T) {
	n := Fn("xbar", Int(5), Col("size"))
	got := Text(n, false)
	want := "xbar[5;size]"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEqualsStructural(t *testing.T) {
	a := Bin("+", Col("x"), Int(1))
	b := Bin("+", Col("x"), Int(1))
	c := Bin("+", Col("x"), Int(2))
	if !a.Equals(b) {
		t.Fatal("expected structurally identical nodes to be equal")
	}
	if a.Equals(c) {
		t.Fatal("expected different literals to compare unequal")
	}
}

func TestFbyAndEachRender(t *testing.T) {
	f := FbyOf(Sum(Col("size")), Col("sym"))
	if got, want := Text(f, false), "(sum(size)) fby sym"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	e := PeachOf(Col("f"))
	if got, want := Text(e, false), "f peach"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

type countingVisitor struct{ n int }

func (c *countingVisitor) Visit(n Node) Visitor {
	if n == nil {
		return nil
	}
	c.n++
	return c
}

func TestWalkVisitsChildren(t *testing.T) {
	n := Bin("&", Col("a").Eq(Int(1)), Col("b").Eq(Int(2)))
	v := &countingVisitor{}
	Walk(v, n)
	if v.n != 7 {
		t.Fatalf("visited %d nodes, want 7", v.n)
	}
}
