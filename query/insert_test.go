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
	"strings"
	"testing"
	"time"

	"github.com/qdb-client/qdb/wire"
)

func TestInsertTransposesRows(t *testing.T) {
	ins := InsertInto("trade").Rows(
		[]wire.Value{wire.NewSymbol("AAPL"), wire.NewFloat(101.5), wire.NewInt(100)},
		[]wire.Value{wire.NewSymbol("GOOG"), wire.NewFloat(2500.0), wire.NewInt(50)},
	)
	got := mustCompile(t, ins)
	want := "`trade insert (`AAPL`GOOG;101.5 2500;100 50)"
	if got != want {
		t.Fatalf("got  %q\nwant %q", got, want)
	}
}

func TestInsertNullTokens(t *testing.T) {
	ins := InsertInto("t").Rows(
		[]wire.Value{wire.NewInt(1), wire.NewFloat(1.5), wire.Null(wire.CodeShort)},
		[]wire.Value{wire.Null(wire.CodeLong), wire.Null(wire.CodeFloat), wire.Null(wire.CodeInt)},
	)
	got := mustCompile(t, ins)
	for _, tok := range []string{"0N", "0Nf", "0Nh", "0Ni"} {
		if !strings.Contains(got, tok) {
			t.Fatalf("missing null token %q in %q", tok, got)
		}
	}
}

func TestInsertBoolAndCharColumns(t *testing.T) {
	ins := InsertInto("t").Rows(
		[]wire.Value{wire.NewBool(true), wire.NewString("a")},
		[]wire.Value{wire.NewBool(false), wire.NewString("b")},
		[]wire.Value{wire.NewBool(true), wire.NewString("c")},
	)
	got := mustCompile(t, ins)
	if !strings.Contains(got, "101b") {
		t.Fatalf("bool vector literal missing: %q", got)
	}
	if !strings.Contains(got, `"abc"`) {
		t.Fatalf("char vector literal missing: %q", got)
	}
}

func TestInsertTemporalColumn(t *testing.T) {
	d1 := wire.NewTemporal(wire.CodeDate, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	d2 := wire.NewTemporal(wire.CodeDate, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	ins := InsertInto("t").Rows(
		[]wire.Value{d1},
		[]wire.Value{d2},
	)
	got := mustCompile(t, ins)
	if !strings.Contains(got, "(2024.01.02;2024.01.03)") {
		t.Fatalf("got %q", got)
	}
}

func TestInsertRaggedRowsRejected(t *testing.T) {
	_, err := InsertInto("t").Rows(
		[]wire.Value{wire.NewInt(1), wire.NewInt(2)},
		[]wire.Value{wire.NewInt(3)},
	).Compile()
	if err == nil {
		t.Fatal("ragged rows must not compile")
	}
}

func TestJoinForms(t *testing.T) {
	aj := AsOf([]string{"sym", "time"}, "trade", "quote")
	got := mustCompile(t, aj)
	for _, tok := range []string{"aj[", "`sym`time", "trade", "quote"} {
		if !strings.Contains(got, tok) {
			t.Fatalf("missing %q in %q", tok, got)
		}
	}
	if got != "aj[`sym`time;trade;quote]" {
		t.Fatalf("got %q", got)
	}

	lj := mustCompile(t, Left([]string{"sym"}, "trade", "ref"))
	if lj != "trade lj `sym xkey ref" {
		t.Fatalf("got %q", lj)
	}
	ij := mustCompile(t, Inner([]string{"sym"}, "trade", "ref"))
	if ij != "trade ij `sym xkey ref" {
		t.Fatalf("got %q", ij)
	}
}

func TestWindowJoinForm(t *testing.T) {
	wj := Window(-2, 2, []string{"sym", "time"}, "trade", "quote", []WindowAgg{
		{Func: "max", Column: "ask"},
		{Func: "min", Column: "bid"},
	})
	got := mustCompile(t, wj)
	want := "wj[-2 2+trade.time;`sym`time;trade;(quote;(max;`ask);(min;`bid))]"
	if got != want {
		t.Fatalf("got  %q\nwant %q", got, want)
	}
}
