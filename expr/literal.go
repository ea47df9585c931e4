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

import (
	"time"

	"github.com/qdb-client/qdb/internal/epoch"
	"github.com/qdb-client/qdb/wire"
)

// Int, Float, Str, Sym, Bool wrap a host value as a Literal node.
func Int(i int64) Literal    { return Lit(wire.NewInt(i)) }
func Float(f float64) Literal { return Lit(wire.NewFloat(f)) }
func Str(s string) Literal   { return Lit(stringValue(s)) }
func Sym(s string) Literal   { return Lit(wire.NewSymbol(s)) }
func Bool(b bool) Literal    { return Lit(wire.NewBool(b)) }

// Date, Timestamp, Timespan wrap a time.Time/time.Duration as a
// typed-temporal Literal node.
func Date(t time.Time) Literal      { return Lit(wire.NewTemporal(wire.CodeDate, t)) }
func Timestamp(t time.Time) Literal { return Lit(wire.NewTemporal(wire.CodeTimestamp, t)) }
func Timespan(d time.Duration) Literal {
	return Lit(wire.NewTemporal(wire.CodeTimespan, epoch.Origin.Add(d)))
}

func stringValue(s string) wire.Value { return wire.NewString(s) }
