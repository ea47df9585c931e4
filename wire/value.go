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

package wire

import (
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindFloat64
	KindSymbol
	KindString
	KindBytes
	KindGUID
	KindTemporal
	KindList
	KindTypedVec
	KindDict
	KindTable
	KindError
	KindFunc
)

// Value is the tagged sum type every host value and every decoded
// wire value is represented as. Exactly one of the typed fields is
// meaningful, selected by Kind; this mirrors the "dynamic typing ->
// tagged variants" design note rather than using a host-language
// interface{} directly.
type Value struct {
	Kind Kind

	NullCode Code // valid when Kind == KindNull

	Bool    bool
	Int     int64
	Float   float64
	Sym     string
	Str     string
	Bytes   []byte
	GUID    uuid.UUID

	TemporalCode Code      // valid when Kind == KindTemporal
	Temporal     time.Time // host-side rendering; raw wire units are derived via internal/epoch

	List []Value // KindList

	VecCode Code    // KindTypedVec
	Vec     []Value // KindTypedVec, homogeneous elements of VecCode

	DictKeys *Value // KindDict
	DictVals *Value // KindDict
	Sorted   bool   // KindDict: true for the "sorted-dict" wire tag

	TableCols *Value // KindTable: mixed list of column vectors
	TableName *Value // KindTable: symbol vector of column names

	ErrText string // KindError

	Func *FuncDescriptor // KindFunc
}

// FuncDescriptor is an opaque, best-effort representation of a
// function-family value (100-111): the decoder cannot meaningfully
// execute these, but it must not abort decoding when one appears
// nested inside a mixed list.
type FuncDescriptor struct {
	Code      Code
	Namespace string
	Body      []byte
	Children  []Value
}

// Null returns a typed null of the given code.
func Null(c Code) Value { return Value{Kind: KindNull, NullCode: c} }

// NewBool/NewInt/NewFloat/NewSymbol/NewString/NewBytes/NewGUID are
// constructors for atomic values.
func NewBool(b bool) Value   { return Value{Kind: KindBool, Bool: b} }
func NewInt(i int64) Value   { return Value{Kind: KindInt64, Int: i} }
func NewFloat(f float64) Value { return Value{Kind: KindFloat64, Float: f} }
func NewSymbol(s string) Value { return Value{Kind: KindSymbol, Sym: s} }
func NewString(s string) Value { return Value{Kind: KindString, Str: s} }
func NewBytes(b []byte) Value  { return Value{Kind: KindBytes, Bytes: b} }
func NewGUID(g uuid.UUID) Value { return Value{Kind: KindGUID, GUID: g} }

// NewTemporal returns a temporal value of the given code (one of
// CodeTimestamp, CodeMonth, CodeDate, CodeDatetime, CodeTimespan,
// CodeMinute, CodeSecond, CodeTime).
func NewTemporal(c Code, t time.Time) Value {
	return Value{Kind: KindTemporal, TemporalCode: c, Temporal: t}
}

// NewList returns a mixed-list value.
func NewList(items ...Value) Value { return Value{Kind: KindList, List: items} }

// NewVector returns a homogeneous typed-vector value.
func NewVector(c Code, items ...Value) Value {
	return Value{Kind: KindTypedVec, VecCode: c, Vec: items}
}

// NewDict returns a dict (or sorted-dict, if sorted) value zipping
// keys to vals.
func NewDict(keys, vals Value, sorted bool) Value {
	return Value{Kind: KindDict, DictKeys: &keys, DictVals: &vals, Sorted: sorted}
}

// NewTable returns a table value: a dict whose keys are a symbol
// vector of column names and whose values are a mixed list of
// equal-length column vectors.
func NewTable(names, cols Value) Value {
	return Value{Kind: KindTable, TableName: &names, TableCols: &cols}
}

// NewError returns an error value carrying the server's message text.
func NewError(text string) Value { return Value{Kind: KindError, ErrText: text} }

// IsNull reports whether v is a typed null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Truthy implements the "typed nulls are falsy" rule plus the usual
// boolean/zero-is-false conventions used when a Value is used as a
// predicate result.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNull:
		return false
	case KindBool:
		return v.Bool
	case KindInt64:
		return v.Int != 0
	case KindFloat64:
		return v.Float != 0
	default:
		return true
	}
}

// Equal reports whether v and o represent the same value. Typed nulls
// compare equal iff their type codes match.
func (v Value) Equal(o Value) bool {
	if v.Kind == KindNull || o.Kind == KindNull {
		return v.Kind == KindNull && o.Kind == KindNull && v.NullCode == o.NullCode
	}
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.Bool == o.Bool
	case KindInt64:
		return v.Int == o.Int
	case KindFloat64:
		return v.Float == o.Float
	case KindSymbol:
		return v.Sym == o.Sym
	case KindString:
		return v.Str == o.Str
	case KindBytes:
		return string(v.Bytes) == string(o.Bytes)
	case KindGUID:
		return v.GUID == o.GUID
	case KindTemporal:
		return v.TemporalCode == o.TemporalCode && v.Temporal.Equal(o.Temporal)
	case KindList, KindTypedVec:
		a, b := v.elems(), o.elems()
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !a[i].Equal(b[i]) {
				return false
			}
		}
		return true
	case KindDict:
		return v.Sorted == o.Sorted && v.DictKeys.Equal(*o.DictKeys) && v.DictVals.Equal(*o.DictVals)
	case KindTable:
		return v.TableName.Equal(*o.TableName) && v.TableCols.Equal(*o.TableCols)
	case KindError:
		return v.ErrText == o.ErrText
	default:
		return false
	}
}

// TableColumn returns the column vector named name from a table value,
// along with whether the column exists.
func (v Value) TableColumn(name string) (Value, bool) {
	if v.Kind != KindTable {
		return Value{}, false
	}
	names := v.TableName.elems()
	cols := v.TableCols.elems()
	for i, n := range names {
		if n.Sym == name && i < len(cols) {
			return cols[i], true
		}
	}
	return Value{}, false
}

func (v Value) elems() []Value {
	if v.Kind == KindTypedVec {
		return v.Vec
	}
	return v.List
}
