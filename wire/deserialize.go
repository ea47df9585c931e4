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
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/qdb-client/qdb/internal/epoch"
	"github.com/qdb-client/qdb/internal/symtab"
	"github.com/qdb-client/qdb/internal/werr"
)

// Deserializer consumes a message buffer (header followed by payload)
// as a non-owning view and decodes it into a Value tree. A
// Deserializer is owned exclusively by one connection for the
// duration of a single call.
type Deserializer struct {
	buf    []byte
	pos    int
	order  binary.ByteOrder
	endian byte

	// syms dedups decoded symbol strings: the same column and table
	// names arrive on every reply, so replies share one backing
	// string per distinct symbol instead of one per occurrence.
	syms *symtab.Table
}

// NewDeserializer returns a ready-to-use Deserializer.
func NewDeserializer() *Deserializer { return &Deserializer{syms: symtab.New()} }

// interned returns the canonical copy of s from the symbol table.
func (d *Deserializer) interned(s string) string {
	out, _ := d.syms.Lookup(d.syms.Intern(s))
	return out
}

// Deserialize decodes the full framed message in buf (header +
// payload) and returns its body as a Value, along with the message
// type carried by the header.
func (d *Deserializer) Deserialize(buf []byte) (MsgType, Value, error) {
	endian, msgType, _, totalLen, err := UnpackHeader(buf)
	if err != nil {
		return 0, Value{}, err
	}
	if int(totalLen) > len(buf) {
		return 0, Value{}, &werr.DeserializationError{Reason: "truncated frame"}
	}
	d.buf = buf[:totalLen]
	d.pos = HeaderLen
	d.endian = endian
	d.order = byteOrder(endian)

	v, err := d.decode()
	if err != nil {
		return 0, Value{}, err
	}
	return msgType, v, nil
}

func (d *Deserializer) need(n int) error {
	if d.pos+n > len(d.buf) {
		return &werr.DeserializationError{Reason: "truncated value"}
	}
	return nil
}

func (d *Deserializer) readByte() (byte, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *Deserializer) readU16() (uint16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := d.order.Uint16(d.buf[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *Deserializer) readU32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := d.order.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *Deserializer) readU64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := d.order.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *Deserializer) readN(n int) ([]byte, error) {
	if err := d.need(n); err != nil {
		return nil, err
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *Deserializer) readCString() (string, error) {
	rest := d.buf[d.pos:]
	i := bytes.IndexByte(rest, 0)
	if i < 0 {
		return "", &werr.DeserializationError{Reason: "unterminated symbol"}
	}
	s := string(rest[:i])
	d.pos += i + 1
	return s, nil
}

func (d *Deserializer) decode() (Value, error) {
	tag, err := d.readByte()
	if err != nil {
		return Value{}, err
	}
	switch {
	case tag == byte(CodeError):
		text, err := d.readCString()
		if err != nil {
			return Value{}, err
		}
		return NewError(text), nil
	case tag > 128:
		return d.decodeAtom(Code(256 - int(tag)))
	case tag == byte(CodeMixedList):
		return d.decodeList()
	case tag >= 1 && tag <= 19:
		return d.decodeVector(Code(tag))
	case IsEnumVector(tag):
		return d.decodeEnumVector(tag)
	case tag == byte(CodeTable):
		return d.decodeTable()
	case tag == byte(CodeDict) || tag == byte(CodeSortedDict):
		return d.decodeDict(tag == byte(CodeSortedDict))
	case tag >= 100 && tag <= 117:
		return d.decodeFunc(Code(tag))
	default:
		return Value{}, &werr.DeserializationError{Reason: fmt.Sprintf("unknown tag %d", tag)}
	}
}

func (d *Deserializer) decodeAtom(c Code) (Value, error) {
	switch c {
	case CodeBool:
		b, err := d.readByte()
		if err != nil {
			return Value{}, err
		}
		return NewBool(b != 0), nil
	case CodeSymbol:
		s, err := d.readCString()
		if err != nil {
			return Value{}, err
		}
		if s == "" {
			return Null(CodeSymbol), nil
		}
		return NewSymbol(d.interned(s)), nil
	case CodeGUID:
		b, err := d.readN(16)
		if err != nil {
			return Value{}, err
		}
		var g uuid.UUID
		copy(g[:], b)
		if g == (uuid.UUID{}) {
			return Null(CodeGUID), nil
		}
		return NewGUID(g), nil
	case CodeReal:
		bits, err := d.readU32()
		if err != nil {
			return Value{}, err
		}
		f := math.Float32frombits(bits)
		if IsFloatNull32(f) {
			return Null(CodeReal), nil
		}
		return NewFloat(float64(f)), nil
	case CodeFloat:
		bits, err := d.readU64()
		if err != nil {
			return Value{}, err
		}
		f := math.Float64frombits(bits)
		if IsFloatNull64(f) {
			return Null(CodeFloat), nil
		}
		return NewFloat(f), nil
	case CodeTimestamp, CodeMonth, CodeDate, CodeDatetime, CodeTimespan, CodeMinute, CodeSecond, CodeTime:
		return d.decodeTemporalAtom(c)
	default:
		return d.decodeIntAtom(c)
	}
}

func (d *Deserializer) decodeIntAtom(c Code) (Value, error) {
	w := c.Width()
	if w == 0 {
		return Value{}, &werr.DeserializationError{Reason: fmt.Sprintf("unsupported atom code %d", c)}
	}
	var raw uint64
	switch w {
	case 1:
		b, err := d.readByte()
		if err != nil {
			return Value{}, err
		}
		raw = uint64(b)
	case 2:
		u, err := d.readU16()
		if err != nil {
			return Value{}, err
		}
		raw = uint64(u)
	case 4:
		u, err := d.readU32()
		if err != nil {
			return Value{}, err
		}
		raw = uint64(u)
	case 8:
		u, err := d.readU64()
		if err != nil {
			return Value{}, err
		}
		raw = u
	}
	if raw == NullBits(c) && c != CodeByte && c != CodeBool && c != CodeChar {
		return Null(c), nil
	}
	return NewInt(signExtend(raw, w)), nil
}

func signExtend(raw uint64, width int) int64 {
	switch width {
	case 1:
		return int64(int8(raw))
	case 2:
		return int64(int16(raw))
	case 4:
		return int64(int32(raw))
	default:
		return int64(raw)
	}
}

func (d *Deserializer) decodeTemporalAtom(c Code) (Value, error) {
	w := c.Width()
	var raw uint64
	switch w {
	case 4:
		u, err := d.readU32()
		if err != nil {
			return Value{}, err
		}
		raw = uint64(u)
	case 8:
		u, err := d.readU64()
		if err != nil {
			return Value{}, err
		}
		raw = u
	}
	if c == CodeDatetime {
		f := math.Float64frombits(raw)
		if math.IsNaN(f) {
			return Null(c), nil
		}
		return NewTemporal(c, epoch.FromDatetime(f)), nil
	}
	if raw == NullBits(c) {
		return Null(c), nil
	}
	switch c {
	case CodeTimestamp, CodeTimespan:
		return NewTemporal(c, epoch.FromTimestamp(int64(raw))), nil
	case CodeMonth:
		return NewTemporal(c, epoch.FromMonth(int32(raw))), nil
	case CodeDate:
		return NewTemporal(c, epoch.FromDate(int32(raw))), nil
	case CodeMinute:
		return NewTemporal(c, epoch.Origin.Add(time.Duration(int32(raw))*time.Minute)), nil
	case CodeSecond:
		return NewTemporal(c, epoch.Origin.Add(time.Duration(int32(raw))*time.Second)), nil
	case CodeTime:
		return NewTemporal(c, epoch.Origin.Add(time.Duration(int32(raw))*time.Millisecond)), nil
	}
	return Value{}, &werr.DeserializationError{Reason: fmt.Sprintf("unsupported temporal code %d", c)}
}

func (d *Deserializer) decodeList() (Value, error) {
	if _, err := d.readByte(); err != nil { // attribute
		return Value{}, err
	}
	n, err := d.readU32()
	if err != nil {
		return Value{}, err
	}
	items := make([]Value, n)
	for i := range items {
		v, err := d.decode()
		if err != nil {
			return Value{}, err
		}
		items[i] = v
	}
	return NewList(items...), nil
}

func (d *Deserializer) decodeVector(c Code) (Value, error) {
	if _, err := d.readByte(); err != nil { // attribute
		return Value{}, err
	}
	n, err := d.readU32()
	if err != nil {
		return Value{}, err
	}
	items := make([]Value, n)
	switch c {
	case CodeSymbol:
		for i := range items {
			s, err := d.readCString()
			if err != nil {
				return Value{}, err
			}
			if s == "" {
				items[i] = Null(CodeSymbol)
			} else {
				items[i] = NewSymbol(d.interned(s))
			}
		}
	case CodeGUID:
		for i := range items {
			b, err := d.readN(16)
			if err != nil {
				return Value{}, err
			}
			var g uuid.UUID
			copy(g[:], b)
			items[i] = NewGUID(g)
		}
	case CodeChar:
		b, err := d.readN(int(n))
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindString, Str: string(b)}, nil
	case CodeByte:
		b, err := d.readN(int(n))
		if err != nil {
			return Value{}, err
		}
		return NewBytes(append([]byte(nil), b...)), nil
	default:
		for i := range items {
			v, err := d.decodeAtom(c)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
	}
	return NewVector(c, items...), nil
}

// decodeEnumVector decodes tag 20-76 like an int vector of domain
// indices; the caller is responsible for domain resolution.
func (d *Deserializer) decodeEnumVector(tag byte) (Value, error) {
	if _, err := d.readByte(); err != nil { // attribute
		return Value{}, err
	}
	n, err := d.readU32()
	if err != nil {
		return Value{}, err
	}
	items := make([]Value, n)
	for i := range items {
		u, err := d.readU32()
		if err != nil {
			return Value{}, err
		}
		items[i] = NewInt(int64(int32(u)))
	}
	return NewVector(CodeInt, items...), nil
}

func (d *Deserializer) decodeDict(sorted bool) (Value, error) {
	keys, err := d.decode()
	if err != nil {
		return Value{}, err
	}
	vals, err := d.decode()
	if err != nil {
		return Value{}, err
	}
	return NewDict(keys, vals, sorted), nil
}

func (d *Deserializer) decodeTable() (Value, error) {
	if _, err := d.readByte(); err != nil { // attribute
		return Value{}, err
	}
	inner, err := d.decode()
	if err != nil {
		return Value{}, err
	}
	if inner.Kind != KindDict {
		return Value{}, &werr.DeserializationError{Reason: "table body is not a dict"}
	}
	return NewTable(*inner.DictKeys, *inner.DictVals), nil
}

func (d *Deserializer) decodeFunc(c Code) (Value, error) {
	switch c {
	case CodeLambda:
		ns, err := d.readCString()
		if err != nil {
			return Value{}, err
		}
		n, err := d.readU32()
		if err != nil {
			return Value{}, err
		}
		body, err := d.readN(int(n))
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindFunc, Func: &FuncDescriptor{Code: c, Namespace: ns, Body: append([]byte(nil), body...)}}, nil
	case CodeEach, CodeEachLeft, CodeEachRight, CodeEachPair, CodeOver, CodeScan:
		n, err := d.readU32()
		if err != nil {
			return Value{}, err
		}
		children := make([]Value, n)
		for i := range children {
			v, err := d.decode()
			if err != nil {
				return Value{}, err
			}
			children[i] = v
		}
		return Value{Kind: KindFunc, Func: &FuncDescriptor{Code: c, Children: children}}, nil
	default:
		n, err := d.readU32()
		if err != nil {
			return Value{}, err
		}
		children := make([]Value, n)
		for i := range children {
			v, err := d.decode()
			if err != nil {
				// opaque descriptor: stop but do not abort the
				// overall decode of an enclosing list.
				return Value{Kind: KindFunc, Func: &FuncDescriptor{Code: c}}, nil
			}
			children[i] = v
		}
		return Value{Kind: KindFunc, Func: &FuncDescriptor{Code: c, Children: children}}, nil
	}
}
