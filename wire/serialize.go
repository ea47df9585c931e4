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
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/qdb-client/qdb/internal/epoch"
	"github.com/qdb-client/qdb/internal/werr"
)

// Serializer appends a tagged byte-stream representation of a Value
// to a growable scratch buffer and prepends an 8-byte header. A
// Serializer is owned exclusively by one connection for the duration
// of a single call; reuse via Reset avoids reallocating the buffer on
// every message.
type Serializer struct {
	buf []byte
}

// NewSerializer returns a ready-to-use Serializer.
func NewSerializer() *Serializer { return &Serializer{buf: make([]byte, 0, 256)} }

// Reset clears the scratch buffer for reuse.
func (s *Serializer) Reset() { s.buf = s.buf[:0] }

// Serialize encodes v as the body of msgType and returns the full
// framed message (8-byte header followed by the tagged payload). The
// header's compressed flag is always 0; a connection applies
// compression, if any, after calling Serialize.
func (s *Serializer) Serialize(msgType MsgType, v Value) ([]byte, error) {
	s.Reset()
	s.buf = append(s.buf, make([]byte, HeaderLen)...)
	if err := s.encode(v); err != nil {
		return nil, err
	}
	h := PackHeader(msgType, uint32(len(s.buf)))
	copy(s.buf[:HeaderLen], h[:])
	return s.buf, nil
}

func atomTag(c Code) byte { return byte(256 - int(c)) }

func (s *Serializer) encode(v Value) error {
	switch v.Kind {
	case KindNull:
		return s.encodeNull(v.NullCode)
	case KindBool:
		s.buf = append(s.buf, atomTag(CodeBool))
		if v.Bool {
			s.buf = append(s.buf, 1)
		} else {
			s.buf = append(s.buf, 0)
		}
		return nil
	case KindInt64:
		s.buf = append(s.buf, atomTag(CodeLong))
		s.buf = appendU64(s.buf, uint64(v.Int))
		return nil
	case KindFloat64:
		if math.IsNaN(v.Float) {
			return s.encodeNull(CodeFloat)
		}
		s.buf = append(s.buf, atomTag(CodeFloat))
		s.buf = appendU64(s.buf, math.Float64bits(v.Float))
		return nil
	case KindSymbol:
		s.buf = append(s.buf, atomTag(CodeSymbol))
		s.buf = append(s.buf, v.Sym...)
		s.buf = append(s.buf, 0)
		return nil
	case KindString:
		return s.encodeCharVector(v.Str)
	case KindBytes:
		s.buf = append(s.buf, byte(CodeByte), 0)
		s.buf = appendU32(s.buf, uint32(len(v.Bytes)))
		s.buf = append(s.buf, v.Bytes...)
		return nil
	case KindGUID:
		s.buf = append(s.buf, atomTag(CodeGUID))
		s.buf = append(s.buf, v.GUID[:]...)
		return nil
	case KindTemporal:
		return s.encodeTemporal(v.TemporalCode, v.Temporal)
	case KindList:
		s.buf = append(s.buf, byte(CodeMixedList), 0)
		s.buf = appendU32(s.buf, uint32(len(v.List)))
		for _, item := range v.List {
			if err := s.encode(item); err != nil {
				return err
			}
		}
		return nil
	case KindTypedVec:
		return s.encodeVector(v.VecCode, v.Vec)
	case KindDict:
		tag := byte(CodeDict)
		if v.Sorted {
			tag = byte(CodeSortedDict)
		}
		s.buf = append(s.buf, tag)
		if err := s.encode(*v.DictKeys); err != nil {
			return err
		}
		return s.encode(*v.DictVals)
	case KindTable:
		s.buf = append(s.buf, byte(CodeTable), 0)
		return s.encode(NewDict(*v.TableName, *v.TableCols, false))
	case KindError:
		s.buf = append(s.buf, byte(CodeError))
		s.buf = append(s.buf, v.ErrText...)
		s.buf = append(s.buf, 0)
		return nil
	case KindFunc:
		return s.encodeFunc(v.Func)
	default:
		return &werr.SerializationError{HostType: fmt.Sprintf("wire.Kind(%d)", v.Kind)}
	}
}

func (s *Serializer) encodeNull(c Code) error {
	switch c {
	case CodeSymbol:
		s.buf = append(s.buf, atomTag(c), 0)
		return nil
	case CodeGUID:
		s.buf = append(s.buf, atomTag(c))
		s.buf = append(s.buf, make([]byte, 16)...)
		return nil
	case CodeReal:
		s.buf = append(s.buf, atomTag(c))
		s.buf = appendU32(s.buf, math.Float32bits(float32(math.NaN())))
		return nil
	case CodeFloat, CodeDatetime:
		s.buf = append(s.buf, atomTag(c))
		s.buf = appendU64(s.buf, math.Float64bits(math.NaN()))
		return nil
	default:
		w := c.Width()
		if w == 0 {
			return &werr.SerializationError{HostType: fmt.Sprintf("null of code %d", c)}
		}
		s.buf = append(s.buf, atomTag(c))
		bits := NullBits(c)
		switch w {
		case 1:
			s.buf = append(s.buf, byte(bits))
		case 2:
			s.buf = appendU16(s.buf, uint16(bits))
		case 4:
			s.buf = appendU32(s.buf, uint32(bits))
		case 8:
			s.buf = appendU64(s.buf, bits)
		}
		return nil
	}
}

func (s *Serializer) encodeCharVector(str string) error {
	s.buf = append(s.buf, byte(CodeChar), 0)
	s.buf = appendU32(s.buf, uint32(len(str)))
	s.buf = append(s.buf, str...)
	return nil
}

func (s *Serializer) encodeVector(code Code, items []Value) error {
	s.buf = append(s.buf, byte(code), 0)
	s.buf = appendU32(s.buf, uint32(len(items)))
	switch code {
	case CodeSymbol:
		for _, it := range items {
			s.buf = append(s.buf, it.Sym...)
			s.buf = append(s.buf, 0)
		}
		return nil
	case CodeGUID:
		for _, it := range items {
			s.buf = append(s.buf, it.GUID[:]...)
		}
		return nil
	case CodeChar:
		for _, it := range items {
			s.buf = append(s.buf, byte(it.Int))
		}
		return nil
	case CodeBool:
		for _, it := range items {
			if it.Bool {
				s.buf = append(s.buf, 1)
			} else {
				s.buf = append(s.buf, 0)
			}
		}
		return nil
	}
	for _, it := range items {
		if err := s.encodeRaw(code, it); err != nil {
			return err
		}
	}
	return nil
}

// encodeRaw writes one fixed-width value without its tag byte, as a
// vector element. Typed-null elements write their null bit pattern.
func (s *Serializer) encodeRaw(code Code, it Value) error {
	w := code.Width()
	var bits uint64
	switch {
	case it.IsNull():
		switch code {
		case CodeReal:
			bits = uint64(math.Float32bits(float32(math.NaN())))
		case CodeFloat, CodeDatetime:
			bits = math.Float64bits(math.NaN())
		default:
			bits = NullBits(code)
		}
	case it.Kind == KindTemporal:
		bits = temporalBits(code, it.Temporal)
	case code == CodeReal:
		bits = uint64(math.Float32bits(float32(it.Float)))
	case code == CodeFloat, code == CodeDatetime:
		bits = math.Float64bits(it.Float)
	default:
		bits = uint64(it.Int)
	}
	switch w {
	case 1:
		s.buf = append(s.buf, byte(bits))
	case 2:
		s.buf = appendU16(s.buf, uint16(bits))
	case 4:
		s.buf = appendU32(s.buf, uint32(bits))
	case 8:
		s.buf = appendU64(s.buf, bits)
	default:
		return &werr.SerializationError{HostType: fmt.Sprintf("vector of code %d", code)}
	}
	return nil
}

// temporalBits returns the wire representation of t under code.
func temporalBits(code Code, t time.Time) uint64 {
	switch code {
	case CodeTimestamp, CodeTimespan:
		return uint64(epoch.ToTimestamp(t))
	case CodeMonth:
		return uint64(uint32(epoch.ToMonth(t)))
	case CodeDate:
		return uint64(uint32(epoch.ToDate(t)))
	case CodeDatetime:
		return math.Float64bits(epoch.ToDatetime(t))
	case CodeMinute:
		return uint64(uint32(epoch.ToMinute(t)))
	case CodeSecond:
		return uint64(uint32(epoch.ToSecond(t)))
	case CodeTime:
		return uint64(uint32(epoch.ToTime(t)))
	}
	return 0
}

func (s *Serializer) encodeTemporal(c Code, t time.Time) error {
	switch c {
	case CodeTimestamp, CodeMonth, CodeDate, CodeDatetime, CodeTimespan, CodeMinute, CodeSecond, CodeTime:
	default:
		return &werr.SerializationError{HostType: fmt.Sprintf("temporal of code %d", c)}
	}
	s.buf = append(s.buf, atomTag(c))
	return s.encodeRaw(c, Value{Kind: KindTemporal, Temporal: t})
}

func (s *Serializer) encodeFunc(f *FuncDescriptor) error {
	if f == nil {
		return &werr.SerializationError{HostType: "nil function descriptor"}
	}
	s.buf = append(s.buf, byte(f.Code))
	switch {
	case f.Code == CodeLambda:
		s.buf = append(s.buf, f.Namespace...)
		s.buf = append(s.buf, 0)
		s.buf = appendU32(s.buf, uint32(len(f.Body)))
		s.buf = append(s.buf, f.Body...)
	default:
		s.buf = appendU32(s.buf, uint32(len(f.Children)))
		for _, c := range f.Children {
			if err := s.encode(c); err != nil {
				return err
			}
		}
	}
	return nil
}

func appendU16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}
