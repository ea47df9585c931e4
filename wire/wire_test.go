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
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
)

func roundTrip(t *testing.T, v Value) Value {
	t.Helper()
	s := NewSerializer()
	buf, err := s.Serialize(MsgSync, v)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	d := NewDeserializer()
	_, got, err := d.Deserialize(buf)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	return got
}

func TestRoundTripPrimitives(t *testing.T) {
	cases := []Value{
		NewBool(true),
		NewBool(false),
		NewInt(42),
		NewInt(-7),
		NewFloat(3.5),
		NewSymbol("AAPL"),
		NewString("test"),
		NewBytes([]byte{1, 2, 3}),
		NewGUID(uuid.MustParse("12345678-1234-1234-1234-123456789012")),
		NewTemporal(CodeDate, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)),
		NewTemporal(CodeTimestamp, time.Date(2024, 3, 15, 1, 2, 3, 4000, time.UTC)),
		NewVector(CodeSymbol, NewSymbol("AAPL"), NewSymbol("GOOG")),
		NewVector(CodeLong, NewInt(1), NewInt(2), NewInt(3)),
		NewList(NewInt(1), NewSymbol("x"), NewBool(true)),
	}
	for _, c := range cases {
		got := roundTrip(t, c)
		if !got.Equal(c) {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, c)
		}
	}
}

func TestRoundTripTypedNull(t *testing.T) {
	// CodeBool is absent: a boolean has no distinct null bit pattern
	// on the wire (0 reads back as false).
	codes := []Code{CodeShort, CodeInt, CodeLong, CodeReal, CodeFloat,
		CodeSymbol, CodeGUID, CodeTimestamp, CodeMonth, CodeDate, CodeDatetime,
		CodeTimespan, CodeMinute, CodeSecond, CodeTime}
	for _, c := range codes {
		n := Null(c)
		got := roundTrip(t, n)
		if !got.IsNull() {
			t.Errorf("code %d: expected null, got %+v", c, got)
			continue
		}
		if got.NullCode != c {
			t.Errorf("code %d: null code mismatch, got %d", c, got.NullCode)
		}
		if !got.Equal(n) {
			t.Errorf("code %d: nulls not equal", c)
		}
	}
}

func TestTypedNullsOnlyEqualSameCode(t *testing.T) {
	a := Null(CodeLong)
	b := Null(CodeInt)
	if a.Equal(b) {
		t.Fatal("nulls of different codes should not compare equal")
	}
	if a.Truthy() {
		t.Fatal("typed null must be falsy")
	}
}

// TestSerializeInt42Bytes exercises the header+tag+value layout for the
// canonical "serialize the integer 42" example: a long atom is tagged
// 256-7 = 0xF9 and its 8 LE bytes follow, and total_length (the last 4
// header bytes) always equals len(buf).
func TestSerializeInt42Bytes(t *testing.T) {
	s := NewSerializer()
	buf, err := s.Serialize(MsgSync, NewInt(42))
	if err != nil {
		t.Fatal(err)
	}
	wantPayload := []byte{0xF9, 0x2A, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(buf[HeaderLen:], wantPayload) {
		t.Fatalf("got % X, want % X", buf[HeaderLen:], wantPayload)
	}
	if buf[0] != LittleEndian {
		t.Fatalf("endian byte = %d, want %d", buf[0], LittleEndian)
	}
	if got := binary.LittleEndian.Uint32(buf[4:8]); int(got) != len(buf) {
		t.Fatalf("total_length = %d, want %d", got, len(buf))
	}

	d := NewDeserializer()
	_, v, err := d.Deserialize(buf)
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != KindInt64 || v.Int != 42 {
		t.Fatalf("got %+v", v)
	}
}

func TestSerializeCharVector(t *testing.T) {
	s := NewSerializer()
	buf, err := s.Serialize(MsgSync, NewString("test"))
	if err != nil {
		t.Fatal(err)
	}
	wantPrefix := []byte{0x0A, 0x00, 0x04, 0x00, 0x00, 0x00, 0x74, 0x65, 0x73, 0x74}
	if !bytes.Equal(buf[HeaderLen:], wantPrefix) {
		t.Fatalf("got % X, want % X", buf[HeaderLen:], wantPrefix)
	}
	d := NewDeserializer()
	_, v, err := d.Deserialize(buf)
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != KindString || v.Str != "test" {
		t.Fatalf("got %+v", v)
	}
}

func TestSerializeSymbolVector(t *testing.T) {
	s := NewSerializer()
	buf, err := s.Serialize(MsgSync, NewVector(CodeSymbol, NewSymbol("AAPL"), NewSymbol("GOOG")))
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x0B, 0x00, 0x02, 0x00, 0x00, 0x00, 0x41, 0x41, 0x50, 0x4C, 0x00, 0x47, 0x4F, 0x4F, 0x47, 0x00}
	if !bytes.Equal(buf[HeaderLen:], want) {
		t.Fatalf("got % X, want % X", buf[HeaderLen:], want)
	}
	d := NewDeserializer()
	_, v, err := d.Deserialize(buf)
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != KindTypedVec || len(v.Vec) != 2 || v.Vec[0].Sym != "AAPL" || v.Vec[1].Sym != "GOOG" {
		t.Fatalf("got %+v", v)
	}
}

func TestBigEndianFrameDecodes(t *testing.T) {
	payload := []byte{atomTag(CodeLong), 0, 0, 0, 0, 0, 0, 0, 42}
	total := HeaderLen + len(payload)
	frame := make([]byte, total)
	frame[0] = BigEndian
	frame[1] = byte(MsgSync)
	binary.BigEndian.PutUint32(frame[4:8], uint32(total))
	copy(frame[HeaderLen:], payload)

	d := NewDeserializer()
	_, v, err := d.Deserialize(frame)
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != KindInt64 || v.Int != 42 {
		t.Fatalf("got %+v", v)
	}
}

func TestMalformedHeader(t *testing.T) {
	buf := []byte{LittleEndian, byte(MsgSync), 0, 0, 3, 0, 0, 0}
	_, _, _, _, err := UnpackHeader(buf)
	if err == nil {
		t.Fatal("expected error for total_length < 8")
	}
}

func TestNaNFloatBecomesNull(t *testing.T) {
	v := roundTrip(t, NewFloat(math.NaN()))
	if !v.IsNull() || v.NullCode != CodeFloat {
		t.Fatalf("got %+v", v)
	}
}
