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

	"github.com/qdb-client/qdb/internal/werr"
)

// HeaderLen is the fixed size, in bytes, of a message header.
const HeaderLen = 8

// MsgType is the first payload-describing byte of a header; it
// mirrors the request/response state the server uses to interpret
// the frame (e.g. a synchronous request/response vs. an async
// push message).
type MsgType byte

const (
	MsgAsync MsgType = 0
	MsgSync  MsgType = 1
	MsgResp  MsgType = 2
)

// LittleEndian / BigEndian are the two values the header's endian
// byte may take.
const (
	LittleEndian byte = 1
	BigEndian    byte = 0
)

// PackHeader packs an 8-byte header. Headers are always written
// little-endian regardless of the host's native order; totalLen must
// include the 8 header bytes themselves.
func PackHeader(msgType MsgType, totalLen uint32) [HeaderLen]byte {
	var h [HeaderLen]byte
	h[0] = LittleEndian
	h[1] = byte(msgType)
	h[2] = 0 // compressed flag, filled in by the caller if needed
	h[3] = 0 // reserved
	binary.LittleEndian.PutUint32(h[4:], totalLen)
	return h
}

// UnpackHeader reads a header from buf (which must be at least
// HeaderLen bytes), returning the endian byte, the message type, the
// compressed flag, and the total frame length (including the header).
// It reports a malformed frame if totalLen < HeaderLen.
func UnpackHeader(buf []byte) (endian byte, msgType MsgType, compressed bool, totalLen uint32, err error) {
	if len(buf) < HeaderLen {
		return 0, 0, false, 0, &werr.DeserializationError{Reason: "header shorter than 8 bytes"}
	}
	endian = buf[0]
	msgType = MsgType(buf[1])
	compressed = buf[2] != 0
	bo := byteOrder(endian)
	totalLen = bo.Uint32(buf[4:8])
	if totalLen < HeaderLen {
		return endian, msgType, compressed, totalLen, &werr.DeserializationError{Reason: "total_length smaller than header"}
	}
	return endian, msgType, compressed, totalLen, nil
}

func byteOrder(endian byte) binary.ByteOrder {
	if endian == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}
