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

package conn

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"

	"github.com/qdb-client/qdb/internal/werr"
)

// capabilityRequest is the protocol level the client asks for during
// the handshake. Level 3 permits compressed payloads and GUID atoms.
const capabilityRequest byte = 3

// handshake performs the pre-IPC credential and capability exchange:
// it writes "user:password" as UTF-8 (empty when no credentials),
// one capability byte, and a zero terminator, then reads the single
// byte holding the server's accepted capability level. An empty reply
// is an authentication refusal.
func handshake(rw io.ReadWriter, addr, user, password string) (byte, error) {
	cred := ""
	if user != "" || password != "" {
		cred = user + ":" + password
	}
	msg := make([]byte, 0, len(cred)+2)
	msg = append(msg, cred...)
	msg = append(msg, capabilityRequest, 0)
	if _, err := rw.Write(msg); err != nil {
		return 0, &werr.HandshakeError{Addr: addr, Err: err}
	}

	var reply [1]byte
	n, err := io.ReadFull(rw, reply[:])
	if n == 0 && (errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)) {
		return 0, &werr.AuthenticationError{Addr: addr, User: user}
	}
	if err != nil {
		return 0, &werr.HandshakeError{Addr: addr, Err: err}
	}
	level := reply[0]
	if level > capabilityRequest {
		return 0, &werr.HandshakeError{Addr: addr, Err: fmt.Errorf("capability reply %d exceeds request %d", level, capabilityRequest)}
	}
	Logger.Printf("qdb: handshake ok addr=%s capability=%d credential=%s", addr, level, credFingerprint(cred))
	return level, nil
}

// credFingerprint returns a short redacted fingerprint of the
// credential line for log messages; the credentials themselves are
// never logged.
func credFingerprint(cred string) string {
	if cred == "" {
		return "anonymous"
	}
	sum := blake2b.Sum256([]byte(cred))
	return fmt.Sprintf("%x", sum[:4])
}
