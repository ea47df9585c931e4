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

// Package symtab implements the symbol interning table the wire
// deserializer uses for the "symbol" type code (an interned string,
// distinct on the wire from a char vector). Lookups are keyed with siphash so the table stays fast even
// when a session interns a large number of distinct column/table names.
package symtab

import (
	"sync"

	"github.com/dchest/siphash"
)

// a fixed key keeps hashes stable within a process; the table is not
// used for anything security sensitive, only bucket placement.
const (
	k0 = 0x5ca1ab1ecafef00d
	k1 = 0xdeadbeefdeadbeef
)

// Table interns strings to small integer IDs and back. It is safe for
// concurrent use; each Deserializer owns one instance and keeps it
// across calls, so common column names are not re-interned.
type Table struct {
	mu   sync.RWMutex
	ids  map[uint64][]entry
	byID []string
}

type entry struct {
	s  string
	id int
}

// New returns an empty symbol table.
func New() *Table {
	return &Table{ids: make(map[uint64][]entry)}
}

func hashOf(s string) uint64 {
	return siphash.Hash(k0, k1, []byte(s))
}

// Intern returns the ID for s, assigning a new one if s has not been
// seen before.
func (t *Table) Intern(s string) int {
	h := hashOf(s)

	t.mu.RLock()
	for _, e := range t.ids[h] {
		if e.s == s {
			t.mu.RUnlock()
			return e.id
		}
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.ids[h] {
		if e.s == s {
			return e.id
		}
	}
	id := len(t.byID)
	t.byID = append(t.byID, s)
	t.ids[h] = append(t.ids[h], entry{s: s, id: id})
	return id
}

// Lookup returns the string for id and whether id was valid.
func (t *Table) Lookup(id int) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id < 0 || id >= len(t.byID) {
		return "", false
	}
	return t.byID[id], true
}

// Len returns the number of interned symbols.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}

// Reset clears the table so a connection about to read unrelated
// messages can drop its accumulated symbols.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ids = make(map[uint64][]entry)
	t.byID = t.byID[:0]
}
