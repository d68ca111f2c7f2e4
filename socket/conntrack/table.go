/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package conntrack

import (
	"bytes"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"github.com/sabouaram/netsock/socket/config"
)

// MatchKind classifies how a tuple search matched an existing entry.
type MatchKind uint8

const (
	NoMatch MatchKind = iota
	FullMatch
	HalfMatch
)

// Table is the connection-table collaborator. Callers (the socket engine)
// are expected to serialize access to it under their own network lock;
// Table's own mutex only protects against concurrent ephemeral-port
// allocation racing a tuple search, which the spec allows to interleave
// with unrelated sockets' binds.
type Table struct {
	mu      sync.Mutex
	entries map[ID]*Entry

	portLo, portHi uint16
	portCursor     uint16
}

// New builds an empty connection table with its ephemeral-port cursor
// seeded uniformly at random in [lo, hi], persisted across calls.
func New(lo, hi uint16) *Table {
	t := &Table{
		entries: make(map[ID]*Entry),
		portLo:  lo,
		portHi:  hi,
	}
	if hi > lo {
		t.portCursor = lo + uint16(rand.Intn(int(hi-lo+1)))
	} else {
		t.portCursor = lo
	}
	return t
}

// Alloc creates a new, unlinked entry and inserts it into the table.
func (t *Table) Alloc() *Entry {
	e := &Entry{ID: ID(uuid.New()), AppID: -1}

	t.mu.Lock()
	t.entries[e.ID] = e
	t.mu.Unlock()

	return e
}

// Get returns the entry for id, if any.
func (t *Table) Get(id ID) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	return e, ok
}

// Free removes id from the table. It is a no-op if id is unknown.
func (t *Table) Free(id ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

func addrEqual(a, b config.Addr) bool {
	return a.Family == b.Family && a.Port == b.Port && bytes.Equal(a.IP, b.IP)
}

// Search looks for an existing entry matching (family, proto, local,
// remote): a full match requires both local and remote tuples to agree; a
// half match requires only the local tuple to agree, treated differently
// depending on whether the caller itself is asking with a remote present.
// exclude, if non-zero, is never returned (used so bind() can distinguish
// "matches myself" from "matches another socket").
func (t *Table) Search(family, proto int, local, remote config.Addr, hasRemote bool, exclude ID) (*Entry, MatchKind) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var half *Entry
	for id, e := range t.entries {
		if id == exclude {
			continue
		}
		if e.Family != family || e.Proto != proto {
			continue
		}
		if !addrEqual(e.Local, local) {
			continue
		}

		if hasRemote && e.HasRemote && addrEqual(e.Remote, remote) {
			return e, FullMatch
		}
		// Local tuple agrees but the remote halves don't line up: a half
		// match, reported only if no full match turns up.
		if half == nil {
			half = e
		}
	}

	if half != nil {
		return half, HalfMatch
	}
	return nil, NoMatch
}

// PortInUse reports whether some entry already holds local port on proto,
// regardless of address — used both by explicit bind and by ephemeral-port
// search.
func (t *Table) PortInUse(proto int, port uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.entries {
		if e.Proto == proto && e.Local.Port == port {
			return true
		}
	}
	return false
}

// NextEphemeralPort scans forward from the persisted cursor through
// [lo, hi], wrapping once, and returns the first port not currently in use
// for proto. ok is false if every port in the range is in use; the scan is
// bounded so it never spins forever.
func (t *Table) NextEphemeralPort(proto int) (port uint16, ok bool) {
	t.mu.Lock()
	lo, hi, start := t.portLo, t.portHi, t.portCursor
	t.mu.Unlock()

	span := int(hi-lo) + 1
	for i := 0; i < span; i++ {
		p := lo + uint16((int(start-lo)+i)%span)
		if !t.PortInUse(proto, p) {
			t.mu.Lock()
			if next := uint32(p) + 1; next > uint32(hi) {
				t.portCursor = lo
			} else {
				t.portCursor = uint16(next)
			}
			t.mu.Unlock()
			return p, true
		}
	}

	return 0, false
}
