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

// Package table implements the fixed-size socket-id pool: a dense range of
// integer identities threaded as a free-list stack, with pool statistics
// kept in a critical section disjoint from the caller's own locking so a
// stat read never has to contend with the network lock.
package table

import "sync"

// ID is a dense socket identity in [0, N).
type ID int

// Pool hands out and reclaims a fixed range of IDs. It does not know
// anything about what a socket record contains; the owner keeps its own
// parallel array indexed by ID. Pool is safe for concurrent use, but
// callers needing "alloc implies record initialized" atomicity must hold
// their own lock across Alloc and the record setup — Pool only guarantees
// the ID itself is not handed out twice.
type Pool struct {
	mu       sync.Mutex
	free     []ID
	size     int
	curUsed  int
	maxUsed  int
}

// New builds a pool of size identities, all initially free, pushed onto the
// free stack in descending order so Alloc() hands out ID 0 first.
func New(size int) *Pool {
	p := &Pool{size: size, free: make([]ID, 0, size)}
	for i := size - 1; i >= 0; i-- {
		p.free = append(p.free, ID(i))
	}
	return p
}

// Size returns the pool's fixed capacity.
func (p *Pool) Size() int {
	return p.size
}

// Alloc pops an ID off the free stack. ok is false if the pool is
// exhausted.
func (p *Pool) Alloc() (id ID, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.free)
	if n == 0 {
		return 0, false
	}

	id = p.free[n-1]
	p.free = p.free[:n-1]

	p.curUsed++
	if p.curUsed > p.maxUsed {
		p.maxUsed = p.curUsed
	}
	return id, true
}

// Free pushes id back onto the free stack. Freeing an ID not currently
// allocated is a caller bug; Pool does not attempt to detect it since doing
// so would require per-ID bookkeeping the owner already has in its record
// array (the USED flag).
func (p *Pool) Free(id ID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.free = append(p.free, id)
	if p.curUsed > 0 {
		p.curUsed--
	}
}

// Stat is a snapshot of pool usage.
type Stat struct {
	Size    int
	CurUsed int
	MaxUsed int
}

// Stats returns the current snapshot.
func (p *Pool) Stats() Stat {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stat{Size: p.size, CurUsed: p.curUsed, MaxUsed: p.maxUsed}
}

// ResetMaxUsed clears the high-water mark back to the current usage.
func (p *Pool) ResetMaxUsed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxUsed = p.curUsed
}
