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

// Package waitsem implements the per-socket counting semaphores of C2: one
// primitive per event (rx_q, conn_req, accept_q, conn_close), each with an
// independently mutable timeout that only ever affects the *next* Wait call,
// never one already in flight, and a separate Abort path that wakes every
// current waiter with Aborted instead of Signalled and resets the count to
// zero.
//
// The teacher's own scheduler primitives are modeled on POSIX counting
// semaphores; this package keeps that shape but builds it directly on
// channels rather than golang.org/x/sync/semaphore, whose weighted-resource
// model has no Abort/ObjDel outcome and cannot express "wake every waiter
// with a non-timeout error" — see the repo's design notes.
package waitsem

import (
	"sync"
	"time"
)

// Outcome is the reason a Wait call returned.
type Outcome uint8

const (
	// Signalled means the semaphore was posted and the wait consumed one count.
	Signalled Outcome = iota
	// TimedOut means the configured timeout elapsed with no post.
	TimedOut
	// Aborted means Abort() was called while this goroutine was waiting.
	Aborted
	// Deleted means the semaphore was torn down (Close) while waiting.
	Deleted
)

type waiter chan Outcome

// Sem is a counting semaphore with a mutable, per-call timeout.
type Sem struct {
	mu      sync.Mutex
	count   int
	waiters []waiter
	closed  bool

	timeoutMu sync.RWMutex
	infinite  bool
	timeout   time.Duration
}

// New returns a Sem with count 0 and the given initial timeout. Pass
// infinite=true to start with no timeout.
func New(timeout time.Duration, infinite bool) *Sem {
	return &Sem{timeout: timeout, infinite: infinite}
}

// SetTimeout changes the timeout applied by future Wait calls. A wait
// already blocked keeps whatever timeout it captured when it started.
func (s *Sem) SetTimeout(timeout time.Duration, infinite bool) {
	s.timeoutMu.Lock()
	s.timeout, s.infinite = timeout, infinite
	s.timeoutMu.Unlock()
}

// Timeout returns the duration and infinite flag the next Wait call will
// use, for callers that expose it back to configuration introspection
// (cfg_timeout_*_get_ms).
func (s *Sem) Timeout() (time.Duration, bool) {
	return s.currentTimeout()
}

func (s *Sem) currentTimeout() (time.Duration, bool) {
	s.timeoutMu.RLock()
	defer s.timeoutMu.RUnlock()
	return s.timeout, s.infinite
}

// Signal increments the count, or wakes the longest-waiting Wait if one is
// blocked. It never blocks.
func (s *Sem) Signal() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if n := len(s.waiters); n > 0 {
		w := s.waiters[0]
		s.waiters = s.waiters[1:]
		w <- Signalled
		return
	}

	s.count++
}

// Wait blocks until Signal makes the count positive (decrementing it),
// until the current timeout elapses, or until Abort/Close fires.
func (s *Sem) Wait() Outcome {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Deleted
	}
	if s.count > 0 {
		s.count--
		s.mu.Unlock()
		return Signalled
	}

	w := make(waiter, 1)
	s.waiters = append(s.waiters, w)
	s.mu.Unlock()

	timeout, infinite := s.currentTimeout()

	if infinite {
		return <-w
	}

	select {
	case o := <-w:
		return o
	case <-time.After(timeout):
		s.removeWaiter(w)
		return TimedOut
	}
}

func (s *Sem) removeWaiter(w waiter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, ww := range s.waiters {
		if ww == w {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}

	// Signal raced us and already removed+posted this waiter; drain its
	// delivered value so the goroutine that sent it doesn't block forever.
	select {
	case <-w:
	default:
	}
}

// Clear resets the count to zero without affecting any current waiter.
func (s *Sem) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count = 0
}

// Abort wakes every current waiter with Aborted and resets the count to
// zero. Used when the owning socket is being torn down or via the public
// sel_abort-style call.
func (s *Sem) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.waiters {
		w <- Aborted
	}
	s.waiters = nil
	s.count = 0
}

// Close wakes every current waiter with Deleted and marks the semaphore
// unusable; further Signal/Wait calls are no-ops or return Deleted.
func (s *Sem) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.waiters {
		w <- Deleted
	}
	s.waiters = nil
	s.count = 0
	s.closed = true
}
