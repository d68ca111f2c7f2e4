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

package waitsem

import "time"

// Set bundles the four per-socket wait primitives.
type Set struct {
	RxQ       *Sem
	ConnReq   *Sem
	AcceptQ   *Sem
	ConnClose *Sem
}

// NewSet builds a Set with every semaphore starting at count 0 and an
// infinite timeout; callers apply the configured defaults through each
// Sem's SetTimeout.
func NewSet() *Set {
	return &Set{
		RxQ:       New(0, true),
		ConnReq:   New(0, true),
		AcceptQ:   New(0, true),
		ConnClose: New(0, true),
	}
}

// AbortAll wakes every waiter on every semaphore in the set, used on
// tear-down (free_conn_from_sock / close paths).
func (s *Set) AbortAll() {
	s.RxQ.Abort()
	s.ConnReq.Abort()
	s.AcceptQ.Abort()
	s.ConnClose.Abort()
}

// ClearAll resets every semaphore's count to zero, used when a record is
// returned to the free pool.
func (s *Set) ClearAll() {
	s.RxQ.Clear()
	s.ConnReq.Clear()
	s.AcceptQ.Clear()
	s.ConnClose.Clear()
}

// Timeouts is a snapshot shape for the four semaphore timeouts. Nothing in
// the module builds one; the per-event timeout calls read and write each
// Sem directly through SetTimeout and Timeout.
type Timeouts struct {
	RxQ           time.Duration
	RxQInf        bool
	ConnReq       time.Duration
	ConnReqInf    bool
	ConnAccept    time.Duration
	ConnAcceptInf bool
	ConnClose     time.Duration
	ConnCloseInf  bool
}
