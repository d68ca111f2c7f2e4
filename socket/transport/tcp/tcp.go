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

// Package tcp is the TCP-engine collaborator the socket layer drives for
// stream sockets. Segment I/O, retransmission, windows and TIME_WAIT are
// left to Go's own net package; this package adapts net.TCPConn and
// net.TCPListener to the block/peek/timeout call shape the socket layer's
// connection and data-transfer handlers expect from a TCP engine.
package tcp

import (
	"bufio"
	"net"
	"time"
)

// Listener wraps a real net.TCPListener.
type Listener struct {
	raw *net.TCPListener
}

// Listen opens a TCP listener on laddr.
func Listen(laddr *net.TCPAddr) (*Listener, error) {
	l, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		return nil, err
	}
	return &Listener{raw: l}, nil
}

// Accept blocks for the next completed handshake and wraps it as a Conn.
// The listen/accept-queue bookkeeping (is_ready, accept_q) is the socket
// layer's responsibility; this call only performs the wire-level accept.
func (l *Listener) Accept() (*Conn, error) {
	c, err := l.raw.AcceptTCP()
	if err != nil {
		return nil, err
	}
	return newConn(c), nil
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() *net.TCPAddr {
	return l.raw.Addr().(*net.TCPAddr)
}

// Close stops accepting and releases the listening socket.
func (l *Listener) Close() error {
	return l.raw.Close()
}

// Conn wraps a real net.TCPConn with the block/peek/deadline semantics the
// socket layer's data-transfer handlers need from a stream engine.
type Conn struct {
	raw *net.TCPConn
	rd  *bufio.Reader
}

func newConn(c *net.TCPConn) *Conn {
	return &Conn{raw: c, rd: bufio.NewReader(c)}
}

// Dial opens an active connection. laddr may be nil to let the OS pick.
func Dial(laddr, raddr *net.TCPAddr) (*Conn, error) {
	c, err := net.DialTCP("tcp", laddr, raddr)
	if err != nil {
		return nil, err
	}
	return newConn(c), nil
}

// Raw exposes the underlying net.Conn for collaborators (the secure package's
// TLS handshake) that need the standard net.Conn shape instead of this
// package's block/peek/timeout Read. Safe to use only before any Read/Write
// call through Conn itself, since Conn's bufio.Reader may otherwise already
// hold bytes Raw's caller would miss.
func (c *Conn) Raw() net.Conn { return c.raw }

// LocalAddr returns the connection's local endpoint.
func (c *Conn) LocalAddr() *net.TCPAddr { return c.raw.LocalAddr().(*net.TCPAddr) }

// RemoteAddr returns the connection's peer endpoint.
func (c *Conn) RemoteAddr() *net.TCPAddr { return c.raw.RemoteAddr().(*net.TCPAddr) }

// Read copies up to len(buf) bytes. If block is false and no data is
// immediately available it returns (0, os.ErrDeadlineExceeded)-wrapped via
// a very short deadline, which callers translate to WOULD_BLOCK. peek
// leaves the data in the engine's buffer for a subsequent Read.
func (c *Conn) Read(buf []byte, peek bool, block bool, timeout time.Duration) (int, error) {
	if err := c.applyDeadline(block, timeout); err != nil {
		return 0, err
	}

	if peek {
		b, err := c.rd.Peek(len(buf))
		n := copy(buf, b)
		if err != nil && n == 0 {
			return 0, err
		}
		return n, nil
	}

	return c.rd.Read(buf)
}

// Write sends buf, honoring block/timeout the same way Read does.
func (c *Conn) Write(buf []byte, block bool, timeout time.Duration) (int, error) {
	if !block {
		_ = c.raw.SetWriteDeadline(time.Now().Add(nonBlockPoll))
	} else if timeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(timeout))
	} else {
		_ = c.raw.SetWriteDeadline(time.Time{})
	}
	return c.raw.Write(buf)
}

// nonBlockPoll is the deadline used to approximate a non-blocking read or
// write against an API (net.Conn) that has no direct non-blocking mode.
const nonBlockPoll = time.Millisecond

func (c *Conn) applyDeadline(block bool, timeout time.Duration) error {
	if !block {
		return c.raw.SetReadDeadline(time.Now().Add(nonBlockPoll))
	}
	if timeout > 0 {
		return c.raw.SetReadDeadline(time.Now().Add(timeout))
	}
	return c.raw.SetReadDeadline(time.Time{})
}

// IsRxAvailable reports whether at least one byte can be read without
// blocking, used by the readiness multiplexer.
func (c *Conn) IsRxAvailable() bool {
	if c.rd.Buffered() > 0 {
		return true
	}
	_ = c.raw.SetReadDeadline(time.Now().Add(nonBlockPoll))
	defer func() { _ = c.raw.SetReadDeadline(time.Time{}) }()

	_, err := c.rd.Peek(1)
	return err == nil
}

// IsTxReady reports whether the connection can currently accept a write.
// Go's net.Conn exposes no socket-buffer introspection, so this is
// best-effort: it always reports ready, and a closed connection is not
// detected here.
func (c *Conn) IsTxReady() bool {
	return c.raw != nil
}

// SetNoDelay toggles Nagle's algorithm.
func (c *Conn) SetNoDelay(noDelay bool) error {
	return c.raw.SetNoDelay(noDelay)
}

// SetKeepAlive toggles TCP keep-alive probes.
func (c *Conn) SetKeepAlive(on bool) error {
	return c.raw.SetKeepAlive(on)
}

// SetKeepAlivePeriod sets the keep-alive probe interval.
func (c *Conn) SetKeepAlivePeriod(d time.Duration) error {
	return c.raw.SetKeepAlivePeriod(d)
}

// CloseRead half-closes the receive direction without tearing down the
// whole connection.
func (c *Conn) CloseRead() error {
	return c.raw.CloseRead()
}

// CloseWrite half-closes the send direction (FIN).
func (c *Conn) CloseWrite() error {
	return c.raw.CloseWrite()
}

// Close tears down the connection fully.
func (c *Conn) Close() error {
	return c.raw.Close()
}
