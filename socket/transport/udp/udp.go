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

// Package udp is the UDP-engine collaborator the socket layer drives for
// datagram sockets. Unlike tcp, a datagram engine has no connection
// handshake: tx-app-data-handler addresses each packet individually (v4 and
// v6 sharing one wire format but distinct address-family handling), and rx
// delivery is level-triggered per packet rather than edge-triggered.
package udp

import (
	"net"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// TxOptsV4 carries the per-send IPv4 options handed down with a datagram:
// type of service, unicast TTL, and the multicast TTL substituted when the
// destination is a multicast group. A zero field leaves the kernel default
// in place.
type TxOptsV4 struct {
	TOS          byte
	TTL          byte
	MulticastTTL byte
	Multicast    bool
}

// TxOptsV6 is the IPv6 counterpart: traffic class, unicast hop limit, and
// the multicast hop limit used for multicast destinations.
type TxOptsV6 struct {
	TrafficClass  byte
	HopLimit      byte
	McastHopLimit byte
	Multicast     bool
}

// Conn wraps a real net.UDPConn, bound or connected depending on how the
// socket layer built it (bind-only sockets read with a remote each time;
// connect()-ed sockets use the OS-level default-peer optimization).
type Conn struct {
	raw *net.UDPConn
	p4  *ipv4.PacketConn
	p6  *ipv6.PacketConn
}

func newConn(c *net.UDPConn) *Conn {
	return &Conn{raw: c, p4: ipv4.NewPacketConn(c), p6: ipv6.NewPacketConn(c)}
}

// ListenUDP opens an unconnected, receive-capable UDP endpoint.
func ListenUDP(laddr *net.UDPAddr) (*Conn, error) {
	c, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	return newConn(c), nil
}

// DialUDP connects the endpoint to a fixed peer, enabling plain Read/Write.
func DialUDP(laddr, raddr *net.UDPAddr) (*Conn, error) {
	c, err := net.DialUDP("udp", laddr, raddr)
	if err != nil {
		return nil, err
	}
	return newConn(c), nil
}

// LocalAddr returns the bound local endpoint.
func (c *Conn) LocalAddr() *net.UDPAddr { return c.raw.LocalAddr().(*net.UDPAddr) }

const nonBlockPoll = time.Millisecond

func (c *Conn) applyReadDeadline(block bool, timeout time.Duration) error {
	if !block {
		return c.raw.SetReadDeadline(time.Now().Add(nonBlockPoll))
	}
	if timeout > 0 {
		return c.raw.SetReadDeadline(time.Now().Add(timeout))
	}
	return c.raw.SetReadDeadline(time.Time{})
}

// RxAppData reads one datagram: each call consumes exactly one packet and
// reports its source address, never coalescing multiple packets into one
// buffer the way a stream engine's Read may.
func (c *Conn) RxAppData(buf []byte, block bool, timeout time.Duration) (n int, from *net.UDPAddr, err error) {
	if err = c.applyReadDeadline(block, timeout); err != nil {
		return 0, nil, err
	}
	n, from, err = c.raw.ReadFromUDP(buf)
	return
}

// TxAppDataHandlerV4 sends one IPv4 datagram to dst, applying the caller's
// per-send IP options first. Kept as a distinct entry point from the v6
// variant because the two address families carry different ancillary IP
// option shapes at the real socket layer (TOS/TTL vs traffic class/hop
// limit). A multicast destination selects the multicast TTL instead of the
// unicast one.
func (c *Conn) TxAppDataHandlerV4(buf []byte, dst *net.UDPAddr, opts TxOptsV4) (int, error) {
	p := c.p4

	if opts.TOS != 0 {
		_ = p.SetTOS(int(opts.TOS))
	}
	if opts.Multicast {
		if opts.MulticastTTL != 0 {
			_ = p.SetMulticastTTL(int(opts.MulticastTTL))
		}
	} else if opts.TTL != 0 {
		_ = p.SetTTL(int(opts.TTL))
	}

	return c.raw.WriteToUDP(buf, dst)
}

// TxAppDataHandlerV6 sends one IPv6 datagram to dst, applying the caller's
// traffic class and (multicast) hop limit first.
func (c *Conn) TxAppDataHandlerV6(buf []byte, dst *net.UDPAddr, opts TxOptsV6) (int, error) {
	p := c.p6

	if opts.TrafficClass != 0 {
		_ = p.SetTrafficClass(int(opts.TrafficClass))
	}
	if opts.Multicast {
		if opts.McastHopLimit != 0 {
			_ = p.SetMulticastHopLimit(int(opts.McastHopLimit))
		}
	} else if opts.HopLimit != 0 {
		_ = p.SetHopLimit(int(opts.HopLimit))
	}

	return c.raw.WriteToUDP(buf, dst)
}

// Write sends on a connected (DialUDP) endpoint only.
func (c *Conn) Write(buf []byte) (int, error) {
	return c.raw.Write(buf)
}

// IsRxAvailable reports whether a full datagram can be read without
// blocking.
func (c *Conn) IsRxAvailable() bool {
	_ = c.raw.SetReadDeadline(time.Now().Add(nonBlockPoll))
	defer func() { _ = c.raw.SetReadDeadline(time.Time{}) }()

	one := make([]byte, 1)
	_, _, err := c.raw.ReadFromUDP(one)
	return err == nil
}

// SetReadBuffer sizes the kernel receive buffer backing RxQSize.
func (c *Conn) SetReadBuffer(bytes int) error {
	return c.raw.SetReadBuffer(bytes)
}

// SetWriteBuffer sizes the kernel send buffer backing TxQSize.
func (c *Conn) SetWriteBuffer(bytes int) error {
	return c.raw.SetWriteBuffer(bytes)
}

// Close releases the datagram endpoint.
func (c *Conn) Close() error {
	return c.raw.Close()
}
