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

package socket

import (
	"net"

	"github.com/sabouaram/netsock/socket/config"
	"github.com/sabouaram/netsock/socket/conntrack"
	"github.com/sabouaram/netsock/socket/table"
	"github.com/sabouaram/netsock/socket/transport/udp"
)

// Packet is one inbound datagram handed to Rx by a transport collaborator,
// the Go-side shape of the (family, proto, local, remote, sock_id?) tuple the
// rx entry point works against. SockID is set by callers that already know
// their owning socket (the UDP rx loop); callers relaying on behalf of a
// shared or wildcard listener leave HasSockID false and let Rx resolve it by
// tuple search.
type Packet struct {
	Family    Family
	Proto     Proto
	Local     config.Addr
	Remote    config.Addr
	SockID    table.ID
	HasSockID bool
	Data      []byte
}

// Rx resolves pkt to its owning socket (by direct id or by connection-table
// tuple search) and enqueues it onto that socket's rx_q, honoring the
// queue's size cap and datagram-atomicity rules.
func (s *Stack) Rx(pkt Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.resolveRx(pkt)
	if err != nil {
		return err
	}
	if r.typ != TypeDatagram {
		// Stream rx bypasses rx_q entirely in this engine: TCP/TLS bytes
		// are delivered straight out of tcp.Conn/secure.Session on demand
		// (data.go's rxStream), so there is nothing here to enqueue.
		return ErrorInvalidType.Error()
	}

	if !s.enqueueRx(r, pkt.Remote, pkt.Data) {
		return ErrorRx.Error()
	}
	return nil
}

func (s *Stack) resolveRx(pkt Packet) (*record, error) {
	if pkt.HasSockID {
		return s.get(pkt.SockID)
	}

	entry, kind := s.conns.Search(int(pkt.Family), int(pkt.Proto), pkt.Local, pkt.Remote, true, conntrack.ID{})
	if kind == conntrack.NoMatch {
		return nil, ErrorRx.Error()
	}
	return s.get(table.ID(entry.AppID))
}

// enqueueRx appends one packet to r.rxQ and signals r's rx_q semaphore
// (level-triggered, once per packet), plus a READ select post. Caller holds
// Stack.mu. Returns false (no mutation performed) if the queue has no room,
// except for a single oversize datagram landing on an otherwise-empty queue.
func (s *Stack) enqueueRx(r *record, from config.Addr, data []byte) bool {
	empty := len(r.rxQ) == 0
	if !empty {
		if r.rxQSizeCur >= r.rxQSizeCfgd || r.rxQSizeCur+uint32(len(data)) > r.rxQSizeCfgd {
			s.log.Warn("rx queue full, dropping datagram", map[string]interface{}{
				"sock_id": int(r.id), "size": len(data), "queued": int(r.rxQSizeCur), "limit": int(r.rxQSizeCfgd),
			})
			return false
		}
	}

	cp := append([]byte(nil), data...)
	r.rxQ = append(r.rxQ, rxPacket{data: cp, from: from})
	r.rxQSizeCur += uint32(len(cp))

	r.sems.RxQ.Signal()
	s.postEvent(r, evRead)
	return true
}

// CloseFromConn marks sock CLOSED_FAULT without touching its connection-
// table entry or transport handles, for a collaborator that detected the
// connection died out from under this socket (e.g. a link-down or reset
// observed by the connection layer itself).
func (s *Stack) CloseFromConn(id table.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(id)
	if err != nil {
		return err
	}
	s.log.Error("socket forced to closed_fault by connection layer", map[string]interface{}{
		"sock_id": int(id), "prev_state": r.state.String(),
	})
	r.state = StateClosedFault
	s.postEvent(r, evRead|evWrite|evErr)
	return nil
}

// FreeConnFromSock removes conn from sock's accept queue if it was still
// sitting there unaccepted, used when the connection layer tears down a
// half-accepted child out from under a listener.
func (s *Stack) FreeConnFromSock(id table.ID, conn conntrack.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(id)
	if err != nil {
		return err
	}
	for i, e := range r.acceptQ {
		if e.connID == conn {
			r.acceptQ = append(r.acceptQ[:i], r.acceptQ[i+1:]...)
			s.conns.Free(conn)
			return nil
		}
	}
	return ErrorNotFound.Error()
}

// ensureUDPConn opens the real UDP endpoint backing a bound datagram socket
// and starts its receive loop, the first time r acquires a local address.
// Caller holds Stack.mu.
func (s *Stack) ensureUDPConn(r *record) error {
	if r.proto != ProtoUDP || r.udpConn != nil {
		return nil
	}

	laddr := &net.UDPAddr{IP: net.IP(r.local.IP), Port: int(r.local.Port)}
	conn, err := udp.ListenUDP(laddr)
	if err != nil {
		return ErrorFail.Error()
	}
	r.udpConn = conn
	go s.udpRxLoop(r, conn)
	return nil
}

// udpRxLoop feeds Rx from a datagram socket's own UDP endpoint. Each socket
// owns its endpoint outright (Go's net package already demuxes by local
// port), so the sock_id is always known here; the connection-table tuple
// search in Rx only matters for a caller without that shortcut.
func (s *Stack) udpRxLoop(r *record, conn *udp.Conn) {
	buf := make([]byte, 65536)
	for {
		n, from, err := conn.RxAppData(buf, true, 0)
		if err != nil {
			return
		}

		s.mu.Lock()
		if r.udpConn != conn || r.flags&FlagUsed == 0 {
			s.mu.Unlock()
			return
		}
		if r.hasRemote && !addrEqualHostPort(r.remote, from) {
			// A connect()-ed datagram socket only accepts from its peer.
			s.mu.Unlock()
			continue
		}
		remote := config.Addr{Family: int(r.family), IP: append([]byte(nil), from.IP...), Port: uint16(from.Port)}
		s.enqueueRx(r, remote, buf[:n])
		s.mu.Unlock()
	}
}

func addrEqualHostPort(a config.Addr, b *net.UDPAddr) bool {
	// net.IP.Equal, not bytes.Equal: the kernel may report the peer in
	// 16-byte v4-mapped form while the socket recorded the 4-byte form.
	return int(a.Port) == b.Port && net.IP(a.IP).Equal(b.IP)
}
