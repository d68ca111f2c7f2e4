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
	"errors"
	"net"
	"time"

	"github.com/sabouaram/netsock/socket/config"
	"github.com/sabouaram/netsock/socket/iface"
	"github.com/sabouaram/netsock/socket/table"
	"github.com/sabouaram/netsock/socket/transport/udp"
	"github.com/sabouaram/netsock/socket/waitsem"
)

const nonBlockPoll = time.Millisecond

// isNonBlocking resolves the effective per-call blocking mode: an explicit
// CfgBlock override wins, otherwise the socket falls back to its NO_BLOCK
// open() flag.
func (r *record) isNonBlocking() bool {
	switch r.block {
	case Block:
		return false
	case NoBlock:
		return true
	default:
		return r.flags.Has(FlagNoBlock)
	}
}

func deadlineFor(block bool, timeout time.Duration) time.Time {
	if !block {
		return time.Now().Add(nonBlockPoll)
	}
	if timeout > 0 {
		return time.Now().Add(timeout)
	}
	return time.Time{}
}

func isTimeoutErr(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// RxData implements rx_data: receive without reporting the peer address.
func (s *Stack) RxData(id table.ID, buf []byte, flags RxFlags) (int, error) {
	return s.rxData(id, buf, flags, nil)
}

// RxDataFrom implements rx_data_from: receive and fill the caller's
// remote-address out-parameter.
func (s *Stack) RxDataFrom(id table.ID, buf []byte, flags RxFlags) (int, config.Addr, error) {
	var from config.Addr
	n, err := s.rxData(id, buf, flags, &from)
	return n, from, err
}

func (s *Stack) rxData(id table.ID, buf []byte, flags RxFlags, from *config.Addr) (int, error) {
	s.mu.Lock()
	r, err := s.get(id)
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}

	if r.typ == TypeDatagram {
		return s.rxDatagram(r, buf, flags, from)
	}
	return s.rxStream(r, buf, flags, from)
}

// rxDatagram implements the datagram receive path. Caller holds Stack.mu on
// entry; every return path releases it.
func (s *Stack) rxDatagram(r *record, buf []byte, flags RxFlags, from *config.Addr) (int, error) {
	if r.state != StateConn && r.state != StateBound {
		s.mu.Unlock()
		return 0, ErrorInvalidState.Error()
	}
	if r.state == StateBound && from == nil {
		s.mu.Unlock()
		return 0, ErrorInvalidArg.Error()
	}

	nonBlock := flags.Has(RxNoBlock) || r.isNonBlocking()

	for len(r.rxQ) == 0 {
		if r.state == StateClosedFault {
			s.mu.Unlock()
			return 0, ErrorConnClosedFault.Error()
		}
		if nonBlock {
			s.mu.Unlock()
			return 0, ErrorWouldBlock.Error()
		}

		s.mu.Unlock()
		outcome := r.sems.RxQ.Wait()
		s.mu.Lock()

		switch outcome {
		case waitsem.TimedOut:
			s.mu.Unlock()
			return 0, ErrorTimeout.Error()
		case waitsem.Aborted:
			s.mu.Unlock()
			return 0, ErrorAbort.Error()
		case waitsem.Deleted:
			s.mu.Unlock()
			return 0, ErrorObjDeleted.Error()
		}
		// Signalled: loop re-checks rx_q, since a concurrent reader may
		// have already drained the packet that woke us.
	}

	pkt := r.rxQ[0]
	if from != nil {
		*from = pkt.from
	}
	n := copy(buf, pkt.data)
	truncated := n < len(pkt.data)

	if !flags.Has(RxPeek) {
		r.rxQ = r.rxQ[1:]
		r.rxQSizeCur -= uint32(len(pkt.data))
	}
	s.mu.Unlock()

	if truncated {
		return n, ErrorWouldOverflow.Error()
	}
	return n, nil
}

// rxStream implements the stream receive path. Caller holds Stack.mu on
// entry; every return path releases it.
func (s *Stack) rxStream(r *record, buf []byte, flags RxFlags, from *config.Addr) (int, error) {
	switch r.state {
	case StateClosed, StateBound, StateListen:
		s.mu.Unlock()
		return 0, ErrorInvalidState.Error()
	}

	if from != nil {
		*from = r.remote
	}

	peek := flags.Has(RxPeek)
	block := !(flags.Has(RxNoBlock) || r.isNonBlocking())
	conn := r.tcpConn
	session := r.secureSession
	s.mu.Unlock()

	var n int
	var err error
	switch {
	case session != nil:
		_ = session.SetReadDeadline(deadlineFor(block, 0))
		n, err = session.Read(buf)
	case conn != nil:
		n, err = conn.Read(buf, peek, block, 0)
	default:
		return 0, ErrorNotAvail.Error()
	}

	if err != nil {
		if isTimeoutErr(err) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if !block {
				return 0, ErrorWouldBlock.Error()
			}
			return 0, ErrorTimeout.Error()
		}

		// Peer sent FIN/close_notify. Some engines hand back trailing
		// application data in the same call that reports the error; when
		// that happens the socket still has data for the caller to drain,
		// so hold off the full transition until a later read comes back
		// empty.
		s.mu.Lock()
		defer s.mu.Unlock()
		if n > 0 {
			if r.state != StateCloseInProgress {
				r.state = StateClosingDataAvail
				s.log.Debug("peer closed with data still queued", map[string]interface{}{"sock_id": int(r.id), "n": n})
			}
			return n, nil
		}
		// Drop the transport but keep the record allocated: the zero-byte
		// return tells the application the peer is gone, and the record
		// itself stays live until the application's own Close frees it.
		s.log.Debug("peer closed, socket drained and closing", map[string]interface{}{"sock_id": int(r.id)})
		if r.secureSession != nil {
			_ = r.secureSession.CloseNotify()
		}
		if r.tcpConn != nil {
			_ = r.tcpConn.Close()
		}
		r.state = StateClosed
		return 0, nil
	}

	return n, nil
}

// TxData implements tx_data: send to the socket's connected peer.
func (s *Stack) TxData(id table.ID, buf []byte, flags TxFlags) (int, error) {
	return s.txData(id, buf, flags, nil)
}

// TxDataTo implements tx_data_to: send to an explicit destination.
func (s *Stack) TxDataTo(id table.ID, buf []byte, flags TxFlags, dst config.Addr) (int, error) {
	return s.txData(id, buf, flags, &dst)
}

func (s *Stack) txData(id table.ID, buf []byte, flags TxFlags, dst *config.Addr) (int, error) {
	s.mu.Lock()
	r, err := s.get(id)
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}

	if r.typ == TypeDatagram {
		return s.txDatagram(r, buf, flags, dst)
	}
	return s.txStream(r, buf, flags)
}

// txDatagram implements the datagram send path. Caller holds Stack.mu on
// entry; every return path releases it.
func (s *Stack) txDatagram(r *record, buf []byte, flags TxFlags, dst *config.Addr) (int, error) {
	if uint32(len(buf)) > r.txQSizeCfgd {
		s.mu.Unlock()
		return 0, ErrorWouldOverflow.Error()
	}

	remote := r.remote
	if dst != nil {
		remote = *dst
	} else if !r.hasRemote {
		s.mu.Unlock()
		return 0, ErrorNotAvail.Error()
	}

	if r.state == StateClosed {
		if err := s.bindLocked(r, config.Addr{Family: int(r.family)}, true); err != nil {
			s.mu.Unlock()
			return 0, err
		}
	}

	if r.local.IsWildcard() {
		if src, ifIdx, ok := s.ifaces.SourceFor(net.IP(remote.IP), r.ifNbr); ok {
			r.local.IP, r.local.IfIndex = src, ifIdx
		} else {
			s.mu.Unlock()
			return 0, ErrorInvalidAddrSrc.Error()
		}
	}

	family := r.family
	conn := r.udpConn
	ip := r.ip
	s.mu.Unlock()

	if conn == nil {
		return 0, ErrorNotAvail.Error()
	}

	raddr := &net.UDPAddr{IP: net.IP(remote.IP), Port: int(remote.Port)}
	mcast := iface.IsMulticast(net.IP(remote.IP))

	var n int
	var txErr error
	if family == FamilyV6 {
		n, txErr = conn.TxAppDataHandlerV6(buf, raddr, udp.TxOptsV6{
			TrafficClass:  ip.TrafficClass,
			HopLimit:      ip.HopLimit,
			McastHopLimit: ip.McastHopLimit,
			Multicast:     mcast,
		})
	} else {
		n, txErr = conn.TxAppDataHandlerV4(buf, raddr, udp.TxOptsV4{
			TOS:          ip.TOS,
			TTL:          ip.TTL,
			MulticastTTL: ip.MulticastTTL,
			Multicast:    mcast,
		})
	}
	if txErr != nil {
		return 0, ErrorTx.Error()
	}
	if n == 0 {
		return 0, ErrorFail.Error()
	}
	return n, nil
}

// txStream implements the stream send path. Caller holds Stack.mu on entry;
// every return path releases it.
func (s *Stack) txStream(r *record, buf []byte, flags TxFlags) (int, error) {
	switch r.state {
	case StateConnDone:
		r.state = StateConn
	case StateConn:
	case StateCloseInProgress, StateClosingDataAvail:
		s.mu.Unlock()
		return 0, nil
	default:
		s.mu.Unlock()
		return 0, ErrorInvalidState.Error()
	}

	block := !(flags.Has(TxNoBlock) || r.isNonBlocking())
	conn := r.tcpConn
	session := r.secureSession
	s.mu.Unlock()

	var n int
	var err error
	switch {
	case session != nil:
		_ = session.SetWriteDeadline(deadlineFor(block, 0))
		n, err = session.Write(buf)
	case conn != nil:
		n, err = conn.Write(buf, block, 0)
	default:
		return 0, ErrorNotAvail.Error()
	}

	if err != nil {
		if isTimeoutErr(err) {
			if !block {
				return 0, ErrorWouldBlock.Error()
			}
			return 0, ErrorTimeout.Error()
		}
		return 0, ErrorTx.Error()
	}
	return n, nil
}
