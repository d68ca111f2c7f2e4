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
	"github.com/sabouaram/netsock/socket/secure"
	"github.com/sabouaram/netsock/socket/table"
	"github.com/sabouaram/netsock/socket/transport/tcp"
	"github.com/sabouaram/netsock/socket/waitsem"
)

func addrToTCP(a config.Addr) *net.TCPAddr {
	if a.IsWildcard() && a.Port == 0 {
		return nil
	}
	return &net.TCPAddr{IP: net.IP(a.IP), Port: int(a.Port)}
}

// Connect implements the datagram pseudo-connect and stream active open.
func (s *Stack) Connect(id table.ID, remote config.Addr) error {
	s.mu.Lock()

	r, err := s.get(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	if r.typ == TypeDatagram {
		defer s.mu.Unlock()
		if r.state == StateClosed {
			if err := s.bindLocked(r, config.Addr{Family: int(r.family)}, false); err != nil {
				return err
			}
		}
		entry, ok := s.conns.Get(r.connID)
		if !ok {
			return ErrorInvalidConn.Error()
		}
		entry.Remote = remote
		entry.HasRemote = true
		r.remote = remote
		r.hasRemote = true
		r.state = StateConn
		return nil
	}

	switch r.state {
	case StateClosed, StateBound, StateListen:
		if r.state != StateClosed && r.local.IsWildcard() {
			s.mu.Unlock()
			return ErrorInvalidAddrSrc.Error()
		}
	case StateConnInProgress:
		s.mu.Unlock()
		outcome := r.sems.ConnReq.Wait()
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.finishStreamConnect(r, outcome)
	case StateConnDone:
		defer s.mu.Unlock()
		r.state = StateConn
		return nil
	default:
		s.mu.Unlock()
		return ErrorInvalidState.Error()
	}

	if r.local.IsWildcard() {
		if src, ifIdx, ok := s.ifaces.SourceFor(net.IP(remote.IP), r.ifNbr); ok {
			r.local.IP = src
			r.local.IfIndex = ifIdx
		} else {
			s.mu.Unlock()
			return ErrorInvalidAddrSrc.Error()
		}
	}

	r.remote = remote
	r.hasRemote = true
	r.state = StateConnInProgress

	laddr, raddr := addrToTCP(r.local), addrToTCP(remote)
	nonBlock := r.isNonBlocking()
	wantSecure := r.flags.Has(FlagSecure)

	go s.dialStream(r, laddr, raddr)

	if nonBlock && !wantSecure {
		s.mu.Unlock()
		return ErrorOpInProgress.Error()
	}

	s.mu.Unlock()
	outcome := r.sems.ConnReq.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishStreamConnect(r, outcome)
}

// dialStream runs the active TCP open off the network lock and signals
// conn_req on completion.
func (s *Stack) dialStream(r *record, laddr, raddr *net.TCPAddr) {
	conn, err := tcp.Dial(laddr, raddr)

	s.mu.Lock()
	if r.flags&FlagUsed == 0 || r.state != StateConnInProgress {
		// Socket was closed out from under the dial.
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		s.log.Warn("active open failed", map[string]interface{}{"sock_id": int(r.id), "error": err.Error()})
		r.state = StateClosed
	} else {
		r.tcpConn = conn
		r.state = StateConnDone
		conn.SetNoDelay(r.noDelay)
		if r.keepAlive {
			conn.SetKeepAlive(true)
		}
		s.log.Debug("active open completed", map[string]interface{}{"sock_id": int(r.id)})
	}
	s.postEvent(r, evRead|evWrite)
	s.mu.Unlock()

	r.sems.ConnReq.Signal()
}

// finishStreamConnect completes a connect() call: on success, optionally
// runs the TLS handshake under SECURE_NEGO_IN_PROGRESS, else transitions to
// CONN; on failure, rolls the state back. Caller holds Stack.mu.
func (s *Stack) finishStreamConnect(r *record, outcome waitsem.Outcome) error {
	switch outcome {
	case waitsem.TimedOut:
		return ErrorTimeout.Error()
	case waitsem.Aborted:
		if r.flags&FlagUsed != 0 {
			r.state = StateClosedFault
		}
		return ErrorAbort.Error()
	}

	if r.state != StateConnDone {
		return ErrorFail.Error()
	}

	if r.flags.Has(FlagSecure) && r.secureCfg != nil {
		r.flags |= FlagSecureNegoInProgress
		s.mu.Unlock()
		sess, err := secure.InitSession(s.ctx.GetContext(), r.secureCfg, r.tcpConn.Raw())
		s.mu.Lock()
		r.flags &^= FlagSecureNegoInProgress
		if r.state == StateClosedFault {
			return ErrorConnClosedFault.Error()
		}
		if err != nil {
			s.log.Error("tls handshake failed on connect", map[string]interface{}{"sock_id": int(r.id), "error": err.Error()})
			r.state = StateClosedFault
			return ErrorFail.Error()
		}
		r.secureSession = sess
	}

	r.state = StateConn
	s.log.Debug("socket connected", map[string]interface{}{"sock_id": int(r.id)})
	return nil
}

// Listen implements listen: allocates a TCP listener bound to the socket's
// local address and starts an accept loop that feeds the accept queue.
func (s *Stack) Listen(id table.ID, backlog int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(id)
	if err != nil {
		return err
	}
	if r.typ != TypeStream || r.state != StateBound {
		return ErrorInvalidState.Error()
	}

	ln, err := tcp.Listen(addrToTCP(r.local))
	if err != nil {
		return ErrorFail.Error()
	}

	max := r.acceptQSizeMax
	if backlog > 0 && backlog < max {
		max = backlog
	}
	r.acceptQSizeMax = max
	r.tcpListener = ln
	r.state = StateListen

	s.log.Debug("socket listening", map[string]interface{}{"sock_id": int(r.id), "backlog": max})
	go s.acceptLoop(r, ln)
	return nil
}

// acceptLoop performs the wire-level accepts for a listener and appends
// ready accept-queue entries (the signaling sequence collapses into one
// step here since tcp.Listener.Accept only returns after the handshake is
// already complete).
func (s *Stack) acceptLoop(r *record, ln *tcp.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		if r.state != StateListen {
			s.mu.Unlock()
			conn.Close()
			return
		}

		e := s.conns.Alloc()
		e.Family, e.Proto = int(r.family), int(r.proto)
		e.AppID = int(r.id)
		e.TransportID = conn
		e.Remote = config.Addr{Family: int(r.family), IP: []byte(conn.RemoteAddr().IP), Port: uint16(conn.RemoteAddr().Port)}
		e.HasRemote = true
		e.Local = r.local

		r.acceptQ = append(r.acceptQ, acceptEntry{connID: e.ID, isReady: true})
		r.sems.AcceptQ.Signal()
		s.postEvent(r, evRead)
		s.mu.Unlock()
	}
}

// Accept pops a ready entry, materializes a child socket record bound to
// that connection, and runs the optional secure accept handshake.
func (s *Stack) Accept(id table.ID) (table.ID, config.Addr, error) {
	s.mu.Lock()

	r, err := s.get(id)
	if err != nil {
		s.mu.Unlock()
		return 0, config.Addr{}, err
	}
	if r.typ != TypeStream || r.state != StateListen {
		s.mu.Unlock()
		return 0, config.Addr{}, ErrorInvalidState.Error()
	}

	if r.isNonBlocking() && !hasReadyEntry(r) {
		s.mu.Unlock()
		return 0, config.Addr{}, ErrorWouldBlock.Error()
	}

	s.mu.Unlock()
	outcome := r.sems.AcceptQ.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()

	if outcome == waitsem.TimedOut {
		return 0, config.Addr{}, ErrorTimeout.Error()
	}
	if outcome == waitsem.Aborted {
		return 0, config.Addr{}, ErrorAbort.Error()
	}

	idx := -1
	for i, e := range r.acceptQ {
		if e.isReady {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, config.Addr{}, ErrorNotFound.Error()
	}
	entry := r.acceptQ[idx]
	r.acceptQ = append(r.acceptQ[:idx], r.acceptQ[idx+1:]...)

	childID, ok := s.pool.Alloc()
	if !ok {
		return 0, config.Addr{}, ErrorPoolEmpty.Error()
	}
	child := s.records[childID]
	child.reset()
	child.family, child.typ, child.proto = r.family, r.typ, r.proto
	child.flags = r.flags &^ FlagSecureNegoInProgress
	child.state = StateConn
	child.parentID = r.id
	child.hasParent = true
	child.connID = entry.connID
	child.hasConn = true
	child.ifNbr = r.ifNbr
	child.rxQSizeCfgd, child.txQSizeCfgd = r.rxQSizeCfgd, r.txQSizeCfgd
	child.applyTimeouts(s.defaults())

	conn, ok := s.conns.Get(entry.connID)
	if !ok {
		s.pool.Free(childID)
		return 0, config.Addr{}, ErrorInvalidConn.Error()
	}
	conn.AppID = int(childID)
	child.local = conn.Local
	child.remote = conn.Remote
	child.hasRemote = true

	if tc, ok := conn.TransportID.(*tcp.Conn); ok {
		child.tcpConn = tc
	}

	r.childQSizeCur++

	if r.flags.Has(FlagSecure) && r.secureCfg != nil {
		child.secureCfg = r.secureCfg
		s.mu.Unlock()
		sess, err := secure.InitSession(s.ctx.GetContext(), r.secureCfg, child.tcpConn.Raw())
		s.mu.Lock()
		if err != nil {
			s.log.Error("tls handshake failed on accept", map[string]interface{}{"sock_id": int(r.id), "error": err.Error()})
			s.closeFull(child)
			r.childQSizeCur--
			return 0, config.Addr{}, ErrorFail.Error()
		}
		child.secureSession = sess
	}

	s.log.Debug("socket accepted", map[string]interface{}{"sock_id": int(r.id), "child_id": int(childID)})
	return childID, child.remote, nil
}

func hasReadyEntry(r *record) bool {
	for _, e := range r.acceptQ {
		if e.isReady {
			return true
		}
	}
	return false
}

// Close implements close: the full teardown for datagrams, and the
// FIN-then-wait (or fire-and-forget for non-blocking) path for streams.
func (s *Stack) Close(id table.ID) error {
	s.mu.Lock()

	r, err := s.get(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	s.log.Debug("socket closing", map[string]interface{}{"sock_id": int(id), "state": r.state.String()})

	if r.typ == TypeDatagram {
		s.closeFull(r)
		s.mu.Unlock()
		return nil
	}

	switch r.state {
	case StateBound:
		s.closeFull(r)
		s.mu.Unlock()
		return nil

	case StateListen, StateConn, StateConnInProgress, StateConnDone:
		r.state = StateCloseInProgress
		if r.secureSession != nil {
			r.secureSession.CloseNotify()
		}
		if r.tcpListener != nil {
			r.tcpListener.Close()
		}
		if r.tcpConn != nil {
			r.tcpConn.CloseWrite()
		}
		// This adaptation runs no separate async close driver (see
		// DESIGN.md) — the FIN/close_notify just issued is the
		// state-machine point a TCP-engine callback would fire close from,
		// so signal inline rather than leave a blocking close waiting on an
		// event nothing will ever post.
		r.sems.ConnClose.Signal()

		if r.isNonBlocking() {
			s.closeFull(r)
			s.mu.Unlock()
			return nil
		}

		s.mu.Unlock()
		outcome := r.sems.ConnClose.Wait()
		s.mu.Lock()
		defer s.mu.Unlock()

		if outcome == waitsem.TimedOut {
			s.log.Warn("close timed out waiting for peer", map[string]interface{}{"sock_id": int(id)})
			r.state = StateClosedFault
			return nil
		}
		s.closeFull(r)
		return nil

	case StateCloseInProgress, StateClosingDataAvail:
		defer s.mu.Unlock()
		return ErrorOpInProgress.Error()

	case StateClosedFault:
		s.closeFull(r)
		s.mu.Unlock()
		return nil

	default:
		s.closeFull(r)
		s.mu.Unlock()
		return nil
	}
}

// closeFull runs the resource-teardown policy: abort+clear every wait
// object, release the connection-table entry and transport handles, detach
// from any parent listener, and return the record to the free stack. Caller
// holds Stack.mu.
func (s *Stack) closeFull(r *record) {
	if r.tcpConn != nil {
		r.tcpConn.Close()
	}
	if r.tcpListener != nil {
		r.tcpListener.Close()
	}
	if r.udpConn != nil {
		r.udpConn.Close()
	}
	if r.secureSession != nil {
		r.secureSession.CloseNotify()
	}

	for _, e := range r.acceptQ {
		if entry, ok := s.conns.Get(e.connID); ok {
			if tc, ok := entry.TransportID.(*tcp.Conn); ok {
				tc.Close()
			}
		}
		s.conns.Free(e.connID)
	}

	if r.hasConn {
		s.conns.Free(r.connID)
	}

	if r.hasParent {
		if parent := s.records[r.parentID]; parent.flags&FlagUsed != 0 {
			if parent.childQSizeCur > 0 {
				parent.childQSizeCur--
			}
		}
	}

	r.sems.AbortAll()
	r.sems.ClearAll()
	id := r.id
	r.reset()
	r.id = id
	s.pool.Free(id)
}

// bindLocked is Bind's body without the lock, for callers already holding
// Stack.mu (Connect's datagram auto-bind).
func (s *Stack) bindLocked(r *record, addr config.Addr, randomPort bool) error {
	if addr.Family == 0 {
		addr.Family = int(r.family)
	}

	if randomPort {
		port, ok := s.conns.NextEphemeralPort(int(r.proto))
		if !ok {
			return ErrorPoolEmpty.Error()
		}
		addr.Port = port
	}

	if addr.IsWildcard() {
		if host, ifIdx, ok := s.ifaces.SourceFor(wildcardHint(r.family), r.ifNbr); ok {
			addr.IP = host
			addr.IfIndex = ifIdx
		}
	}

	if !r.hasConn {
		e := s.conns.Alloc()
		e.Family, e.Proto = int(r.family), int(r.proto)
		e.AppID = int(r.id)
		r.connID = e.ID
		r.hasConn = true
	}
	entry, ok := s.conns.Get(r.connID)
	if !ok {
		return ErrorInvalidConn.Error()
	}
	entry.Local = addr
	r.local = addr
	r.ifNbr = addr.IfIndex

	if r.typ == TypeDatagram {
		if err := s.ensureUDPConn(r); err != nil {
			return err
		}
	}

	r.state = StateBound
	return nil
}

