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
	"time"

	"github.com/sabouaram/netsock/socket/config"
	"github.com/sabouaram/netsock/socket/secure"
	"github.com/sabouaram/netsock/socket/table"
)

// OptLevel is the tagged "level" half of the level×name option dispatch.
type OptLevel uint8

const (
	LevelSock OptLevel = iota
	LevelIP
	LevelTCP
)

// OptName is the tagged "name" half. Values are only meaningful paired with
// a level; the zero value is never a valid option.
type OptName uint8

const (
	OptNone OptName = iota

	// LevelSock
	OptSockRxBufSize
	OptSockTxBufSize
	OptSockKeepAlive
	OptSockAcceptConn
	OptSockType

	// LevelIP
	OptIPTOS
	OptIPTTL
	OptIPMulticastTTL

	// LevelTCP
	OptTCPNoDelay
	OptTCPKeepAliveIdle
)

// CfgBlock implements cfg_block: sets the socket's blocking-mode override.
func (s *Stack) CfgBlock(id table.ID, mode BlockMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(id)
	if err != nil {
		return err
	}
	r.block = mode
	return nil
}

// BlockGet implements block_get.
func (s *Stack) BlockGet(id table.ID) (BlockMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(id)
	if err != nil {
		return BlockDefault, err
	}
	return r.block, nil
}

// CfgSecure implements cfg_secure: stream-only, and only while the socket
// has not yet started connecting.
func (s *Stack) CfgSecure(id table.ID, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(id)
	if err != nil {
		return err
	}
	if r.typ != TypeStream {
		return ErrorInvalidType.Error()
	}
	if r.state != StateClosed && r.state != StateBound {
		return ErrorInvalidState.Error()
	}

	if on {
		r.flags |= FlagSecure
		if r.secureCfg == nil {
			r.secureCfg = secure.NewConfig()
		}
	} else {
		r.flags &^= FlagSecure
		r.secureCfg = nil
	}
	return nil
}

// CfgSecureIsServer sets which handshake side CfgSecure's TLS session runs.
func (s *Stack) CfgSecureIsServer(id table.ID, isServer bool) error {
	cfg, err := s.secureCfgFor(id)
	if err != nil {
		return err
	}
	cfg.SetIsServer(isServer)
	return nil
}

// CfgSecureCertKeyInstall installs the PEM certificate/key pair presented
// during this socket's TLS handshake.
func (s *Stack) CfgSecureCertKeyInstall(id table.ID, certPEM, keyPEM string) error {
	cfg, err := s.secureCfgFor(id)
	if err != nil {
		return err
	}
	if err := cfg.SetCertificatePair(certPEM, keyPEM); err != nil {
		return ErrorInvalidArg.Error()
	}
	return nil
}

// CfgSecureRootCAInstall registers a trusted root CA PEM for peer verification.
func (s *Stack) CfgSecureRootCAInstall(id table.ID, rootPEM string) error {
	cfg, err := s.secureCfgFor(id)
	if err != nil {
		return err
	}
	if !cfg.SetRootCA(rootPEM) {
		return ErrorInvalidArg.Error()
	}
	return nil
}

// CfgSecureCommonName sets the server name used for SNI and verification.
func (s *Stack) CfgSecureCommonName(id table.ID, name string) error {
	cfg, err := s.secureCfgFor(id)
	if err != nil {
		return err
	}
	cfg.SetServerName(name)
	return nil
}

// CfgSecureTrustCallback installs a post-handshake verification hook.
func (s *Stack) CfgSecureTrustCallback(id table.ID, cb secure.TrustCallback) error {
	cfg, err := s.secureCfgFor(id)
	if err != nil {
		return err
	}
	cfg.SetTrustCallback(cb)
	return nil
}

func (s *Stack) secureCfgFor(id table.ID) (*secure.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if r.secureCfg == nil {
		return nil, ErrorInvalidState.Error()
	}
	return r.secureCfg, nil
}

// CfgIf implements cfg_if: pins the socket to a specific interface (or
// NoIfNbr to release the pin back to wildcard selection).
func (s *Stack) CfgIf(id table.ID, ifNbr int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(id)
	if err != nil {
		return err
	}
	r.ifNbr = ifNbr
	return nil
}

// CfgRxQSize implements cfg_rx_q_size.
func (s *Stack) CfgRxQSize(id table.ID, size uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(id)
	if err != nil {
		return err
	}
	r.rxQSizeCfgd = size
	return nil
}

// CfgTxQSize implements cfg_tx_q_size.
func (s *Stack) CfgTxQSize(id table.ID, size uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(id)
	if err != nil {
		return err
	}
	r.txQSizeCfgd = size
	if r.udpConn != nil {
		_ = r.udpConn.SetWriteBuffer(int(size))
	}
	return nil
}

// CfgConnChildQSizeSet implements cfg_conn_child_q_size_set, storing the
// value and returning success on success.
func (s *Stack) CfgConnChildQSizeSet(id table.ID, max int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(id)
	if err != nil {
		return err
	}
	r.childQSizeMax = max
	return nil
}

// CfgConnChildQSizeGet implements cfg_conn_child_q_size_get.
func (s *Stack) CfgConnChildQSizeGet(id table.ID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(id)
	if err != nil {
		return 0, err
	}
	return r.childQSizeMax, nil
}

// CfgTxIPTos implements cfg_tx_ip_tos (v4-only, delegated to the connection
// record).
func (s *Stack) CfgTxIPTos(id table.ID, tos byte) error {
	return s.withConnEntry(id, func(r *record) {
		r.ip.TOS = tos
	})
}

// CfgTxIPTTL implements cfg_tx_ip_ttl.
func (s *Stack) CfgTxIPTTL(id table.ID, ttl byte) error {
	return s.withConnEntry(id, func(r *record) {
		r.ip.TTL = ttl
	})
}

// CfgTxIPTTLMulticast implements cfg_tx_ip_ttl_multicast.
func (s *Stack) CfgTxIPTTLMulticast(id table.ID, ttl byte) error {
	return s.withConnEntry(id, func(r *record) {
		r.ip.MulticastTTL = ttl
	})
}

func (s *Stack) withConnEntry(id table.ID, mutate func(r *record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(id)
	if err != nil {
		return err
	}
	mutate(r)
	if entry, ok := s.conns.Get(r.connID); ok {
		entry.IP = r.ip
	}
	return nil
}

// timeoutPrimitive is the timeout surface of a *waitsem.Sem; timeoutSem
// resolves which one a per-event timeout call targets.
type timeoutPrimitive interface {
	SetTimeout(time.Duration, bool)
	Timeout() (time.Duration, bool)
}

func (s *Stack) timeoutSem(r *record, name string) timeoutPrimitive {
	switch name {
	case "rxq":
		return r.sems.RxQ
	case "connreq":
		return r.sems.ConnReq
	case "connaccept":
		return r.sems.AcceptQ
	case "connclose":
		return r.sems.ConnClose
	}
	return nil
}

// CfgTimeoutSetMS implements the cfg_timeout_{event}_set family: name is one
// of "rxq", "txq", "connreq", "connaccept", "connclose". "txq" has no
// matching wait primitive in this model (sends never block on a semaphore
// here — see DESIGN.md) and is accepted as a no-op for interface symmetry.
func (s *Stack) CfgTimeoutSetMS(id table.ID, name string, ms int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(id)
	if err != nil {
		return err
	}
	if name == "txq" {
		return nil
	}
	sem := s.timeoutSem(r, name)
	if sem == nil {
		return ErrorInvalidArg.Error()
	}
	to := config.TimeoutMS(ms)
	sem.SetTimeout(to.Duration, to.Infinite)
	return nil
}

// CfgTimeoutDflt resets name back to the process-wide default.
func (s *Stack) CfgTimeoutDflt(id table.ID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(id)
	if err != nil {
		return err
	}
	if name == "txq" {
		return nil
	}
	sem := s.timeoutSem(r, name)
	if sem == nil {
		return ErrorInvalidArg.Error()
	}

	d := s.defaults()
	switch name {
	case "rxq":
		sem.SetTimeout(d.TimeoutRxQ.Duration, d.TimeoutRxQ.Infinite)
	case "connreq":
		sem.SetTimeout(d.TimeoutConnReq.Duration, d.TimeoutConnReq.Infinite)
	case "connaccept":
		sem.SetTimeout(d.TimeoutConnAccept.Duration, d.TimeoutConnAccept.Infinite)
	case "connclose":
		sem.SetTimeout(d.TimeoutConnClose.Duration, d.TimeoutConnClose.Infinite)
	}
	return nil
}

// CfgTimeoutGetMS implements the cfg_timeout_{event}_get_ms family. A -1
// result means the timeout is currently infinite.
func (s *Stack) CfgTimeoutGetMS(id table.ID, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(id)
	if err != nil {
		return 0, err
	}
	if name == "txq" {
		return -1, nil
	}
	sem := s.timeoutSem(r, name)
	if sem == nil {
		return 0, ErrorInvalidArg.Error()
	}
	d, infinite := sem.Timeout()
	if infinite {
		return -1, nil
	}
	return d.Milliseconds(), nil
}

// OptGet implements opt_get: reads one tagged option into val, returning
// the number of bytes actually written.
func (s *Stack) OptGet(id table.ID, level OptLevel, name OptName, val []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(id)
	if err != nil {
		return 0, err
	}

	switch {
	case level == LevelSock && name == OptSockRxBufSize:
		return putU32(val, r.rxQSizeCfgd)
	case level == LevelSock && name == OptSockTxBufSize:
		return putU32(val, r.txQSizeCfgd)
	case level == LevelSock && name == OptSockKeepAlive:
		return putBool(val, r.keepAlive)
	case level == LevelSock && name == OptSockAcceptConn:
		return putBool(val, r.state == StateListen)
	case level == LevelSock && name == OptSockType:
		return putBool(val, r.typ == TypeStream)
	case level == LevelIP && name == OptIPTOS:
		return putByte(val, r.ip.TOS)
	case level == LevelIP && name == OptIPTTL:
		return putByte(val, r.ip.TTL)
	case level == LevelIP && name == OptIPMulticastTTL:
		return putByte(val, r.ip.MulticastTTL)
	case level == LevelTCP && name == OptTCPNoDelay:
		return putBool(val, r.noDelay)
	case level == LevelTCP && name == OptTCPKeepAliveIdle:
		return putU32(val, uint32(r.keepAliveDur))
	}
	return 0, ErrorInvalidArg.Error()
}

// OptSet implements opt_set: validates val's length against the option's
// native type and applies it.
func (s *Stack) OptSet(id table.ID, level OptLevel, name OptName, val []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(id)
	if err != nil {
		return err
	}

	switch {
	case level == LevelSock && name == OptSockRxBufSize:
		v, ok := getU32(val)
		if !ok {
			return ErrorInvalidArg.Error()
		}
		r.rxQSizeCfgd = v
		return nil
	case level == LevelSock && name == OptSockTxBufSize:
		v, ok := getU32(val)
		if !ok {
			return ErrorInvalidArg.Error()
		}
		r.txQSizeCfgd = v
		return nil
	case level == LevelSock && name == OptSockKeepAlive:
		v, ok := getBool(val)
		if !ok {
			return ErrorInvalidArg.Error()
		}
		r.keepAlive = v
		if r.tcpConn != nil {
			_ = r.tcpConn.SetKeepAlive(v)
		}
		return nil
	case level == LevelIP && name == OptIPTOS:
		v, ok := getByte(val)
		if !ok {
			return ErrorInvalidArg.Error()
		}
		r.ip.TOS = v
		return nil
	case level == LevelIP && name == OptIPTTL:
		v, ok := getByte(val)
		if !ok {
			return ErrorInvalidArg.Error()
		}
		r.ip.TTL = v
		return nil
	case level == LevelIP && name == OptIPMulticastTTL:
		v, ok := getByte(val)
		if !ok {
			return ErrorInvalidArg.Error()
		}
		r.ip.MulticastTTL = v
		return nil
	case level == LevelTCP && name == OptTCPNoDelay:
		v, ok := getBool(val)
		if !ok {
			return ErrorInvalidArg.Error()
		}
		r.noDelay = v
		if r.tcpConn != nil {
			_ = r.tcpConn.SetNoDelay(v)
		}
		return nil
	case level == LevelTCP && name == OptTCPKeepAliveIdle:
		v, ok := getU32(val)
		if !ok {
			return ErrorInvalidArg.Error()
		}
		r.keepAliveDur = int64(v)
		if r.tcpConn != nil {
			_ = r.tcpConn.SetKeepAlivePeriod(time.Duration(v) * time.Second)
		}
		return nil
	}
	return ErrorInvalidArg.Error()
}

func putU32(val []byte, v uint32) (int, error) {
	if len(val) < 4 {
		return 0, ErrorInvalidArg.Error()
	}
	val[0], val[1], val[2], val[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	return 4, nil
}

func getU32(val []byte) (uint32, bool) {
	if len(val) != 4 {
		return 0, false
	}
	return uint32(val[0]) | uint32(val[1])<<8 | uint32(val[2])<<16 | uint32(val[3])<<24, true
}

func putByte(val []byte, v byte) (int, error) {
	if len(val) < 1 {
		return 0, ErrorInvalidArg.Error()
	}
	val[0] = v
	return 1, nil
}

func getByte(val []byte) (byte, bool) {
	if len(val) != 1 {
		return 0, false
	}
	return val[0], true
}

func putBool(val []byte, v bool) (int, error) {
	if len(val) < 1 {
		return 0, ErrorInvalidArg.Error()
	}
	if v {
		val[0] = 1
	} else {
		val[0] = 0
	}
	return 1, nil
}

func getBool(val []byte) (bool, bool) {
	if len(val) != 1 {
		return false, false
	}
	return val[0] != 0, true
}
