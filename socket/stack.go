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

// Package socket is the embedded socket layer: a fixed-size socket table and
// the handlers that mediate between a BSD-style application API and the
// transport/connection-table collaborators in its sibling packages. A single
// Stack value owns one socket table and its global network lock;
// applications normally construct exactly one.
package socket

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	libctx "github.com/sabouaram/netsock/context"
	"github.com/sabouaram/netsock/logger"
	"github.com/sabouaram/netsock/socket/config"
	"github.com/sabouaram/netsock/socket/conntrack"
	"github.com/sabouaram/netsock/socket/iface"
	"github.com/sabouaram/netsock/socket/table"
)

// ctxKeyDefaults indexes the live per-socket option defaults inside the
// stack's typed context map; SetDefaults swaps the value on config
// hot-reload, and only sockets opened afterwards observe it.
const ctxKeyDefaults = "options/default"

// Stack is one instance of the socket engine: the fixed socket pool, the
// connection table, the IP-layer collaborator and the single global
// network lock (NET_LOCK) serializing every handler. Its cancellable
// context parents every blocking collaborator call (the TLS handshakes)
// and carries the stack-scoped runtime values; Shutdown cancels it.
type Stack struct {
	mu sync.Mutex // NET_LOCK

	ctx    libctx.Config[string]
	cancel context.CancelFunc

	cfg     config.Config
	pool    *table.Pool
	records []*record
	conns   *conntrack.Table
	ifaces  iface.Provider
	metrics *table.Metrics
	log     logger.Logger
}

// New builds a Stack from cfg, allocating its fixed socket table and
// ephemeral-port cursor.
func New(cfg config.Config, ifaces iface.Provider, log logger.Logger) *Stack {
	if ifaces == nil {
		ifaces = iface.NewOS()
	}
	if log == nil {
		log = logger.New(nil)
	}

	x, cancel := context.WithCancel(context.Background())

	pool := table.New(cfg.Pool.MaxSockets)
	s := &Stack{
		ctx:     libctx.New[string](x),
		cancel:  cancel,
		cfg:     cfg,
		pool:    pool,
		records: make([]*record, cfg.Pool.MaxSockets),
		conns:   conntrack.New(cfg.Pool.EphemeralPortLo, cfg.Pool.EphemeralPortHi),
		ifaces:  ifaces,
		log:     log,
	}
	s.metrics = table.NewMetrics("stack", pool)
	s.ctx.Store(ctxKeyDefaults, cfg.Default)

	for i := 0; i < cfg.Pool.MaxSockets; i++ {
		s.records[i] = newRecord(table.ID(i))
	}

	return s
}

// defaults returns the option set applied to newly opened sockets, read
// from the stack context so a hot-reload takes effect without a lock
// ordering dance against NET_LOCK.
func (s *Stack) defaults() config.Options {
	if v, ok := s.ctx.Load(ctxKeyDefaults); ok {
		if o, ok := v.(config.Options); ok {
			return o
		}
	}
	return s.cfg.Default
}

// SetDefaults replaces the option defaults applied to sockets opened from
// now on; a config.Loader.Watch callback pushes hot-reloaded options
// through here. Sockets already open keep their current configuration —
// a new value only ever applies to the next open or wait, never one in
// flight.
func (s *Stack) SetDefaults(o config.Options) {
	s.ctx.Store(ctxKeyDefaults, o)
}

// Shutdown closes every in-use socket, cancels the stack context (which
// aborts any in-flight TLS handshake parented on it) and clears the
// stack-scoped value map. The explicit module-struct teardown for hosted
// environments; the Stack must not be used afterwards.
func (s *Stack) Shutdown() {
	s.mu.Lock()
	for _, r := range s.records {
		if r.flags&FlagUsed != 0 {
			s.closeFull(r)
		}
	}
	s.mu.Unlock()

	s.cancel()
	s.ctx.Clean()
}

// MetricsCollectors returns the prometheus.Collector set backing this
// Stack's pool statistics, for callers that want to register it with their
// own registry.
func (s *Stack) MetricsCollectors() []prometheus.Collector {
	return s.metrics.Collectors()
}

// Open allocates a socket record and initializes it per family/type/proto,
// defaulting proto when unset.
func (s *Stack) Open(family Family, typ Type, proto Proto) (table.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if proto == ProtoDefault {
		if typ == TypeStream {
			proto = ProtoTCP
		} else {
			proto = ProtoUDP
		}
	}
	if (typ == TypeStream) != (proto == ProtoTCP) {
		return 0, ErrorInvalidType.Error()
	}

	id, ok := s.pool.Alloc()
	if !ok {
		return 0, ErrorPoolEmpty.Error()
	}

	r := s.records[id]
	r.reset()
	r.family = family
	r.typ = typ
	r.proto = proto
	r.state = StateClosed
	r.flags = FlagUsed
	r.ifNbr = NoIfNbr
	opts := s.defaults()
	r.rxQSizeCfgd = opts.RxQSize
	r.txQSizeCfgd = opts.TxQSize
	r.acceptQSizeMax = int(opts.AcceptQSizeMax)
	r.childQSizeMax = int(opts.ChildQSizeMax)
	r.applyTimeouts(opts)

	s.log.Debug("socket opened", map[string]interface{}{"sock_id": int(id), "family": family.String(), "type": typ.String()})
	return id, nil
}

func (r *record) applyTimeouts(o config.Options) {
	r.sems.RxQ.SetTimeout(o.TimeoutRxQ.Duration, o.TimeoutRxQ.Infinite)
	r.sems.ConnReq.SetTimeout(o.TimeoutConnReq.Duration, o.TimeoutConnReq.Infinite)
	r.sems.AcceptQ.SetTimeout(o.TimeoutConnAccept.Duration, o.TimeoutConnAccept.Infinite)
	r.sems.ConnClose.SetTimeout(o.TimeoutConnClose.Duration, o.TimeoutConnClose.Infinite)
}

// get returns the record for id, validating it is currently in use.
func (s *Stack) get(id table.ID) (*record, error) {
	if id < 0 || int(id) >= len(s.records) {
		return nil, ErrorInvalidHandle.Error()
	}
	r := s.records[id]
	if r.flags&FlagUsed == 0 || r.state == StateFree {
		return nil, ErrorInvalidHandle.Error()
	}
	return r, nil
}

// IsConn reports whether sock is in a connected stream/datagram state.
func (s *Stack) IsConn(id table.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(id)
	if err != nil {
		return false
	}
	return r.state == StateConn || r.state == StateConnDone
}

// GetConnTransportID returns the connection-table handle backing sock, for
// introspection/debugging.
func (s *Stack) GetConnTransportID(id table.ID) (conntrack.ID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(id)
	if err != nil || !r.hasConn {
		return conntrack.ID{}, false
	}
	return r.connID, true
}

// GetLocalIPAddr returns sock's bound local address.
func (s *Stack) GetLocalIPAddr(id table.ID) (config.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(id)
	if err != nil {
		return config.Addr{}, err
	}
	return r.local, nil
}

// PoolStatGet returns the socket pool's usage statistics.
func (s *Stack) PoolStatGet() table.Stat {
	return s.pool.Stats()
}

// PoolStatResetMaxUsed clears the pool's high-water mark.
func (s *Stack) PoolStatResetMaxUsed() {
	s.pool.ResetMaxUsed()
}
