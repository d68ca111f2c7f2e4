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
)

// wildcardHint gives the IP-layer collaborator's SourceFor a family-typed
// destination to resolve a default host address against, instead of a bare
// nil (whose To4() is indistinguishable from an IPv6 destination's) so a v4
// wildcard bind doesn't silently get handed back a v6 host address.
func wildcardHint(f Family) net.IP {
	if f == FamilyV6 {
		return net.IPv6unspecified
	}
	return net.IPv4zero
}

// Bind validates addr, resolves a random ephemeral port or a wildcard host
// address, checks for tuple collisions in the connection table, and
// transitions the socket's state accordingly.
func (s *Stack) Bind(id table.ID, addr config.Addr, randomPort bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(id)
	if err != nil {
		return err
	}

	switch r.state {
	case StateClosed:
	case StateBound, StateConn:
		if r.typ != TypeDatagram {
			return ErrorInvalidState.Error()
		}
	default:
		return ErrorInvalidState.Error()
	}

	if addr.Family != 0 && addr.Family != int(r.family) {
		return ErrorInvalidArg.Error()
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
	} else if ifIdx, ok := s.ifaces.IsLocal(addr.IP); ok {
		addr.IfIndex = ifIdx
	} else {
		return ErrorInvalidAddrSrc.Error()
	}

	exclude := conntrack.ID{}
	if r.hasConn {
		exclude = r.connID
	}

	existing, kind := s.conns.Search(int(r.family), int(r.proto), addr, r.remote, r.hasRemote, exclude)
	switch kind {
	case conntrack.FullMatch:
		return ErrorAlreadyExists.Error()
	case conntrack.HalfMatch:
		if !r.hasRemote && existing != nil && existing.AppID != int(r.id) {
			return ErrorAlreadyExists.Error()
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

	if r.state == StateClosed {
		r.state = StateBound
	}

	return nil
}
