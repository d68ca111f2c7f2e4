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

// Package iface is the IP-layer collaborator the socket engine uses for
// host address enumeration, per-destination source address selection,
// wildcard detection and the multicast predicate. It walks Go's own
// net.Interfaces() rather than a simulated routing table, delegating actual
// routing to the host network stack.
package iface

import (
	"net"
)

// Host is one address hosted on one local interface.
type Host struct {
	IfIndex int
	IP      net.IP
	IsV6    bool
}

// Provider enumerates host addresses and selects source addresses for a
// destination. The production implementation wraps net.Interfaces(); tests
// substitute a fixed table.
type Provider interface {
	// HostAddresses returns every unicast address hosted locally, across
	// every interface that is up.
	HostAddresses() ([]Host, error)
	// IsLocal reports whether ip is hosted on some local interface, and if
	// so, which one.
	IsLocal(ip net.IP) (ifIndex int, ok bool)
	// SourceFor picks a source address for a packet destined to dst,
	// preferring an address on the given interface hint if set (ifHint<0
	// means no preference). ok is false if no route exists.
	SourceFor(dst net.IP, ifHint int) (src net.IP, ifIndex int, ok bool)
}

// IsMulticast reports whether ip is a multicast address, in either family.
func IsMulticast(ip net.IP) bool {
	return ip != nil && ip.IsMulticast()
}

// IsWildcard reports whether ip is the unspecified/any address.
func IsWildcard(ip net.IP) bool {
	return len(ip) == 0 || ip.IsUnspecified()
}

type netProvider struct{}

// NewOS returns a Provider backed by the host's real network interfaces.
func NewOS() Provider {
	return netProvider{}
}

func (netProvider) HostAddresses() ([]Host, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var hosts []Host
	for _, i := range ifs {
		if i.Flags&net.FlagUp == 0 {
			continue
		}

		addrs, err := i.Addrs()
		if err != nil {
			continue
		}

		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			hosts = append(hosts, Host{
				IfIndex: i.Index,
				IP:      ipNet.IP,
				IsV6:    ipNet.IP.To4() == nil,
			})
		}
	}

	return hosts, nil
}

func (p netProvider) IsLocal(ip net.IP) (int, bool) {
	hosts, err := p.HostAddresses()
	if err != nil {
		return 0, false
	}
	for _, h := range hosts {
		if h.IP.Equal(ip) {
			return h.IfIndex, true
		}
	}
	return 0, false
}

func (p netProvider) SourceFor(dst net.IP, ifHint int) (net.IP, int, bool) {
	hosts, err := p.HostAddresses()
	if err != nil || len(hosts) == 0 {
		return nil, 0, false
	}

	wantV6 := dst.To4() == nil

	var fallback *Host
	for i := range hosts {
		h := &hosts[i]
		if h.IsV6 != wantV6 {
			continue
		}
		if ifHint >= 0 && h.IfIndex == ifHint {
			return h.IP, h.IfIndex, true
		}
		if fallback == nil {
			fallback = h
		}
	}

	if fallback != nil {
		return fallback.IP, fallback.IfIndex, true
	}
	return nil, 0, false
}
