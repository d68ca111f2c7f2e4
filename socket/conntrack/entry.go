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

// Package conntrack is the connection-table collaborator the socket engine
// is built on: it maps (family, proto, local, remote) tuples to connection
// records, links each record back to the owning socket via an app_id, and
// hands out ephemeral source ports.
package conntrack

import (
	"github.com/google/uuid"

	"github.com/sabouaram/netsock/socket/config"
)

// ID is the opaque connection-table handle a socket record stores as
// conn_id. The zero value means "no connection".
type ID uuid.UUID

// IsZero reports whether id is the NONE sentinel.
func (id ID) IsZero() bool {
	return id == ID(uuid.Nil)
}

// IPParams carries the IP-layer knobs the connection record owns on behalf
// of the socket layer: ToS/TTL for v4, traffic class/hop-limit for v6, and
// the multicast-specific TTL/hop-limit.
type IPParams struct {
	TOS           byte
	TTL           byte
	MulticastTTL  byte
	TrafficClass  byte
	HopLimit      byte
	McastHopLimit byte
}

// Entry is a single connection-table record.
type Entry struct {
	ID     ID
	Family int // mirrors socket.Family, kept untyped here to avoid an import cycle
	Proto  int // mirrors socket.Proto

	Local  config.Addr
	Remote config.Addr
	HasRemote bool

	// AppID links this connection back to its owning socket. The socket
	// layer is the only writer; conntrack never dereferences it.
	AppID int

	// TransportID is the opaque handle into the TCP or UDP engine that
	// owns the wire-level connection (a net.Conn pointer identity in this
	// implementation, boxed as interface{} so conntrack stays transport
	// agnostic).
	TransportID interface{}

	IP IPParams
}
