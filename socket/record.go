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
	"github.com/sabouaram/netsock/socket/config"
	"github.com/sabouaram/netsock/socket/conntrack"
	"github.com/sabouaram/netsock/socket/secure"
	"github.com/sabouaram/netsock/socket/table"
	"github.com/sabouaram/netsock/socket/transport/tcp"
	"github.com/sabouaram/netsock/socket/transport/udp"
	"github.com/sabouaram/netsock/socket/waitsem"
)

// rxPacket is one entry of a socket's receive queue. For a datagram socket
// it is exactly one packet; for a stream socket the queue is never
// populated — stream rx is delegated straight to the tcp.Conn's own
// buffering (see data.go), so size/ordering invariants over rx_q only
// apply to datagram sockets here.
type rxPacket struct {
	data []byte
	from config.Addr
}

// acceptEntry is one pending child of a listener.
type acceptEntry struct {
	connID  conntrack.ID
	isReady bool
}

// selObj is one select() registration chained onto a watched socket.
type selObj struct {
	mask events
	wake *waitsem.Sem
}

// record is a single socket-table entry. Every exported Stack method that
// touches a record does so with Stack.mu held.
type record struct {
	id table.ID

	family Family
	typ    Type
	proto  Proto
	state  State
	flags  Flags
	ifNbr  int

	connID    conntrack.ID
	hasConn   bool
	parentID  table.ID
	hasParent bool

	local     config.Addr
	remote    config.Addr
	hasRemote bool

	rxQ         []rxPacket
	rxQSizeCur  uint32
	rxQSizeCfgd uint32
	txQSizeCfgd uint32

	acceptQ        []acceptEntry
	acceptQSizeMax int
	childQSizeCur  int
	childQSizeMax  int

	sems  *waitsem.Set
	block BlockMode

	noDelay      bool
	keepAlive    bool
	keepAliveDur int64 // seconds

	secureCfg     *secure.Config
	secureSession *secure.Session

	tcpConn     *tcp.Conn
	tcpListener *tcp.Listener
	udpConn     *udp.Conn

	ip conntrack.IPParams

	selList []*selObj
}

func newRecord(id table.ID) *record {
	return &record{
		id:    id,
		state: StateFree,
		sems:  waitsem.NewSet(),
	}
}

// reset clears a record back to its just-allocated shape before it returns
// to the free stack.
func (r *record) reset() {
	id, sems := r.id, r.sems
	*r = record{id: id, state: StateFree, sems: sems}
}
