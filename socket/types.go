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

// Package socket implements a BSD-style socket layer in front of Go's
// standard TCP/UDP/IP stack: a fixed-size socket table, per-socket wait
// primitives, connection-table backed binding, stream/datagram data
// transfer and a select-style readiness multiplexer, all serialized through
// a single network lock the way a cooperative-multithreaded embedded stack
// would serialize them.
package socket

// Family is the protocol family of a socket.
type Family uint8

const (
	FamilyV4 Family = iota
	FamilyV6
)

func (f Family) String() string {
	if f == FamilyV6 {
		return "ipv6"
	}
	return "ipv4"
}

// Type is the BSD socket type.
type Type uint8

const (
	TypeDatagram Type = iota
	TypeStream
)

func (t Type) String() string {
	if t == TypeStream {
		return "stream"
	}
	return "datagram"
}

// Proto is the transport protocol bound to a socket.
type Proto uint8

const (
	// ProtoDefault lets open() infer UDP for Datagram and TCP for Stream.
	ProtoDefault Proto = iota
	ProtoUDP
	ProtoTCP
)

// State is the socket's position in the lifecycle state machine.
type State uint8

const (
	StateFree State = iota
	StateClosed
	StateBound
	StateListen
	StateConnInProgress
	StateConnDone
	StateConn
	StateCloseInProgress
	StateClosingDataAvail
	StateClosedFault
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "FREE"
	case StateClosed:
		return "CLOSED"
	case StateBound:
		return "BOUND"
	case StateListen:
		return "LISTEN"
	case StateConnInProgress:
		return "CONN_IN_PROGRESS"
	case StateConnDone:
		return "CONN_DONE"
	case StateConn:
		return "CONN"
	case StateCloseInProgress:
		return "CLOSE_IN_PROGRESS"
	case StateClosingDataAvail:
		return "CLOSING_DATA_AVAIL"
	case StateClosedFault:
		return "CLOSED_FAULT"
	default:
		return "UNKNOWN"
	}
}

// Flags is a bitset of per-socket behavior toggles.
type Flags uint16

const (
	FlagUsed Flags = 1 << iota
	FlagNoBlock
	FlagSecure
	FlagSecureNegoInProgress
)

func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// RxFlags are per-call flags on a receive.
type RxFlags uint8

const (
	RxNone RxFlags = 1 << iota
	RxPeek
	RxNoBlock
)

func (f RxFlags) Has(flag RxFlags) bool { return f&flag != 0 }

// TxFlags are per-call flags on a send.
type TxFlags uint8

const (
	TxNone TxFlags = 1 << iota
	TxNoBlock
)

func (f TxFlags) Has(flag TxFlags) bool { return f&flag != 0 }

// BlockMode is the argument to CfgBlock.
type BlockMode uint8

const (
	BlockDefault BlockMode = iota
	Block
	NoBlock
)

// noPort / invalid sentinel values shared across the package.
const (
	NoConnID = 0
	NoIfNbr  = -1
)
