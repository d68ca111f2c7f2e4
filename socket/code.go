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

import "github.com/sabouaram/netsock/errors"

// Error kinds returned by the socket engine. Every public entry point returns
// an errors.Error carrying one of these codes (or errors.UnknownError for
// conditions this package never raises itself).
const (
	ErrorInvalidHandle errors.CodeError = iota + errors.MinPkgSocket
	ErrorInvalidState
	ErrorInvalidType
	ErrorInvalidArg
	ErrorNotAvail
	ErrorNotFound
	ErrorAlreadyExists
	ErrorPoolEmpty
	ErrorWouldBlock
	ErrorWouldOverflow
	ErrorTimeout
	ErrorAbort
	ErrorObjDeleted
	ErrorInvalidConn
	ErrorInvalidAddrSrc
	ErrorConnClosedFault
	ErrorConnCloseRx
	ErrorOpInProgress
	ErrorRetryMax
	ErrorIfLinkDown
	ErrorNextHop
	ErrorRx
	ErrorTx
	ErrorFail
)

var isCodeError = false

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = errors.ExistInMapMessage(ErrorInvalidHandle)
	errors.RegisterIdFctMessage(ErrorInvalidHandle, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UnknownError:
		return ""
	case ErrorInvalidHandle:
		return "socket handle is not allocated"
	case ErrorInvalidState:
		return "operation not valid in the socket's current state"
	case ErrorInvalidType:
		return "operation not valid for this socket type"
	case ErrorInvalidArg:
		return "invalid argument"
	case ErrorNotAvail:
		return "resource not available"
	case ErrorNotFound:
		return "not found"
	case ErrorAlreadyExists:
		return "address already in use"
	case ErrorPoolEmpty:
		return "pool exhausted"
	case ErrorWouldBlock:
		return "operation would block"
	case ErrorWouldOverflow:
		return "buffer too small, data truncated"
	case ErrorTimeout:
		return "operation timed out"
	case ErrorAbort:
		return "operation aborted"
	case ErrorObjDeleted:
		return "wait object deleted while waiting"
	case ErrorInvalidConn:
		return "connection handle is not valid"
	case ErrorInvalidAddrSrc:
		return "no source address available for destination"
	case ErrorConnClosedFault:
		return "connection closed on fault"
	case ErrorConnCloseRx:
		return "connection closed by peer"
	case ErrorOpInProgress:
		return "operation in progress"
	case ErrorRetryMax:
		return "maximum retry count reached"
	case ErrorIfLinkDown:
		return "interface link is down"
	case ErrorNextHop:
		return "no route to destination"
	case ErrorRx:
		return "receive error"
	case ErrorTx:
		return "transmit error"
	case ErrorFail:
		return "operation failed"
	}

	return ""
}
