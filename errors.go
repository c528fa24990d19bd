/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
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

package conmgr

import (
	"fmt"

	liberr "github.com/nabbar/golib/errors"
)

const (
	// ErrorParamEmpty indicates that required parameters were not provided.
	ErrorParamEmpty liberr.CodeError = iota + liberr.MinAvailable

	// ErrorManagerClosed indicates a call on a finalized manager.
	ErrorManagerClosed

	// ErrorManagerShutdown indicates a call refused because shutdown was
	// requested.
	ErrorManagerShutdown

	// ErrorConTypeInvalid indicates an unusable connection type.
	ErrorConTypeInvalid

	// ErrorConClosed indicates an operation on a closed connection.
	ErrorConClosed

	// ErrorFdInvalid indicates an invalid file descriptor.
	ErrorFdInvalid

	// ErrorInsaneMsgLength indicates an RPC length prefix outside the
	// accepted bounds.
	ErrorInsaneMsgLength

	// ErrorMaxConnections indicates the tracked connection cap was reached.
	ErrorMaxConnections

	// ErrorListenAddress indicates an address that cannot be resolved or
	// bound for listening.
	ErrorListenAddress

	// ErrorConnectAddress indicates an address that cannot be resolved or
	// connected.
	ErrorConnectAddress

	// ErrorTLSRequired indicates a peer that did not offer TLS on a
	// connection requiring it.
	ErrorTLSRequired

	// ErrorTLSProvider indicates a missing or failing TLS provider.
	ErrorTLSProvider

	// ErrorCodecMissing indicates an RPC connection without a codec.
	ErrorCodecMissing

	// ErrorQuiesceTimeout indicates quiesce did not become active in time.
	ErrorQuiesceTimeout

	// ErrorSignalPipe indicates the signal self-pipe cannot be created.
	ErrorSignalPipe

	// ErrorWorkInvalid indicates an unusable work item.
	ErrorWorkInvalid

	// ErrorSyscall indicates an unexpected kernel call failure.
	ErrorSyscall
)

func init() {
	if liberr.ExistInMapMessage(ErrorParamEmpty) {
		panic(fmt.Errorf("error code collision with package conmgr"))
	}
	liberr.RegisterIdFctMessage(ErrorParamEmpty, getMessage)
}

func getMessage(code liberr.CodeError) (message string) {
	switch code {
	case ErrorParamEmpty:
		return "given parameters is empty"
	case ErrorManagerClosed:
		return "connection manager is closed"
	case ErrorManagerShutdown:
		return "connection manager shutdown requested"
	case ErrorConTypeInvalid:
		return "invalid connection type"
	case ErrorConClosed:
		return "connection is closed"
	case ErrorFdInvalid:
		return "invalid file descriptor"
	case ErrorInsaneMsgLength:
		return "insane msg length"
	case ErrorMaxConnections:
		return "too many connections"
	case ErrorListenAddress:
		return "cannot listen on given address"
	case ErrorConnectAddress:
		return "cannot connect to given address"
	case ErrorTLSRequired:
		return "TLS required but peer did not offer TLS"
	case ErrorTLSProvider:
		return "TLS provider missing or failing"
	case ErrorCodecMissing:
		return "RPC connection without codec"
	case ErrorQuiesceTimeout:
		return "quiesce did not become active before timeout"
	case ErrorSignalPipe:
		return "cannot create signal pipe"
	case ErrorWorkInvalid:
		return "work item is invalid"
	case ErrorSyscall:
		return "unexpected syscall failure"
	}

	return liberr.NullMessage
}
