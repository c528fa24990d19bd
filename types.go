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

//go:build linux

package conmgr

import (
	cmwrk "github.com/nabbar/conmgr/work"
)

// ConType controls how inbound bytes of a connection are framed.
type ConType uint8

const (
	// TypeNone carries no framing; reads are not dispatched to callbacks.
	TypeNone ConType = iota

	// TypeRaw hands the raw byte stream to the OnData callback.
	TypeRaw

	// TypeRPC reassembles 32-bit length prefixed messages and hands each
	// complete payload to the codec, then the OnMsg callback.
	TypeRPC
)

func (t ConType) String() string {
	switch t {
	case TypeNone:
		return "NONE"
	case TypeRaw:
		return "RAW"
	case TypeRPC:
		return "RPC"
	}

	return "INVALID"
}

// Flags is the per connection flag bitfield. Registration flags may be
// passed when a descriptor enters the manager; state flags are owned by the
// manager and readable through Fd accessors.
type Flags uint32

const (
	FlagNone Flags = 0

	// state flags, owned by the manager

	flagCanRead Flags = 1 << iota
	flagCanWrite
	flagReadEOF
	flagIsSocket
	flagIsListen
	flagIsFifo
	flagIsChr
	flagIsConnected
	flagOnDataTried
	flagWorkActive
	flagWaitOnFinish
	flagIsTLSConnected
	flagPollError

	// registration flags, set by hosts

	// FlagRPCKeepBuffer hands the caller the full raw buffer alongside each
	// parsed RPC.
	FlagRPCKeepBuffer

	// FlagQuiesce lets new work queue on the connection while nothing is
	// scheduled or polled for it.
	FlagQuiesce

	// FlagTCPNoDelay applies TCP_NODELAY on socket connections.
	FlagTCPNoDelay

	// FlagWatchReadTimeout arms the read timeout callback.
	FlagWatchReadTimeout

	// FlagWatchWriteTimeout arms the write timeout callback.
	FlagWatchWriteTimeout

	// FlagWatchConnectTimeout arms the connect timeout callback.
	FlagWatchConnectTimeout

	// FlagTLSClient makes the connection run a client side TLS handshake.
	FlagTLSClient

	// FlagTLSServer makes the connection run a server side TLS handshake.
	// Combined with FlagTLSDetect on a listener, plaintext peers are routed
	// to RPC framing instead.
	FlagTLSServer

	// FlagTLSDetect fingerprints the first inbound bytes to route the
	// connection to TLS or plaintext RPC.
	FlagTLSDetect

	// FlagTLSRequired rejects peers that do not offer TLS: a single failure
	// reply is sent and the connection closed.
	FlagTLSRequired
)

func (f Flags) has(b Flags) bool {
	return f&b == b
}

// CallbackArgs relays manager state to a work callback. Callbacks must check
// Status for StatusCancelled and only release resources in that case.
type CallbackArgs struct {
	// Con is the owning connection, nil for connection-less work.
	Con *Fd

	// Status is the work status at execution time.
	Status cmwrk.Status
}

// WorkFunc is a unit of work executed on a worker goroutine.
type WorkFunc func(args CallbackArgs, arg interface{})

// Events is the callback table supplied for each registered descriptor. Any
// entry may be nil.
type Events struct {
	// OnListenConnect is called once when a listener is ready to accept.
	// The returned value becomes the argument of subsequent callbacks.
	OnListenConnect func(con *Fd, arg interface{}) interface{}

	// OnListenFinish is the last call on a listener.
	OnListenFinish func(con *Fd, arg interface{})

	// OnConnection is the first call on any new descriptor. The returned
	// value is threaded through subsequent callbacks; nil is permitted.
	OnConnection func(con *Fd, arg interface{}) interface{}

	// OnData receives the pending byte slice of a RAW connection. The
	// callback reports consumed bytes through Fd.MarkConsumed; a non nil
	// error closes the connection.
	OnData func(con *Fd, arg interface{}) error

	// OnMsg receives each complete RPC payload after the codec ran.
	// unpackErr is the codec result; msg may still carry data to let the
	// host answer a malformed request. A non nil return closes the
	// connection.
	OnMsg func(con *Fd, msg interface{}, unpackErr error, arg interface{}) error

	// OnReadTimeout fires when the read idle threshold is exceeded.
	// A nil return re-arms the watch, any error closes the connection.
	OnReadTimeout func(con *Fd, arg interface{}) error

	// OnWriteTimeout fires when the write idle threshold is exceeded.
	OnWriteTimeout func(con *Fd, arg interface{}) error

	// OnConnectTimeout fires when an outgoing connection does not complete
	// in time.
	OnConnectTimeout func(con *Fd, arg interface{}) error

	// OnFinish is the last call on a connection; ownership of arg returns
	// to the host.
	OnFinish func(con *Fd, arg interface{})
}

// nil-safe accessors used by the watch loop

func (e *Events) readTimeout() func(*Fd, interface{}) error {
	if e == nil {
		return nil
	}
	return e.OnReadTimeout
}

func (e *Events) writeTimeout() func(*Fd, interface{}) error {
	if e == nil {
		return nil
	}
	return e.OnWriteTimeout
}

func (e *Events) connectTimeout() func(*Fd, interface{}) error {
	if e == nil {
		return nil
	}
	return e.OnConnectTimeout
}

// Callbacks are process wide host hooks given at manager creation.
type Callbacks struct {
	// ParseHostPort splits a "host:port" string. When nil the manager uses
	// the net package default.
	ParseHostPort func(s string) (host string, port string, err error)
}
