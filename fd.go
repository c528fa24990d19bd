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
	"sync/atomic"
	"time"

	cmpol "github.com/nabbar/conmgr/polling"
	cmtls "github.com/nabbar/conmgr/conntls"
	liberr "github.com/nabbar/golib/errors"
	"golang.org/x/sys/unix"
)

// Fd is one managed connection: a file descriptor pair with buffers, flags,
// pending work and callbacks. All mutable state is guarded by the manager
// mutex except the reference counter; buffers are touched only by the worker
// goroutine currently owning the connection's work slot.
type Fd struct {
	mgr *mgr

	typ  ConType
	name string
	addr string

	inFd  int
	outFd int

	in  inBuf
	out []*outBuf

	work     []*workItem
	wrkWrite []*workItem

	flags Flags
	refs  atomic.Int32

	arg    interface{}
	events *Events

	regIn  cmpol.Interest
	regOut cmpol.Interest

	lastRead    time.Time
	lastWrite   time.Time
	lastConnect time.Time

	tls     cmtls.Session
	tlsRole cmtls.Role

	extract    func(inputFd, outputFd int, arg interface{})
	extractArg interface{}

	onConnQueued bool
	connecting   bool

	mss int
}

// FdRef is an opaque handle pinning a connection in memory: the connection
// may not be freed while any handle exists. Handles may travel between
// goroutines; the pointed connection is valid only while the handle lives.
type FdRef struct {
	con *Fd
}

// Name returns the stable human readable label of the connection.
func (o *Fd) Name() string {
	return o.name
}

// Type returns the framing mode of the connection.
func (o *Fd) Type() ConType {
	o.mgr.m.Lock()
	defer o.mgr.m.Unlock()
	return o.typ
}

// PeerAddr returns the peer address string, empty when unknown.
func (o *Fd) PeerAddr() string {
	return o.addr
}

// InputFd returns the input descriptor, -1 when closed. The descriptor stays
// owned by the manager.
func (o *Fd) InputFd() int {
	o.mgr.m.Lock()
	defer o.mgr.m.Unlock()
	return o.inFd
}

// OutputFd returns the output descriptor, -1 when closed.
func (o *Fd) OutputFd() int {
	o.mgr.m.Lock()
	defer o.mgr.m.Unlock()
	return o.outFd
}

// IsTLS returns true once the TLS handshake completed on this connection.
func (o *Fd) IsTLS() bool {
	o.mgr.m.Lock()
	defer o.mgr.m.Unlock()
	return o.flags.has(flagIsTLSConnected)
}

// NewRef returns a handle pinning the connection in memory.
func (o *Fd) NewRef() *FdRef {
	o.refs.Add(1)
	return &FdRef{con: o}
}

// Con returns the pinned connection.
func (r *FdRef) Con() *Fd {
	return r.con
}

// Free releases the handle and wakes the watch so the connection can be
// freed when nothing else holds it. Freeing twice is a no-op.
func (r *FdRef) Free() {
	if r == nil || r.con == nil {
		return
	}

	con := r.con
	r.con = nil

	if con.refs.Add(-1) == 0 {
		con.mgr.wakeWatch()
	}
}

// InBuffer returns the pending unprocessed bytes of the incoming buffer.
// Only valid inside an OnData callback.
func (o *Fd) InBuffer() []byte {
	return o.in.bytes()
}

// ShadowInBuffer returns the pending bytes without copying; the slice is
// invalidated by the next buffer compaction. MarkConsumed must be called for
// every byte the host keeps.
func (o *Fd) ShadowInBuffer() []byte {
	return o.in.bytes()
}

// MarkConsumed advances the processed offset of the incoming buffer. Only
// valid inside an OnData callback.
func (o *Fd) MarkConsumed(n int) {
	if n < 0 {
		return
	}

	if p := o.in.pending(); n > p {
		n = p
	}

	o.in.prc += n
}

// XferInBuffer copies and consumes every pending byte of the incoming
// buffer. Only valid inside an OnData callback.
func (o *Fd) XferInBuffer() []byte {
	res := make([]byte, o.in.pending())
	copy(res, o.in.bytes())
	o.MarkConsumed(len(res))
	return res
}

// XferOutBuffer appends the given bytes to the outgoing list, taking
// ownership of the slice.
func (o *Fd) XferOutBuffer(p []byte) liberr.Error {
	if len(p) == 0 {
		return ErrorParamEmpty.Error(nil)
	}

	return o.mgr.queueWrite(o, p, false)
}

// QueueWriteData copies the given bytes into the outgoing list. List order
// is send order, byte for byte.
func (o *Fd) QueueWriteData(p []byte) liberr.Error {
	if len(p) == 0 {
		return ErrorParamEmpty.Error(nil)
	}

	return o.mgr.queueWrite(o, p, true)
}

// QueueClose requests a graceful close: the read side stops, queued writes
// drain, then the connection finishes.
func (o *Fd) QueueClose() {
	o.mgr.m.Lock()
	defer o.mgr.m.Unlock()

	o.mgr.closeCon(o)
}

// CloseOutput drops every queued write and closes the write side.
func (o *Fd) CloseOutput() {
	o.mgr.m.Lock()
	defer o.mgr.m.Unlock()

	o.mgr.closeConOutput(o)
	o.mgr.closeCon(o)
}

// ChangeMode switches the framing mode of a live connection.
func (o *Fd) ChangeMode(t ConType) liberr.Error {
	switch t {
	case TypeNone, TypeRaw, TypeRPC:
	default:
		return ErrorConTypeInvalid.Error(nil)
	}

	o.mgr.m.Lock()
	defer o.mgr.m.Unlock()

	o.typ = t
	o.flags &^= flagOnDataTried
	o.mgr.wakeWatchLocked()

	return nil
}

// AuthCreds returns the peer credentials of a unix socket connection.
func (o *Fd) AuthCreds() (uid uint32, gid uint32, pid int32, err liberr.Error) {
	o.mgr.m.Lock()
	fd := o.inFd
	o.mgr.m.Unlock()

	if fd < 0 {
		return 0, 0, 0, ErrorConClosed.Error(nil)
	}

	crd, e := unix.GetsockoptUcred(fd, unix.SOL_SOCKET, unix.SO_PEERCRED)
	if e != nil {
		return 0, 0, 0, ErrorSyscall.Error(e)
	}

	return crd.Uid, crd.Gid, crd.Pid, nil
}

// QueueExtractFd reclaims the raw descriptors from manager control: once no
// work is active on the connection, the descriptors leave the poller, the
// connection completes without closing them, and fct receives ownership.
func (o *Fd) QueueExtractFd(fct func(inputFd, outputFd int, arg interface{}), arg interface{}) liberr.Error {
	if fct == nil {
		return ErrorParamEmpty.Error(nil)
	}

	o.mgr.m.Lock()
	defer o.mgr.m.Unlock()

	if o.extract != nil {
		return ErrorWorkInvalid.Error(nil)
	}

	o.extract = fct
	o.extractArg = arg
	o.mgr.wakeWatchLocked()

	return nil
}

// SetMSS hints the initial read size of the connection.
func (o *Fd) SetMSS(mss int) {
	o.mgr.m.Lock()
	defer o.mgr.m.Unlock()

	o.mss = mss
}

func (o *Fd) hasWorkLocked() bool {
	return len(o.work) > 0 || len(o.wrkWrite) > 0 || o.flags.has(flagWorkActive)
}
