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
	"errors"
	"io"
	"time"

	cmcfg "github.com/nabbar/conmgr/concfg"
	cmwrk "github.com/nabbar/conmgr/work"
	liberr "github.com/nabbar/golib/errors"
	loglvl "github.com/nabbar/golib/logger/level"
	"golang.org/x/sys/unix"
)

// getReadable asks the kernel for the readable byte count and clamps it into
// [ReadSizeDefault, MaxMsgSize]. Even a zero report still issues a minimum
// read so a shut down descriptor gets its final read of zero.
func (o *mgr) getReadable(con *Fd, fd int) int {
	readable, err := unix.IoctlGetInt(fd, unix.FIONREAD)

	if err != nil || readable <= 0 {
		if con.mss > 0 {
			readable = con.mss
		} else {
			readable = int(cmcfg.ReadSizeDefault)
		}
	}

	if max := int(o.cfg.MaxMsgSize); readable > max {
		readable = max
	}

	if min := int(cmcfg.ReadSizeDefault); readable < min {
		readable = min
	}

	return readable
}

// handleRead issues one read against the connection's input descriptor into
// the incoming buffer. Runs on a worker goroutine owning the connection's
// work slot.
func (o *mgr) handleRead(args CallbackArgs, _ interface{}) {
	con := args.Con

	o.m.Lock()
	con.flags &^= flagCanRead
	fd := con.inFd
	tls := con.tls
	isTLS := con.flags.has(flagIsTLSConnected)
	o.m.Unlock()

	if fd < 0 {
		o.logger().Entry(loglvl.DebugLevel, "read on closed connection").
			FieldAdd("connection", con.name).Log()
		return
	}

	readable := o.getReadable(con, fd)
	dst := con.in.writable(readable)

	var (
		n   int
		err error
	)

	if isTLS && tls != nil {
		n, err = tls.Read(dst)
	} else {
		n, err = unix.Read(fd, dst)
	}

	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return
		}

		if errors.Is(err, io.EOF) {
			o.m.Lock()
			con.flags |= flagReadEOF
			o.wakeWatchLocked()
			o.m.Unlock()
			return
		}

		o.logger().Entry(loglvl.DebugLevel, "error while reading").
			FieldAdd("connection", con.name).
			ErrorAdd(true, err).Log()

		o.m.Lock()
		o.closeCon(con)
		o.m.Unlock()
		return
	}

	if n == 0 {
		o.m.Lock()
		con.flags |= flagReadEOF
		o.wakeWatchLocked()
		o.m.Unlock()
		return
	}

	con.in.commit(n)

	o.m.Lock()
	if con.flags.has(FlagWatchReadTimeout) {
		con.lastRead = time.Now()
	}
	o.m.Unlock()
}

// handleWrite drains the outgoing list with one writev call. Runs on a
// worker goroutine owning the connection's work slot.
func (o *mgr) handleWrite(args CallbackArgs, _ interface{}) {
	con := args.Con

	o.m.Lock()
	con.flags &^= flagCanWrite
	fd := con.outFd
	tls := con.tls
	isTLS := con.flags.has(flagIsTLSConnected)

	if fd < 0 || len(con.out) == 0 {
		o.m.Unlock()
		return
	}

	iov := make([][]byte, 0, len(con.out))
	for _, b := range con.out {
		if len(iov) >= unix.UIO_MAXIOV {
			break
		}
		iov = append(iov, b.remaining())
	}
	o.m.Unlock()

	var (
		n   int
		err error
	)

	if isTLS && tls != nil {
		for _, p := range iov {
			var w int
			w, err = tls.Write(p)
			n += w
			if err != nil {
				break
			}
		}
	} else {
		n, err = unix.Writev(fd, iov)
	}

	if err != nil && !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EINTR) {
		o.logger().Entry(loglvl.DebugLevel, "fatal error while writing").
			FieldAdd("connection", con.name).
			ErrorAdd(true, err).Log()

		o.m.Lock()
		o.closeConOutput(con)
		o.closeCon(con)
		o.m.Unlock()
		return
	}

	if n <= 0 {
		return
	}

	o.m.Lock()
	o.flushWritten(con, n)

	if con.flags.has(FlagWatchWriteTimeout) {
		con.lastWrite = time.Now()
	}

	o.wakeWatchLocked()
	o.m.Unlock()
}

// kernelOutputPending returns the not-yet-sent byte count buffered by the
// kernel for a socket, or zero when it cannot be queried.
func kernelOutputPending(fd int) int {
	n, err := unix.IoctlGetInt(fd, unix.TIOCOUTQ)

	if err != nil || n < 0 {
		return 0
	}

	return n
}

// flushWritten advances the processed offset of each queued buffer in order,
// deleting fully sent ones. Caller holds the manager mutex.
func (o *mgr) flushWritten(con *Fd, n int) {
	for n > 0 && len(con.out) > 0 {
		b := con.out[0]

		if left := b.left(); n >= left {
			n -= left
			con.out = con.out[1:]
		} else {
			b.off += n
			n = 0
		}
	}
}

// queueWrite appends bytes to the outgoing list and wakes the watch. When
// copied is false the slice ownership transfers to the manager.
func (o *mgr) queueWrite(con *Fd, p []byte, copied bool) liberr.Error {
	dat := p

	if copied {
		dat = make([]byte, len(p))
		copy(dat, p)
	}

	o.m.Lock()
	defer o.m.Unlock()

	if con.outFd < 0 {
		return ErrorConClosed.Error(nil)
	}

	con.out = append(con.out, &outBuf{dat: dat})

	if con.flags.has(FlagWatchWriteTimeout) {
		con.lastWrite = time.Now()
	}

	o.wakeWatchLocked()

	return nil
}

// wrapOnData dispatches buffered bytes to the framing layer of the
// connection: the host OnData callback for RAW, the RPC reassembly for RPC.
// Runs on a worker goroutine owning the connection's work slot.
func (o *mgr) wrapOnData(args CallbackArgs, _ interface{}) {
	con := args.Con

	if args.Status == cmwrk.StatusCancelled {
		return
	}

	o.m.Lock()
	typ := con.typ
	fingerprint := con.flags.has(FlagTLSDetect) && !con.flags.has(flagIsTLSConnected) && con.tls == nil
	o.m.Unlock()

	if fingerprint {
		if done := o.fingerprintCon(con); done {
			return
		}

		o.m.Lock()
		typ = con.typ
		o.m.Unlock()
	}

	var err error

	switch typ {
	case TypeRaw:
		if con.events != nil && con.events.OnData != nil {
			err = con.events.OnData(con, con.arg)
		} else {
			// nothing consumes raw bytes, drop them
			con.in.prc = con.in.end
		}

	case TypeRPC:
		err = o.onRPCData(con)

	default:
		// TypeNone buffers bytes without dispatching
		return
	}

	if err != nil {
		o.logger().Entry(loglvl.ErrorLevel, "data callback failed").
			FieldAdd("connection", con.name).
			ErrorAdd(true, err).Log()

		o.m.Lock()
		if e, ok := err.(liberr.Error); ok {
			o.recordError(e)
		} else {
			o.recordError(ErrorSyscall.Error(err))
		}

		// processing failed, drop pending input on the floor
		con.in.reset()
		o.closeCon(con)
		o.m.Unlock()
		return
	}

	o.m.Lock()
	if con.in.prc == 0 && con.in.pending() > 0 {
		// parser refused every byte, wait for more data
		con.flags |= flagOnDataTried
	} else if con.in.prc > 0 {
		// compact the unprocessed remainder to the front
		con.in.consumeProcessed()
	}
	o.m.Unlock()
}
