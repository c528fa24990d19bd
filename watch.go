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
	"time"

	cmpol "github.com/nabbar/conmgr/polling"
	cmwrk "github.com/nabbar/conmgr/work"
	loglvl "github.com/nabbar/golib/logger/level"
	"golang.org/x/sys/unix"
)

// quiesceCheck bounds the quiesced watch sleep so shutdown stays responsive.
const quiesceCheck = 250 * time.Millisecond

// watch is the single goroutine driving readiness polling and connection
// state transitions. Exactly one watch exists per manager.
func (o *mgr) watch() {
	o.logger().Entry(loglvl.DebugLevel, "watch started").Log()

	for o.watchIteration() {
	}

	o.m.Lock()
	o.drained = true
	o.watchRun = false
	o.m.Unlock()

	o.evtWorkerSleep.Broadcast()
	o.evtWatchReturn.Broadcast()

	o.logger().Entry(loglvl.DebugLevel, "watch returned").Log()
}

// watchIteration runs one pass of the loop; returning false ends the watch.
func (o *mgr) watchIteration() bool {
	o.m.Lock()

	if o.shutdown && !o.closing {
		o.closing = true
		o.initiateShutdownLocked()
	}

	if o.quiesceReq && !o.quiesceAct && !o.shutdown && o.wrkActive == 0 && len(o.run) == 0 {
		o.quiesceAct = true
		o.m.Unlock()
		o.evtQuiesceOn.Broadcast()
		o.waitUnquiesce()
		return true
	}

	// while quiesce is requested nothing new is scheduled; in-flight work
	// completes and its wakeup re-enters the loop. Shutdown overrides the
	// pause so the drain can finish.
	if !o.quiesceReq || o.shutdown {
		for _, con := range append([]*Fd(nil), o.listen...) {
			o.handleListenLocked(con)
		}

		var done []*Fd

		for _, con := range append([]*Fd(nil), o.cons...) {
			if o.handleConnectionLocked(con) {
				done = append(done, con)
			}
		}

		for _, con := range done {
			o.cons = listRemove(o.cons, con)
			o.complete = append(o.complete, con)
		}
	}

	for _, con := range append([]*Fd(nil), o.complete...) {
		if con.refs.Load() == 0 && !con.hasWorkLocked() {
			o.freeConLocked(con)
		}
	}

	if o.shutdown && o.idleLocked() {
		o.m.Unlock()
		return false
	}

	timeout := o.computeDeadlineLocked()
	o.m.Unlock()

	if _, err := o.pol.Poll(timeout); err != nil {
		o.m.Lock()
		o.recordError(err)
		o.m.Unlock()
	}

	o.m.Lock()
	_ = o.pol.ForEach(func(fd int, ev cmpol.Events) bool {
		o.handleEventLocked(fd, ev)
		return true
	})
	o.m.Unlock()

	return true
}

// idleLocked reports whether nothing is left to drive: no connections, no
// runnable or in-flight work. Caller holds the manager mutex.
func (o *mgr) idleLocked() bool {
	return len(o.cons) == 0 &&
		len(o.listen) == 0 &&
		len(o.complete) == 0 &&
		len(o.run) == 0 &&
		o.wrkActive == 0
}

// initiateShutdownLocked closes every connection and cancels pending work.
// Caller holds the manager mutex.
func (o *mgr) initiateShutdownLocked() {
	o.logger().Entry(loglvl.InfoLevel, "shutdown requested, closing all connections").
		FieldAdd("connections", len(o.cons)).
		FieldAdd("listeners", len(o.listen)).Log()

	for _, con := range append([]*Fd(nil), o.listen...) {
		o.closeCon(con)
		o.listen = listRemove(o.listen, con)
		o.cons = append(o.cons, con)
	}

	for _, con := range o.cons {
		o.cancelConWork(con)
		o.closeConOutput(con)
		o.closeCon(con)
	}

	o.cancelPendingLists()
	o.finiSignals()
	o.evtWorkerSleep.Broadcast()
}

// waitUnquiesce parks the watch while quiesce is active; shutdown interrupts
// the pause.
func (o *mgr) waitUnquiesce() {
	for {
		o.m.Lock()
		stop := !o.quiesceReq || o.shutdown
		o.m.Unlock()

		if stop {
			return
		}

		o.evtQuiesceOff.WaitTimeout(quiesceCheck)
	}
}

// handleListenLocked drives one listener: promote pending work, queue an
// accept when the kernel reported readiness, pause past the connection cap.
// Caller holds the manager mutex.
func (o *mgr) handleListenLocked(con *Fd) {
	if con.flags.has(flagWorkActive) {
		return
	}

	if len(con.work) > 0 {
		o.promoteQueuedLocked(con)
		return
	}

	paused := len(o.cons) >= o.cfg.MaxConnections

	if con.flags.has(flagCanRead) && !paused && !o.shutdown {
		o.promoteLocked(con, o.handleAccept, nil, "listen_accept")
		return
	}

	want := cmpol.InterestListen
	if paused {
		want = cmpol.InterestNone
	}

	if con.inFd >= 0 && con.regIn != want {
		if err := o.pol.Relink(con.inFd, want, con.name); err == nil {
			con.regIn = want
		}
	}
}

// handleConnectionLocked inspects one connection and performs at most one
// state transition. Returns true when the connection is finished and must
// move to the complete list. Caller holds the manager mutex.
func (o *mgr) handleConnectionLocked(con *Fd) bool {
	// a worker owns the connection, do nothing
	if con.flags.has(flagWorkActive) {
		return false
	}

	// always do work first
	if len(con.work) > 0 {
		o.promoteQueuedLocked(con)
		return false
	}

	// descriptor reclaim requested and nothing in flight
	if con.extract != nil && len(con.wrkWrite) == 0 {
		o.runExtractLocked(con)
		return true
	}

	// pending outgoing connect
	if con.connecting {
		if con.flags.has(flagCanWrite) || con.flags.has(flagPollError) {
			o.finishConnectLocked(con)
		} else if o.expiredLocked(con, FlagWatchConnectTimeout, con.lastConnect, o.cfg.ConnectTimeout.Time()) {
			o.fireTimeoutLocked(con, con.events.connectTimeout(), "on_connect_timeout")
		}
		o.applyInterestLocked(con)
		return false
	}

	// wait for on_connection before moving data
	if !con.flags.has(flagIsConnected) && con.inFd != -1 {
		return false
	}

	// quiesced connections queue work but schedule nothing
	if con.flags.has(FlagQuiesce) {
		o.applyInterestLocked(con)
		return false
	}

	// drain outgoing data
	if con.outFd != -1 && len(con.out) > 0 {
		if con.flags.has(flagCanWrite) {
			o.promoteLocked(con, o.handleWrite, nil, "handle_write")
		} else if o.expiredLocked(con, FlagWatchWriteTimeout, con.lastWrite, o.cfg.WriteTimeout.Time()) {
			o.fireTimeoutLocked(con, con.events.writeTimeout(), "on_write_timeout")
		} else {
			o.applyInterestLocked(con)
		}
		return false
	}

	// outgoing list drained: release write complete work once the kernel
	// send queue drained too, when it can be queried
	if len(con.wrkWrite) > 0 {
		if con.flags.has(flagIsSocket) && con.outFd >= 0 && kernelOutputPending(con.outFd) > 0 {
			// re-checked after the wait write delay
			return false
		}

		for _, w := range con.wrkWrite {
			w.ctl.Depend = w.ctl.Depend.Clear(cmwrk.DependConWriteComplete)
			con.work = append(con.work, w)
		}
		con.wrkWrite = nil
		return false
	}

	// read as much as possible before processing
	if !con.flags.has(flagReadEOF) && con.flags.has(flagCanRead) {
		con.flags &^= flagOnDataTried
		o.promoteLocked(con, o.handleRead, nil, "handle_read")
		return false
	}

	// process already buffered bytes
	if con.in.pending() > 0 && !con.flags.has(flagOnDataTried) && con.typ != TypeNone {
		o.promoteLocked(con, o.wrapOnData, nil, "wrap_on_data")
		return false
	}

	if !con.flags.has(flagReadEOF) {
		if o.expiredLocked(con, FlagWatchReadTimeout, con.lastRead, o.cfg.ReadTimeout.Time()) {
			o.fireTimeoutLocked(con, con.events.readTimeout(), "on_read_timeout")
			return false
		}

		// wait until poll reports this connection again
		o.applyInterestLocked(con)
		return false
	}

	// no further reads: close out the incoming side
	if con.inFd != -1 {
		o.closeInputLocked(con)
	}

	if con.flags.has(flagWaitOnFinish) {
		return false
	}

	if !con.onFinishDone && con.events != nil && (con.events.OnFinish != nil || con.events.OnListenFinish != nil) {
		con.flags |= flagWaitOnFinish
		o.promoteLocked(con, o.runOnFinish, nil, "on_finish")
		return false
	}

	if len(con.work) > 0 || len(con.wrkWrite) > 0 {
		// work added by on_finish must complete before deletion
		return false
	}

	// nothing left: close everything and mark for cleanup
	if con.outFd != -1 {
		o.closeOutputLocked(con)
	}

	return true
}

// promoteQueuedLocked moves the connection's next pending item to the
// runnable queue, taking the work slot. Caller holds the manager mutex.
func (o *mgr) promoteQueuedLocked(con *Fd) {
	w := con.work[0]
	con.work = con.work[1:]
	con.flags |= flagWorkActive
	o.pushRunLocked(w)
}

// promoteLocked queues an internal callback on the runnable queue with the
// connection's work slot taken. Caller holds the manager mutex.
func (o *mgr) promoteLocked(con *Fd, fct WorkFunc, arg interface{}, name string) {
	con.flags |= flagWorkActive
	o.pushRunLocked(&workItem{
		con:    con,
		fct:    fct,
		arg:    arg,
		name:   name,
		status: cmwrk.StatusPending,
		ctl:    fifoControl(),
	})
}

// runOnFinish runs the last host callback of a connection.
func (o *mgr) runOnFinish(args CallbackArgs, _ interface{}) {
	con := args.Con

	if con.events != nil {
		if con.flags.has(flagIsListen) && con.events.OnListenFinish != nil {
			con.events.OnListenFinish(con, con.arg)
		} else if con.events.OnFinish != nil {
			con.events.OnFinish(con, con.arg)
		}
	}

	o.m.Lock()
	con.onFinishDone = true
	con.flags &^= flagWaitOnFinish
	o.wakeWatchLocked()
	o.m.Unlock()
}

// runExtractLocked removes the descriptors from the poller without closing
// them and hands ownership to the extract callback. Caller holds the mutex.
func (o *mgr) runExtractLocked(con *Fd) {
	if con.inFd >= 0 {
		_ = o.pol.Unlink(con.inFd, con.name)
		delete(o.fdcon, con.inFd)
	}
	if con.outFd >= 0 && con.outFd != con.inFd {
		_ = o.pol.Unlink(con.outFd, con.name)
		delete(o.fdcon, con.outFd)
	}

	fct := con.extract
	arg := con.extractArg
	inFd := con.inFd
	outFd := con.outFd

	con.inFd = -1
	con.outFd = -1
	con.flags |= flagReadEOF

	o.pushRunLocked(&workItem{
		con:  con,
		name: "extract_fd",
		fct: func(args CallbackArgs, _ interface{}) {
			fct(inFd, outFd, arg)
		},
		status: cmwrk.StatusPending,
		ctl:    fifoControl(),
	})
	con.flags |= flagWorkActive
}

// finishConnectLocked resolves a pending nonblocking connect. Caller holds
// the manager mutex.
func (o *mgr) finishConnectLocked(con *Fd) {
	con.connecting = false
	con.flags &^= flagCanWrite

	soerr, err := unix.GetsockoptInt(con.outFd, unix.SOL_SOCKET, unix.SO_ERROR)

	if err != nil || soerr != 0 {
		if err == nil {
			err = unix.Errno(soerr)
		}

		o.logger().Entry(loglvl.ErrorLevel, "connect failed").
			FieldAdd("connection", con.name).
			ErrorAdd(true, err).Log()

		o.recordError(ErrorConnectAddress.Error(err))
		o.closeConOutput(con)
		o.closeCon(con)
		return
	}

	con.flags |= flagIsConnected
	con.lastConnect = time.Now()

	o.pushRunLocked(&workItem{
		con:  con,
		name: "connect_complete",
		fct: func(args CallbackArgs, _ interface{}) {
			if err := o.startConTLS(args.Con); err != nil {
				o.m.Lock()
				o.recordError(err)
				o.closeCon(args.Con)
				o.m.Unlock()
				return
			}
			o.queueOnConnection(args.Con)
		},
		status: cmwrk.StatusPending,
		ctl:    fifoControl(),
	})
	con.flags |= flagWorkActive
}

// expiredLocked reports whether a watched timeout elapsed. Caller holds the
// manager mutex.
func (o *mgr) expiredLocked(con *Fd, flag Flags, since time.Time, d time.Duration) bool {
	if d <= 0 || !con.flags.has(flag) {
		return false
	}

	return time.Since(since) >= d
}

// fireTimeoutLocked promotes the timeout callback; a connection without one
// closes. Caller holds the manager mutex.
func (o *mgr) fireTimeoutLocked(con *Fd, fct func(*Fd, interface{}) error, name string) {
	if fct == nil {
		o.logger().Entry(loglvl.InfoLevel, "timeout without callback, closing connection").
			FieldAdd("connection", con.name).
			FieldAdd("timeout", name).Log()

		o.closeCon(con)
		return
	}

	o.promoteLocked(con, func(args CallbackArgs, _ interface{}) {
		err := fct(args.Con, args.Con.arg)

		o.m.Lock()
		defer o.m.Unlock()

		if err != nil {
			o.closeCon(args.Con)
			return
		}

		// callback asked to retry: re-arm the watch
		now := time.Now()
		args.Con.lastRead = now
		args.Con.lastWrite = now
		args.Con.lastConnect = now
	}, nil, name)
}

// computeDeadlineLocked returns the poll timeout as the minimum of every
// active connection timeout; delayed work wakes through the kernel timer.
// Caller holds the manager mutex.
func (o *mgr) computeDeadlineLocked() time.Duration {
	res := time.Duration(-1)

	keep := func(since time.Time, d time.Duration) {
		if d <= 0 {
			return
		}

		left := d - time.Since(since)
		if left < 0 {
			left = 0
		}

		if res < 0 || left < res {
			res = left
		}
	}

	for _, con := range o.cons {
		if con.connecting && con.flags.has(FlagWatchConnectTimeout) {
			keep(con.lastConnect, o.cfg.ConnectTimeout.Time())
		}

		if !con.flags.has(flagReadEOF) && con.flags.has(FlagWatchReadTimeout) {
			keep(con.lastRead, o.cfg.ReadTimeout.Time())
		}

		if len(con.out) > 0 && con.flags.has(FlagWatchWriteTimeout) {
			keep(con.lastWrite, o.cfg.WriteTimeout.Time())
		}

		if len(con.wrkWrite) > 0 {
			if w := o.cfg.WaitWriteDelay.Time(); w > 0 {
				keep(con.lastWrite, w)
			} else {
				keep(con.lastWrite, time.Second)
			}
		}
	}

	return res
}

// applyInterestLocked recomputes the kernel interest of a connection's
// descriptors and relinks them when it changed. Caller holds the mutex.
func (o *mgr) applyInterestLocked(con *Fd) {
	if con.flags.has(flagWorkActive) {
		return
	}

	wantRead := con.inFd >= 0 &&
		!con.flags.has(flagReadEOF) &&
		!con.flags.has(flagCanRead) &&
		!con.flags.has(FlagQuiesce)

	wantWrite := con.outFd >= 0 &&
		!con.flags.has(flagCanWrite) &&
		(len(con.out) > 0 || con.connecting)

	if con.inFd >= 0 && con.inFd == con.outFd {
		want := cmpol.InterestConnected

		switch {
		case wantRead && wantWrite:
			want = cmpol.InterestReadWrite
		case wantRead:
			want = cmpol.InterestReadOnly
		case wantWrite:
			want = cmpol.InterestWriteOnly
		}

		if con.regIn != want {
			if err := o.pol.Relink(con.inFd, want, con.name); err == nil {
				con.regIn = want
				con.regOut = want
			}
		}
		return
	}

	if con.inFd >= 0 {
		want := cmpol.InterestConnected
		if wantRead {
			want = cmpol.InterestReadOnly
		}

		if con.regIn != want {
			if err := o.pol.Relink(con.inFd, want, con.name); err == nil {
				con.regIn = want
			}
		}
	}

	if con.outFd >= 0 && con.outFd != con.inFd {
		want := cmpol.InterestNone
		if wantWrite {
			want = cmpol.InterestWriteOnly
		}

		if con.regOut != want {
			if err := o.pol.Relink(con.outFd, want, con.name); err == nil {
				con.regOut = want
			}
		}
	}
}

// handleEventLocked consumes one readiness event: the kernel timer promotes
// delayed work, a connection updates its readiness flags, an error or
// hangup stops the affected side. Caller holds the manager mutex.
func (o *mgr) handleEventLocked(fd int, ev cmpol.Events) {
	if fd == o.tfd {
		o.handleTimerEvent()
		return
	}

	con, ok := o.fdcon[fd]
	if !ok {
		return
	}

	if ev.CanRead {
		con.flags |= flagCanRead
	}

	if ev.CanWrite {
		con.flags |= flagCanWrite
	}

	if ev.Error {
		con.flags |= flagPollError

		if con.connecting {
			// resolved by finishConnectLocked reading SO_ERROR
			con.flags |= flagCanWrite
			return
		}

		o.logger().Entry(loglvl.DebugLevel, "poll error on connection").
			FieldAdd("connection", con.name).Log()

		o.closeConOutput(con)
		o.closeCon(con)
		return
	}

	if ev.Hangup {
		// peer closed its side; drain buffered bytes then stop reading
		con.flags |= flagCanRead
	}
}
