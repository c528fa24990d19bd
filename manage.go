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

	liberr "github.com/nabbar/golib/errors"
	loglvl "github.com/nabbar/golib/logger/level"
)

// watchJoinCheck bounds the wait slices while joining the watch or workers.
const watchJoinCheck = 100 * time.Millisecond

func (o *mgr) Run(blocking bool) liberr.Error {
	o.m.Lock()

	if o.finished {
		o.m.Unlock()
		return ErrorManagerClosed.Error(nil)
	}

	if !o.watchRun {
		o.watchRun = true
		o.m.Unlock()

		if blocking {
			o.watch()
		} else {
			go o.watch()
		}
	} else {
		o.m.Unlock()

		if blocking {
			o.joinWatch()
		}
	}

	if blocking && o.GetExitOnError() {
		return o.GetError()
	}

	return nil
}

// joinWatch waits for the running watch goroutine to return.
func (o *mgr) joinWatch() {
	for {
		o.m.Lock()
		run := o.watchRun
		o.m.Unlock()

		if !run {
			return
		}

		o.evtWatchReturn.WaitTimeout(watchJoinCheck)
	}
}

func (o *mgr) RequestShutdown() {
	o.m.Lock()

	if o.shutdown {
		o.m.Unlock()
		return
	}

	o.shutdown = true
	o.wakeWatchLocked()
	o.m.Unlock()

	o.evtWorkerSleep.Broadcast()
}

func (o *mgr) IsShutdownRequested() bool {
	o.m.Lock()
	defer o.m.Unlock()

	return o.shutdown
}

func (o *mgr) Fini() {
	o.RequestShutdown()

	o.m.Lock()
	started := o.watchRun
	o.m.Unlock()

	if started {
		o.joinWatch()
	} else {
		// the watch never ran: cancel and free everything directly
		o.m.Lock()
		if !o.closing {
			o.closing = true
			o.initiateShutdownLocked()
		}

		for _, con := range append([]*Fd(nil), o.cons...) {
			o.cons = listRemove(o.cons, con)
			o.complete = append(o.complete, con)
		}

		for _, con := range append([]*Fd(nil), o.complete...) {
			o.freeConLocked(con)
		}

		o.drained = true
		o.m.Unlock()
	}

	o.evtWorkerSleep.Broadcast()
	o.joinWorkers()

	o.m.Lock()

	if o.finished {
		o.m.Unlock()
		return
	}

	o.finished = true
	o.finiSignals()
	o.finiDelayed()
	o.m.Unlock()

	_ = o.pol.Close()
	o.cnl()

	o.logger().Entry(loglvl.InfoLevel, "connection manager finalized").Log()
}

// joinWorkers waits until every pool goroutine exited.
func (o *mgr) joinWorkers() {
	for {
		o.m.Lock()
		left := o.wrkCount
		o.m.Unlock()

		if left <= 0 {
			return
		}

		o.evtWorkerSleep.Broadcast()
		o.evtWorkerReturn.WaitTimeout(watchJoinCheck)
	}
}

func (o *mgr) Quiesce() liberr.Error {
	o.m.Lock()

	if o.finished {
		o.m.Unlock()
		return ErrorManagerClosed.Error(nil)
	} else if o.shutdown {
		o.m.Unlock()
		return ErrorManagerShutdown.Error(nil)
	}

	if o.quiesceAct {
		o.m.Unlock()
		return nil
	}

	o.quiesceReq = true
	o.wakeWatchLocked()
	o.m.Unlock()

	var deadline time.Time
	if d := o.cfg.QuiesceTimeout.Time(); d > 0 {
		deadline = time.Now().Add(d)
	}

	for {
		o.m.Lock()
		act := o.quiesceAct
		stop := o.shutdown || o.finished
		o.m.Unlock()

		if act {
			return nil
		}

		if stop {
			return ErrorManagerShutdown.Error(nil)
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return ErrorQuiesceTimeout.Error(nil)
		}

		o.evtQuiesceOn.WaitTimeout(watchJoinCheck)
	}
}

func (o *mgr) Unquiesce() {
	o.m.Lock()
	o.quiesceReq = false
	o.quiesceAct = false
	o.wakeWatchLocked()
	o.m.Unlock()

	o.evtQuiesceOff.Broadcast()
	o.evtWorkerSleep.Broadcast()
}

// Reset forces an inherited manager to a terminal default state without
// closing descriptors or running callbacks. A forked child calls this on the
// inherited manager, then builds a fresh one with New.
func (o *mgr) Reset() {
	o.m.Lock()
	defer o.m.Unlock()

	o.cons = nil
	o.listen = nil
	o.complete = nil
	o.fdcon = make(map[int]*Fd)
	o.run = nil
	o.delayed = nil
	o.sigs = nil
	o.quiesceReq = false
	o.quiesceAct = false
	o.shutdown = true
	o.closing = true
	o.drained = true
	o.finished = true
	o.err = nil
}
