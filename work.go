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
	liberr "github.com/nabbar/golib/errors"
	loglvl "github.com/nabbar/golib/logger/level"
)

// workItem is one unit queued for the worker pool.
type workItem struct {
	con    *Fd
	fct    WorkFunc
	arg    interface{}
	name   string
	status cmwrk.Status
	ctl    cmwrk.Control
}

func fifoControl() cmwrk.Control {
	return cmwrk.Control{
		Schedule: cmwrk.SchedFifo,
		Depend:   cmwrk.DependNone,
	}
}

func (o *mgr) AddWork(con *Fd, fct WorkFunc, arg interface{}, name string, ctl cmwrk.Control) liberr.Error {
	if fct == nil {
		return ErrorParamEmpty.Error(nil)
	}

	if err := ctl.Validate(); err != nil {
		return ErrorWorkInvalid.Error(err)
	}

	o.m.Lock()
	defer o.m.Unlock()

	if o.finished {
		return ErrorManagerClosed.Error(nil)
	}

	w := &workItem{
		con:    con,
		fct:    fct,
		arg:    arg,
		name:   name,
		status: cmwrk.StatusPending,
		ctl:    ctl,
	}

	return o.addWorkLocked(w)
}

func (o *mgr) AddWorkFifo(fct WorkFunc, arg interface{}, name string) liberr.Error {
	return o.AddWork(nil, fct, arg, name, fifoControl())
}

func (o *mgr) AddWorkConFifo(con *Fd, fct WorkFunc, arg interface{}, name string) liberr.Error {
	if con == nil {
		return ErrorParamEmpty.Error(nil)
	}

	return o.AddWork(con, fct, arg, name, fifoControl())
}

func (o *mgr) AddWorkConWriteComplete(con *Fd, fct WorkFunc, arg interface{}, name string) liberr.Error {
	if con == nil {
		return ErrorParamEmpty.Error(nil)
	}

	ctl := fifoControl()
	ctl.Depend = cmwrk.DependConWriteComplete

	return o.AddWork(con, fct, arg, name, ctl)
}

func (o *mgr) AddWorkDelayedFifo(fct WorkFunc, arg interface{}, name string, delaySec, delayNsec int64) liberr.Error {
	begin, err := cmwrk.CalcTimeDelay(delaySec, delayNsec)
	if err != nil {
		return err
	}

	ctl := fifoControl()
	ctl.Depend = cmwrk.DependTimeDelay
	ctl.TimeBegin = begin

	return o.AddWork(nil, fct, arg, name, ctl)
}

func (o *mgr) AddWorkSignal(sig int, fct WorkFunc, arg interface{}, name string) liberr.Error {
	ctl := fifoControl()
	ctl.Depend = cmwrk.DependSignal
	ctl.Signal = sig

	return o.AddWork(nil, fct, arg, name, ctl)
}

// addWorkLocked classifies the item by its dependency bitset and routes it
// into the proper pending list. Caller holds the manager mutex.
func (o *mgr) addWorkLocked(w *workItem) liberr.Error {
	// once shutdown began, deferred dependencies cannot be honored anymore:
	// the item is cancelled and still handed to a worker for cleanup
	if o.shutdown && (w.ctl.Depend.Has(cmwrk.DependTimeDelay) || w.ctl.Depend.Has(cmwrk.DependSignal)) {
		w.ctl.Depend = cmwrk.DependNone
		o.cancelWork(w)
		o.wakeWatchLocked()
		return nil
	}

	switch {
	case w.ctl.Depend.Has(cmwrk.DependTimeDelay):
		o.delayed = append(o.delayed, w)
		o.updateTimerLocked()

	case w.ctl.Depend.Has(cmwrk.DependSignal):
		if err := o.subscribeSignalLocked(w); err != nil {
			return err
		}

	case w.ctl.Depend.Has(cmwrk.DependConWriteComplete) && w.con != nil:
		w.con.wrkWrite = append(w.con.wrkWrite, w)

	case w.con != nil:
		w.con.work = append(w.con.work, w)

	default:
		o.pushRunLocked(w)
	}

	o.wakeWatchLocked()

	return nil
}

// pushRunLocked appends an item to the runnable queue and wakes one worker.
func (o *mgr) pushRunLocked(w *workItem) {
	o.run = append(o.run, w)
	o.evtWorkerSleep.Signal()
}

// requeueRunnable clears the given dependency bit and routes the item again;
// an item with no dependency left becomes runnable. Caller holds the mutex.
func (o *mgr) requeueRunnable(w *workItem, clear cmwrk.Depend) {
	w.ctl.Depend = w.ctl.Depend.Clear(clear)

	if w.ctl.Depend == cmwrk.DependInvalid {
		w.ctl.Depend = cmwrk.DependNone
	}

	_ = o.addWorkLocked(w)
}

// cancelWork marks an item cancelled and hands it to a worker anyway so the
// callback can release resources. Caller holds the mutex.
func (o *mgr) cancelWork(w *workItem) {
	w.status = cmwrk.StatusCancelled

	ent := o.logger().Entry(loglvl.DebugLevel, "cancelling work")
	ent = ent.FieldAdd("work", w.name)
	if w.con != nil {
		ent = ent.FieldAdd("connection", w.con.name)
	}
	ent.Log()

	o.pushRunLocked(w)
}

// cancelConWork cancels every pending item of a connection. Caller holds the
// mutex.
func (o *mgr) cancelConWork(con *Fd) {
	for _, w := range con.work {
		o.cancelWork(w)
	}
	con.work = nil

	for _, w := range con.wrkWrite {
		o.cancelWork(w)
	}
	con.wrkWrite = nil
}

// cancelPendingLists flushes the delayed and signal lists with status
// cancelled in a single pass. Caller holds the mutex.
func (o *mgr) cancelPendingLists() {
	for _, w := range o.delayed {
		w.ctl.Depend = w.ctl.Depend.Clear(cmwrk.DependTimeDelay)
		o.cancelWork(w)
	}
	o.delayed = nil

	for _, w := range o.sigs {
		w.ctl.Depend = w.ctl.Depend.Clear(cmwrk.DependSignal)
		o.cancelWork(w)
	}
	o.sigs = nil
}
