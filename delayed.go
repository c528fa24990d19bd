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
	liberr "github.com/nabbar/golib/errors"
	loglvl "github.com/nabbar/golib/logger/level"
	"golang.org/x/sys/unix"
)

// initDelayed creates the single kernel timer carrying the next delayed work
// deadline and registers it with the poller.
func (o *mgr) initDelayed() liberr.Error {
	tfd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return ErrorSyscall.Error(err)
	}

	if e := o.pol.Link(tfd, cmpol.InterestReadOnly, "timer"); e != nil {
		_ = unix.Close(tfd)
		return e
	}

	o.tfd = tfd

	return nil
}

func (o *mgr) finiDelayed() {
	if o.tfd >= 0 {
		_ = o.pol.Unlink(o.tfd, "timer")
		_ = unix.Close(o.tfd)
		o.tfd = -1
	}
}

// updateTimerLocked selects the shortest deadline among pending delayed work
// and re-arms the kernel timer with it. An empty list disarms the timer.
// Caller holds the manager mutex.
func (o *mgr) updateTimerLocked() {
	if o.tfd < 0 {
		return
	}

	var (
		spec  unix.ItimerSpec
		flags int
	)

	if w := o.shortestDelayedLocked(); w != nil {
		d := time.Until(w.ctl.TimeBegin)

		if d <= 0 {
			// already due, fire as soon as the poller wakes
			d = time.Nanosecond
		}

		// arm an absolute wake on CLOCK_MONOTONIC at the deadline; fall back
		// to a relative delay if the clock cannot be read
		var now unix.Timespec
		if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &now); err == nil {
			spec.Value = unix.NsecToTimespec(unix.TimespecToNsec(now) + int64(d))
			flags = unix.TFD_TIMER_ABSTIME
		} else {
			spec.Value = unix.NsecToTimespec(int64(d))
		}
	}

	if err := unix.TimerfdSettime(o.tfd, flags, &spec, nil); err != nil {
		o.logger().Entry(loglvl.ErrorLevel, "cannot arm delayed work timer").
			ErrorAdd(true, err).Log()
	}
}

func (o *mgr) shortestDelayedLocked() *workItem {
	var res *workItem

	for _, w := range o.delayed {
		if res == nil || w.ctl.TimeBegin.Before(res.ctl.TimeBegin) {
			res = w
		}
	}

	return res
}

// updateDelayedWork transfers every already due item from the delayed list
// to the runnable path, clearing the time delay dependency bit, then re-arms
// the timer. Caller holds the manager mutex.
func (o *mgr) updateDelayedWork() {
	now := time.Now()

	// promote in deadline order so earlier deadlines run first
	for {
		due := -1

		for i, w := range o.delayed {
			if w.ctl.TimeBegin.After(now) {
				continue
			}

			if due < 0 || w.ctl.TimeBegin.Before(o.delayed[due].ctl.TimeBegin) {
				due = i
			}
		}

		if due < 0 {
			break
		}

		w := o.delayed[due]
		o.delayed = append(o.delayed[:due], o.delayed[due+1:]...)
		o.requeueRunnable(w, cmwrk.DependTimeDelay)
	}

	o.updateTimerLocked()
}

// handleTimerEvent drains the timer descriptor after expiry and promotes due
// work. Caller holds the manager mutex.
func (o *mgr) handleTimerEvent() {
	var b [8]byte

	for {
		if n, err := unix.Read(o.tfd, b[:]); err != nil || n <= 0 {
			break
		}
	}

	o.updateDelayedWork()
}
