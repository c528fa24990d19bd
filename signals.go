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
	"context"
	"encoding/binary"
	"os"
	"os/signal"
	"syscall"

	cmwrk "github.com/nabbar/conmgr/work"
	liberr "github.com/nabbar/golib/errors"
	loglvl "github.com/nabbar/golib/logger/level"
	"golang.org/x/sys/unix"
)

// sigChanDepth bounds undelivered signals; beyond it deliveries coalesce,
// which is logged on the read side.
const sigChanDepth = 64

// subscribeSignalLocked appends an item to the signal subscriber list,
// creating the self-pipe connection and registering the OS signal on first
// use. The subscription persists: every delivery of the signal runs the
// callback once. Caller holds the manager mutex.
func (o *mgr) subscribeSignalLocked(w *workItem) liberr.Error {
	if o.sigCon == nil {
		if err := o.initSignalsLocked(); err != nil {
			return err
		}
	}

	if !o.sigWatch[w.ctl.Signal] {
		o.sigWatch[w.ctl.Signal] = true
		signal.Notify(o.sigC, syscall.Signal(w.ctl.Signal))
	}

	o.sigs = append(o.sigs, w)

	return nil
}

// initSignalsLocked creates the nonblocking self-pipe, registers its read
// side as a normal manager connection, and spawns the notify pump writing
// each delivered signal number into the pipe. Caller holds the mutex.
func (o *mgr) initSignalsLocked() liberr.Error {
	var fds [2]int

	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return ErrorSignalPipe.Error(err)
	}

	con, e := o.addConLocked(TypeRaw, fds[0], -1, &Events{
		OnData: o.onSignalData,
	}, FlagNone, nil, "signal")
	if e != nil {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
		return e
	}

	con.flags |= flagIsConnected

	o.sigPipeR = fds[0]
	o.sigPipeW = fds[1]
	o.sigCon = con
	o.sigC = make(chan os.Signal, sigChanDepth)

	x, cnl := context.WithCancel(o.ctx)
	o.sigStop = cnl

	go o.signalPump(x)

	return nil
}

func (o *mgr) finiSignals() {
	if o.sigStop != nil {
		o.sigStop()
		o.sigStop = nil
	}

	if o.sigC != nil {
		signal.Stop(o.sigC)
	}

	if o.sigPipeW >= 0 {
		_ = unix.Close(o.sigPipeW)
		o.sigPipeW = -1
	}
}

// signalPump forwards each delivered signal number into the self-pipe. A
// full pipe drops the write; the process being torn down stops the pump.
func (o *mgr) signalPump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case sig, ok := <-o.sigC:
			if !ok {
				return
			}

			s, k := sig.(syscall.Signal)
			if !k {
				continue
			}

			var b [4]byte
			binary.NativeEndian.PutUint32(b[:], uint32(s))

			if _, err := unix.Write(o.sigPipeW, b[:]); err != nil {
				o.logger().Entry(loglvl.WarnLevel, "signal self-pipe full, coalescing delivery").
					FieldAdd("signal", int(s)).Log()
			}
		}
	}
}

// onSignalData decodes successive signal numbers from the self-pipe and runs
// every subscribed item once per delivery, with a cleared signal dependency
// bit so the item runs normally.
func (o *mgr) onSignalData(con *Fd, arg interface{}) error {
	buf := con.InBuffer()

	for len(buf) >= 4 {
		sig := int(binary.NativeEndian.Uint32(buf[:4]))
		buf = buf[4:]
		con.MarkConsumed(4)

		o.m.Lock()
		for _, w := range o.sigs {
			if w.ctl.Signal != sig || w.status != cmwrk.StatusPending {
				continue
			}

			run := &workItem{
				con:    w.con,
				fct:    w.fct,
				arg:    w.arg,
				name:   w.name,
				status: cmwrk.StatusPending,
				ctl: cmwrk.Control{
					Schedule: cmwrk.SchedFifo,
					Depend:   w.ctl.Depend.Clear(cmwrk.DependSignal),
				},
			}

			if run.ctl.Depend == cmwrk.DependInvalid {
				run.ctl.Depend = cmwrk.DependNone
			}

			_ = o.addWorkLocked(run)
		}
		o.m.Unlock()
	}

	return nil
}
