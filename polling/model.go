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

package polling

import (
	"time"

	liberr "github.com/nabbar/golib/errors"
	liblog "github.com/nabbar/golib/logger"
	loglvl "github.com/nabbar/golib/logger/level"
	"golang.org/x/sys/unix"
)

// wakePipe is the self-pipe a poller watches so Interrupt can wake a blocked
// wait call without touching any registered descriptor.
type wakePipe struct {
	r int
	w int
}

func newWakePipe() (*wakePipe, liberr.Error) {
	var fds [2]int

	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, ErrorSyscallCreate.Error(err)
	}

	return &wakePipe{r: fds[0], w: fds[1]}, nil
}

func (p *wakePipe) wake() {
	var b = []byte{1}

	// EAGAIN means a wakeup is already pending, nothing to add
	_, _ = unix.Write(p.w, b)
}

func (p *wakePipe) drain() {
	var b [16]byte

	for {
		if n, err := unix.Read(p.r, b[:]); err != nil || n <= 0 {
			return
		}
	}
}

func (p *wakePipe) close() {
	_ = unix.Close(p.r)
	_ = unix.Close(p.w)
}

func timeoutMsec(d time.Duration) int {
	if d < 0 {
		return -1
	} else if d == 0 {
		return 0
	} else if m := int(d / time.Millisecond); m > 0 {
		return m
	}

	// sub-millisecond deadlines still need a real wait
	return 1
}

func getLogger(fct liblog.FuncLog) liblog.Logger {
	if fct == nil {
		return liblog.GetDefault()
	} else if l := fct(); l == nil {
		return liblog.GetDefault()
	} else {
		return l
	}
}

func logLink(fct liblog.FuncLog, op string, fd int, i Interest, name string) {
	ent := getLogger(fct).Entry(loglvl.DebugLevel, "polling "+op)
	ent = ent.FieldAdd("fd", fd)
	ent = ent.FieldAdd("interest", i.String())
	ent = ent.FieldAdd("name", name)
	ent.Log()
}
