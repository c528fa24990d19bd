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
	"sync"
	"sync/atomic"
	"time"

	liberr "github.com/nabbar/golib/errors"
	liblog "github.com/nabbar/golib/logger"
	"golang.org/x/sys/unix"
)

type pfd struct {
	m   sync.Mutex
	log liblog.FuncLog
	pip *wakePipe
	fds map[int]Interest
	evs []unix.PollFd
	irq atomic.Bool
	cls atomic.Bool
}

func newPollFd(log liblog.FuncLog) (Poller, liberr.Error) {
	pip, e := newWakePipe()
	if e != nil {
		return nil, e
	}

	return &pfd{
		log: log,
		pip: pip,
		fds: make(map[int]Interest),
	}, nil
}

func (o *pfd) Mode() Mode {
	return ModePoll
}

func pollEvents(i Interest) (int16, liberr.Error) {
	switch i {
	case InterestNone:
		return 0, nil
	case InterestConnected:
		return unix.POLLRDHUP, nil
	case InterestReadOnly:
		return unix.POLLIN | unix.POLLRDHUP, nil
	case InterestReadWrite:
		return unix.POLLIN | unix.POLLOUT | unix.POLLRDHUP, nil
	case InterestWriteOnly:
		return unix.POLLOUT, nil
	case InterestListen:
		return unix.POLLIN, nil
	}

	return 0, ErrorInterestInvalid.Error(nil)
}

func (o *pfd) Link(fd int, i Interest, name string) liberr.Error {
	if o.cls.Load() {
		return ErrorPollerClosed.Error(nil)
	}

	if _, e := pollEvents(i); e != nil {
		return e
	}

	o.m.Lock()
	o.fds[fd] = i
	o.m.Unlock()

	logLink(o.log, "link", fd, i, name)

	return nil
}

func (o *pfd) Relink(fd int, i Interest, name string) liberr.Error {
	if o.cls.Load() {
		return ErrorPollerClosed.Error(nil)
	}

	if _, e := pollEvents(i); e != nil {
		return e
	}

	o.m.Lock()
	defer o.m.Unlock()

	if _, ok := o.fds[fd]; !ok {
		return ErrorFdNotFound.Error(nil)
	}

	o.fds[fd] = i
	logLink(o.log, "relink", fd, i, name)

	return nil
}

func (o *pfd) Unlink(fd int, name string) liberr.Error {
	if o.cls.Load() {
		return ErrorPollerClosed.Error(nil)
	}

	o.m.Lock()
	delete(o.fds, fd)
	o.m.Unlock()

	logLink(o.log, "unlink", fd, InterestNone, name)

	return nil
}

func (o *pfd) Poll(timeout time.Duration) (int, liberr.Error) {
	if o.cls.Load() {
		return 0, ErrorPollerClosed.Error(nil)
	}

	o.m.Lock()
	lst := make([]unix.PollFd, 0, len(o.fds)+1)
	lst = append(lst, unix.PollFd{Fd: int32(o.pip.r), Events: unix.POLLIN})

	for fd, i := range o.fds {
		msk, _ := pollEvents(i)
		lst = append(lst, unix.PollFd{Fd: int32(fd), Events: msk})
	}
	o.m.Unlock()

	var (
		n   int
		err error
	)

	for {
		n, err = unix.Poll(lst, timeoutMsec(timeout))
		if err == unix.EINTR {
			continue
		}
		break
	}

	if err != nil {
		o.evs = nil
		return 0, ErrorSyscallPoll.Error(err)
	}

	o.evs = lst

	if o.irq.Swap(false) {
		o.pip.drain()
	}

	return n, nil
}

func (o *pfd) ForEach(fct FuncEvents) liberr.Error {
	if fct == nil {
		return ErrorParamEmpty.Error(nil)
	} else if o.cls.Load() {
		return ErrorPollerClosed.Error(nil)
	}

	for _, ev := range o.evs {
		if ev.Revents == 0 {
			continue
		}

		if int(ev.Fd) == o.pip.r {
			o.pip.drain()
			continue
		}

		res := Events{
			CanRead:  ev.Revents&unix.POLLIN != 0,
			CanWrite: ev.Revents&unix.POLLOUT != 0,
			Error:    ev.Revents&(unix.POLLERR|unix.POLLNVAL) != 0,
			Hangup:   ev.Revents&(unix.POLLHUP|unix.POLLRDHUP) != 0,
		}

		if !fct(int(ev.Fd), res) {
			break
		}
	}

	o.evs = nil

	return nil
}

func (o *pfd) Interrupt() {
	if o.cls.Load() {
		return
	}

	if !o.irq.Swap(true) {
		o.pip.wake()
	}
}

func (o *pfd) Close() liberr.Error {
	if o.cls.Swap(true) {
		return nil
	}

	o.m.Lock()
	defer o.m.Unlock()

	o.pip.close()
	o.fds = make(map[int]Interest)

	return nil
}
