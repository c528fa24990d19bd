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

type epl struct {
	m   sync.Mutex
	log liblog.FuncLog
	pfd int
	pip *wakePipe
	fds map[int]Interest
	evs []unix.EpollEvent
	nev int
	irq atomic.Bool
	cls atomic.Bool
}

func newEpoll(log liblog.FuncLog) (Poller, liberr.Error) {
	pfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, ErrorSyscallCreate.Error(err)
	}

	pip, e := newWakePipe()
	if e != nil {
		_ = unix.Close(pfd)
		return nil, e
	}

	o := &epl{
		log: log,
		pfd: pfd,
		pip: pip,
		fds: make(map[int]Interest),
		evs: make([]unix.EpollEvent, 64),
	}

	ev := unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(pip.r),
	}

	if err = unix.EpollCtl(pfd, unix.EPOLL_CTL_ADD, pip.r, &ev); err != nil {
		o.pip.close()
		_ = unix.Close(pfd)
		return nil, ErrorSyscallCtl.Error(err)
	}

	return o, nil
}

func (o *epl) Mode() Mode {
	return ModeEpoll
}

func epollEvents(i Interest) (uint32, liberr.Error) {
	switch i {
	case InterestNone:
		return 0, nil
	case InterestConnected:
		return unix.EPOLLRDHUP, nil
	case InterestReadOnly:
		return unix.EPOLLIN | unix.EPOLLRDHUP, nil
	case InterestReadWrite:
		return unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLRDHUP, nil
	case InterestWriteOnly:
		return unix.EPOLLOUT, nil
	case InterestListen:
		return unix.EPOLLIN, nil
	}

	return 0, ErrorInterestInvalid.Error(nil)
}

func (o *epl) Link(fd int, i Interest, name string) liberr.Error {
	if o.cls.Load() {
		return ErrorPollerClosed.Error(nil)
	}

	msk, e := epollEvents(i)
	if e != nil {
		return e
	}

	o.m.Lock()
	defer o.m.Unlock()

	ev := unix.EpollEvent{
		Events: msk,
		Fd:     int32(fd),
	}

	if err := unix.EpollCtl(o.pfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return ErrorSyscallCtl.Error(err)
	}

	o.fds[fd] = i
	logLink(o.log, "link", fd, i, name)

	return nil
}

func (o *epl) Relink(fd int, i Interest, name string) liberr.Error {
	if o.cls.Load() {
		return ErrorPollerClosed.Error(nil)
	}

	msk, e := epollEvents(i)
	if e != nil {
		return e
	}

	o.m.Lock()
	defer o.m.Unlock()

	if _, ok := o.fds[fd]; !ok {
		return ErrorFdNotFound.Error(nil)
	}

	ev := unix.EpollEvent{
		Events: msk,
		Fd:     int32(fd),
	}

	if err := unix.EpollCtl(o.pfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return ErrorSyscallCtl.Error(err)
	}

	o.fds[fd] = i
	logLink(o.log, "relink", fd, i, name)

	return nil
}

func (o *epl) Unlink(fd int, name string) liberr.Error {
	if o.cls.Load() {
		return ErrorPollerClosed.Error(nil)
	}

	o.m.Lock()
	defer o.m.Unlock()

	if _, ok := o.fds[fd]; !ok {
		return nil
	}

	delete(o.fds, fd)

	if err := unix.EpollCtl(o.pfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil && err != unix.ENOENT && err != unix.EBADF {
		return ErrorSyscallCtl.Error(err)
	}

	logLink(o.log, "unlink", fd, InterestNone, name)

	return nil
}

func (o *epl) Poll(timeout time.Duration) (int, liberr.Error) {
	if o.cls.Load() {
		return 0, ErrorPollerClosed.Error(nil)
	}

	o.m.Lock()
	if need := len(o.fds) + 1; need > len(o.evs) {
		o.evs = make([]unix.EpollEvent, need)
	}
	buf := o.evs
	o.m.Unlock()

	var (
		n   int
		err error
	)

	for {
		n, err = unix.EpollWait(o.pfd, buf, timeoutMsec(timeout))
		if err == unix.EINTR {
			continue
		}
		break
	}

	if err != nil {
		o.nev = 0
		return 0, ErrorSyscallPoll.Error(err)
	}

	o.nev = n

	if o.irq.Swap(false) {
		o.pip.drain()
	}

	return n, nil
}

func (o *epl) ForEach(fct FuncEvents) liberr.Error {
	if fct == nil {
		return ErrorParamEmpty.Error(nil)
	} else if o.cls.Load() {
		return ErrorPollerClosed.Error(nil)
	}

	for i := 0; i < o.nev; i++ {
		ev := o.evs[i]

		if int(ev.Fd) == o.pip.r {
			o.pip.drain()
			continue
		}

		res := Events{
			CanRead:  ev.Events&unix.EPOLLIN != 0,
			CanWrite: ev.Events&unix.EPOLLOUT != 0,
			Error:    ev.Events&unix.EPOLLERR != 0,
			Hangup:   ev.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
		}

		if !fct(int(ev.Fd), res) {
			break
		}
	}

	o.nev = 0

	return nil
}

func (o *epl) Interrupt() {
	if o.cls.Load() {
		return
	}

	if !o.irq.Swap(true) {
		o.pip.wake()
	}
}

func (o *epl) Close() liberr.Error {
	if o.cls.Swap(true) {
		return nil
	}

	o.m.Lock()
	defer o.m.Unlock()

	o.pip.close()

	if err := unix.Close(o.pfd); err != nil {
		return ErrorSyscallCreate.Error(err)
	}

	return nil
}
