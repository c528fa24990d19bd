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
)

// Interest is the readiness set registered for one file descriptor.
type Interest uint8

const (
	InterestInvalid Interest = iota

	// InterestNone stops polling the descriptor without forgetting it.
	InterestNone

	// InterestConnected only watches for hangup or error on the descriptor.
	InterestConnected

	InterestReadOnly
	InterestReadWrite
	InterestWriteOnly

	// InterestListen watches a listening socket for incoming connections.
	InterestListen
)

// Mode selects the kernel backend of a poller.
type Mode uint8

const (
	// ModeEpoll uses an epoll instance (default).
	ModeEpoll Mode = iota

	// ModePoll uses the level-triggered poll() array call.
	ModePoll
)

// Events is the readiness state reported for one descriptor.
type Events struct {
	CanRead  bool
	CanWrite bool
	Error    bool
	Hangup   bool
}

// FuncEvents receives each readiness event exactly once per Poll call.
// It returns true to continue the walk or false to stop.
type FuncEvents func(fd int, ev Events) bool

// Poller multiplexes readiness notifications for many file descriptors.
type Poller interface {
	// Mode returns the backend in use.
	Mode() Mode

	// Link registers a descriptor with the given interest. The name is only
	// used in log lines.
	Link(fd int, i Interest, name string) liberr.Error

	// Relink adjusts the interest of an already registered descriptor.
	Relink(fd int, i Interest, name string) liberr.Error

	// Unlink removes a descriptor. Unlinking an unknown descriptor is not an
	// error.
	Unlink(fd int, name string) liberr.Error

	// Poll blocks until at least one descriptor is ready, the timeout
	// expires, or Interrupt is called. A negative timeout blocks without
	// bound; a zero timeout polls and returns. It returns the number of
	// ready descriptors, interrupt wakeups included.
	Poll(timeout time.Duration) (int, liberr.Error)

	// ForEach walks the events collected by the last Poll call, each exactly
	// once. The internal interrupt pipe is never surfaced.
	ForEach(fct FuncEvents) liberr.Error

	// Interrupt wakes a blocked Poll call. Redundant interrupts coalesce.
	Interrupt()

	// Close releases the kernel resources. The poller is unusable afterwards.
	Close() liberr.Error
}

// New creates a poller using the given backend mode.
func New(mode Mode, log liblog.FuncLog) (Poller, liberr.Error) {
	switch mode {
	case ModeEpoll:
		return newEpoll(log)
	case ModePoll:
		return newPollFd(log)
	}

	return nil, ErrorModeInvalid.Error(nil)
}

func (i Interest) String() string {
	switch i {
	case InterestNone:
		return "NONE"
	case InterestConnected:
		return "CONNECTED"
	case InterestReadOnly:
		return "READ_ONLY"
	case InterestReadWrite:
		return "READ_WRITE"
	case InterestWriteOnly:
		return "WRITE_ONLY"
	case InterestListen:
		return "LISTEN"
	}

	return "INVALID"
}

func (m Mode) String() string {
	switch m {
	case ModeEpoll:
		return "epoll"
	case ModePoll:
		return "poll"
	}

	return "invalid"
}
