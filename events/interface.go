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

package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Event is a named wakeup point shared between goroutines.
//
// Signal wakes one waiter; if no goroutine is currently waiting, the wakeup
// is kept and consumed by the next Wait call. Broadcast wakes every waiter
// currently blocked and keeps nothing.
type Event interface {
	// Name returns the stable name given at creation, used in log lines.
	Name() string

	// Signal wakes exactly one waiter. A signal sent while nobody waits is
	// remembered and consumed by the next waiter.
	Signal()

	// Broadcast wakes all goroutines currently blocked in a wait call.
	Broadcast()

	// Wait blocks until the event is signaled or broadcast.
	Wait()

	// WaitTimeout blocks at most d and returns false on timeout.
	// A zero or negative duration checks for a pending signal only.
	WaitTimeout(d time.Duration) bool

	// WaitContext blocks until wakeup or context end and returns false when
	// the context ended first.
	WaitContext(ctx context.Context) bool

	// Count returns the number of wakeups issued since creation: each
	// broadcast, even one with no waiter, and each signal that was not
	// coalesced into an already pending one.
	Count() uint64
}

// New returns a new Event with the given name.
func New(name string) Event {
	return &evt{
		n: name,
		o: make(chan struct{}, 1),
		b: make(chan struct{}),
	}
}

type evt struct {
	m sync.Mutex
	n string
	o chan struct{} // single wakeup, buffered
	b chan struct{} // closed on broadcast, then replaced
	c atomic.Uint64
}
