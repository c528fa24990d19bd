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

package work

import (
	"time"
)

// Status is the lifecycle state of a work item.
// Cancelled is a substate of Pending: a cancelled item is still handed to a
// worker so its callback can release resources, and callbacks must check the
// status before doing real work.
type Status uint8

const (
	StatusInvalid Status = iota
	StatusPending
	StatusRun
	StatusCancelled
)

// Sched is the scheduling policy of a work item. Only FIFO is supported.
type Sched uint8

const (
	SchedInvalid Sched = 0
	SchedFifo    Sched = 1 << iota
)

// Depend is a bitset describing what must happen before a work item may run.
// An item with no remaining dependency bits (or only DependNone) is runnable.
type Depend uint32

const (
	DependInvalid Depend = 0

	// DependNone marks an item runnable as soon as it is dispatched.
	DependNone Depend = 1 << iota

	// DependConWriteComplete defers the item until the owning connection's
	// outgoing buffer list is fully drained.
	DependConWriteComplete

	// DependTimeDelay defers the item until an absolute deadline.
	DependTimeDelay

	// DependSignal defers the item until a subscribed OS signal is delivered.
	DependSignal
)

// Control carries the scheduling parameters of a work item.
type Control struct {
	// Schedule is the scheduling policy. Zero value is rejected; use SchedFifo.
	Schedule Sched

	// Depend routes the item into the proper pending list.
	Depend Depend

	// TimeBegin is the absolute deadline, significant only when Depend
	// contains DependTimeDelay. Computed with CalcTimeDelay.
	TimeBegin time.Time

	// Signal is the subscribed signal number, significant only when Depend
	// contains DependSignal.
	Signal int
}

// Has returns true when the bitset contains all bits of d.
func (w Depend) Has(d Depend) bool {
	return w&d == d
}

// Clear returns the bitset with the bits of d removed.
func (w Depend) Clear(d Depend) Depend {
	return w &^ d
}
