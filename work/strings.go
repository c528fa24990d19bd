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
	"strings"
)

func (s Status) String() string {
	switch s {
	case StatusInvalid:
		return "INVALID"
	case StatusPending:
		return "PENDING"
	case StatusRun:
		return "RUN"
	case StatusCancelled:
		return "CANCELLED"
	}

	return "unknown work status"
}

func (s Sched) String() string {
	switch s {
	case SchedInvalid:
		return "INVALID"
	case SchedFifo:
		return "FIFO"
	}

	return "unknown work schedule"
}

func (w Depend) String() string {
	if w == DependInvalid {
		return "INVALID"
	}

	var p []string

	if w.Has(DependNone) {
		p = append(p, "NONE")
	}
	if w.Has(DependConWriteComplete) {
		p = append(p, "CON_WRITE_COMPLETE")
	}
	if w.Has(DependTimeDelay) {
		p = append(p, "TIME_DELAY")
	}
	if w.Has(DependSignal) {
		p = append(p, "SIGNAL")
	}

	if r := w &^ (DependNone | DependConWriteComplete | DependTimeDelay | DependSignal); r != 0 {
		p = append(p, "INVALID")
	}

	return strings.Join(p, "|")
}
