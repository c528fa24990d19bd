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
	"math"
	"time"

	liberr "github.com/nabbar/golib/errors"
)

const nsecPerSec = int64(time.Second)

// CalcTimeDelay converts a relative delay into the absolute deadline used by
// Control.TimeBegin. Nanoseconds are renormalized into seconds so only the
// partial second remains. The deadline is computed against the monotonic
// clock carried by time.Now; the arithmetic is overflow-checked and negative
// delays are rejected.
func CalcTimeDelay(seconds int64, nanoseconds int64) (time.Time, liberr.Error) {
	now := time.Now()

	seconds += nanoseconds / nsecPerSec
	nanoseconds %= nsecPerSec

	if seconds < 0 || nanoseconds < 0 {
		return time.Time{}, ErrorTimeDelayOverflow.Error(nil)
	} else if seconds > (math.MaxInt64-nanoseconds)/nsecPerSec {
		return time.Time{}, ErrorTimeDelayOverflow.Error(nil)
	}

	d := time.Duration(seconds)*time.Second + time.Duration(nanoseconds)

	if t := now.Add(d); t.Before(now) {
		return time.Time{}, ErrorTimeDelayOverflow.Error(nil)
	} else {
		return t, nil
	}
}

// Validate checks a Control for usability before it enters the queue.
func (c Control) Validate() liberr.Error {
	if c.Schedule != SchedFifo {
		return ErrorControlInvalid.Error(nil)
	}

	if c.Depend == DependInvalid {
		return ErrorControlInvalid.Error(nil)
	}

	if c.Depend.Has(DependTimeDelay) && c.TimeBegin.IsZero() {
		return ErrorControlInvalid.Error(nil)
	}

	if c.Depend.Has(DependSignal) && c.Signal <= 0 {
		return ErrorControlInvalid.Error(nil)
	}

	return nil
}
