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
	"time"
)

func (e *evt) Name() string {
	return e.n
}

func (e *evt) Count() uint64 {
	return e.c.Load()
}

func (e *evt) Signal() {
	select {
	case e.o <- struct{}{}:
		e.c.Add(1)
	default:
		// a wakeup is already pending, coalesce
	}
}

func (e *evt) Broadcast() {
	e.m.Lock()
	close(e.b)
	e.b = make(chan struct{})
	e.m.Unlock()
	e.c.Add(1)
}

func (e *evt) gate() <-chan struct{} {
	e.m.Lock()
	defer e.m.Unlock()
	return e.b
}

func (e *evt) Wait() {
	g := e.gate()

	select {
	case <-e.o:
	case <-g:
	}
}

func (e *evt) WaitTimeout(d time.Duration) bool {
	g := e.gate()

	if d <= 0 {
		select {
		case <-e.o:
			return true
		case <-g:
			return true
		default:
			return false
		}
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-e.o:
		return true
	case <-g:
		return true
	case <-t.C:
		return false
	}
}

func (e *evt) WaitContext(ctx context.Context) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	g := e.gate()

	select {
	case <-e.o:
		return true
	case <-g:
		return true
	case <-ctx.Done():
		return false
	}
}
