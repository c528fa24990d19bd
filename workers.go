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
	"time"

	cmwrk "github.com/nabbar/conmgr/work"
	loglvl "github.com/nabbar/golib/logger/level"
)

// workerIdleWait bounds a worker's sleep so a missed wakeup cannot park the
// pool forever.
const workerIdleWait = time.Second

// worker is the body of one pool goroutine: pop an item, run it through the
// common wrapper, repeat. Exits once shutdown is requested and the runnable
// queue drained.
func (o *mgr) worker(id int) {
	for {
		o.m.Lock()

		// a quiesced manager parks runnable work; shutdown overrides the
		// pause so cancelled items still reach their callbacks
		if len(o.run) > 0 && (!o.quiesceAct || o.shutdown) {
			w := o.run[0]
			o.run = o.run[1:]
			o.wrkActive++

			if len(o.run) > 0 {
				// more items pending, chain the wakeup
				o.evtWorkerSleep.Signal()
			}

			o.m.Unlock()

			o.runWork(id, w)
			continue
		}

		if o.shutdown && o.drained {
			o.wrkCount--
			o.m.Unlock()
			o.evtWorkerReturn.Broadcast()
			return
		}

		o.m.Unlock()
		o.evtWorkerSleep.WaitTimeout(workerIdleWait)
	}
}

// runWork executes one item: log begin and end, keep per connection
// accounting, release the connection's work slot on completion.
func (o *mgr) runWork(id int, w *workItem) {
	if w.status != cmwrk.StatusCancelled {
		w.status = cmwrk.StatusRun
	}

	ent := o.logger().Entry(loglvl.DebugLevel, "work begin")
	ent = ent.FieldAdd("worker", id)
	ent = ent.FieldAdd("work", w.name)
	ent = ent.FieldAdd("status", w.status.String())
	if w.con != nil {
		ent = ent.FieldAdd("connection", w.con.name)
	}
	ent.Log()

	w.fct(CallbackArgs{
		Con:    w.con,
		Status: w.status,
	}, w.arg)

	ent = o.logger().Entry(loglvl.DebugLevel, "work end")
	ent = ent.FieldAdd("worker", id)
	ent = ent.FieldAdd("work", w.name)
	ent.Log()

	o.m.Lock()
	o.wrkActive--

	if w.con != nil {
		w.con.flags &^= flagWorkActive
	}

	o.wakeWatchLocked()
	o.m.Unlock()

	o.evtWorkerReturn.Broadcast()
}
